package mailqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore appends entries to the mail table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "eatsoon").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "eatsoon"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if strings.TrimSpace(e.ID) == "" || len(e.To) == 0 {
		return ErrInvalidInput
	}
	msg, err := json.Marshal(e.Message)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+pgx.Identifier{s.schema, "mail"}.Sanitize()+` (id, recipients, message, created_at)
		 VALUES ($1, $2, $3::jsonb, $4)`,
		e.ID,
		e.To,
		string(msg),
		e.CreatedAt,
	)
	return err
}

// SchemaSQL returns the DDL for the mail table.
func SchemaSQL(schema string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  recipients TEXT[] NOT NULL,
  message JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_mail_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_mail_recipients_nonempty CHECK (cardinality(recipients) > 0)
);
`, pgx.Identifier{schema, "mail"}.Sanitize())
}
