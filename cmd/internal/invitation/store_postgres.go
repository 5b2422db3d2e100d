package invitation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes that mean "retry the whole transaction".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PostgresStore persists invitations, families, memberships and users in PostgreSQL.
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

// WithinTx runs fn inside a SERIALIZABLE transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	if s == nil || s.pool == nil || fn == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapTxError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, schema: s.schema}); err != nil {
		return mapTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTxError(err)
	}
	return nil
}

// mapTxError turns serialization failures and deadlocks into ErrConflict and
// leaves everything else untouched.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: sqlstate %s", ErrConflict, pgErr.Code)
		}
	}
	return err
}

type pgTx struct {
	tx     pgx.Tx
	schema string
}

func (t *pgTx) table(name string) string {
	return pgIdent(t.schema, name)
}

func (t *pgTx) InvitationForUpdate(ctx context.Context, id string) (Invitation, error) {
	if strings.TrimSpace(id) == "" {
		return Invitation{}, ErrInvalidInput
	}

	var out Invitation
	err := t.tx.QueryRow(ctx,
		`SELECT id, invitee_email, inviter_name, family_id, family_name, status, created_at, expires_at, responded_at
		   FROM `+t.table("family_invitations")+`
		  WHERE id = $1
		  FOR UPDATE`,
		id,
	).Scan(
		&out.ID,
		&out.InviteeEmail,
		&out.InviterName,
		&out.FamilyID,
		&out.FamilyName,
		&out.Status,
		&out.CreatedAt,
		&out.ExpiresAt,
		&out.RespondedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invitation{}, ErrNotFound
		}
		return Invitation{}, err
	}
	return out, nil
}

func (t *pgTx) LockFamily(ctx context.Context, familyID string) error {
	return t.lockRow(ctx, "families", familyID)
}

func (t *pgTx) LockUser(ctx context.Context, userID string) error {
	return t.lockRow(ctx, "users", userID)
}

func (t *pgTx) lockRow(ctx context.Context, table, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidInput
	}
	var one int
	err := t.tx.QueryRow(ctx,
		`SELECT 1 FROM `+t.table(table)+` WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (t *pgTx) MergeMember(ctx context.Context, familyID, userID string, m Member) error {
	if strings.TrimSpace(familyID) == "" || strings.TrimSpace(userID) == "" {
		return ErrInvalidInput
	}
	entry, err := json.Marshal(m)
	if err != nil {
		return err
	}

	// Merge at the user key: existing fields not present in m survive.
	_, err = t.tx.Exec(ctx,
		`INSERT INTO `+t.table("family_members")+` AS fm (family_id, members)
		 VALUES ($1, jsonb_build_object($2::text, $3::jsonb))
		 ON CONFLICT (family_id) DO UPDATE
		    SET members = jsonb_set(
		          fm.members,
		          ARRAY[$2::text],
		          COALESCE(fm.members -> $2::text, '{}'::jsonb) || $3::jsonb,
		          true
		        )`,
		familyID,
		userID,
		string(entry),
	)
	return err
}

func (t *pgTx) AddUserFamily(ctx context.Context, userID, familyID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE `+t.table("users")+`
		    SET family_ids = CASE
		          WHEN $2::text = ANY(family_ids) THEN family_ids
		          ELSE array_append(family_ids, $2::text)
		        END,
		        current_family_id = $2::text
		  WHERE id = $1`,
		userID,
		familyID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) IncrementMemberCount(ctx context.Context, familyID string, delta int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE `+t.table("families")+`
		    SET statistics = jsonb_set(
		          COALESCE(statistics, '{}'::jsonb),
		          '{memberCount}',
		          to_jsonb(COALESCE((statistics ->> 'memberCount')::bigint, 0) + $2::bigint),
		          true
		        )
		  WHERE id = $1`,
		familyID,
		delta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE `+t.table("family_invitations")+`
		    SET status = $2, responded_at = $3
		  WHERE id = $1
		    AND status = $4`,
		id,
		string(StatusAccepted),
		at,
		string(StatusPending),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	return nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
