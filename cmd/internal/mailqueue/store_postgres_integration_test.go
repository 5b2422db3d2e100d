package mailqueue

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are opt-in and require EATSOON_DATABASE_URL.

func TestPostgresStore_Append(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := "eatsoon_it_" + strings.ToLower(ulid.Make().String())
	mustExec(t, pool, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})
	mustExec(t, pool, SchemaSQL(schema))

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := InvitationEmail{InviterName: "Alex", FamilyName: "Smith", Code: "K3X9QZ2A"}.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	e, err := NewEntry([]string{"invitee@example.com"}, msg, time.Now())
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	if err := st.Append(ctx, e); err != nil {
		t.Fatalf("append: %v", err)
	}

	var (
		to      []string
		subject string
		html    string
	)
	if err := pool.QueryRow(ctx,
		`SELECT recipients, message ->> 'subject', message ->> 'html'
		   FROM `+pgx.Identifier{schema, "mail"}.Sanitize()+` WHERE id = $1`,
		e.ID,
	).Scan(&to, &subject, &html); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(to) != 1 || to[0] != "invitee@example.com" || subject != msg.Subject {
		t.Fatalf("unexpected row: to=%v subject=%q", to, subject)
	}
	if !strings.Contains(html, "K3X9QZ2A") {
		t.Fatalf("code missing from stored html")
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("EATSOON_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: EATSOON_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (EATSOON_DATABASE_URL set): %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	return pool
}

func mustExec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, sql, args...); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil || os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp")
}
