package invitation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc/codes"

	"eatsoon/cmd/internal/fnerr"
)

// Integration tests are opt-in and require EATSOON_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_Accept_AppliesAllWrites(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)
	mustSeed(t, pool, schema, time.Now().Add(48*time.Hour))

	// Pre-existing fields on the member entry must survive the merge.
	mustExec(t, pool,
		`INSERT INTO `+pgIdent(schema, "family_members")+` (family_id, members)
		 VALUES ($1, jsonb_build_object($2::text, jsonb_build_object('nickname', 'JJ')))`,
		testFamilyID, testUserID,
	)

	svc := mustNewPostgresService(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := svc.Accept(ctx, acceptInput(testCaller("INVITEE@example.com")))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success")
	}

	var (
		status      string
		respondedAt *time.Time
	)
	if err := pool.QueryRow(ctx,
		`SELECT status, responded_at FROM `+pgIdent(schema, "family_invitations")+` WHERE id = $1`,
		testInvitationID,
	).Scan(&status, &respondedAt); err != nil {
		t.Fatalf("read invitation: %v", err)
	}
	if status != string(StatusAccepted) || respondedAt == nil {
		t.Fatalf("invitation not accepted: status=%q responded_at=%v", status, respondedAt)
	}

	var count int
	if err := pool.QueryRow(ctx,
		`SELECT (statistics ->> 'memberCount')::int FROM `+pgIdent(schema, "families")+` WHERE id = $1`,
		testFamilyID,
	).Scan(&count); err != nil {
		t.Fatalf("read family: %v", err)
	}
	if count != 3 {
		t.Fatalf("member count=%d want 3", count)
	}

	var role, nickname, memberStatus string
	if err := pool.QueryRow(ctx,
		`SELECT members -> $2::text ->> 'role',
		        members -> $2::text ->> 'status',
		        members -> $2::text ->> 'nickname'
		   FROM `+pgIdent(schema, "family_members")+` WHERE family_id = $1`,
		testFamilyID, testUserID,
	).Scan(&role, &memberStatus, &nickname); err != nil {
		t.Fatalf("read members: %v", err)
	}
	if role != RoleMember || memberStatus != MemberStatusActive || nickname != "JJ" {
		t.Fatalf("unexpected member entry: role=%q status=%q nickname=%q", role, memberStatus, nickname)
	}

	var (
		familyIDs []string
		current   *string
	)
	if err := pool.QueryRow(ctx,
		`SELECT family_ids, current_family_id FROM `+pgIdent(schema, "users")+` WHERE id = $1`,
		testUserID,
	).Scan(&familyIDs, &current); err != nil {
		t.Fatalf("read user: %v", err)
	}
	if !slices.Equal(familyIDs, []string{testFamilyID}) || current == nil || *current != testFamilyID {
		t.Fatalf("unexpected user: family_ids=%v current=%v", familyIDs, current)
	}

	// Second call observes the committed status.
	_, err = svc.Accept(ctx, acceptInput(testCaller(testInvitee)))
	if fnerr.KindOf(err) != codes.FailedPrecondition {
		t.Fatalf("second accept: expected failed-precondition, got %v", err)
	}
}

func TestPostgresStore_Accept_ExpiredLeavesRowsUntouched(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)
	mustSeed(t, pool, schema, time.Now().Add(-time.Minute))

	svc := mustNewPostgresService(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := svc.Accept(ctx, acceptInput(testCaller(testInvitee)))
	if fnerr.KindOf(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed-precondition, got %v", err)
	}

	var status string
	if err := pool.QueryRow(ctx,
		`SELECT status FROM `+pgIdent(schema, "family_invitations")+` WHERE id = $1`,
		testInvitationID,
	).Scan(&status); err != nil {
		t.Fatalf("read invitation: %v", err)
	}
	if status != string(StatusPending) {
		t.Fatalf("status=%q want pending", status)
	}
}

func TestPostgresStore_Accept_Concurrent_OnlyOneWins(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)
	mustSeed(t, pool, schema, time.Now().Add(48*time.Hour))

	svc := mustNewPostgresService(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const workers = 6
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Accept(ctx, acceptInput(testCaller(testInvitee)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if k := fnerr.KindOf(err); k != codes.FailedPrecondition {
			t.Fatalf("unexpected error kind %v: %v", k, err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one success, got %d", success)
	}

	var count int
	if err := pool.QueryRow(ctx,
		`SELECT (statistics ->> 'memberCount')::int FROM `+pgIdent(schema, "families")+` WHERE id = $1`,
		testFamilyID,
	).Scan(&count); err != nil {
		t.Fatalf("read family: %v", err)
	}
	if count != 3 {
		t.Fatalf("member count=%d want 3", count)
	}
}

func mustNewPostgresService(t *testing.T, pool *pgxpool.Pool, schema string) *Service {
	t.Helper()
	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	svc, err := NewService(st,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMaxAttempts(10),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func mustSeed(t *testing.T, pool *pgxpool.Pool, schema string, expiresAt time.Time) {
	t.Helper()

	mustExec(t, pool,
		`INSERT INTO `+pgIdent(schema, "families")+` (id, name, statistics)
		 VALUES ($1, 'Smith', jsonb_build_object('memberCount', 2))`,
		testFamilyID,
	)
	mustExec(t, pool, `INSERT INTO `+pgIdent(schema, "users")+` (id) VALUES ($1)`, testUserID)
	mustExec(t, pool,
		`INSERT INTO `+pgIdent(schema, "family_invitations")+`
		   (id, invitee_email, inviter_name, family_id, family_name, expires_at)
		 VALUES ($1, $2, 'Alex', $3, 'Smith', $4)`,
		testInvitationID, testInvitee, testFamilyID, expiresAt.UTC(),
	)
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("EATSOON_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: EATSOON_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse EATSOON_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (EATSOON_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "eatsoon_it_" + strings.ToLower(ulid.Make().String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Unique channel per schema so parallel tests do not hear each other.
	if _, err := pool.Exec(ctx, SchemaSQL(schema, schema+"_created")); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
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
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}
