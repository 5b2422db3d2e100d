package invitation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CreatedOutbox hands each new invitation to exactly one notifier run, however
// many listeners hear the insert. Claiming stamps email_queued_at; the stamp is
// never cleared, so a failed email is not retried.
type CreatedOutbox struct {
	pool   *pgxpool.Pool
	schema string
}

// NewCreatedOutbox constructs a CreatedOutbox over the same schema as PostgresStore.
func NewCreatedOutbox(pool *pgxpool.Pool, opts ...StoreOption) (*CreatedOutbox, error) {
	st, err := NewPostgresStore(pool, opts...)
	if err != nil {
		return nil, err
	}
	return &CreatedOutbox{pool: st.pool, schema: st.schema}, nil
}

// Claim marks the invitation as handed to the notifier and returns its record
// data. ok is false when the row does not exist or was already claimed.
func (o *CreatedOutbox) Claim(ctx context.Context, id string) (map[string]any, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, ErrInvalidInput
	}

	var inv Invitation
	err := o.pool.QueryRow(ctx,
		`UPDATE `+pgIdent(o.schema, "family_invitations")+`
		    SET email_queued_at = now()
		  WHERE id = $1 AND email_queued_at IS NULL
		RETURNING id, invitee_email, inviter_name, family_id, family_name, status, created_at, expires_at`,
		id,
	).Scan(&inv.ID, &inv.InviteeEmail, &inv.InviterName, &inv.FamilyID, &inv.FamilyName,
		&inv.Status, &inv.CreatedAt, &inv.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return inv.CreatedData(), true, nil
}

// Unclaimed lists up to limit ids, ordered and strictly after after, of
// invitations that are still pending and unexpired and were never claimed.
// Rows that stopped being redeemable are left alone.
func (o *CreatedOutbox) Unclaimed(ctx context.Context, after string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, ErrInvalidInput
	}
	rows, err := o.pool.Query(ctx,
		`SELECT id
		   FROM `+pgIdent(o.schema, "family_invitations")+`
		  WHERE email_queued_at IS NULL
		    AND status = $1
		    AND expires_at > now()
		    AND id > $2
		  ORDER BY id
		  LIMIT $3`,
		string(StatusPending), after, limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// CreatedData is the record handed to the created-invitation notifier.
func (inv Invitation) CreatedData() map[string]any {
	return map[string]any{
		"inviteeEmail": inv.InviteeEmail,
		"inviterName":  inv.InviterName,
		"familyId":     inv.FamilyID,
		"familyName":   inv.FamilyName,
		"status":       string(inv.Status),
		"createdAt":    inv.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expiresAt":    inv.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}
