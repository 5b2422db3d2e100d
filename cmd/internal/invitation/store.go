package invitation

import (
	"context"
	"time"
)

// Store is the persistence boundary for acceptance. WithinTx runs fn in one
// transaction: it commits when fn returns nil and rolls back otherwise.
// Implementations report commit-time conflicts as ErrConflict.
type Store interface {
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of reads and writes available inside an acceptance transaction.
// Reads lock what they return until the transaction ends.
type Tx interface {
	// InvitationForUpdate loads and locks an invitation. Missing rows return ErrNotFound.
	InvitationForUpdate(ctx context.Context, id string) (Invitation, error)
	// LockFamily locks a family row. Missing rows return ErrNotFound.
	LockFamily(ctx context.Context, familyID string) error
	// LockUser locks a user row. Missing rows return ErrNotFound.
	LockUser(ctx context.Context, userID string) error

	// MergeMember merges m into the family's membership map under userID.
	MergeMember(ctx context.Context, familyID, userID string, m Member) error
	// AddUserFamily adds familyID to the user's family set and makes it current.
	AddUserFamily(ctx context.Context, userID, familyID string) error
	// IncrementMemberCount adds delta to the family member count statistic.
	IncrementMemberCount(ctx context.Context, familyID string, delta int) error
	// MarkAccepted moves a pending invitation to accepted.
	MarkAccepted(ctx context.Context, id string, at time.Time) error
}
