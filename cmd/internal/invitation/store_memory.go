package invitation

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local runs without a
// database. Transactions are serialized and applied to a copy of the state,
// so a failing transaction leaves no trace.
type MemoryStore struct {
	mu sync.Mutex

	invitations map[string]Invitation
	families    map[string]Family
	members     map[string]map[string]Member
	users       map[string]User

	// conflicts makes the next N commits fail with ErrConflict.
	conflicts int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invitations: make(map[string]Invitation),
		families:    make(map[string]Family),
		members:     make(map[string]map[string]Member),
		users:       make(map[string]User),
	}
}

// PutInvitation inserts or replaces an invitation.
func (s *MemoryStore) PutInvitation(inv Invitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invitations[inv.ID] = inv
}

// PutFamily inserts or replaces a family.
func (s *MemoryStore) PutFamily(f Family) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.families[f.ID] = f
}

// PutUser inserts or replaces a user.
func (s *MemoryStore) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.FamilyIDs = slices.Clone(u.FamilyIDs)
	s.users[u.ID] = u
}

// FailNextCommits makes the next n commits report ErrConflict.
func (s *MemoryStore) FailNextCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

// Invitation returns a copy of the stored invitation.
func (s *MemoryStore) Invitation(id string) (Invitation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	return inv, ok
}

// Family returns a copy of the stored family.
func (s *MemoryStore) Family(id string) (Family, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.families[id]
	return f, ok
}

// Members returns a copy of a family's membership map.
func (s *MemoryStore) Members(familyID string) map[string]Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.members[familyID])
}

// User returns a copy of the stored user.
func (s *MemoryStore) User(id string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	u.FamilyIDs = slices.Clone(u.FamilyIDs)
	return u, ok
}

// WithinTx runs fn against a private copy of the state and swaps it in on success.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	if s == nil || fn == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		invitations: maps.Clone(s.invitations),
		families:    maps.Clone(s.families),
		members:     make(map[string]map[string]Member, len(s.members)),
		users:       make(map[string]User, len(s.users)),
	}
	for k, v := range s.members {
		tx.members[k] = maps.Clone(v)
	}
	for k, u := range s.users {
		u.FamilyIDs = slices.Clone(u.FamilyIDs)
		tx.users[k] = u
	}

	if err := fn(tx); err != nil {
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		return ErrConflict
	}

	s.invitations = tx.invitations
	s.families = tx.families
	s.members = tx.members
	s.users = tx.users
	return nil
}

type memTx struct {
	invitations map[string]Invitation
	families    map[string]Family
	members     map[string]map[string]Member
	users       map[string]User
}

func (t *memTx) InvitationForUpdate(_ context.Context, id string) (Invitation, error) {
	if strings.TrimSpace(id) == "" {
		return Invitation{}, ErrInvalidInput
	}
	inv, ok := t.invitations[id]
	if !ok {
		return Invitation{}, ErrNotFound
	}
	return inv, nil
}

func (t *memTx) LockFamily(_ context.Context, familyID string) error {
	if _, ok := t.families[familyID]; !ok {
		return ErrNotFound
	}
	return nil
}

func (t *memTx) LockUser(_ context.Context, userID string) error {
	if _, ok := t.users[userID]; !ok {
		return ErrNotFound
	}
	return nil
}

func (t *memTx) MergeMember(_ context.Context, familyID, userID string, m Member) error {
	if strings.TrimSpace(familyID) == "" || strings.TrimSpace(userID) == "" {
		return ErrInvalidInput
	}
	fm, ok := t.members[familyID]
	if !ok {
		fm = make(map[string]Member)
		t.members[familyID] = fm
	}
	fm[userID] = m
	return nil
}

func (t *memTx) AddUserFamily(_ context.Context, userID, familyID string) error {
	u, ok := t.users[userID]
	if !ok {
		return ErrNotFound
	}
	if !slices.Contains(u.FamilyIDs, familyID) {
		u.FamilyIDs = append(u.FamilyIDs, familyID)
	}
	current := familyID
	u.CurrentFamilyID = &current
	t.users[userID] = u
	return nil
}

func (t *memTx) IncrementMemberCount(_ context.Context, familyID string, delta int) error {
	f, ok := t.families[familyID]
	if !ok {
		return ErrNotFound
	}
	f.MemberCount += delta
	t.families[familyID] = f
	return nil
}

func (t *memTx) MarkAccepted(_ context.Context, id string, at time.Time) error {
	inv, ok := t.invitations[id]
	if !ok {
		return ErrNotFound
	}
	if inv.Status != StatusPending {
		return ErrConflict
	}
	inv.Status = StatusAccepted
	responded := at
	inv.RespondedAt = &responded
	t.invitations[id] = inv
	return nil
}
