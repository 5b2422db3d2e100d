package mailqueue

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps entries in process. Used by tests and local runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	failErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes every Append return err until called again with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *MemoryStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	e.To = slices.Clone(e.To)
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a snapshot of everything appended so far.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}
