package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
)

// OperationLogStore is an in-memory append-only log of access decisions.
// It is intended for use in tests and dry runs.
type OperationLogStore struct {
	mu      sync.Mutex
	entries []store.OperationLogEntry
}

func NewOperationLogStore() *OperationLogStore {
	return &OperationLogStore{}
}

func (s *OperationLogStore) Append(_ context.Context, e store.OperationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of all recorded entries.
func (s *OperationLogStore) Entries() []store.OperationLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.OperationLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
