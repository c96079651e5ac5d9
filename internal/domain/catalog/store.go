package catalog

import (
	"slices"
	"sync/atomic"
	"time"
)

// Store holds the active catalog snapshot. Readers always observe a complete
// snapshot; Replace swaps it atomically.
type Store struct {
	snapshot  atomic.Pointer[[]Item]
	updatedAt atomic.Pointer[time.Time]
}

// NewStore returns a Store seeded with items.
func NewStore(items []Item) *Store {
	s := &Store{}
	s.Replace(items)
	return s
}

// Items returns the current snapshot in catalog order. The returned slice is
// shared and must not be modified.
func (s *Store) Items() []Item {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

// Replace installs a copy of items as the new snapshot.
func (s *Store) Replace(items []Item) {
	snapshot := slices.Clone(items)
	if snapshot == nil {
		snapshot = []Item{}
	}
	now := time.Now()
	s.snapshot.Store(&snapshot)
	s.updatedAt.Store(&now)
}

// Len reports the number of items in the current snapshot.
func (s *Store) Len() int {
	return len(s.Items())
}

// UpdatedAt reports when the snapshot was last replaced.
func (s *Store) UpdatedAt() time.Time {
	if p := s.updatedAt.Load(); p != nil {
		return *p
	}
	return time.Time{}
}
