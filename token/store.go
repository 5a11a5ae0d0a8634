// Package token holds the access credential and the per-tab identity slots.
// The credential lives in memory plus one tab-scoped persisted slot so a
// reload within the same tab survives; it is never written to storage other
// tabs can read. Cross-tab propagation is the bridge's job, not this
// package's.
package token

import (
	"sync"

	"github.com/flowkeep/apiclient/tabstore"
)

// Store keeps the current access credential. All methods are safe for
// concurrent use and never fail: a missing credential is the empty string.
type Store struct {
	mu      sync.RWMutex
	access  string
	storage tabstore.Storage
}

// NewStore creates a Store backed by the given per-tab storage, re-reading
// any credential a previous page load left in the tab slot.
func NewStore(storage tabstore.Storage) *Store {
	return &Store{
		access:  storage.Get(tabstore.KeyAccessToken),
		storage: storage,
	}
}

// Get returns the current credential, or "" when signed out.
func (s *Store) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// Set replaces the in-memory credential and mirrors it to the tab slot.
// An empty value removes the persisted entry.
func (s *Store) Set(access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	if access == "" {
		s.storage.Delete(tabstore.KeyAccessToken)
		return
	}
	s.storage.Set(tabstore.KeyAccessToken, access)
}

// Clear drops the credential from memory and from the tab slot.
func (s *Store) Clear() {
	s.Set("")
}
