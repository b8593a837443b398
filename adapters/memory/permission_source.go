package memory

import (
	"context"
	"sync"

	"github.com/coregx/broker/model"
)

// PermissionSource is an in-memory broker.AccessSource.
//
// Entries are granted programmatically; an unknown principal resolves to an
// empty slice, which the authorization layer treats as deny.
type PermissionSource struct {
	mu      sync.Mutex
	nextID  int64
	entries map[string][]model.PermissionEntry
}

// NewPermissionSource creates an empty permission source.
func NewPermissionSource() *PermissionSource {
	return &PermissionSource{entries: make(map[string][]model.PermissionEntry)}
}

// Grant appends a permission entry for the principal.
func (s *PermissionSource) Grant(principal, pattern string, access model.AccessType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.entries[principal] = append(s.entries[principal], model.PermissionEntry{
		ID:      s.nextID,
		Pattern: pattern,
		Access:  access,
	})
}

// Revoke removes every entry of the principal.
func (s *PermissionSource) Revoke(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, principal)
}

// FindByPrincipal returns the entries granted to the principal.
func (s *PermissionSource) FindByPrincipal(_ context.Context, principal string) ([]model.PermissionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.PermissionEntry, len(s.entries[principal]))
	copy(out, s.entries[principal])
	return out, nil
}
