// Package memory is an in-process watch list for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/archive-resolver/internal/watchlist"
)

// Store keeps sites in a map.
type Store struct {
	mu    sync.RWMutex
	sites map[string]watchlist.Site
	now   func() time.Time
}

var _ watchlist.Store = (*Store)(nil)

// New returns an empty Store seeded with domains.
func New(domains ...string) *Store {
	s := &Store{sites: make(map[string]watchlist.Site), now: time.Now}
	for _, d := range domains {
		s.sites[d] = watchlist.Site{Domain: d, AddedAt: s.now().UTC()}
	}
	return s
}

// Add implements watchlist.Store.
func (s *Store) Add(_ context.Context, domain, addedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[domain]; ok {
		return false, nil
	}
	s.sites[domain] = watchlist.Site{Domain: domain, AddedBy: addedBy, AddedAt: s.now().UTC()}
	return true, nil
}

// Remove implements watchlist.Store.
func (s *Store) Remove(_ context.Context, domain string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[domain]; !ok {
		return false, nil
	}
	delete(s.sites, domain)
	return true, nil
}

// List implements watchlist.Store.
func (s *Store) List(context.Context) ([]watchlist.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]watchlist.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}
