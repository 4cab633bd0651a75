// Package snapshot keeps the last successful fetch outcome per resource so
// callers can render stale-but-present data while a refresh is failing.
package snapshot

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vietddude/feedsync/internal/core/domain"
)

// Entry is the retained outcome of the last successful fetch for a resource.
type Entry struct {
	Resource  string           `json:"resource"`
	Rows      []domain.Row     `json:"rows"`
	ServedBy  domain.BackendID `json:"served_by"`
	FetchedAt time.Time        `json:"fetched_at"`
	Took      time.Duration    `json:"took"`
	Failover  bool             `json:"failover"`
}

// Store is a bounded in-memory snapshot cache. Eviction only matters when the
// configured resource set outgrows the bound; per-resource reads always see
// the latest successful fetch.
type Store struct {
	cache *lru.Cache[string, Entry]
}

// NewStore creates a store holding up to size entries.
func NewStore(size int) (*Store, error) {
	cache, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache}, nil
}

// Put records the latest successful outcome for a resource.
func (s *Store) Put(e Entry) {
	e.FetchedAt = orNow(e.FetchedAt)
	s.cache.Add(e.Resource, e)
}

// Get returns the last good entry for a resource.
func (s *Store) Get(resource string) (Entry, bool) {
	return s.cache.Get(resource)
}

// Resources lists resources with a retained snapshot, oldest first.
func (s *Store) Resources() []string {
	return s.cache.Keys()
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
