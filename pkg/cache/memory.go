package cache

import (
	"context"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is an in-process LRU store with absolute TTL expiry.
// Whichever of capacity eviction or expiry comes first removes an entry.
type MemoryStore struct {
	lru *expirable.LRU[string, *Entry]
}

// NewMemoryStore creates a store sized by cfg.
func NewMemoryStore(cfg TierConfig) *MemoryStore {
	return &MemoryStore{
		lru: expirable.NewLRU[string, *Entry](cfg.Capacity, nil, cfg.TTL),
	}
}

// Get returns the entry stored under key, or ErrCacheMiss.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	entry, ok := s.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Set stores entry under key, evicting the least recently used entry when full.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	s.lru.Add(key, entry)
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
