package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached tracker payload.
type Entry struct {
	// Data is the JSON encoded value
	Data json.RawMessage `json:"data"`

	// CachedAt is when the value was stored
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry encodes v into a fresh entry stamped with the current time.
func NewEntry(v any) (*Entry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Data:     data,
		CachedAt: time.Now(),
	}, nil
}

// Decode unmarshals the cached value into dst.
func (e *Entry) Decode(dst any) error {
	return json.Unmarshal(e.Data, dst)
}

// FreshSince reports whether the entry was stored at or after t.
// A zero t is always satisfied.
func (e *Entry) FreshSince(t time.Time) bool {
	return !e.CachedAt.Before(t)
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
