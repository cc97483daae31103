package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/jira-worklog/pkg/logging"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrUnknownTier indicates a tier name that is not short, medium or long
	ErrUnknownTier = errors.New("unknown cache tier")
)

// Store is the backend of a single tier.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
}

// Manager owns the three cache tiers. It is constructed once per process and
// handed to the tracker client; it is the only state shared between requests.
type Manager struct {
	stores map[Tier]Store
	logger zerolog.Logger
}

// NewManager creates a manager with in-memory tiers.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stores := make(map[Tier]Store, len(Tiers))
	for _, t := range Tiers {
		tc, _ := cfg.For(t)
		stores[t] = NewMemoryStore(tc)
	}
	return NewManagerWithStores(stores)
}

// NewRedisManager creates a manager whose tiers live in Redis.
func NewRedisManager(redisClient *redis.Client, cfg Config) (*Manager, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stores := make(map[Tier]Store, len(Tiers))
	for _, t := range Tiers {
		tc, _ := cfg.For(t)
		stores[t] = NewRedisStore(redisClient, t, tc.TTL)
	}
	return NewManagerWithStores(stores)
}

// NewManagerWithStores creates a manager from explicit stores.
// All three tiers must be present.
func NewManagerWithStores(stores map[Tier]Store) (*Manager, error) {
	for _, t := range Tiers {
		if stores[t] == nil {
			return nil, fmt.Errorf("store for %s tier is required", t)
		}
	}
	return &Manager{
		stores: stores,
		logger: logging.NewLogger(logging.ComponentCache),
	}, nil
}

// Entry retrieves the raw cache entry for key.
// Returns ErrCacheMiss if the key is absent, expired or evicted.
func (m *Manager) Entry(ctx context.Context, tier Tier, key Key) (*Entry, error) {
	store, ok := m.stores[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	entry, err := store.Get(ctx, key.String())
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.WithLabelValues(string(tier)).Inc()
			m.logger.Debug().Str("tier", string(tier)).Str("key", key.String()).Msg("Cache miss")
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("tier", string(tier)).Str("key", key.String()).Msg("Cache get error")
		return nil, err
	}

	CacheHits.WithLabelValues(string(tier)).Inc()
	m.logger.Debug().Str("tier", string(tier)).Str("key", key.String()).Msg("Cache hit")
	return entry, nil
}

// Get decodes the value cached under key into dst.
func (m *Manager) Get(ctx context.Context, tier Tier, key Key, dst any) error {
	entry, err := m.Entry(ctx, tier, key)
	if err != nil {
		return err
	}
	if err := entry.Decode(dst); err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

// Set encodes v and stores it under key, stamped with the current time.
func (m *Manager) Set(ctx context.Context, tier Tier, key Key, v any) error {
	store, ok := m.stores[tier]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	entry, err := NewEntry(v)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := store.Set(ctx, key.String(), entry); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return err
	}

	CacheWrites.WithLabelValues(string(tier)).Inc()
	return nil
}
