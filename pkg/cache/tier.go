package cache

import (
	"fmt"
	"time"
)

// Tier is one of the three retention pools.
type Tier string

const (
	// TierShort holds search result lists (query-keyed).
	TierShort Tier = "short"

	// TierMedium holds projects and sprints.
	TierMedium Tier = "medium"

	// TierLong holds individual issues, users and per-issue worklogs.
	TierLong Tier = "long"
)

// Tiers lists all tiers.
var Tiers = []Tier{TierShort, TierMedium, TierLong}

// TierConfig sets the capacity and retention of a tier.
type TierConfig struct {
	// Capacity is the maximum number of entries before LRU eviction
	Capacity int

	// TTL is the absolute lifetime of an entry from insertion
	TTL time.Duration
}

// Config holds the configuration of all tiers.
type Config struct {
	Short  TierConfig
	Medium TierConfig
	Long   TierConfig
}

// DefaultConfig returns the default tier sizing.
func DefaultConfig() Config {
	return Config{
		Short: TierConfig{
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},
		Medium: TierConfig{
			Capacity: 10000,
			TTL:      1 * time.Hour,
		},
		Long: TierConfig{
			Capacity: 50000,
			TTL:      7 * 24 * time.Hour,
		},
	}
}

// For returns the configuration of a tier.
func (c Config) For(t Tier) (TierConfig, error) {
	switch t {
	case TierShort:
		return c.Short, nil
	case TierMedium:
		return c.Medium, nil
	case TierLong:
		return c.Long, nil
	default:
		return TierConfig{}, fmt.Errorf("%w: %q", ErrUnknownTier, t)
	}
}

// Validate checks that every tier has a positive capacity and TTL.
func (c Config) Validate() error {
	for _, t := range Tiers {
		tc, _ := c.For(t)
		if tc.Capacity <= 0 {
			return fmt.Errorf("%s tier capacity must be > 0 (got %d)", t, tc.Capacity)
		}
		if tc.TTL <= 0 {
			return fmt.Errorf("%s tier ttl must be > 0 (got %s)", t, tc.TTL)
		}
	}
	return nil
}
