// Package grouping partitions slices by a derived key.
package grouping

import (
	"cmp"
	"slices"
)

// By partitions items by key. Items keep their input order within a group.
func By[T any, K comparable](items []T, key func(T) K) map[K][]T {
	groups := make(map[K][]T)
	for _, item := range items {
		k := key(item)
		groups[k] = append(groups[k], item)
	}
	return groups
}

// Sorted partitions items like By and also returns the distinct keys in
// ascending order.
func Sorted[T any, K cmp.Ordered](items []T, key func(T) K) ([]K, map[K][]T) {
	groups := By(items, key)
	keys := make([]K, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, groups
}
