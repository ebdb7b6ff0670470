// Package idcache provides a TTL-backed reservation cache used to hold
// a recycled entity id out of circulation for a grace period after it
// is freed, so an in-flight packet referencing the old id cannot be
// misinterpreted as addressing its successor.
package idcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ReservationCache tracks which ids are currently reserved, evicting
// each entry automatically once its TTL elapses.
type ReservationCache[K comparable] struct {
	cache *lru.LRU[K, struct{}]
}

// New returns a cache holding at most size entries, each expiring ttl
// after being reserved.
func New[K comparable](size int, ttl time.Duration) *ReservationCache[K] {
	return &ReservationCache[K]{cache: lru.NewLRU[K, struct{}](size, nil, ttl)}
}

// Reserve marks id as reserved for the cache's TTL.
func (c *ReservationCache[K]) Reserve(id K) {
	c.cache.Add(id, struct{}{})
}

// IsReserved reports whether id's reservation is still active.
func (c *ReservationCache[K]) IsReserved(id K) bool {
	_, ok := c.cache.Get(id)
	return ok
}

// Release drops id's reservation early.
func (c *ReservationCache[K]) Release(id K) {
	c.cache.Remove(id)
}

// Len returns the number of currently reserved ids.
func (c *ReservationCache[K]) Len() int {
	return c.cache.Len()
}
