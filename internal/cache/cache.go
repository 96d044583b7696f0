// Copyright 2025 Flant JSC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache provides TTL-bounded caches for telemetry records: a
// single-slot cache for one value and a keyed cache with LRU eviction.
package cache

import (
	"sort"
	"sync"
	"time"
)

// clock is swapped out by tests.
type clock func() time.Time

// entry is a cached value with its bookkeeping.
type entry[T any] struct {
	value        T
	storedAt     time.Time
	lastAccessed time.Time
	accessCount  uint64
}

func (e *entry[T]) expired(ttl time.Duration, now time.Time) bool {
	// A zero TTL means nothing is ever fresh.
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.storedAt) >= ttl
}

// Slot caches a single value with a TTL. The zero value is not usable; use
// NewSlot.
type Slot[T any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   clock
	entry *entry[T]
}

// NewSlot returns an empty single-value cache. A non-positive TTL makes every
// read a miss.
func NewSlot[T any](ttl time.Duration) *Slot[T] {
	return &Slot[T]{ttl: ttl, now: time.Now}
}

// Get returns the cached value if it is still fresh. A read refreshes the
// access time and counter but never the expiry.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.entry == nil {
		return zero, false
	}
	now := s.now()
	if s.entry.expired(s.ttl, now) {
		s.entry = nil
		return zero, false
	}
	s.entry.lastAccessed = now
	s.entry.accessCount++
	return s.entry.value, true
}

// Set stores a value, resetting its expiry.
func (s *Slot[T]) Set(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entry = &entry[T]{value: value, storedAt: now, lastAccessed: now}
}

// HasEntry reports whether a value is stored, fresh or not. A stale entry
// still counts until a Get evicts it.
func (s *Slot[T]) HasEntry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry != nil
}

// Clear drops the cached value.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = nil
}

// Stats is a snapshot of keyed cache occupancy.
type Stats struct {
	TotalEntries   int
	TotalAccesses  uint64
	OldestEntryAge time.Duration
}

// Keyed caches values by key with a TTL and an optional size bound. When the
// bound is exceeded the least recently accessed entries are evicted first.
type Keyed[K comparable, V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        clock
	entries    map[K]*entry[V]
}

// NewKeyed returns an empty keyed cache. A non-positive TTL makes every read
// a miss; a non-positive maxEntries leaves the size unbounded.
func NewKeyed[K comparable, V any](ttl time.Duration, maxEntries int) *Keyed[K, V] {
	return &Keyed[K, V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[K]*entry[V]),
	}
}

// Get returns the value for key if it is still fresh. An expired entry is
// removed on read.
func (c *Keyed[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	now := c.now()
	if e.expired(c.ttl, now) {
		delete(c.entries, key)
		return zero, false
	}
	e.lastAccessed = now
	e.accessCount++
	return e.value, true
}

// Set stores a value under key and evicts the least recently accessed entries
// if the cache grows past its bound.
func (c *Keyed[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &entry[V]{value: value, storedAt: now, lastAccessed: now}
	c.evictLocked()
}

// Delete removes the entry for key, if present.
func (c *Keyed[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops all entries.
func (c *Keyed[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[V])
}

// Len returns the number of stored entries, expired ones included.
func (c *Keyed[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns entry count, access count summed across entries and the age
// of the oldest entry.
func (c *Keyed[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{TotalEntries: len(c.entries)}
	now := c.now()
	for _, e := range c.entries {
		stats.TotalAccesses += e.accessCount
		if age := now.Sub(e.storedAt); age > stats.OldestEntryAge {
			stats.OldestEntryAge = age
		}
	}
	return stats
}

func (c *Keyed[K, V]) evictLocked() {
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}
	type candidate struct {
		key          K
		lastAccessed time.Time
	}
	victims := make([]candidate, 0, len(c.entries))
	for k, e := range c.entries {
		victims = append(victims, candidate{key: k, lastAccessed: e.lastAccessed})
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].lastAccessed.Before(victims[j].lastAccessed)
	})
	for _, v := range victims[:len(c.entries)-c.maxEntries] {
		delete(c.entries, v.key)
	}
}
