// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package responder turns a strategy plan into the text the student
// actually reads. It fronts the model with a content-addressed cache
// and guarantees a response for every turn: when the model is slow,
// down, or rate-limited, a deterministic pedagogical fallback goes out
// instead of an error.
package responder

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/strategy"
)

const (
	// DefaultMaxEntries bounds the cache so a long-running server
	// cannot grow without limit.
	DefaultMaxEntries = 4096

	// DefaultTTL keeps entries fresh enough that prompt or catalog
	// changes propagate without a restart.
	DefaultTTL = 15 * time.Minute
)

// CacheKey derives the content-addressed key for a generation request.
//
// The key covers everything that shapes the output: the full instruction
// payload, the student message, and the conversation history fed to the
// model. Two requests with the same key are the same request, so a
// cached answer is always the answer that would have been generated.
func CacheKey(plan strategy.Plan, message string, history []llm.Message) string {
	h := sha256.New()
	h.Write([]byte(string(plan.Directive)))
	h.Write([]byte{0})
	h.Write([]byte(string(plan.HelpLevel)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(plan.Instructions, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(message))
	for _, m := range history {
		h.Write([]byte{0})
		h.Write([]byte(string(m.Role)))
		h.Write([]byte{1})
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	key      string
	response string
	storedAt time.Time
	elem     *list.Element
}

// Cache is a bounded TTL cache over generated responses. Safe for
// concurrent use: lookups share a read lock, so concurrent turns with
// distinct keys never serialize on the hot path.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	order      *list.List // front = oldest
	maxEntries int
	ttl        time.Duration

	hits      int64
	misses    int64
	evictions int64
}

// NewCache creates a cache. Non-positive maxEntries or ttl fall back to
// the defaults.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get returns the cached response for key, if present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return "", false
	}
	expired := time.Since(entry.storedAt) > c.ttl
	response := entry.response
	c.mu.RUnlock()

	if expired {
		c.mu.Lock()
		// Another goroutine may have refreshed or removed the entry
		// between the locks, so re-check before dropping it.
		if current, ok := c.entries[key]; ok && time.Since(current.storedAt) > c.ttl {
			c.removeLocked(current)
		}
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		return "", false
	}
	atomic.AddInt64(&c.hits, 1)
	return response, true
}

// Set stores a response under key, evicting oldest entries when full.
// Fallback text must never be cached; that is the caller's contract.
func (c *Cache) Set(key, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.response = response
		existing.storedAt = time.Now()
		c.order.MoveToBack(existing.elem)
		return
	}
	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*cacheEntry))
		atomic.AddInt64(&c.evictions, 1)
	}
	entry := &cacheEntry{key: key, response: response, storedAt: time.Now()}
	entry.elem = c.order.PushBack(entry)
	c.entries[key] = entry
}

func (c *Cache) removeLocked(entry *cacheEntry) {
	delete(c.entries, entry.key)
	c.order.Remove(entry.elem)
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cumulative hit, miss, and eviction counters.
func (c *Cache) Stats() (hits, misses, evictions int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), atomic.LoadInt64(&c.evictions)
}
