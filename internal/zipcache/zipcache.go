// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package zipcache caches decompressed ZIP entry bytes behind an
// admission-aware LFU, so repeated reads of the same entry from a
// zipflate.Reader don't redundantly re-inflate. Grounded on the teacher's
// internal/spinner (tinylfu.New[K,V] with a maphash.Comparable key
// function and an OnEvict callback) and internal/decompressioncache
// (keying cache entries by archive identity plus an offset/index), scaled
// down to this module's synchronous, non-block-resumable decode model:
// one key maps to one entry's whole decompressed payload, not a block.
package zipcache

import (
	"hash/maphash"
	"log/slog"
	"sync"

	"github.com/dgryski/go-tinylfu"
)

// Key identifies one decompressed entry: a particular archive (by pointer
// identity of its backing byte slice) and an entry index within it.
type Key struct {
	Archive uintptr
	Index   int
}

var seed = maphash.MakeSeed()

func hashKey(k Key) uint64 { return maphash.Comparable(seed, k) }

// Cache is a bounded, concurrency-safe decompressed-entry cache.
type Cache struct {
	mu    sync.Mutex
	inner *tinylfu.T[Key, []byte]
}

// New returns a cache admitting up to capacity entries, sampling 10x that
// many candidates for admission decisions, matching the teacher's
// size/sample ratio in internal/spinner.
func New(capacity int) *Cache {
	c := &Cache{}
	c.inner = tinylfu.New[Key, []byte](capacity, capacity*10, hashKey,
		tinylfu.OnEvict(func(k Key, _ []byte) {
			slog.Debug("zipcache: evicted entry", "archive", k.Archive, "index", k.Index)
		}))
	return c
}

// Get returns the cached decompressed bytes for k, if present.
func (c *Cache) Get(k Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(k)
}

// Add stores the decompressed bytes for k, possibly evicting another entry.
func (c *Cache) Add(k Key, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(k, data)
}
