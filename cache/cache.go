// Package cache bounds the memory held by decoded archive entries.
//
// A single LRU is shared by every open archive. Items are weighted by their
// decoded size; when the byte budget is exceeded the least recently used
// items are evicted and told to drop their payloads. Evicted items re-decode
// transparently on their next read.
package cache

import (
	"log/slog"
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Item is a cacheable entry.
type Item interface {
	// SizeBytes reports the memory currently held by the item.
	SizeBytes() int64

	// Free drops the item's cached payload. It is called with the cache
	// locked and must not call back into the cache.
	Free()
}

// LRU is a byte-budgeted least-recently-used cache of Items.
// It is safe for concurrent use.
type LRU struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[Item, int64]
	bytes    int64
	maxBytes int64
	logger   *slog.Logger
}

// Option configures an LRU.
type Option func(*LRU)

// WithMaxBytes sets the byte budget. Values <= 0 select the default of half
// the system memory.
func WithMaxBytes(n int64) Option {
	return func(c *LRU) {
		c.maxBytes = n
	}
}

// WithLogger sets the logger for eviction diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *LRU) {
		c.logger = logger
	}
}

// New creates an LRU.
func New(opts ...Option) (*LRU, error) {
	c := &LRU{}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxBytes()
	}
	lru, err := simplelru.NewLRU[Item, int64](math.MaxInt, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

func (c *LRU) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *LRU) onEvict(item Item, weight int64) {
	c.bytes -= weight
	item.Free()
}

// Put inserts item, or refreshes its weight, and marks it most recently used.
func (c *LRU) Put(item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(item)
	c.ensureCapacity()
}

// Touch marks item most recently used without decoding it. An item that is
// not cached yet is added with its current weight.
func (c *LRU) Touch(item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lru.Get(item); ok {
		return
	}
	c.add(item)
	c.ensureCapacity()
}

// Remove evicts item, freeing its payload.
func (c *LRU) Remove(item Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(item)
}

// Contains reports whether item is cached, without promoting it.
func (c *LRU) Contains(item Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(item)
}

// Purge evicts everything.
func (c *LRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Prune evicts least recently used items until at most target bytes remain.
func (c *LRU) Prune(target int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictTo(target)
}

// Len returns the number of cached items.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Bytes returns the total weight of cached items.
func (c *LRU) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// MaxBytes returns the byte budget.
func (c *LRU) MaxBytes() int64 {
	return c.maxBytes
}

func (c *LRU) add(item Item) {
	weight := item.SizeBytes()
	if old, ok := c.lru.Peek(item); ok {
		c.bytes -= old
	}
	c.lru.Add(item, weight)
	c.bytes += weight
}

func (c *LRU) ensureCapacity() {
	if c.bytes <= c.maxBytes {
		return
	}
	if n := c.evictTo(c.maxBytes); n > 0 {
		c.log().Debug("cache evicted entries", "count", n, "bytes", c.bytes, "max_bytes", c.maxBytes)
	}
}

func (c *LRU) evictTo(target int64) int {
	n := 0
	for c.bytes > target && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
		n++
	}
	return n
}
