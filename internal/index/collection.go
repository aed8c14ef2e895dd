package index

import (
	"sync"

	"github.com/meigma/dbpf/internal/dbpftype"
)

// Collection owns a list of items together with their triples and an index
// over them. Mutations only mark the index dirty; the next lookup rebuilds it.
//
// Lookups are safe for concurrent use. Mutations must not run concurrently
// with other calls.
type Collection[T any] struct {
	mu    sync.Mutex
	items []T
	tgis  []uint32
	idx   *Index
	dirty bool
}

// NewCollection returns an empty collection with room for n items.
func NewCollection[T any](n int) *Collection[T] {
	return &Collection[T]{
		items: make([]T, 0, n),
		tgis:  make([]uint32, 0, 3*n),
		dirty: true,
	}
}

// Push appends an item stored under tgi.
func (c *Collection[T]) Push(tgi dbpftype.TGI, item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
	c.tgis = append(c.tgis, tgi.Type, tgi.Group, tgi.Instance)
	c.dirty = true
}

// Remove deletes every item matching q and returns how many were removed.
func (c *Collection[T]) Remove(q dbpftype.Query) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	keptItems := c.items[:0]
	keptTGIs := c.tgis[:0]
	removed := 0
	for i, item := range c.items {
		tgi := c.tgiAt(i)
		if q.Match(tgi) {
			removed++
			continue
		}
		keptItems = append(keptItems, item)
		keptTGIs = append(keptTGIs, tgi.Type, tgi.Group, tgi.Instance)
	}
	clear(c.items[len(keptItems):])
	c.items = keptItems
	c.tgis = keptTGIs
	if removed > 0 {
		c.dirty = true
	}
	return removed
}

// RemoveAt deletes the item at position i.
func (c *Collection[T]) RemoveAt(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.tgis = append(c.tgis[:3*i], c.tgis[3*i+3:]...)
	c.dirty = true
}

// Set replaces the item at position i, keeping its triple.
func (c *Collection[T]) Set(i int, item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[i] = item
}

// FindAll returns the items matching q in insertion order.
func (c *Collection[T]) FindAll(q dbpftype.Query) []T {
	idx, items := c.snapshot()
	positions := idx.Find(q)
	out := make([]T, len(positions))
	for k, p := range positions {
		out[k] = items[p]
	}
	return out
}

// Find returns the last item matching q.
func (c *Collection[T]) Find(q dbpftype.Query) (T, bool) {
	idx, items := c.snapshot()
	positions := idx.Find(q)
	if len(positions) == 0 {
		var zero T
		return zero, false
	}
	return items[positions[len(positions)-1]], true
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// All returns a copy of the items in insertion order.
func (c *Collection[T]) All() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// TGI returns the triple stored at position i.
func (c *Collection[T]) TGI(i int) dbpftype.TGI {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tgiAt(i)
}

// Index returns the current index, rebuilding it if dirty.
func (c *Collection[T]) Index() *Index {
	idx, _ := c.snapshot()
	return idx
}

// SetIndex installs a prebuilt index over the current triples, such as one
// restored from disk. It is discarded on the next mutation.
func (c *Collection[T]) SetIndex(idx *Index) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx.Len() != len(c.items) {
		return false
	}
	for i, v := range idx.tgis {
		if c.tgis[i] != v {
			return false
		}
	}
	c.idx = idx
	c.dirty = false
	return true
}

func (c *Collection[T]) snapshot() (*Index, []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty || c.idx == nil {
		tgis := make([]uint32, len(c.tgis))
		copy(tgis, c.tgis)
		c.idx = Build(tgis)
		c.dirty = false
	}
	return c.idx, c.items[:len(c.items):len(c.items)]
}

func (c *Collection[T]) tgiAt(i int) dbpftype.TGI {
	return dbpftype.TGI{Type: c.tgis[3*i], Group: c.tgis[3*i+1], Instance: c.tgis[3*i+2]}
}
