package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeItem struct {
	name  string
	size  int64
	freed int
}

func (f *fakeItem) SizeBytes() int64 { return f.size }
func (f *fakeItem) Free()            { f.freed++ }

func newItems(sizes ...int64) []*fakeItem {
	out := make([]*fakeItem, len(sizes))
	for i, s := range sizes {
		out[i] = &fakeItem{name: string(rune('a' + i)), size: s}
	}
	return out
}

func TestEvictsLeastRecentlyUsedFirst(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxBytes(100))
	require.NoError(t, err)
	items := newItems(40, 40, 40)

	c.Put(items[0])
	c.Put(items[1])
	assert.Equal(t, int64(80), c.Bytes())

	c.Put(items[2])
	assert.Equal(t, 1, items[0].freed, "oldest entry should be evicted")
	assert.Zero(t, items[1].freed)
	assert.Zero(t, items[2].freed)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(80), c.Bytes())
}

func TestTouchProtectsFromEviction(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxBytes(100))
	require.NoError(t, err)
	items := newItems(40, 40, 40)

	c.Put(items[0])
	c.Put(items[1])
	c.Touch(items[0])
	c.Put(items[2])

	assert.Zero(t, items[0].freed, "touched entry must survive")
	assert.Equal(t, 1, items[1].freed)
	assert.True(t, c.Contains(items[0]))
	assert.False(t, c.Contains(items[1]))
}

func TestTouchAddsUncachedItem(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxBytes(100))
	require.NoError(t, err)
	item := &fakeItem{size: 0}

	c.Touch(item)
	assert.True(t, c.Contains(item))
	assert.Zero(t, c.Bytes())

	item.size = 30
	c.Put(item)
	assert.Equal(t, int64(30), c.Bytes())
	assert.Equal(t, 1, c.Len())
}

func TestPutReweighs(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxBytes(1000))
	require.NoError(t, err)
	item := &fakeItem{size: 10}
	c.Put(item)
	item.size = 500
	c.Put(item)
	assert.Equal(t, int64(500), c.Bytes())
	assert.Equal(t, 1, c.Len())
}

func TestOversizedItemIsEvictedImmediately(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxBytes(10))
	require.NoError(t, err)
	item := &fakeItem{size: 11}
	c.Put(item)
	assert.Equal(t, 1, item.freed)
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Bytes())
}

func TestRemovePurgePrune(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxBytes(1000))
	require.NoError(t, err)
	items := newItems(10, 20, 30, 40)
	for _, it := range items {
		c.Put(it)
	}

	assert.True(t, c.Remove(items[1]))
	assert.Equal(t, 1, items[1].freed)
	assert.False(t, c.Remove(items[1]))
	assert.Equal(t, int64(80), c.Bytes())

	assert.Equal(t, 1, c.Prune(70))
	assert.Equal(t, 1, items[0].freed)
	assert.Equal(t, int64(70), c.Bytes())

	c.Purge()
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Bytes())
	assert.Equal(t, 1, items[2].freed)
	assert.Equal(t, 1, items[3].freed)
}

func TestDefaultBudget(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)
	assert.Positive(t, c.MaxBytes())
	assert.Equal(t, DefaultMaxBytes(), c.MaxBytes())
}

func TestConcurrentPuts(t *testing.T) {
	t.Parallel()

	c, err := New(WithMaxBytes(1 << 10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			for i := range 200 {
				c.Put(&fakeItem{size: int64(g + i%7)})
			}
		})
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Bytes(), int64(1<<10))
}
