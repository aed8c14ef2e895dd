package dbpf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dbpf/cache"
	"github.com/meigma/dbpf/internal/testutil"
)

func TestSharedCacheEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	lru, err := cache.New(cache.WithMaxBytes(6000))
	require.NoError(t, err)

	build := func(seed byte) *Archive {
		a, err := Parse(testutil.BuildArchive(t, []testutil.TestEntry{
			{TGI: tgiB, Data: testutil.Pattern(4000, seed)},
		}, testutil.ArchiveOptions{}), WithCache(lru))
		require.NoError(t, err)
		return a
	}
	first, second := build('a'), build('b')

	e1, _ := first.Find(QueryTGI(tgiB))
	e2, _ := second.Find(QueryTGI(tgiB))
	_, err = e1.Decompress()
	require.NoError(t, err)
	assert.True(t, lru.Contains(e1))

	_, err = e2.Decompress()
	require.NoError(t, err)
	assert.False(t, lru.Contains(e1), "older entry evicted across archives")
	assert.Zero(t, e1.SizeBytes())
	assert.LessOrEqual(t, lru.Bytes(), lru.MaxBytes())

	data, err := e1.Decompress()
	require.NoError(t, err)
	assert.Equal(t, testutil.Pattern(4000, 'a'), data, "evicted entries reload")
	assert.False(t, lru.Contains(e2))
}

func TestEditedEntriesAreNotCached(t *testing.T) {
	t.Parallel()

	lru, err := cache.New(cache.WithMaxBytes(1 << 20))
	require.NoError(t, err)
	a, err := Parse(testutil.BuildArchive(t, []testutil.TestEntry{
		{TGI: tgiB, Data: []byte("original")},
	}, testutil.ArchiveOptions{}), WithCache(lru))
	require.NoError(t, err)

	e, _ := a.Find(QueryTGI(tgiB))
	_, err = e.Decompress()
	require.NoError(t, err)
	require.True(t, lru.Contains(e))

	e.SetData([]byte("edited"))
	assert.False(t, lru.Contains(e))
	lru.Purge()
	data, err := e.Decompress()
	require.NoError(t, err)
	assert.Equal(t, []byte("edited"), data)
	assert.False(t, lru.Contains(e))
}

func TestArchiveFreeRemovesFromCache(t *testing.T) {
	t.Parallel()

	lru, err := cache.New(cache.WithMaxBytes(1 << 20))
	require.NoError(t, err)
	a, err := Parse(testutil.BuildArchive(t, sampleEntries(t), testutil.ArchiveOptions{}), WithCache(lru))
	require.NoError(t, err)
	for _, e := range a.Entries() {
		_, err := e.Read()
		require.NoError(t, err)
	}
	require.Positive(t, lru.Len())

	a.Free()
	assert.Zero(t, lru.Len())
	assert.Zero(t, lru.Bytes())
	for _, e := range a.Entries() {
		assert.Zero(t, e.SizeBytes())
	}
}
