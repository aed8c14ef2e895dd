package dbpf

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dbpf/exemplar"
	"github.com/meigma/dbpf/internal/testutil"
	"github.com/meigma/dbpf/record"
)

var (
	tgiA = TGI{Type: TypeExemplar, Group: 0x1, Instance: 0x2}
	tgiB = TGI{Type: TypeLText, Group: 0x3, Instance: 0x4}
	tgiC = TGI{Type: TypeFSH, Group: 0x5, Instance: 0x6}
)

func sampleEntries(t *testing.T) []testutil.TestEntry {
	t.Helper()
	return []testutil.TestEntry{
		{TGI: tgiA, Data: testutil.Exemplar(t, TGI{}, exemplar.Uint32Property(0x10, 7)), Compressed: true},
		{TGI: tgiB, Data: []byte("plain text entry")},
		{TGI: tgiC, Data: testutil.Pattern(4096, 'a'), Compressed: true},
	}
}

func TestParseReadsIndexAndDirectory(t *testing.T) {
	t.Parallel()

	entries := sampleEntries(t)
	a, err := Parse(testutil.BuildArchive(t, entries, testutil.ArchiveOptions{}))
	require.NoError(t, err)

	require.Equal(t, 4, a.Len())
	_, ok := a.Find(QueryTGI(DirTGI))
	assert.True(t, ok, "directory entry is part of the table")

	for _, want := range entries {
		e, ok := a.Find(QueryTGI(want.TGI))
		require.True(t, ok, want.TGI)
		assert.Equal(t, want.Compressed, e.Compressed(), want.TGI)
		assert.Equal(t, uint32(len(want.Data)), e.FileSize(), want.TGI)
		data, err := e.Decompress()
		require.NoError(t, err)
		assert.Equal(t, want.Data, data)
	}

	_, ok = a.FindTGI(1, 2, 3)
	assert.False(t, ok)
}

func TestUnmodifiedArchiveIsByteIdentical(t *testing.T) {
	t.Parallel()

	for _, minor := range []uint32{0, 1} {
		src := testutil.BuildArchive(t, sampleEntries(t), testutil.ArchiveOptions{
			IndexMinor: minor,
			Created:    time.Unix(1000, 0),
			Modified:   time.Unix(2000, 0),
		})
		a, err := Parse(src)
		require.NoError(t, err)

		// reading payloads must not change the output
		for _, e := range a.Entries() {
			_, err := e.Read()
			require.NoError(t, err)
		}
		out, err := a.MarshalBinary()
		require.NoError(t, err)
		assert.Equal(t, src, out, "index minor %d", minor)

		h := a.Header()
		assert.Equal(t, minor, h.IndexMinor)
		assert.Equal(t, time.Unix(2000, 0).UTC(), h.ModifiedTime())
	}
}

func TestPayloadsLoadLazily(t *testing.T) {
	t.Parallel()

	src := testutil.NewMockByteSource(testutil.BuildArchive(t, sampleEntries(t), testutil.ArchiveOptions{}))
	a, err := OpenSource(src)
	require.NoError(t, err)
	opened := src.Reads()

	e, ok := a.Find(QueryTGI(tgiC))
	require.True(t, ok)
	assert.Equal(t, opened, src.Reads(), "lookups do not read payloads")

	first, err := e.Decompress()
	require.NoError(t, err)
	assert.Greater(t, src.Reads(), opened)

	reads := src.Reads()
	second, err := e.Decompress()
	require.NoError(t, err)
	assert.Equal(t, reads, src.Reads(), "second read is served from the entry")
	assert.Equal(t, first, second)

	e.Free()
	assert.Zero(t, e.SizeBytes())
	third, err := e.Decompress()
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Greater(t, src.Reads(), reads)
}

func TestEditsRoundTrip(t *testing.T) {
	t.Parallel()

	a, err := Parse(testutil.BuildArchive(t, sampleEntries(t), testutil.ArchiveOptions{}))
	require.NoError(t, err)

	added := TGI{Type: TypeS3D, Group: 0x7, Instance: 0x8}
	a.Add(added, testutil.Pattern(2000, 'x'), true)
	_, ok := a.Replace(tgiB, []byte("replaced"))
	require.True(t, ok)
	assert.Equal(t, 1, a.Remove(QueryTGI(tgiA)))
	assert.Zero(t, a.Remove(QueryTGI(tgiA)))
	require.True(t, a.Modified())

	out, err := a.MarshalBinary()
	require.NoError(t, err)
	b, err := Parse(out)
	require.NoError(t, err)

	_, ok = b.Find(QueryTGI(tgiA))
	assert.False(t, ok)

	e, ok := b.Find(QueryTGI(tgiB))
	require.True(t, ok)
	data, err := e.Decompress()
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), data)
	assert.False(t, e.Compressed())

	e, ok = b.Find(QueryTGI(added))
	require.True(t, ok)
	assert.True(t, e.Compressed())
	data, err = e.Decompress()
	require.NoError(t, err)
	assert.Equal(t, testutil.Pattern(2000, 'x'), data)

	dir, ok := b.Find(QueryTGI(DirTGI))
	require.True(t, ok)
	rows, err := ReadAs[[]DirRow](dir)
	require.NoError(t, err)
	var listed []TGI
	for _, r := range rows {
		listed = append(listed, r.TGI)
	}
	assert.ElementsMatch(t, []TGI{tgiC, added}, listed)
}

func TestDirectoryDroppedWhenNothingCompressed(t *testing.T) {
	t.Parallel()

	a, err := Parse(testutil.BuildArchive(t, sampleEntries(t), testutil.ArchiveOptions{}))
	require.NoError(t, err)
	a.Remove(QueryTGI(tgiA))
	a.Remove(QueryTGI(tgiC))

	out, err := a.MarshalBinary()
	require.NoError(t, err)
	b, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())
	_, ok := b.Find(QueryTGI(DirTGI))
	assert.False(t, ok)
}

func TestNewArchiveAppendsDirectory(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	a := New(WithClock(func() time.Time { return now }))
	a.Add(tgiC, testutil.Pattern(500, 'q'), true)
	a.Add(tgiB, []byte("raw"), false)

	out, err := a.MarshalBinary()
	require.NoError(t, err)
	b, err := Parse(out)
	require.NoError(t, err)

	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, DirTGI, entries[2].TGI(), "directory goes after the payloads")
	assert.True(t, entries[0].Compressed())
	assert.False(t, entries[1].Compressed())

	h := b.Header()
	assert.Equal(t, uint32(1), h.Major)
	assert.Equal(t, uint32(7), h.IndexMajor)
	assert.Equal(t, now.UTC(), h.ModifiedTime())
}

func TestDuplicateKeysMatchDirectoryInOrder(t *testing.T) {
	t.Parallel()

	first := testutil.Pattern(300, 'a')
	second := []byte("second copy")
	a, err := Parse(testutil.BuildArchive(t, []testutil.TestEntry{
		{TGI: tgiA, Data: first, Compressed: true},
		{TGI: tgiA, Data: second},
	}, testutil.ArchiveOptions{}))
	require.NoError(t, err)

	all := a.FindAll(QueryTGI(tgiA))
	require.Len(t, all, 2)
	assert.True(t, all[0].Compressed())
	assert.False(t, all[1].Compressed())

	last, ok := a.Find(QueryTGI(tgiA))
	require.True(t, ok)
	assert.Same(t, all[1], last)
	data, err := last.Decompress()
	require.NoError(t, err)
	assert.Equal(t, second, data)
}

func TestIndexMinorOnePreservesResourceIDs(t *testing.T) {
	t.Parallel()

	src := testutil.BuildArchive(t, []testutil.TestEntry{
		{TGI: tgiA, Data: testutil.Pattern(100, 'r'), Compressed: true, Resource: 0xDEAD},
		{TGI: tgiB, Data: []byte("b"), Resource: 0xBEEF},
	}, testutil.ArchiveOptions{IndexMinor: 1})
	a, err := Parse(src)
	require.NoError(t, err)

	e, ok := a.Find(QueryTGI(tgiA))
	require.True(t, ok)
	assert.Equal(t, uint32(0xDEAD), e.Resource())
	assert.True(t, e.Compressed())

	a.Add(tgiC, []byte("c"), false)
	out, err := a.MarshalBinary()
	require.NoError(t, err)
	b, err := Parse(out)
	require.NoError(t, err)
	e, ok = b.Find(QueryTGI(tgiB))
	require.True(t, ok)
	assert.Equal(t, uint32(0xBEEF), e.Resource())
}

func TestCorruptArchives(t *testing.T) {
	t.Parallel()

	valid := testutil.BuildArchive(t, sampleEntries(t), testutil.ArchiveOptions{})

	badMagic := bytes.Clone(valid)
	copy(badMagic, "DBPX")

	badIndex := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(badIndex[36:], 1000)

	badRow := bytes.Clone(valid)
	indexOff := binary.LittleEndian.Uint32(badRow[40:])
	binary.LittleEndian.PutUint32(badRow[indexOff+16:], 1<<30)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated header", valid[:50]},
		{"bad magic", badMagic},
		{"index past end", badIndex},
		{"entry past end", badRow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.data)
			require.ErrorIs(t, err, ErrCorruptArchive)
		})
	}
}

func TestDecompressRejectsDirectorySizeMismatch(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArchive(t, []testutil.TestEntry{
		{TGI: tgiC, Data: testutil.Pattern(1000, 'm'), Compressed: true},
	}, testutil.ArchiveOptions{})
	a, err := Parse(data)
	require.NoError(t, err)
	dir, ok := a.Find(QueryTGI(DirTGI))
	require.True(t, ok)
	binary.LittleEndian.PutUint32(data[dir.Offset()+12:], 999)

	a, err = Parse(data)
	require.NoError(t, err)
	e, ok := a.Find(QueryTGI(tgiC))
	require.True(t, ok)
	_, err = e.Decompress()
	require.ErrorIs(t, err, ErrDecodeFailure)
}

func TestReadUsesDecoders(t *testing.T) {
	t.Parallel()

	records := record.Marshal([]record.Record{
		{Owner: 1, Payload: []byte("lot one")},
		{Owner: 2, Payload: []byte("lot two")},
	})
	a, err := Parse(testutil.BuildArchive(t, []testutil.TestEntry{
		{TGI: tgiA, Data: testutil.Exemplar(t, TGI{}, exemplar.Uint32Property(0x10, 7)), Compressed: true},
		{TGI: TGI{Type: TypeLot, Group: 1, Instance: 1}, Data: records, Compressed: true},
		{TGI: tgiB, Data: []byte("opaque")},
	}, testutil.ArchiveOptions{}))
	require.NoError(t, err)

	e, _ := a.Find(QueryTGI(tgiA))
	ex, err := ReadAs[*exemplar.Exemplar](e)
	require.NoError(t, err)
	vals, ok := ex.Uint32s(0x10)
	require.True(t, ok)
	assert.Equal(t, []uint32{7}, vals)

	e, _ = a.FindTGI(TypeLot, 1, 1)
	recs, err := ReadAs[record.List](e)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.True(t, r.Valid())
	}
	raw, err := e.Decompress()
	require.NoError(t, err)
	require.NoError(t, record.Verify(raw))

	e, _ = a.Find(QueryTGI(tgiB))
	v, err := e.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("opaque"), v)
	_, err = ReadAs[*exemplar.Exemplar](e)
	require.ErrorIs(t, err, ErrDecodeFailure)

	plain, err := Parse(testutil.BuildArchive(t, []testutil.TestEntry{
		{TGI: tgiA, Data: testutil.Exemplar(t, TGI{})},
	}, testutil.ArchiveOptions{}), WithDecoders(Decoders{}))
	require.NoError(t, err)
	e, _ = plain.Find(QueryTGI(tgiA))
	v, err = e.Read()
	require.NoError(t, err)
	assert.IsType(t, []byte(nil), v)
}

func TestMarkModifiedReencodesResource(t *testing.T) {
	t.Parallel()

	a, err := Parse(testutil.BuildArchive(t, sampleEntries(t), testutil.ArchiveOptions{}))
	require.NoError(t, err)
	e, _ := a.Find(QueryTGI(tgiA))
	ex, err := ReadAs[*exemplar.Exemplar](e)
	require.NoError(t, err)
	ex.Set(exemplar.StringProperty(0x20, "Renamed"))
	require.NoError(t, e.MarkModified())
	assert.True(t, e.Modified())

	out, err := a.MarshalBinary()
	require.NoError(t, err)
	b, err := Parse(out)
	require.NoError(t, err)
	e, _ = b.Find(QueryTGI(tgiA))
	assert.True(t, e.Compressed())
	got, err := ReadAs[*exemplar.Exemplar](e)
	require.NoError(t, err)
	p, ok := got.Get(0x20)
	require.True(t, ok)
	assert.Equal(t, "Renamed", p.Str)
}

func TestMarkModifiedResealsRecords(t *testing.T) {
	t.Parallel()

	for _, compressed := range []bool{false, true} {
		lot := TGI{Type: TypeLot, Group: 1, Instance: 1}
		data := testutil.BuildArchive(t, []testutil.TestEntry{
			{TGI: lot, Compressed: compressed, Data: record.Marshal([]record.Record{
				{Owner: 1, Payload: []byte("lot one")},
				{Owner: 2, Payload: []byte("lot two")},
			})},
		}, testutil.ArchiveOptions{})
		a, err := Parse(data)
		require.NoError(t, err)

		e, _ := a.FindTGI(lot.Type, lot.Group, lot.Instance)
		recs, err := ReadAs[record.List](e)
		require.NoError(t, err)
		recs[0].Payload[0] = 'X'
		recs[1].Owner = 99
		recs[1].Payload = []byte("a longer second lot")
		require.NoError(t, e.MarkModified())

		path := filepath.Join(t.TempDir(), "lots.dat")
		require.NoError(t, a.Save(path))
		b, err := Open(path)
		require.NoError(t, err)
		e, _ = b.FindTGI(lot.Type, lot.Group, lot.Instance)
		raw, err := e.Decompress()
		require.NoError(t, err)
		require.NoError(t, record.Verify(raw), "compressed=%t", compressed)

		got, err := record.Split(raw)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Xot one", string(got[0].Payload))
		assert.Equal(t, uint32(99), got[1].Owner)
		assert.Equal(t, "a longer second lot", string(got[1].Payload))
	}
}

func TestFreeKeepsPendingContent(t *testing.T) {
	t.Parallel()

	a := New()
	e := a.Add(tgiB, []byte("pending"), false)
	a.Free()
	data, err := e.Decompress()
	require.NoError(t, err)
	assert.Equal(t, []byte("pending"), data)
}

func TestConcurrentReadsAgree(t *testing.T) {
	t.Parallel()

	a, err := Parse(testutil.BuildArchive(t, sampleEntries(t), testutil.ArchiveOptions{}))
	require.NoError(t, err)
	e, _ := a.Find(QueryTGI(tgiC))
	want := testutil.Pattern(4096, 'a')

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			for range 20 {
				data, err := e.Decompress()
				assert.NoError(t, err)
				assert.Equal(t, want, data)
				e.Free()
			}
		})
	}
	wg.Wait()
}

func TestSaveCommitsNewLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	created := time.Unix(1000, 0)
	path := testutil.WriteArchive(t, dir, "plugins/a.dat", sampleEntries(t), testutil.ArchiveOptions{
		Created: created, Modified: created,
	})
	now := time.Unix(1_800_000_000, 0)
	a, err := Open(path, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, ok := a.Replace(tgiC, testutil.Pattern(10000, 'z'))
	require.True(t, ok)
	require.NoError(t, a.Save(path))
	assert.False(t, a.Modified())

	h := a.Header()
	assert.Equal(t, created.UTC(), h.CreatedTime())
	assert.Equal(t, now.UTC(), h.ModifiedTime())

	e, _ := a.Find(QueryTGI(tgiC))
	data, err := e.Decompress()
	require.NoError(t, err)
	assert.Equal(t, testutil.Pattern(10000, 'z'), data)

	b, err := Open(path)
	require.NoError(t, err)
	for _, want := range a.Entries() {
		got, ok := b.Find(QueryTGI(want.TGI()))
		require.True(t, ok)
		assert.Equal(t, want.Offset(), got.Offset())
		assert.Equal(t, want.Size(), got.Size())
	}

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".dbpf-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "no temp files left behind")
}

func TestLookupsDuringSave(t *testing.T) {
	t.Parallel()

	path := testutil.WriteArchive(t, t.TempDir(), "a.dat", sampleEntries(t), testutil.ArchiveOptions{})
	a, err := Open(path)
	require.NoError(t, err)
	n := a.Len()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for {
				select {
				case <-done:
					return
				default:
				}
				assert.Equal(t, n, a.Len())
				assert.Len(t, a.Entries(), n)
				_, ok := a.Find(QueryTGI(tgiC))
				assert.True(t, ok)
				_, ok = a.FindTGI(tgiA.Type, tgiA.Group, tgiA.Instance)
				assert.True(t, ok)
			}
		})
	}

	for i := range 10 {
		_, ok := a.Replace(tgiC, testutil.Pattern(100+i, 'q'))
		require.True(t, ok)
		require.NoError(t, a.Save(path))
	}
	close(done)
	wg.Wait()
}

func TestSaveUnmodifiedKeepsBytes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := testutil.WriteArchive(t, dir, "a.dat", sampleEntries(t), testutil.ArchiveOptions{Modified: time.Unix(5, 0)})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	a, err := Open(path, WithClock(func() time.Time { return time.Unix(999, 0) }))
	require.NoError(t, err)
	require.NoError(t, a.Save(path))
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	copyPath := filepath.Join(dir, "copy", "b.dat")
	require.NoError(t, a.Save(copyPath))
	copied, err := os.ReadFile(copyPath)
	require.NoError(t, err)
	assert.Equal(t, before, copied)
	assert.Equal(t, copyPath, a.Path())
}

func TestOpenContextMatchesOpen(t *testing.T) {
	t.Parallel()

	path := testutil.WriteArchive(t, t.TempDir(), "a.dat", sampleEntries(t), testutil.ArchiveOptions{})
	direct, err := Open(path)
	require.NoError(t, err)
	async, err := OpenContext(context.Background(), path)
	require.NoError(t, err)

	require.Equal(t, direct.Len(), async.Len())
	for i, e := range direct.Entries() {
		o := async.Entries()[i]
		assert.Equal(t, e.TGI(), o.TGI())
		assert.Equal(t, e.Offset(), o.Offset())
		assert.Equal(t, e.Size(), o.Size())
		assert.Equal(t, e.Compressed(), o.Compressed())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = OpenContext(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRestoreReadsLazily(t *testing.T) {
	t.Parallel()

	path := testutil.WriteArchive(t, t.TempDir(), "a.dat", sampleEntries(t), testutil.ArchiveOptions{Created: time.Unix(42, 0)})
	opened, err := Open(path)
	require.NoError(t, err)

	var infos []EntryInfo
	for _, e := range opened.Entries() {
		infos = append(infos, EntryInfo{
			TGI:        e.TGI(),
			Offset:     e.Offset(),
			Size:       e.Size(),
			FileSize:   e.FileSize(),
			Compressed: e.Compressed(),
		})
	}
	a := Restore(path, infos)
	e, ok := a.Find(QueryTGI(tgiC))
	require.True(t, ok)
	data, err := e.Decompress()
	require.NoError(t, err)
	assert.Equal(t, testutil.Pattern(4096, 'a'), data)

	h := a.Header()
	assert.Equal(t, time.Unix(42, 0).UTC(), h.CreatedTime())
}

func TestWriteRejectsArchivesOver4GiB(t *testing.T) {
	t.Parallel()

	path := testutil.WriteArchive(t, t.TempDir(), "a.dat", sampleEntries(t), testutil.ArchiveOptions{})
	a := Restore(path, []EntryInfo{
		{TGI: tgiB, Offset: HeaderSize, Size: 0x80000000},
		{TGI: tgiC, Offset: HeaderSize, Size: 0x80000000},
	})
	a.Add(tgiA, []byte("small"), false)

	_, err := a.MarshalBinary()
	require.ErrorIs(t, err, ErrSizeOverflow)
}
