// Package testutil builds DBPF fixtures for tests.
package testutil

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meigma/dbpf/exemplar"
	"github.com/meigma/dbpf/internal/dbpftype"
	"github.com/meigma/dbpf/internal/qfs"
)

// MockByteSource implements a simple in-memory byte source for tests.
// It counts reads so tests can assert that payloads load lazily.
type MockByteSource struct {
	data  []byte
	reads atomic.Int64
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if off+int64(n) >= int64(len(m.data)) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// Reads returns the number of ReadAt calls so far.
func (m *MockByteSource) Reads() int64 {
	return m.reads.Load()
}

// TestEntry holds data for building test archive entries.
type TestEntry struct {
	TGI        dbpftype.TGI
	Data       []byte
	Compressed bool
	Resource   uint32
}

// ArchiveOptions tweaks the generated header.
type ArchiveOptions struct {
	IndexMinor uint32
	Created    time.Time
	Modified   time.Time
	// OmitDir leaves compressed entries out of the directory.
	OmitDir bool
}

// BuildArchive encodes entries as a DBPF file: header, payloads in order,
// a directory after the payloads when any entry is compressed, then the index.
func BuildArchive(tb testing.TB, entries []TestEntry, opts ArchiveOptions) []byte {
	tb.Helper()

	le := binary.LittleEndian
	rowWidth, dirWidth := 20, 16
	if opts.IndexMinor > 0 {
		rowWidth, dirWidth = 24, 20
	}

	type row struct {
		tgi      dbpftype.TGI
		resource uint32
		offset   uint32
		size     uint32
	}
	out := make([]byte, 96)
	var rows []row
	var dir []byte
	for _, e := range entries {
		payload := e.Data
		if e.Compressed {
			var err error
			payload, err = qfs.CompressEntry(e.Data)
			if err != nil {
				tb.Fatalf("compress %s: %v", e.TGI, err)
			}
			if !opts.OmitDir {
				dir = le.AppendUint32(dir, e.TGI.Type)
				dir = le.AppendUint32(dir, e.TGI.Group)
				dir = le.AppendUint32(dir, e.TGI.Instance)
				if dirWidth == 20 {
					dir = le.AppendUint32(dir, e.Resource)
				}
				dir = le.AppendUint32(dir, uint32(len(e.Data))) //nolint:gosec // test fixture
			}
		}
		rows = append(rows, row{tgi: e.TGI, resource: e.Resource, offset: uint32(len(out)), size: uint32(len(payload))}) //nolint:gosec // test fixture
		out = append(out, payload...)
	}
	if len(dir) > 0 {
		rows = append(rows, row{tgi: dbpftype.DirTGI, offset: uint32(len(out)), size: uint32(len(dir))}) //nolint:gosec // test fixture
		out = append(out, dir...)
	}

	indexOff := len(out)
	for _, r := range rows {
		out = le.AppendUint32(out, r.tgi.Type)
		out = le.AppendUint32(out, r.tgi.Group)
		out = le.AppendUint32(out, r.tgi.Instance)
		if rowWidth == 24 {
			out = le.AppendUint32(out, r.resource)
		}
		out = le.AppendUint32(out, r.offset)
		out = le.AppendUint32(out, r.size)
	}

	h := out[:96]
	copy(h, "DBPF")
	le.PutUint32(h[4:], 1)
	le.PutUint32(h[24:], unix(opts.Created))
	le.PutUint32(h[28:], unix(opts.Modified))
	le.PutUint32(h[32:], 7)
	le.PutUint32(h[36:], uint32(len(rows)))          //nolint:gosec // test fixture
	le.PutUint32(h[40:], uint32(indexOff))           //nolint:gosec // test fixture
	le.PutUint32(h[44:], uint32(len(rows)*rowWidth)) //nolint:gosec // test fixture
	le.PutUint32(h[60:], opts.IndexMinor)
	return out
}

// WriteArchive builds an archive and writes it to dir/name, creating parent
// directories. It returns the full path.
func WriteArchive(tb testing.TB, dir, name string, entries []TestEntry, opts ArchiveOptions) string {
	tb.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, BuildArchive(tb, entries, opts), 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Exemplar encodes a binary exemplar with the given parent and properties.
func Exemplar(tb testing.TB, parent dbpftype.TGI, props ...exemplar.Property) []byte {
	tb.Helper()
	data, err := (&exemplar.Exemplar{Parent: parent, Properties: props}).MarshalBinary()
	if err != nil {
		tb.Fatalf("marshal exemplar: %v", err)
	}
	return data
}

// Cohort encodes a binary cohort with the given parent and properties.
func Cohort(tb testing.TB, parent dbpftype.TGI, props ...exemplar.Property) []byte {
	tb.Helper()
	data, err := (&exemplar.Exemplar{Cohort: true, Parent: parent, Properties: props}).MarshalBinary()
	if err != nil {
		tb.Fatalf("marshal cohort: %v", err)
	}
	return data
}

// Pattern returns n bytes of compressible data seeded by seed.
func Pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i%13)
	}
	return out
}

func unix(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	return uint32(t.Unix()) //nolint:gosec // test fixture
}
