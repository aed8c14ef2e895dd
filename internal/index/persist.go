package index

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/dbpf/internal/dbpftype"
)

// MarshalBinary encodes the triples and the three tables:
//
//	[n u32][triples 3n*u32]
//	then for each table: [buckets u32][len u32][table bytes]
func (idx *Index) MarshalBinary() ([]byte, error) {
	size := 4 + 4*len(idx.tgis)
	for _, t := range idx.tables() {
		size += 8 + len(t.buf)
	}
	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, uint32(idx.Len())) //nolint:gosec // bounded
	for _, v := range idx.tgis {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	for _, t := range idx.tables() {
		out = binary.LittleEndian.AppendUint32(out, t.buckets)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(t.buf))) //nolint:gosec // bounded
		out = append(out, t.buf...)
	}
	return out, nil
}

func (idx *Index) tables() []*table {
	return []*table{&idx.byT, &idx.byTI, &idx.byTGI}
}

// Load decodes an index written by MarshalBinary, validating every bucket.
func Load(data []byte) (*Index, error) {
	corrupt := func(what string) error {
		return fmt.Errorf("index: %s: %w", what, dbpftype.ErrCorruptArchive)
	}
	if len(data) < 4 {
		return nil, corrupt("truncated")
	}
	n := binary.LittleEndian.Uint32(data)
	off := 4
	if uint64(len(data)-off) < 12*uint64(n) {
		return nil, corrupt("triples truncated")
	}
	idx := &Index{tgis: make([]uint32, 3*n)}
	for i := range idx.tgis {
		idx.tgis[i] = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}
	for _, t := range idx.tables() {
		if len(data)-off < 8 {
			return nil, corrupt("table header truncated")
		}
		t.buckets = binary.LittleEndian.Uint32(data[off:])
		size := binary.LittleEndian.Uint32(data[off+4:])
		off += 8
		if uint64(size) > uint64(len(data)-off) {
			return nil, corrupt("table truncated")
		}
		t.buf = data[off : off+int(size)]
		off += int(size)
		if err := t.validate(n); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (t *table) validate(n uint32) error {
	if t.buckets == 0 || t.buckets&(t.buckets-1) != 0 || uint64(len(t.buf)) < 4*uint64(t.buckets) {
		return fmt.Errorf("index: bad bucket count %d: %w", t.buckets, dbpftype.ErrCorruptArchive)
	}
	size := uint64(len(t.buf))
	for b := range t.buckets {
		off := uint64(binary.LittleEndian.Uint32(t.buf[4*b:]))
		if off == 0 {
			continue
		}
		if off < 4*uint64(t.buckets) || off+5 > size {
			return fmt.Errorf("index: bucket %d offset out of range: %w", b, dbpftype.ErrCorruptArchive)
		}
		count := uint64(binary.LittleEndian.Uint32(t.buf[off+1:]))
		if count == 0 || off+5+4*count > size {
			return fmt.Errorf("index: bucket %d overruns table: %w", b, dbpftype.ErrCorruptArchive)
		}
		for k := range count {
			if binary.LittleEndian.Uint32(t.buf[off+5+4*k:]) >= n {
				return fmt.Errorf("index: bucket %d points past %d items: %w", b, n, dbpftype.ErrCorruptArchive)
			}
		}
	}
	return nil
}
