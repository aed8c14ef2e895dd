// Package index provides a multi-key hash index over Type-Group-Instance triples.
//
// An Index holds three independent tables keyed by type, by type+instance and
// by the full triple. Each table is a single byte buffer laid out as
//
//	[bucket offset u32 ...]                    one per bucket, 0 = empty
//	[collision u8][count u32][item u32 ...]    one run per non-empty bucket
//
// Item values are positions in the triple slice the index was built from.
// Buckets whose members all share one key skip per-item filtering.
package index

import (
	"encoding/binary"

	"github.com/meigma/dbpf/internal/dbpftype"
)

const (
	typeBuckets = 2048
	maxBuckets  = 131072
	fillFactor  = 0.75

	knuth = 2654435761
)

// Index is an immutable lookup structure over a flat triple slice.
// The triples must not change while the index is in use.
type Index struct {
	tgis  []uint32
	byT   table
	byTI  table
	byTGI table
}

type table struct {
	buf     []byte
	buckets uint32
}

// Build indexes tgis, a flat slice of (type, group, instance) triples.
func Build(tgis []uint32) *Index {
	n := len(tgis) / 3
	buckets := bucketCount(n)
	idx := &Index{tgis: tgis}
	idx.byT = buildTable(n, typeBuckets,
		func(i int) uint32 { return hashType(tgis[3*i]) },
		func(a, b int) bool { return tgis[3*a] == tgis[3*b] })
	idx.byTI = buildTable(n, buckets,
		func(i int) uint32 { return hashTI(tgis[3*i], tgis[3*i+2]) },
		func(a, b int) bool { return tgis[3*a+2] == tgis[3*b+2] && tgis[3*a] == tgis[3*b] })
	idx.byTGI = buildTable(n, buckets,
		func(i int) uint32 { return hashTGI(tgis[3*i], tgis[3*i+1], tgis[3*i+2]) },
		func(a, b int) bool {
			return tgis[3*a+1] == tgis[3*b+1] && tgis[3*a+2] == tgis[3*b+2] && tgis[3*a] == tgis[3*b]
		})
	return idx
}

// Len returns the number of indexed triples.
func (idx *Index) Len() int {
	return len(idx.tgis) / 3
}

// FindType returns the positions of every triple with the given type.
func (idx *Index) FindType(t uint32) []int {
	return lookup(idx.byT, hashType(t), func(i uint32) bool {
		return idx.tgis[3*i] == t
	})
}

// FindTypeInstance returns the positions of every triple with type t and instance i.
func (idx *Index) FindTypeInstance(t, i uint32) []int {
	return lookup(idx.byTI, hashTI(t, i), func(p uint32) bool {
		return idx.tgis[3*p+2] == i && idx.tgis[3*p] == t
	})
}

// FindTGI returns the positions of every triple equal to (t, g, i).
func (idx *Index) FindTGI(t, g, i uint32) []int {
	return lookup(idx.byTGI, hashTGI(t, g, i), func(p uint32) bool {
		return idx.tgis[3*p+1] == g && idx.tgis[3*p+2] == i && idx.tgis[3*p] == t
	})
}

// Find answers any query shape, using the best table available.
func (idx *Index) Find(q dbpftype.Query) []int {
	switch {
	case q.Type != nil && q.Group != nil && q.Instance != nil:
		return idx.FindTGI(*q.Type, *q.Group, *q.Instance)
	case q.Type != nil && q.Instance != nil:
		return idx.FindTypeInstance(*q.Type, *q.Instance)
	case q.Type != nil && q.Group != nil:
		out := idx.FindType(*q.Type)
		kept := out[:0]
		for _, p := range out {
			if idx.tgis[3*p+1] == *q.Group {
				kept = append(kept, p)
			}
		}
		return kept
	case q.Type != nil:
		return idx.FindType(*q.Type)
	}

	var out []int
	for p := range idx.Len() {
		tgi := dbpftype.TGI{Type: idx.tgis[3*p], Group: idx.tgis[3*p+1], Instance: idx.tgis[3*p+2]}
		if q.Match(tgi) {
			out = append(out, p)
		}
	}
	return out
}

func hashType(t uint32) uint32 {
	return (t * knuth) >> 16
}

func hashTI(t, i uint32) uint32 {
	return ((t * knuth) ^ (t >> 5)) ^ i
}

// hashTGI mixes group before instance; groups differ more often.
func hashTGI(t, g, i uint32) uint32 {
	t = t*knuth ^ (t >> 5)
	g ^= t
	i ^= t
	g *= 0x9E3779B9
	i *= 0x85EBCA6B
	g ^= g >> 16
	i ^= i >> 13
	return g ^ i
}

func bucketCount(n int) int {
	want := int(float64(n)/fillFactor + 0.999999)
	size := 1
	for size < want && size < maxBuckets {
		size <<= 1
	}
	return size
}

func buildTable(n, buckets int, hash func(int) uint32, same func(a, b int) bool) table {
	mask := uint32(buckets - 1) //nolint:gosec // bucket counts are small powers of two
	slot := make([]uint32, n)
	counts := make([]uint32, buckets)
	first := make([]int32, buckets)
	for b := range first {
		first[b] = -1
	}
	collide := make([]bool, buckets)

	for i := range n {
		b := hash(i) & mask
		slot[i] = b
		counts[b]++
		switch {
		case first[b] < 0:
			first[b] = int32(i) //nolint:gosec // item counts fit in int32
		case !collide[b] && !same(int(first[b]), i):
			collide[b] = true
		}
	}

	size := 4 * buckets
	for _, c := range counts {
		if c > 0 {
			size += 5 + 4*int(c)
		}
	}
	buf := make([]byte, size)
	cursor := make([]int, buckets)
	off := 4 * buckets
	for b, c := range counts {
		if c == 0 {
			continue
		}
		binary.LittleEndian.PutUint32(buf[4*b:], uint32(off)) //nolint:gosec // bounded by size
		if collide[b] {
			buf[off] = 1
		}
		binary.LittleEndian.PutUint32(buf[off+1:], c)
		cursor[b] = off + 5
		off += 5 + 4*int(c)
	}
	for i, b := range slot {
		binary.LittleEndian.PutUint32(buf[cursor[b]:], uint32(i)) //nolint:gosec // item counts fit in uint32
		cursor[b] += 4
	}
	return table{buf: buf, buckets: uint32(buckets)} //nolint:gosec // bounded by maxBuckets
}

func lookup(t table, h uint32, match func(uint32) bool) []int {
	if t.buckets == 0 {
		return nil
	}
	off := binary.LittleEndian.Uint32(t.buf[4*(h&(t.buckets-1)):])
	if off == 0 {
		return nil
	}
	collide := t.buf[off] != 0
	count := binary.LittleEndian.Uint32(t.buf[off+1:])
	items := t.buf[off+5 : off+5+4*count]

	if !collide {
		// Every member shares one key, so checking the first decides them all.
		if !match(binary.LittleEndian.Uint32(items)) {
			return nil
		}
		out := make([]int, count)
		for k := range out {
			out[k] = int(binary.LittleEndian.Uint32(items[4*k:]))
		}
		return out
	}

	var out []int
	for k := uint32(0); k < count; k++ {
		p := binary.LittleEndian.Uint32(items[4*k:])
		if match(p) {
			out = append(out, int(p))
		}
	}
	return out
}
