package dbpf

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/meigma/dbpf/internal/testutil"
)

var (
	benchSinkBytes []byte
	benchSinkEntry *Entry
	benchSinkInt   int
)

func benchArchive(b *testing.B, count, size int, compressed, random bool) []byte {
	b.Helper()
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // deterministic benchmark data
	entries := make([]testutil.TestEntry, count)
	for i := range entries {
		data := testutil.Pattern(size, byte(i))
		if random {
			rng.Read(data)
		}
		entries[i] = testutil.TestEntry{
			TGI:        TGI{Type: TypeExemplar, Group: uint32(i % 7), Instance: uint32(i)}, //nolint:gosec // benchmark
			Data:       data,
			Compressed: compressed,
		}
	}
	return testutil.BuildArchive(b, entries, testutil.ArchiveOptions{})
}

func BenchmarkParse(b *testing.B) {
	for _, count := range []int{100, 10_000} {
		b.Run(fmt.Sprintf("entries=%d", count), func(b *testing.B) {
			data := benchArchive(b, count, 64, true, false)
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for b.Loop() {
				a, err := Parse(data)
				if err != nil {
					b.Fatal(err)
				}
				benchSinkInt = a.Len()
			}
		})
	}
}

func BenchmarkFindTGI(b *testing.B) {
	a, err := Parse(benchArchive(b, 10_000, 16, false, false))
	if err != nil {
		b.Fatal(err)
	}
	_, _ = a.FindTGI(TypeExemplar, 0, 0)
	b.ReportAllocs()
	i := uint32(0)
	for b.Loop() {
		benchSinkEntry, _ = a.FindTGI(TypeExemplar, i%7, i%10_000)
		i++
	}
}

func BenchmarkDecompress(b *testing.B) {
	cases := []struct {
		name   string
		random bool
	}{
		{"compressible", false},
		{"random", true},
	}
	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			a, err := Parse(benchArchive(b, 1, 64<<10, true, tc.random))
			if err != nil {
				b.Fatal(err)
			}
			e, _ := a.FindTGI(TypeExemplar, 0, 0)
			b.ReportAllocs()
			b.SetBytes(64 << 10)
			for b.Loop() {
				e.Free()
				benchSinkBytes, err = e.Decompress()
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
