package qfs

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dbpf/internal/dbpftype"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test data
	random := make([]byte, 200_000)
	rng.Read(random)

	text := bytes.Repeat([]byte("SimCity 4 exemplar property bag "), 4000)

	// Few distinct symbols produce long chains and far matches.
	lowEntropy := make([]byte, 300_000)
	for i := range lowEntropy {
		lowEntropy[i] = byte(rng.Intn(4))
	}

	// A block repeated beyond the 16 KiB offset range exercises the 4-byte form.
	far := make([]byte, 0, 100_000)
	chunk := make([]byte, 20_000)
	rng.Read(chunk)
	far = append(far, chunk...)
	far = append(far, chunk...)
	far = append(far, chunk[:5000]...)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"single byte", []byte{0x42}},
		{"three bytes", []byte{1, 2, 3}},
		{"run", bytes.Repeat([]byte{0xAA}, 5000)},
		{"random", random},
		{"text", text},
		{"low entropy", lowEntropy},
		{"far matches", far},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			packed, err := Compress(tt.data)
			require.NoError(t, err)
			size, err := DeclaredSize(packed)
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), size)

			got, err := Decompress(packed)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.data, got), "round trip mismatch")
		})
	}
}

func TestCompressShrinksRepetitiveInput(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("abcdefgh"), 1000)
	packed, err := Compress(data)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(data)/10)
}

func TestCompressUniqueBytesUsesLiteralsOnly(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789ABCDEF")
	packed, err := Compress(data)
	require.NoError(t, err)

	want := append([]byte{0x10, 0xFB, 0x00, 0x00, 0x10, 0xE3}, data...)
	want = append(want, 0xFC)
	assert.Equal(t, want, packed)

	got, err := Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecompressOverlappingCopy(t *testing.T) {
	t.Parallel()

	// One literal 'x', then a 2-byte form copying 10 bytes from offset 1.
	block := []byte{0x10, 0xFB, 0x00, 0x00, 0x0B, 0x1D, 0x00, 'x', 0xFC}
	got, err := Decompress(block)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'x'}, 11), got)
}

func TestDecompressAcceptsLongHeader(t *testing.T) {
	t.Parallel()

	block := []byte{0x11, 0xFB, 0x00, 0x00, 0x02, 0xAA, 0xBB, 0xCC, 0xFE, 'h', 'i'}
	got, err := Decompress(block)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)
}

func TestDecompressErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		block []byte
	}{
		{"no magic", []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0xFD, 'a'}},
		{"short", []byte{0x10, 0xFB}},
		{"back-reference before start", []byte{0x10, 0xFB, 0x00, 0x00, 0x03, 0x00, 0x05, 0xFC}},
		{"truncated literals", []byte{0x10, 0xFB, 0x00, 0x00, 0x08, 0xE1, 'a', 'b'}},
		{"length mismatch", []byte{0x10, 0xFB, 0x00, 0x00, 0x05, 0xFD, 'a'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decompress(tt.block)
			require.ErrorIs(t, err, dbpftype.ErrCorruptArchive)
		})
	}

	_, err := Decompress([]byte{0x10, 0xFB, 0x00, 0x00, 0x05, 0xFD, 'a'})
	require.ErrorIs(t, err, dbpftype.ErrDecodeFailure)
}

func TestEntryFraming(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("entry payload "), 100)
	raw, err := CompressEntry(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(raw)), uint32(raw[0])|uint32(raw[1])<<8|uint32(raw[2])<<16|uint32(raw[3])<<24)

	size, err := EntrySize(raw)
	require.NoError(t, err)
	assert.Equal(t, len(data), size)

	got, err := DecompressEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = DecompressEntry(raw[:6])
	require.ErrorIs(t, err, dbpftype.ErrCorruptArchive)
}

func TestCompressTooLarge(t *testing.T) {
	t.Parallel()

	_, err := Compress(make([]byte, MaxSize+1))
	require.ErrorIs(t, err, dbpftype.ErrSizeOverflow)
}

func BenchmarkCompress(b *testing.B) {
	data := bytes.Repeat([]byte("benchmark exemplar data 0123456789"), 8192)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for b.Loop() {
		if _, err := Compress(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecompress(b *testing.B) {
	data := bytes.Repeat([]byte("benchmark exemplar data 0123456789"), 8192)
	packed, err := Compress(data)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for b.Loop() {
		if _, err := Decompress(packed); err != nil {
			b.Fatal(err)
		}
	}
}
