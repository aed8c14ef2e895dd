// Package qfs implements the QFS (RefPack) LZ77 variant used for compressed DBPF entries.
//
// A block starts with the magic 0x10 0xFB and a 3-byte big-endian uncompressed
// size, followed by a stream of control bytes. Each control byte carries a
// literal run of 0-3 bytes plus a back-reference, a literal run of 4-112
// bytes, or the terminator.
package qfs

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/dbpf/internal/dbpftype"
)

const (
	// MaxSize is the largest payload a block header can describe.
	MaxSize = 1<<24 - 1

	maxIterations = 50
	windowSize    = 1 << 17
	windowMask    = windowSize - 1
	maxMatch      = 1028
	maxLiteralRun = 4*0x1b + 4

	magic0 = 0x10
	magic1 = 0xFB
)

// HasMagic reports whether src starts with a QFS block header.
func HasMagic(src []byte) bool {
	return len(src) >= 5 && src[0]&0xFE == magic0 && src[1] == magic1
}

// DeclaredSize returns the uncompressed size stored in a block header.
func DeclaredSize(src []byte) (int, error) {
	if !HasMagic(src) {
		return 0, fmt.Errorf("qfs: missing magic: %w", dbpftype.ErrCorruptArchive)
	}
	return int(src[2])<<16 | int(src[3])<<8 | int(src[4]), nil
}

// Decompress expands a QFS block.
//
// The declared size only sizes the output buffer; a stream producing a
// different number of bytes is rejected.
func Decompress(src []byte) ([]byte, error) {
	size, err := DeclaredSize(src)
	if err != nil {
		return nil, err
	}
	pos := 5
	if src[0]&0x01 != 0 {
		pos = 8
	}
	out := make([]byte, 0, size)

	for pos < len(src) && src[pos] < 0xFC {
		c := int(src[pos])
		var lit, length, offset, width int
		switch {
		case c&0x80 == 0:
			if pos+1 >= len(src) {
				return nil, truncated(pos)
			}
			a := int(src[pos+1])
			width = 2
			lit = c & 0x03
			length = (c&0x1C)>>2 + 3
			offset = (c>>5)<<8 + a + 1
		case c&0x40 == 0:
			if pos+2 >= len(src) {
				return nil, truncated(pos)
			}
			a, b := int(src[pos+1]), int(src[pos+2])
			width = 3
			lit = (a >> 6) & 0x03
			length = c&0x3F + 4
			offset = (a&0x3F)<<8 + b + 1
		case c&0x20 == 0:
			if pos+3 >= len(src) {
				return nil, truncated(pos)
			}
			a, b, d := int(src[pos+1]), int(src[pos+2]), int(src[pos+3])
			width = 4
			lit = c & 0x03
			length = (c>>2)&0x03<<8 + d + 5
			offset = (c&0x10)<<12 + a<<8 + b + 1
		default:
			width = 1
			lit = (c&0x1F)<<2 + 4
		}
		pos += width

		if pos+lit > len(src) {
			return nil, truncated(pos)
		}
		out = append(out, src[pos:pos+lit]...)
		pos += lit

		if length == 0 {
			continue
		}
		if offset > len(out) {
			return nil, fmt.Errorf("qfs: back-reference %d before start of output at %d: %w",
				offset, len(out), dbpftype.ErrCorruptArchive)
		}
		// Byte by byte: the source range may overlap what is being written.
		from := len(out) - offset
		for i := range length {
			out = append(out, out[from+i])
		}
	}

	if pos < len(src) {
		lit := int(src[pos] & 0x03)
		pos++
		if pos+lit > len(src) {
			return nil, truncated(pos)
		}
		out = append(out, src[pos:pos+lit]...)
	}

	if len(out) != size {
		return nil, fmt.Errorf("qfs: produced %d bytes, header declares %d: %w: %w",
			len(out), size, dbpftype.ErrDecodeFailure, dbpftype.ErrCorruptArchive)
	}
	return out, nil
}

func truncated(pos int) error {
	return fmt.Errorf("qfs: stream truncated at %d: %w", pos, dbpftype.ErrCorruptArchive)
}

// Compress encodes src as a QFS block.
func Compress(src []byte) ([]byte, error) {
	n := len(src)
	if n > MaxSize {
		return nil, fmt.Errorf("qfs: %d bytes exceeds block limit: %w", n, dbpftype.ErrSizeOverflow)
	}

	out := make([]byte, 0, n/2+16)
	out = append(out, magic0, magic1, byte(n>>16), byte(n>>8), byte(n))

	// last maps a two-byte prefix to its most recent position; prev chains
	// each position to the previous one with the same prefix.
	last := make([]int32, 1<<16)
	prev := make([]int32, windowSize)
	for i := range last {
		last[i] = -1
	}
	for i := range prev {
		prev[i] = -1
	}

	written := 0
	for pos := 0; pos+1 < n; pos++ {
		key := int(src[pos])<<8 | int(src[pos+1])
		cand := last[key]
		prev[pos&windowMask] = cand
		last[key] = int32(pos) //nolint:gosec // n <= MaxSize

		if pos < written {
			continue
		}

		bestLen, bestOff := 0, 0
		for iter := 0; cand >= 0 && pos-int(cand) < windowSize && iter < maxIterations; iter++ {
			ref := int(cand)
			l := 2
			for pos+l < n && l < maxMatch && src[ref+l] == src[pos+l] {
				l++
			}
			if l > bestLen {
				bestLen, bestOff = l, pos-ref
				if l == maxMatch {
					break
				}
			}
			cand = prev[ref&windowMask]
		}

		if bestLen <= 2 || (bestLen == 3 && bestOff > 1024) || (bestLen == 4 && bestOff > 16384) {
			continue
		}

		out = flushLiterals(out, src, &written, pos)
		lit := pos - written
		d := bestOff - 1
		switch {
		case bestLen <= 10 && bestOff <= 1024:
			out = append(out,
				byte((d>>8)<<5|(bestLen-3)<<2|lit),
				byte(d))
		case bestLen <= 67 && bestOff <= 16384:
			out = append(out,
				byte(0x80|(bestLen-4)),
				byte(lit<<6|d>>8),
				byte(d))
		default:
			out = append(out,
				byte(0xC0|(d>>16)<<4|((bestLen-5)>>8)<<2|lit),
				byte(d>>8),
				byte(d),
				byte(bestLen-5))
		}
		out = append(out, src[written:pos]...)
		written = pos + bestLen
	}

	out = flushLiterals(out, src, &written, n)
	rest := n - written
	out = append(out, byte(0xFC|rest))
	out = append(out, src[written:]...)
	return out, nil
}

// flushLiterals emits raw control blocks until fewer than four literals
// remain before end.
func flushLiterals(out, src []byte, written *int, end int) []byte {
	for end-*written >= 4 {
		run := (end - *written) &^ 3
		if run > maxLiteralRun {
			run = maxLiteralRun
		}
		out = append(out, byte(0xE0+(run-4)>>2))
		out = append(out, src[*written:*written+run]...)
		*written += run
	}
	return out
}

// DecompressEntry expands an archive-level compressed payload, which carries
// a 4-byte little-endian total length in front of the block.
func DecompressEntry(raw []byte) ([]byte, error) {
	if len(raw) < 9 {
		return nil, fmt.Errorf("qfs: entry of %d bytes too short: %w", len(raw), dbpftype.ErrCorruptArchive)
	}
	return Decompress(raw[4:])
}

// CompressEntry compresses src and prefixes the archive-level length field.
func CompressEntry(src []byte) ([]byte, error) {
	block, err := Compress(src)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4, 4+len(block))
	binary.LittleEndian.PutUint32(out, uint32(4+len(block))) //nolint:gosec // bounded by MaxSize
	return append(out, block...), nil
}

// EntrySize returns the uncompressed size declared by an archive-level payload.
func EntrySize(raw []byte) (int, error) {
	if len(raw) < 9 {
		return 0, fmt.Errorf("qfs: entry of %d bytes too short: %w", len(raw), dbpftype.ErrCorruptArchive)
	}
	return DeclaredSize(raw[4:])
}
