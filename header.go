package dbpf

import (
	"encoding/binary"
	"fmt"
	"time"
)

// HeaderSize is the size of the fixed archive header.
const HeaderSize = 96

var magic = [4]byte{'D', 'B', 'P', 'F'}

// Header is the fixed archive header. Fields not listed are kept verbatim
// from the source so unmodified archives serialize identically.
type Header struct {
	Major      uint32
	Minor      uint32
	Created    uint32 // unix seconds
	Modified   uint32 // unix seconds
	IndexMajor uint32
	IndexCount uint32
	IndexOff   uint32
	IndexSize  uint32
	HolesCount uint32
	HolesOff   uint32
	HolesSize  uint32
	IndexMinor uint32

	raw [HeaderSize]byte
}

func newHeader(now time.Time) Header {
	ts := unixSeconds(now)
	h := Header{Major: 1, Minor: 0, Created: ts, Modified: ts, IndexMajor: 7}
	copy(h.raw[:], magic[:])
	return h
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("dbpf: header truncated at %d bytes: %w", len(b), ErrCorruptArchive)
	}
	if [4]byte(b[:4]) != magic {
		return Header{}, fmt.Errorf("dbpf: bad magic %q: %w", b[:4], ErrCorruptArchive)
	}
	le := binary.LittleEndian
	h := Header{
		Major:      le.Uint32(b[4:]),
		Minor:      le.Uint32(b[8:]),
		Created:    le.Uint32(b[24:]),
		Modified:   le.Uint32(b[28:]),
		IndexMajor: le.Uint32(b[32:]),
		IndexCount: le.Uint32(b[36:]),
		IndexOff:   le.Uint32(b[40:]),
		IndexSize:  le.Uint32(b[44:]),
		HolesCount: le.Uint32(b[48:]),
		HolesOff:   le.Uint32(b[52:]),
		HolesSize:  le.Uint32(b[56:]),
		IndexMinor: le.Uint32(b[60:]),
	}
	copy(h.raw[:], b[:HeaderSize])
	return h, nil
}

// MarshalBinary returns the header with every known field written over the
// bytes it was read from.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := h.raw
	copy(b[:4], magic[:])
	le := binary.LittleEndian
	le.PutUint32(b[4:], h.Major)
	le.PutUint32(b[8:], h.Minor)
	le.PutUint32(b[24:], h.Created)
	le.PutUint32(b[28:], h.Modified)
	le.PutUint32(b[32:], h.IndexMajor)
	le.PutUint32(b[36:], h.IndexCount)
	le.PutUint32(b[40:], h.IndexOff)
	le.PutUint32(b[44:], h.IndexSize)
	le.PutUint32(b[48:], h.HolesCount)
	le.PutUint32(b[52:], h.HolesOff)
	le.PutUint32(b[56:], h.HolesSize)
	le.PutUint32(b[60:], h.IndexMinor)
	return b[:], nil
}

// CreatedTime returns the creation timestamp.
func (h *Header) CreatedTime() time.Time {
	return time.Unix(int64(h.Created), 0).UTC()
}

// ModifiedTime returns the modification timestamp.
func (h *Header) ModifiedTime() time.Time {
	return time.Unix(int64(h.Modified), 0).UTC()
}

// rowWidth is the size of one index row: 20 bytes, or 24 when index minor
// version 1 or later adds a resource id after the instance.
func (h *Header) rowWidth() int {
	if h.IndexMinor > 0 {
		return 24
	}
	return 20
}

// dirRowWidth is the size of one directory row.
func (h *Header) dirRowWidth() int {
	if h.IndexMinor > 0 {
		return 20
	}
	return 16
}

func unixSeconds(t time.Time) uint32 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint32(s) //nolint:gosec // the format stores 32-bit seconds
}
