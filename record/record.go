// Package record reads and writes the size/checksum/owner records that many
// DBPF resource kinds are made of.
//
// Each record is laid out as
//
//	[size u32][crc u32][owner u32][payload]
//
// where size counts the whole record and crc covers everything from byte 8.
package record

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/meigma/dbpf/internal/dbpftype"
)

// HeaderSize is the number of bytes before a record's payload.
const HeaderSize = 12

// Record is one subfile record.
type Record struct {
	// Size is the total record length including the 12 header bytes.
	Size uint32

	// CRC is the stored checksum.
	CRC uint32

	// Owner is the id of the in-game object owning the record.
	Owner uint32

	// Payload is the resource-specific remainder.
	Payload []byte
}

// List is the decoded form of a record-based resource. Marshalling it
// reseals every record.
type List []Record

// MarshalBinary seals and concatenates the records.
func (l List) MarshalBinary() ([]byte, error) {
	return Marshal(l), nil
}

// Split walks data as a sequence of records. Payloads are copied, so the
// records may be edited without touching data.
func Split(data []byte) (List, error) {
	var out List
	for off := 0; off < len(data); {
		if len(data)-off < HeaderSize {
			return nil, fmt.Errorf("record: %d trailing bytes at %d: %w", len(data)-off, off, dbpftype.ErrCorruptArchive)
		}
		size := binary.LittleEndian.Uint32(data[off:])
		if size < HeaderSize || uint64(size) > uint64(len(data)-off) {
			return nil, fmt.Errorf("record: size %d at %d out of range: %w", size, off, dbpftype.ErrCorruptArchive)
		}
		end := off + int(size)
		out = append(out, Record{
			Size:    size,
			CRC:     binary.LittleEndian.Uint32(data[off+4:]),
			Owner:   binary.LittleEndian.Uint32(data[off+8:]),
			Payload: bytes.Clone(data[off+HeaderSize : end]),
		})
		off = end
	}
	return out, nil
}

// Seal recomputes the size and checksum of r.
func Seal(r *Record) {
	r.Size = uint32(HeaderSize + len(r.Payload)) //nolint:gosec // records are far below 4 GiB
	r.CRC = Checksum(r.body())
}

// body returns the owner and payload as serialized, the span the checksum covers.
func (r *Record) body() []byte {
	buf := make([]byte, 4+len(r.Payload))
	binary.LittleEndian.PutUint32(buf, r.Owner)
	copy(buf[4:], r.Payload)
	return buf
}

// AppendBinary seals r and appends its encoding to dst.
func (r *Record) AppendBinary(dst []byte) ([]byte, error) {
	Seal(r)
	dst = binary.LittleEndian.AppendUint32(dst, r.Size)
	dst = binary.LittleEndian.AppendUint32(dst, r.CRC)
	dst = binary.LittleEndian.AppendUint32(dst, r.Owner)
	return append(dst, r.Payload...), nil
}

// Valid reports whether the stored checksum matches the record content.
func (r *Record) Valid() bool {
	return r.CRC == Checksum(r.body())
}

// Marshal seals and concatenates records.
func Marshal(records []Record) []byte {
	n := 0
	for i := range records {
		n += HeaderSize + len(records[i].Payload)
	}
	out := make([]byte, 0, n)
	for i := range records {
		out, _ = records[i].AppendBinary(out)
	}
	return out
}

// Verify checks every record in data and reports the first bad checksum.
func Verify(data []byte) error {
	records, err := Split(data)
	if err != nil {
		return err
	}
	off := 0
	for i := range records {
		raw := data[off : off+int(records[i].Size)]
		if got := Checksum(raw[8:]); got != records[i].CRC {
			return fmt.Errorf("record %d: checksum 0x%08X, stored 0x%08X: %w",
				i, got, records[i].CRC, dbpftype.ErrCorruptArchive)
		}
		off += int(records[i].Size)
	}
	return nil
}
