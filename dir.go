package dbpf

import (
	"encoding/binary"
	"fmt"
)

// DirRow is one directory record: a compressed entry and its uncompressed size.
type DirRow struct {
	TGI      TGI
	Resource uint32
	Size     uint32
}

func parseDir(data []byte, width int) ([]DirRow, error) {
	if len(data)%width != 0 {
		return nil, fmt.Errorf("dbpf: directory of %d bytes is not a multiple of %d: %w", len(data), width, ErrCorruptArchive)
	}
	le := binary.LittleEndian
	rows := make([]DirRow, 0, len(data)/width)
	for off := 0; off < len(data); off += width {
		r := DirRow{TGI: TGI{
			Type:     le.Uint32(data[off:]),
			Group:    le.Uint32(data[off+4:]),
			Instance: le.Uint32(data[off+8:]),
		}}
		if width == 20 {
			r.Resource = le.Uint32(data[off+12:])
		}
		r.Size = le.Uint32(data[off+width-4:])
		rows = append(rows, r)
	}
	return rows, nil
}

func encodeDir(rows []DirRow, width int) []byte {
	out := make([]byte, 0, len(rows)*width)
	le := binary.LittleEndian
	for _, r := range rows {
		out = le.AppendUint32(out, r.TGI.Type)
		out = le.AppendUint32(out, r.TGI.Group)
		out = le.AppendUint32(out, r.TGI.Instance)
		if width == 20 {
			out = le.AppendUint32(out, r.Resource)
		}
		out = le.AppendUint32(out, r.Size)
	}
	return out
}
