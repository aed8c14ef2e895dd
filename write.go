package dbpf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/meigma/dbpf/internal/index"
	"github.com/meigma/dbpf/internal/sizing"
)

var errArchiveTooLarge = fmt.Errorf("dbpf: archive exceeds 4 GiB: %w", ErrSizeOverflow)

// slot is one entry's place in a planned write.
type slot struct {
	e      *Entry
	loc    location
	stored []byte // encoded bytes for edited entries and the directory
}

// layout is a complete plan for writing a modified archive.
type layout struct {
	header Header
	slots  []slot
}

// WriteTo writes the archive to w.
//
// An archive without changes is copied byte for byte from its source.
// Otherwise untouched entries keep their stored bytes, edited entries are
// re-encoded, the directory is regenerated and the index is rewritten.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	if !a.Modified() {
		return a.copySource(w)
	}
	l, err := a.plan(unixSeconds(a.cfg.now()))
	if err != nil {
		return 0, err
	}
	return a.writeLayout(w, l)
}

// MarshalBinary returns the serialized archive.
func (a *Archive) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := a.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *Archive) copySource(w io.Writer) (int64, error) {
	a.mu.RLock()
	src := a.src
	a.mu.RUnlock()
	if fs, ok := src.(*fileSource); ok {
		f, err := os.Open(fs.path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		return io.Copy(w, f)
	}
	return io.Copy(w, io.NewSectionReader(src, 0, src.Size()))
}

// plan lays out every entry in table order. The directory keeps its position
// in the table, is appended when compressed entries exist without one, and is
// dropped when nothing is compressed.
func (a *Archive) plan(modified uint32) (*layout, error) {
	if err := a.ensureHeader(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	h := a.header
	a.mu.RUnlock()

	entries := a.collection().All()
	slots := make([]slot, 0, len(entries)+1)
	var rows []DirRow
	dirPos := -1
	for _, e := range entries {
		if e.tgi == DirTGI {
			if dirPos < 0 {
				dirPos = len(slots)
				slots = append(slots, slot{e: e})
			}
			continue
		}
		s := slot{e: e, loc: *e.loc.Load()}
		if ed := e.edit.Load(); ed != nil {
			stored, size, compressed, err := e.encode(ed)
			if err != nil {
				return nil, err
			}
			s.stored = stored
			if s.loc.size, err = sizing.ToUint32(len(stored), errArchiveTooLarge); err != nil {
				return nil, err
			}
			s.loc.fileSize = size
			s.loc.compressed = compressed
		}
		if s.loc.compressed {
			rows = append(rows, DirRow{TGI: e.tgi, Resource: e.resource, Size: s.loc.fileSize})
		}
		slots = append(slots, s)
	}

	switch {
	case len(rows) == 0 && dirPos >= 0:
		slots = append(slots[:dirPos], slots[dirPos+1:]...)
	case len(rows) > 0:
		if dirPos < 0 {
			dirPos = len(slots)
			slots = append(slots, slot{e: newEntry(a, DirTGI, 0, location{})})
		}
		body := encodeDir(rows, h.dirRowWidth())
		size, err := sizing.ToUint32(len(body), errArchiveTooLarge)
		if err != nil {
			return nil, err
		}
		slots[dirPos].stored = body
		slots[dirPos].loc = location{size: size}
	}

	off := uint32(HeaderSize)
	for i := range slots {
		slots[i].loc.offset = off
		next, ok := sizing.AddUint32(off, slots[i].loc.size)
		if !ok {
			return nil, errArchiveTooLarge
		}
		off = next
	}
	count, err := sizing.ToUint32(len(slots), errArchiveTooLarge)
	if err != nil {
		return nil, err
	}
	indexSize, err := sizing.ToUint32(len(slots)*h.rowWidth(), errArchiveTooLarge)
	if err != nil {
		return nil, err
	}
	if _, ok := sizing.AddUint32(off, indexSize); !ok {
		return nil, errArchiveTooLarge
	}
	h.IndexCount = count
	h.IndexOff = off
	h.IndexSize = indexSize
	h.HolesCount, h.HolesOff, h.HolesSize = 0, 0, 0
	h.Modified = modified
	return &layout{header: h, slots: slots}, nil
}

func (a *Archive) writeLayout(w io.Writer, l *layout) (int64, error) {
	var n int64
	write := func(b []byte) error {
		m, err := w.Write(b)
		n += int64(m)
		return err
	}

	hb, err := l.header.MarshalBinary()
	if err != nil {
		return n, err
	}
	if err := write(hb); err != nil {
		return n, err
	}
	for _, s := range l.slots {
		data := s.stored
		if data == nil && s.loc.size > 0 {
			if data, err = s.e.loadRaw(); err != nil {
				return n, err
			}
		}
		if err := write(data); err != nil {
			return n, err
		}
	}

	width := l.header.rowWidth()
	row := make([]byte, width)
	le := binary.LittleEndian
	for _, s := range l.slots {
		le.PutUint32(row, s.e.tgi.Type)
		le.PutUint32(row[4:], s.e.tgi.Group)
		le.PutUint32(row[8:], s.e.tgi.Instance)
		if width == 24 {
			le.PutUint32(row[12:], s.e.resource)
		}
		le.PutUint32(row[width-8:], s.loc.offset)
		le.PutUint32(row[width-4:], s.loc.size)
		if err := write(row); err != nil {
			return n, err
		}
	}
	return n, nil
}

// commit points the archive at a freshly written copy of l.
func (a *Archive) commit(l *layout, src ByteSource, path string) {
	entries := index.NewCollection[*Entry](len(l.slots))
	for _, s := range l.slots {
		s.e.edit.Store(nil)
		a.forget(s.e)
		loc := s.loc
		s.e.loc.Store(&loc)
		entries.Push(s.e.tgi, s.e)
	}

	a.mu.Lock()
	a.src = src
	a.path = path
	a.header = l.header
	a.lazy = false
	a.entries = entries
	a.mu.Unlock()

	a.structural.Store(false)
	a.edited.Store(false)
}
