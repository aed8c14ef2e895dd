package dbpf

import (
	"bytes"
	"context"
	"encoding"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/dbpf/internal/index"
	"github.com/meigma/dbpf/internal/sizing"
)

// Archive is an opened DBPF file or buffer.
//
// Lookups and entry reads are safe for concurrent use, including while Save
// swaps in the rewritten index. Mutations (Add,
// Replace, Remove, Save) must not run concurrently with each other.
type Archive struct {
	mu      sync.RWMutex
	path    string
	src     ByteSource
	header  Header
	lazy    bool // header not read yet (restored archives)
	entries *index.Collection[*Entry]

	structural atomic.Bool
	edited     atomic.Bool

	loads singleflight.Group
	cfg   config
}

// EntryInfo describes an entry's index row, for restoring an archive
// without reading its file.
type EntryInfo struct {
	TGI        TGI
	Resource   uint32
	Offset     uint32
	Size       uint32
	FileSize   uint32
	Compressed bool
}

// Open reads the header, index and directory of the archive at path.
// Payloads are read on demand.
func Open(path string, opts ...Option) (*Archive, error) {
	src, err := newFileSource(path)
	if err != nil {
		return nil, err
	}
	a, err := OpenSource(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	a.path = path
	return a, nil
}

// OpenContext is Open on a background goroutine. It returns ctx.Err() as soon
// as ctx is done; the read itself is abandoned, not interrupted.
func OpenContext(ctx context.Context, path string, opts ...Option) (*Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		a   *Archive
		err error
	}
	ch := make(chan result, 1)
	go func() {
		a, err := Open(path, opts...)
		ch <- result{a, err}
	}()
	select {
	case r := <-ch:
		return r.a, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Parse opens an archive held in memory. data must not be modified afterwards.
func Parse(data []byte, opts ...Option) (*Archive, error) {
	return OpenSource(bytes.NewReader(data), opts...)
}

// OpenSource opens an archive from any random-access source.
func OpenSource(src ByteSource, opts ...Option) (*Archive, error) {
	a := &Archive{src: src, cfg: newConfig(opts)}
	if err := a.load(); err != nil {
		return nil, err
	}
	return a, nil
}

// New returns an empty archive.
func New(opts ...Option) *Archive {
	a := &Archive{cfg: newConfig(opts), entries: index.NewCollection[*Entry](0)}
	a.header = newHeader(a.cfg.now())
	a.src = bytes.NewReader(nil)
	a.structural.Store(true)
	return a
}

// Restore rebuilds an archive from index rows recorded earlier, such as a
// catalog cache, without touching the file. The header is read when first
// needed.
func Restore(path string, infos []EntryInfo, opts ...Option) *Archive {
	a := &Archive{
		path:    path,
		src:     &fileSource{path: path, size: -1},
		lazy:    true,
		cfg:     newConfig(opts),
		entries: index.NewCollection[*Entry](len(infos)),
	}
	for _, info := range infos {
		a.entries.Push(info.TGI, newEntry(a, info.TGI, info.Resource, location{
			offset:     info.Offset,
			size:       info.Size,
			fileSize:   info.FileSize,
			compressed: info.Compressed,
		}))
	}
	return a
}

func (a *Archive) load() error {
	size := a.src.Size()
	hb, err := readFull(a.src, 0, min(HeaderSize, int(max(size, 0))))
	if err != nil {
		return err
	}
	h, err := parseHeader(hb)
	if err != nil {
		return err
	}
	a.header = h

	width := h.rowWidth()
	indexLen := uint64(h.IndexCount) * uint64(width)
	if !sizing.InBounds(uint64(h.IndexOff), indexLen, size) {
		return fmt.Errorf("dbpf: index of %d rows at %d exceeds %d bytes: %w", h.IndexCount, h.IndexOff, size, ErrCorruptArchive)
	}
	n, err := sizing.ToInt(indexLen, ErrSizeOverflow)
	if err != nil {
		return err
	}
	rows, err := readFull(a.src, int64(h.IndexOff), n)
	if err != nil {
		return err
	}

	le := binary.LittleEndian
	a.entries = index.NewCollection[*Entry](int(h.IndexCount))
	var dir *Entry
	for off := 0; off < len(rows); off += width {
		row := rows[off : off+width]
		tgi := TGI{Type: le.Uint32(row), Group: le.Uint32(row[4:]), Instance: le.Uint32(row[8:])}
		var resource uint32
		if width == 24 {
			resource = le.Uint32(row[12:])
		}
		loc := location{offset: le.Uint32(row[width-8:]), size: le.Uint32(row[width-4:])}
		if !sizing.InBounds(uint64(loc.offset), uint64(loc.size), size) {
			return fmt.Errorf("dbpf: entry %s at %d+%d exceeds %d bytes: %w", tgi, loc.offset, loc.size, size, ErrCorruptArchive)
		}
		e := newEntry(a, tgi, resource, loc)
		if tgi == DirTGI {
			dir = e
		}
		a.entries.Push(tgi, e)
	}
	if dir != nil {
		return a.applyDir(dir)
	}
	return nil
}

// applyDir marks the entries listed in the directory as compressed.
// Duplicate keys are matched to rows in table order.
func (a *Archive) applyDir(dir *Entry) error {
	raw, err := dir.loadRaw()
	if err != nil {
		return err
	}
	rows, err := parseDir(raw, a.header.dirRowWidth())
	if err != nil {
		return err
	}
	pending := make(map[TGI][]*Entry)
	for _, e := range a.entries.All() {
		pending[e.tgi] = append(pending[e.tgi], e)
	}
	for _, r := range rows {
		list := pending[r.TGI]
		if len(list) == 0 {
			a.cfg.logger.Debug("directory lists missing entry", "tgi", r.TGI, "archive", a.path)
			continue
		}
		e := list[0]
		pending[r.TGI] = list[1:]
		loc := *e.loc.Load()
		loc.compressed = true
		loc.fileSize = r.Size
		e.loc.Store(&loc)
	}
	return nil
}

func (a *Archive) readAt(offset, size uint32) ([]byte, error) {
	if uint64(size) > a.cfg.maxEntrySize {
		return nil, fmt.Errorf("dbpf: entry of %d bytes: %w", size, ErrSizeOverflow)
	}
	a.mu.RLock()
	src := a.src
	a.mu.RUnlock()
	return readFull(src, int64(offset), int(size))
}

// Path returns the file the archive was opened from or last saved to.
func (a *Archive) Path() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.path
}

// Header returns a copy of the archive header.
func (a *Archive) Header() Header {
	if err := a.ensureHeader(); err != nil {
		a.cfg.logger.Warn("read header", "archive", a.path, "error", err)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.header
}

func (a *Archive) ensureHeader() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.lazy {
		return nil
	}
	hb, err := readFull(a.src, 0, HeaderSize)
	if err != nil {
		return err
	}
	h, err := parseHeader(hb)
	if err != nil {
		return err
	}
	a.header = h
	a.lazy = false
	return nil
}

// collection returns the current index. Save replaces it under a.mu.
func (a *Archive) collection() *index.Collection[*Entry] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.entries
}

// Len returns the number of entries, including the directory.
func (a *Archive) Len() int {
	return a.collection().Len()
}

// Entries returns the entries in table order.
func (a *Archive) Entries() []*Entry {
	return a.collection().All()
}

// Find returns the last entry matching q.
func (a *Archive) Find(q Query) (*Entry, bool) {
	return a.collection().Find(q)
}

// FindAll returns every entry matching q in table order.
func (a *Archive) FindAll(q Query) []*Entry {
	return a.collection().FindAll(q)
}

// FindTGI returns the last entry stored under the exact triple.
func (a *Archive) FindTGI(t, g, i uint32) (*Entry, bool) {
	return a.collection().Find(TGI{Type: t, Group: g, Instance: i}.Query())
}

// Modified reports whether the archive has changes not yet saved.
func (a *Archive) Modified() bool {
	return a.structural.Load() || a.edited.Load()
}

// Add appends a new entry holding data.
func (a *Archive) Add(tgi TGI, data []byte, compressed bool) *Entry {
	e := a.add(tgi, compressed)
	e.SetData(data)
	return e
}

// AddResource appends a new entry encoded from res on save.
func (a *Archive) AddResource(tgi TGI, res encoding.BinaryMarshaler, compressed bool) *Entry {
	e := a.add(tgi, compressed)
	e.SetResource(res)
	return e
}

func (a *Archive) add(tgi TGI, compressed bool) *Entry {
	e := newEntry(a, tgi, 0, location{compressed: compressed})
	a.collection().Push(tgi, e)
	a.structural.Store(true)
	return e
}

// Replace sets the content of the last entry stored under tgi.
func (a *Archive) Replace(tgi TGI, data []byte) (*Entry, bool) {
	e, ok := a.collection().Find(tgi.Query())
	if !ok {
		return nil, false
	}
	e.SetData(data)
	return e, true
}

// Remove deletes every entry matching q and returns how many were removed.
func (a *Archive) Remove(q Query) int {
	c := a.collection()
	removed := c.FindAll(q)
	if len(removed) == 0 {
		return 0
	}
	c.Remove(q)
	for _, e := range removed {
		a.forget(e)
	}
	a.structural.Store(true)
	return len(removed)
}

// Free drops every cached payload. Pending edits are kept.
func (a *Archive) Free() {
	for _, e := range a.collection().All() {
		a.forget(e)
	}
}

func (a *Archive) forget(e *Entry) {
	if c := a.cfg.cache; c != nil {
		c.Remove(e)
	}
	e.Free()
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	pa, errA := filepath.Abs(a)
	pb, errB := filepath.Abs(b)
	return errA == nil && errB == nil && pa == pb
}
