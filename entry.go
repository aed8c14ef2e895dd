package dbpf

import (
	"encoding"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/meigma/dbpf/internal/qfs"
	"github.com/meigma/dbpf/internal/sizing"
)

// Entry is one resource in an archive.
//
// Payloads are loaded on first access and held until Free is called, either
// directly or by the shared cache. Accessors are safe for concurrent use;
// two goroutines racing on a cold entry may both decode it.
type Entry struct {
	tgi      TGI
	resource uint32
	archive  *Archive

	loc atomic.Pointer[location]

	raw     atomic.Pointer[[]byte]
	data    atomic.Pointer[[]byte]
	decoded atomic.Pointer[decodedValue]
	edit    atomic.Pointer[edit]
}

// location is where an entry lives in the archive's current source.
type location struct {
	offset     uint32
	size       uint32
	fileSize   uint32 // uncompressed size from the directory, 0 if not listed
	compressed bool
}

type decodedValue struct {
	v any
}

// edit is pending content that replaces the stored bytes on the next write.
type edit struct {
	data []byte
	res  encoding.BinaryMarshaler
}

func newEntry(a *Archive, tgi TGI, resource uint32, loc location) *Entry {
	e := &Entry{tgi: tgi, resource: resource, archive: a}
	e.loc.Store(&loc)
	return e
}

// TGI returns the entry's key.
func (e *Entry) TGI() TGI { return e.tgi }

// Resource returns the resource id stored by index minor version 1 tables.
func (e *Entry) Resource() uint32 { return e.resource }

// Offset returns the entry's offset in the archive it was read from.
func (e *Entry) Offset() uint32 { return e.loc.Load().offset }

// Size returns the stored size in bytes.
func (e *Entry) Size() uint32 { return e.loc.Load().size }

// FileSize returns the uncompressed size recorded in the directory, or the
// stored size for uncompressed entries.
func (e *Entry) FileSize() uint32 {
	loc := e.loc.Load()
	if loc.compressed {
		return loc.fileSize
	}
	return loc.size
}

// Compressed reports whether the entry is stored QFS compressed.
func (e *Entry) Compressed() bool { return e.loc.Load().compressed }

// Archive returns the archive the entry belongs to.
func (e *Entry) Archive() *Archive { return e.archive }

// Modified reports whether the entry has pending content.
func (e *Entry) Modified() bool { return e.edit.Load() != nil }

func (e *Entry) String() string {
	return e.tgi.String()
}

// Raw returns the bytes as stored, still compressed for compressed entries.
// Entries with pending content return that content encoded for storage.
func (e *Entry) Raw() ([]byte, error) {
	if ed := e.edit.Load(); ed != nil {
		stored, _, _, err := e.encode(ed)
		return stored, err
	}
	if p := e.raw.Load(); p != nil {
		return *p, nil
	}
	raw, err := e.loadRaw()
	if err != nil {
		return nil, err
	}
	e.raw.Store(&raw)
	e.cached()
	return raw, nil
}

func (e *Entry) loadRaw() ([]byte, error) {
	if p := e.raw.Load(); p != nil {
		return *p, nil
	}
	loc := e.loc.Load()
	key := strconv.FormatUint(uint64(loc.offset), 10) + ":" + strconv.FormatUint(uint64(loc.size), 10)
	v, err, _ := e.archive.loads.Do(key, func() (any, error) {
		return e.archive.readAt(loc.offset, loc.size)
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.tgi, err)
	}
	return v.([]byte), nil
}

// Decompress returns the uncompressed payload.
func (e *Entry) Decompress() ([]byte, error) {
	if ed := e.edit.Load(); ed != nil {
		return ed.payload()
	}
	if p := e.data.Load(); p != nil {
		return *p, nil
	}
	raw, err := e.loadRaw()
	if err != nil {
		return nil, err
	}
	data := raw
	if loc := e.loc.Load(); loc.compressed && qfs.HasMagic(raw[min(4, len(raw)):]) {
		data, err = qfs.DecompressEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", e.tgi, err)
		}
		if loc.fileSize != 0 && uint64(len(data)) != uint64(loc.fileSize) {
			return nil, fmt.Errorf("decompress %s: got %d bytes, directory lists %d: %w",
				e.tgi, len(data), loc.fileSize, ErrDecodeFailure)
		}
	}
	e.data.Store(&data)
	e.cached()
	return data, nil
}

// Read returns the decoded resource. Kinds without a registered decoder
// return their uncompressed bytes.
func (e *Entry) Read() (any, error) {
	if d := e.decoded.Load(); d != nil {
		return d.v, nil
	}
	if ed := e.edit.Load(); ed != nil && ed.res != nil {
		return ed.res, nil
	}
	data, err := e.Decompress()
	if err != nil {
		return nil, err
	}
	var v any = data
	if e.tgi == DirTGI {
		h := e.archive.Header()
		v, err = parseDir(data, h.dirRowWidth())
	} else if decode, ok := e.archive.cfg.decoders[e.tgi.Type]; ok {
		v, err = decode(data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.tgi, err)
	}
	e.decoded.Store(&decodedValue{v: v})
	e.cached()
	return v, nil
}

// ReadAs decodes e and asserts the result to T.
func ReadAs[T any](e *Entry) (T, error) {
	var zero T
	v, err := e.Read()
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("decode %s: got %T, want %T: %w", e.tgi, v, zero, ErrDecodeFailure)
	}
	return t, nil
}

// SetData replaces the entry's content. The change is written on the next
// save; until then the entry is not evicted.
func (e *Entry) SetData(data []byte) {
	e.setEdit(&edit{data: data})
}

// SetResource replaces the entry's content with a resource that is encoded
// on the next save. Read returns res until then.
func (e *Entry) SetResource(res encoding.BinaryMarshaler) {
	e.setEdit(&edit{res: res})
}

// MarkModified flags an entry whose decoded resource was changed in place so
// that it is re-encoded on the next save.
func (e *Entry) MarkModified() error {
	if d := e.decoded.Load(); d != nil {
		if res, ok := d.v.(encoding.BinaryMarshaler); ok {
			e.SetResource(res)
			return nil
		}
	}
	data, err := e.Decompress()
	if err != nil {
		return err
	}
	e.SetData(data)
	return nil
}

func (e *Entry) setEdit(ed *edit) {
	e.edit.Store(ed)
	if c := e.archive.cfg.cache; c != nil {
		c.Remove(e)
	}
	e.raw.Store(nil)
	e.data.Store(nil)
	e.decoded.Store(nil)
	e.archive.edited.Store(true)
}

// Free drops the cached payloads. Pending content is kept.
func (e *Entry) Free() {
	e.raw.Store(nil)
	e.data.Store(nil)
	e.decoded.Store(nil)
}

// SizeBytes estimates the memory held by the entry's cached payloads.
func (e *Entry) SizeBytes() int64 {
	var raw, data int64
	if p := e.raw.Load(); p != nil {
		raw = int64(len(*p))
	}
	if p := e.data.Load(); p != nil {
		data = int64(len(*p))
	}
	n := raw + data
	if !e.loc.Load().compressed {
		// uncompressed payloads share the raw buffer
		n = max(raw, data)
	}
	if e.decoded.Load() != nil {
		n += data
	}
	if ed := e.edit.Load(); ed != nil {
		n += int64(len(ed.data))
	}
	return n
}

func (e *Entry) cached() {
	if e.edit.Load() != nil {
		return
	}
	if c := e.archive.cfg.cache; c != nil {
		c.Put(e)
	}
}

func (ed *edit) payload() ([]byte, error) {
	if ed.res == nil {
		return ed.data, nil
	}
	return ed.res.MarshalBinary()
}

// encode returns the bytes to store for pending content, its uncompressed
// size and whether the stored bytes are compressed.
func (e *Entry) encode(ed *edit) ([]byte, uint32, bool, error) {
	data, err := ed.payload()
	if err != nil {
		return nil, 0, false, fmt.Errorf("encode %s: %w", e.tgi, err)
	}
	if uint64(len(data)) > e.archive.cfg.maxEntrySize {
		return nil, 0, false, fmt.Errorf("encode %s: %d bytes: %w", e.tgi, len(data), ErrSizeOverflow)
	}
	size, err := sizing.ToUint32(len(data), ErrSizeOverflow)
	if err != nil {
		return nil, 0, false, err
	}
	if !e.loc.Load().compressed || len(data) > qfs.MaxSize {
		return data, size, false, nil
	}
	stored, err := qfs.CompressEntry(data)
	if err != nil {
		return nil, 0, false, fmt.Errorf("compress %s: %w", e.tgi, err)
	}
	return stored, size, true, nil
}
