// Package exemplar parses and writes Exemplar and Cohort resources, the typed
// property bags SimCity 4 uses to describe buildings, props and lots.
//
// An exemplar may inherit properties from a parent cohort. Resolver walks
// that chain explicitly and stops on a missing or repeated link.
package exemplar

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/meigma/dbpf/internal/dbpftype"
)

const headerSize = 8 + 12 + 4

// Exemplar is a parsed Exemplar or Cohort resource.
type Exemplar struct {
	// Cohort is set for cohort resources (CQZ signature).
	Cohort bool

	// Text is set when the resource was stored in the text encoding.
	Text bool

	// Parent is the cohort properties are inherited from. Zero means none.
	Parent dbpftype.TGI

	// Properties in stored order.
	Properties []Property
}

// Parse decodes a binary or text exemplar.
func Parse(data []byte) (*Exemplar, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("exemplar: %d bytes too short: %w", len(data), dbpftype.ErrCorruptArchive)
	}
	ex := &Exemplar{Cohort: data[0] == 'C'}
	if !bytes.Equal(data[1:3], []byte("QZ")) {
		return nil, fmt.Errorf("exemplar: bad signature %q: %w", data[:8], dbpftype.ErrCorruptArchive)
	}
	if data[3] == 'T' {
		ex.Text = true
		if err := ex.parseText(data[8:]); err != nil {
			return nil, err
		}
		return ex, nil
	}
	if data[3] != 'B' {
		return nil, fmt.Errorf("exemplar: encoding %q: %w", data[3], dbpftype.ErrUnsupported)
	}

	if len(data) < headerSize {
		return nil, fmt.Errorf("exemplar: header truncated: %w", dbpftype.ErrCorruptArchive)
	}
	ex.Parent = dbpftype.TGI{
		Type:     binary.LittleEndian.Uint32(data[8:]),
		Group:    binary.LittleEndian.Uint32(data[12:]),
		Instance: binary.LittleEndian.Uint32(data[16:]),
	}
	count := binary.LittleEndian.Uint32(data[20:])

	// Some files declare more properties than they hold; stop at the end.
	off := headerSize
	for i := uint32(0); i < count && len(data)-off >= 4; i++ {
		var p Property
		n, err := p.parse(data[off:])
		if err != nil {
			return nil, fmt.Errorf("exemplar: property %d: %w", i, err)
		}
		ex.Properties = append(ex.Properties, p)
		off += n
	}
	return ex, nil
}

// ParentOf reads the parent TGI of a binary exemplar without parsing its properties.
func ParentOf(data []byte) (dbpftype.TGI, bool) {
	if len(data) < headerSize-4 || data[3] == 'T' {
		return dbpftype.TGI{}, false
	}
	return dbpftype.TGI{
		Type:     binary.LittleEndian.Uint32(data[8:]),
		Group:    binary.LittleEndian.Uint32(data[12:]),
		Instance: binary.LittleEndian.Uint32(data[16:]),
	}, true
}

// MarshalBinary encodes the exemplar in the binary form, whatever it was read from.
func (e *Exemplar) MarshalBinary() ([]byte, error) {
	sig := "EQZB1###"
	if e.Cohort {
		sig = "CQZB1###"
	}
	out := make([]byte, 0, headerSize+16*len(e.Properties))
	out = append(out, sig...)
	out = binary.LittleEndian.AppendUint32(out, e.Parent.Type)
	out = binary.LittleEndian.AppendUint32(out, e.Parent.Group)
	out = binary.LittleEndian.AppendUint32(out, e.Parent.Instance)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(e.Properties))) //nolint:gosec // bounded
	for i := range e.Properties {
		out = e.Properties[i].appendBinary(out)
	}
	return out, nil
}

// Get returns the property with the given id on this exemplar only.
// When an id is stored twice the later copy wins.
func (e *Exemplar) Get(id uint32) (*Property, bool) {
	for i := len(e.Properties) - 1; i >= 0; i-- {
		if e.Properties[i].ID == id {
			return &e.Properties[i], true
		}
	}
	return nil, false
}

// Set replaces the property with p.ID or appends p.
func (e *Exemplar) Set(p Property) {
	if cur, ok := e.Get(p.ID); ok {
		*cur = p
		return
	}
	e.Properties = append(e.Properties, p)
}

// Delete removes every property with the given id.
func (e *Exemplar) Delete(id uint32) {
	kept := e.Properties[:0]
	for _, p := range e.Properties {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	e.Properties = kept
}

// Uint32s is shorthand for Get followed by Property.Uint32s.
func (e *Exemplar) Uint32s(id uint32) ([]uint32, bool) {
	p, ok := e.Get(id)
	if !ok {
		return nil, false
	}
	return p.Uint32s(), true
}

// MayContain reports whether data could hold property id, by searching for
// its binary or text key. A false result is definitive.
func MayContain(data []byte, id uint32) bool {
	if len(data) > 3 && data[3] == 'T' {
		hex := fmt.Sprintf("0x%08x", id)
		return bytes.Contains(data, []byte(hex)) ||
			bytes.Contains(data, []byte(fmt.Sprintf("0x%08X", id)))
	}
	var key [4]byte
	binary.LittleEndian.PutUint32(key[:], id)
	return bytes.Contains(data, key[:])
}
