package exemplar

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/meigma/dbpf/internal/dbpftype"
)

// ValueKind is the on-disk value type code of a property.
type ValueKind uint16

// Value kinds.
const (
	KindUint8   ValueKind = 0x100
	KindUint16  ValueKind = 0x200
	KindUint32  ValueKind = 0x300
	KindSint32  ValueKind = 0x700
	KindSint64  ValueKind = 0x800
	KindFloat32 ValueKind = 0x900
	KindBool    ValueKind = 0xB00
	KindString  ValueKind = 0xC00
)

const (
	keySingle = 0x00
	keyMulti  = 0x80
)

// Width returns the encoded size of one value, or 0 for unknown kinds.
func (k ValueKind) Width() int {
	switch k {
	case KindUint8, KindBool, KindString:
		return 1
	case KindUint16:
		return 2
	case KindUint32, KindSint32, KindFloat32:
		return 4
	case KindSint64:
		return 8
	default:
		return 0
	}
}

// String returns the name used by the text encoding.
func (k ValueKind) String() string {
	switch k {
	case KindUint8:
		return "Uint8"
	case KindUint16:
		return "Uint16"
	case KindUint32:
		return "Uint32"
	case KindSint32:
		return "Sint32"
	case KindSint64:
		return "Sint64"
	case KindFloat32:
		return "Float32"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	default:
		return fmt.Sprintf("ValueKind(0x%X)", uint16(k))
	}
}

// Property is one typed exemplar value or value list.
//
// Numeric values are kept as raw 64-bit patterns: unsigned values as is,
// signed values sign-extended, floats as their IEEE bits and bools as 0 or 1.
type Property struct {
	ID     uint32
	Kind   ValueKind
	Multi  bool
	Values []uint64
	Str    string
}

// Uint32s returns the values truncated to 32 bits.
func (p *Property) Uint32s() []uint32 {
	out := make([]uint32, len(p.Values))
	for i, v := range p.Values {
		out[i] = uint32(v) //nolint:gosec // truncation intended
	}
	return out
}

// Int64s returns the values as signed integers.
func (p *Property) Int64s() []int64 {
	out := make([]int64, len(p.Values))
	for i, v := range p.Values {
		out[i] = int64(v) //nolint:gosec // raw bit pattern
	}
	return out
}

// Float32s returns the values interpreted as float32.
func (p *Property) Float32s() []float32 {
	out := make([]float32, len(p.Values))
	for i, v := range p.Values {
		out[i] = math.Float32frombits(uint32(v)) //nolint:gosec // raw bit pattern
	}
	return out
}

// Bool returns the first value as a bool.
func (p *Property) Bool() bool {
	return len(p.Values) > 0 && p.Values[0] != 0
}

// Uint32Property builds a property holding uint32 values.
func Uint32Property(id uint32, values ...uint32) Property {
	p := Property{ID: id, Kind: KindUint32, Multi: len(values) != 1}
	for _, v := range values {
		p.Values = append(p.Values, uint64(v))
	}
	return p
}

// StringProperty builds a string property.
func StringProperty(id uint32, s string) Property {
	return Property{ID: id, Kind: KindString, Multi: true, Str: s}
}

func (p *Property) parse(b []byte) (int, error) {
	if len(b) < 9 {
		return 0, fmt.Errorf("exemplar: property header truncated: %w", dbpftype.ErrCorruptArchive)
	}
	p.ID = binary.LittleEndian.Uint32(b)
	p.Kind = ValueKind(binary.LittleEndian.Uint16(b[4:]))
	keyType := binary.LittleEndian.Uint16(b[6:])
	off := 9 // id, kind, key type, unused byte

	width := p.Kind.Width()
	if width == 0 {
		return 0, fmt.Errorf("exemplar: property 0x%08X has unknown kind 0x%X: %w", p.ID, uint16(p.Kind), dbpftype.ErrCorruptArchive)
	}

	reps := 1
	switch keyType {
	case keySingle:
	case keyMulti:
		if len(b) < off+4 {
			return 0, fmt.Errorf("exemplar: property 0x%08X count truncated: %w", p.ID, dbpftype.ErrCorruptArchive)
		}
		reps = int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		p.Multi = true
	default:
		return 0, fmt.Errorf("exemplar: property 0x%08X has key type 0x%X: %w", p.ID, keyType, dbpftype.ErrCorruptArchive)
	}

	if reps < 0 || reps > (len(b)-off)/width {
		return 0, fmt.Errorf("exemplar: property 0x%08X values truncated: %w", p.ID, dbpftype.ErrCorruptArchive)
	}
	if p.Kind == KindString {
		p.Str = string(b[off : off+reps])
		return off + reps, nil
	}

	p.Values = make([]uint64, reps)
	for i := range reps {
		v := b[off:]
		switch p.Kind {
		case KindUint8, KindBool:
			p.Values[i] = uint64(v[0])
		case KindUint16:
			p.Values[i] = uint64(binary.LittleEndian.Uint16(v))
		case KindUint32, KindFloat32:
			p.Values[i] = uint64(binary.LittleEndian.Uint32(v))
		case KindSint32:
			p.Values[i] = uint64(int64(int32(binary.LittleEndian.Uint32(v)))) //nolint:gosec // sign extension
		case KindSint64:
			p.Values[i] = binary.LittleEndian.Uint64(v)
		}
		off += width
	}
	return off, nil
}

func (p *Property) appendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, p.ID)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.Kind))
	multi := p.Multi || p.Kind == KindString || len(p.Values) != 1
	if multi {
		dst = binary.LittleEndian.AppendUint16(dst, keyMulti)
	} else {
		dst = binary.LittleEndian.AppendUint16(dst, keySingle)
	}
	dst = append(dst, 0)

	if p.Kind == KindString {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(p.Str))) //nolint:gosec // strings are short
		return append(dst, p.Str...)
	}
	if multi {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(p.Values))) //nolint:gosec // bounded by parse
	}
	for _, v := range p.Values {
		switch p.Kind.Width() {
		case 1:
			dst = append(dst, byte(v))
		case 2:
			dst = binary.LittleEndian.AppendUint16(dst, uint16(v)) //nolint:gosec // truncation intended
		case 4:
			dst = binary.LittleEndian.AppendUint32(dst, uint32(v)) //nolint:gosec // truncation intended
		case 8:
			dst = binary.LittleEndian.AppendUint64(dst, v)
		}
	}
	return dst
}
