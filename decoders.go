package dbpf

import (
	"maps"

	"github.com/meigma/dbpf/exemplar"
	"github.com/meigma/dbpf/record"
)

// DecodeFunc turns an uncompressed payload into a resource value.
type DecodeFunc func(data []byte) (any, error)

// Decoders maps type ids to decode functions.
type Decoders map[uint32]DecodeFunc

// recordTypes are the savegame kinds stored as runs of subfile records.
var recordTypes = []uint32{
	TypeLot,
	TypeBuilding,
	TypeProp,
	TypeFlora,
	TypeBaseTexture,
	TypeNetwork,
	TypePrebuiltNetwork,
	TypeNetworkBridgeOccupant,
	TypeNetworkTunnelOccupant,
	TypePipe,
	TypeLineItem,
	TypeDepartmentBudget,
}

// DefaultDecoders returns the decoders used when none are configured:
// exemplars and cohorts decode to *exemplar.Exemplar and the savegame record
// kinds to record.List.
func DefaultDecoders() Decoders {
	d := Decoders{
		TypeExemplar: decodeExemplar,
		TypeCohort:   decodeExemplar,
	}
	for _, t := range recordTypes {
		d[t] = decodeRecords
	}
	return d
}

// With returns a copy of d with fn registered for type t.
func (d Decoders) With(t uint32, fn DecodeFunc) Decoders {
	out := maps.Clone(d)
	if out == nil {
		out = Decoders{}
	}
	out[t] = fn
	return out
}

func decodeExemplar(data []byte) (any, error) {
	return exemplar.Parse(data)
}

func decodeRecords(data []byte) (any, error) {
	return record.Split(data)
}
