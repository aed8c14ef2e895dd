package exemplar

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dbpf/internal/dbpftype"
)

func sample() *Exemplar {
	return &Exemplar{
		Parent: dbpftype.TGI{Type: dbpftype.TypeCohort, Group: 0xA, Instance: 0xB},
		Properties: []Property{
			Uint32Property(0x10, 2),
			StringProperty(0x20, "Maxis Tower"),
			Uint32Property(dbpftype.PropertyFamily, 0x1234, 0x5678),
			{ID: 0x30, Kind: KindSint32, Values: []uint64{uint64(0xFFFFFFFFFFFFFFFF)}},
			{ID: 0x31, Kind: KindFloat32, Multi: true, Values: []uint64{0x3F800000, 0x40000000}},
			{ID: 0x32, Kind: KindBool, Values: []uint64{1}},
			{ID: 0x33, Kind: KindUint8, Multi: true, Values: []uint64{1, 2, 3}},
			{ID: 0x34, Kind: KindSint64, Values: []uint64{1 << 40}},
			{ID: 0x35, Kind: KindUint16, Values: []uint64{0xBEEF}},
		},
	}
}

func TestMarshalParseRoundTrip(t *testing.T) {
	t.Parallel()

	in := sample()
	data, err := in.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, "EQZB1###", string(data[:8]))

	out, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, in.Parent, out.Parent)
	require.Len(t, out.Properties, len(in.Properties))

	fam, ok := out.Uint32s(dbpftype.PropertyFamily)
	require.True(t, ok)
	assert.Equal(t, []uint32{0x1234, 0x5678}, fam)

	name, ok := out.Get(0x20)
	require.True(t, ok)
	assert.Equal(t, "Maxis Tower", name.Str)

	neg, _ := out.Get(0x30)
	assert.Equal(t, []int64{-1}, neg.Int64s())
	floats, _ := out.Get(0x31)
	assert.Equal(t, []float32{1, 2}, floats.Float32s())
	flag, _ := out.Get(0x32)
	assert.True(t, flag.Bool())

	again, err := out.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestCohortSignature(t *testing.T) {
	t.Parallel()

	data, err := (&Exemplar{Cohort: true}).MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, "CQZB1###", string(data[:8]))

	ex, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, ex.Cohort)
	assert.Empty(t, ex.Properties)
}

func TestParseToleratesOverstatedCount(t *testing.T) {
	t.Parallel()

	data, err := (&Exemplar{Properties: []Property{Uint32Property(1, 7)}}).MarshalBinary()
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[20:], 5)

	ex, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, ex.Properties, 1)
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("short"))
	require.ErrorIs(t, err, dbpftype.ErrCorruptArchive)

	_, err = Parse([]byte("XXXXXXXXXXXXXXXXXXXXXXXXXXXX"))
	require.ErrorIs(t, err, dbpftype.ErrCorruptArchive)

	data, err := (&Exemplar{Properties: []Property{{ID: 1, Kind: 0x4200, Values: []uint64{1}}}}).MarshalBinary()
	require.NoError(t, err)
	_, err = Parse(data)
	require.ErrorIs(t, err, dbpftype.ErrCorruptArchive)

	_, err = Parse([]byte("EQZX1###\x00\x00\x00\x00"))
	require.ErrorIs(t, err, dbpftype.ErrUnsupported)
}

func TestParseText(t *testing.T) {
	t.Parallel()

	text := "EQZT1###\r\n" +
		"ParentCohort=Key:{0x05342861,0x00000001,0x00000002}\r\n" +
		"PropCount=0x00000004\r\n" +
		"0x00000010:{\"Exemplar Type\"}=Uint32:0:{0x00000002}\r\n" +
		"0x00000020:{\"Exemplar Name\"}=String:1:{\"Hi: there\"}\r\n" +
		"0x27812870:{\"Family\"}=Uint32:2:{0x00001234,0x00005678}\r\n" +
		"0x00000030:{\"Offset\"}=Sint32:0:{0xFFFFFFFF}\r\n" +
		"0x00000031:{\"Scale\"}=Float32:2:{1.5,-2}\r\n"

	ex, err := Parse([]byte(text))
	require.NoError(t, err)
	assert.True(t, ex.Text)
	assert.Equal(t, dbpftype.TGI{Type: dbpftype.TypeCohort, Group: 1, Instance: 2}, ex.Parent)
	require.Len(t, ex.Properties, 5)

	fam, ok := ex.Uint32s(dbpftype.PropertyFamily)
	require.True(t, ok)
	assert.Equal(t, []uint32{0x1234, 0x5678}, fam)

	name, _ := ex.Get(0x20)
	assert.Equal(t, "Hi: there", name.Str)
	off, _ := ex.Get(0x30)
	assert.Equal(t, []int64{-1}, off.Int64s())
	scale, _ := ex.Get(0x31)
	assert.Equal(t, []float32{1.5, -2}, scale.Float32s())

	assert.True(t, MayContain([]byte(text), dbpftype.PropertyFamily))
}

func TestMayContain(t *testing.T) {
	t.Parallel()

	data, err := sample().MarshalBinary()
	require.NoError(t, err)
	assert.True(t, MayContain(data, dbpftype.PropertyFamily))

	data, err = (&Exemplar{Properties: []Property{Uint32Property(0x10, 1)}}).MarshalBinary()
	require.NoError(t, err)
	assert.False(t, MayContain(data, dbpftype.PropertyFamily))
}

func TestSetAndDelete(t *testing.T) {
	t.Parallel()

	ex := sample()
	ex.Set(Uint32Property(0x10, 9))
	v, _ := ex.Uint32s(0x10)
	assert.Equal(t, []uint32{9}, v)

	ex.Set(Uint32Property(0x99, 1))
	_, ok := ex.Get(0x99)
	assert.True(t, ok)

	ex.Delete(0x99)
	_, ok = ex.Get(0x99)
	assert.False(t, ok)
}

func TestResolverWalksParents(t *testing.T) {
	t.Parallel()

	root := dbpftype.TGI{Type: dbpftype.TypeCohort, Group: 1, Instance: 1}
	mid := dbpftype.TGI{Type: dbpftype.TypeCohort, Group: 1, Instance: 2}
	store := map[dbpftype.TGI]*Exemplar{
		root: {Cohort: true, Properties: []Property{Uint32Property(dbpftype.PropertyFamily, 0xF00D)}},
		mid:  {Cohort: true, Parent: root},
	}
	r := Resolver{Lookup: func(tgi dbpftype.TGI) (*Exemplar, error) { return store[tgi], nil }}

	leaf := &Exemplar{Parent: mid}
	p, ok, err := r.Property(leaf, dbpftype.PropertyFamily)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []uint32{0xF00D}, p.Uint32s())

	_, ok, err = r.Property(leaf, 0x1234)
	require.NoError(t, err)
	assert.False(t, ok)

	orphan := &Exemplar{Parent: dbpftype.TGI{Type: 9, Group: 9, Instance: 9}}
	_, ok, err = r.Property(orphan, dbpftype.PropertyFamily)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolverStopsOnCycle(t *testing.T) {
	t.Parallel()

	a := dbpftype.TGI{Type: dbpftype.TypeCohort, Instance: 1}
	b := dbpftype.TGI{Type: dbpftype.TypeCohort, Instance: 2}
	calls := 0
	store := map[dbpftype.TGI]*Exemplar{
		a: {Cohort: true, Parent: b},
		b: {Cohort: true, Parent: a},
	}
	r := Resolver{Lookup: func(tgi dbpftype.TGI) (*Exemplar, error) {
		calls++
		return store[tgi], nil
	}}

	_, ok, err := r.Property(&Exemplar{Parent: a}, 0x10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, calls)
}

func TestResolverPropagatesLookupErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := Resolver{Lookup: func(dbpftype.TGI) (*Exemplar, error) { return nil, boom }}
	_, _, err := r.Property(&Exemplar{Parent: dbpftype.TGI{Type: 1}}, 0x10)
	require.ErrorIs(t, err, boom)
}
