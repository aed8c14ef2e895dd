package fb

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

type EntryRow struct {
	_tab flatbuffers.Struct
}

func (rcv *EntryRow) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *EntryRow) Table() flatbuffers.Table {
	return rcv._tab.Table
}

func (rcv *EntryRow) Type() uint32 {
	return rcv._tab.GetUint32(rcv._tab.Pos + flatbuffers.UOffsetT(0))
}
func (rcv *EntryRow) MutateType(n uint32) bool {
	return rcv._tab.MutateUint32(rcv._tab.Pos+flatbuffers.UOffsetT(0), n)
}

func (rcv *EntryRow) Group() uint32 {
	return rcv._tab.GetUint32(rcv._tab.Pos + flatbuffers.UOffsetT(4))
}
func (rcv *EntryRow) MutateGroup(n uint32) bool {
	return rcv._tab.MutateUint32(rcv._tab.Pos+flatbuffers.UOffsetT(4), n)
}

func (rcv *EntryRow) Instance() uint32 {
	return rcv._tab.GetUint32(rcv._tab.Pos + flatbuffers.UOffsetT(8))
}
func (rcv *EntryRow) MutateInstance(n uint32) bool {
	return rcv._tab.MutateUint32(rcv._tab.Pos+flatbuffers.UOffsetT(8), n)
}

func (rcv *EntryRow) Resource() uint32 {
	return rcv._tab.GetUint32(rcv._tab.Pos + flatbuffers.UOffsetT(12))
}
func (rcv *EntryRow) MutateResource(n uint32) bool {
	return rcv._tab.MutateUint32(rcv._tab.Pos+flatbuffers.UOffsetT(12), n)
}

func (rcv *EntryRow) Offset() uint32 {
	return rcv._tab.GetUint32(rcv._tab.Pos + flatbuffers.UOffsetT(16))
}
func (rcv *EntryRow) MutateOffset(n uint32) bool {
	return rcv._tab.MutateUint32(rcv._tab.Pos+flatbuffers.UOffsetT(16), n)
}

func (rcv *EntryRow) Size() uint32 {
	return rcv._tab.GetUint32(rcv._tab.Pos + flatbuffers.UOffsetT(20))
}
func (rcv *EntryRow) MutateSize(n uint32) bool {
	return rcv._tab.MutateUint32(rcv._tab.Pos+flatbuffers.UOffsetT(20), n)
}

func (rcv *EntryRow) FileSize() uint32 {
	return rcv._tab.GetUint32(rcv._tab.Pos + flatbuffers.UOffsetT(24))
}
func (rcv *EntryRow) MutateFileSize(n uint32) bool {
	return rcv._tab.MutateUint32(rcv._tab.Pos+flatbuffers.UOffsetT(24), n)
}

func (rcv *EntryRow) File() uint32 {
	return rcv._tab.GetUint32(rcv._tab.Pos + flatbuffers.UOffsetT(28))
}
func (rcv *EntryRow) MutateFile(n uint32) bool {
	return rcv._tab.MutateUint32(rcv._tab.Pos+flatbuffers.UOffsetT(28), n)
}

func (rcv *EntryRow) Flags() uint32 {
	return rcv._tab.GetUint32(rcv._tab.Pos + flatbuffers.UOffsetT(32))
}
func (rcv *EntryRow) MutateFlags(n uint32) bool {
	return rcv._tab.MutateUint32(rcv._tab.Pos+flatbuffers.UOffsetT(32), n)
}

func CreateEntryRow(builder *flatbuffers.Builder, type_ uint32, group uint32, instance uint32, resource uint32, offset uint32, size uint32, fileSize uint32, file uint32, flags uint32) flatbuffers.UOffsetT {
	builder.Prep(4, 36)
	builder.PrependUint32(flags)
	builder.PrependUint32(file)
	builder.PrependUint32(fileSize)
	builder.PrependUint32(size)
	builder.PrependUint32(offset)
	builder.PrependUint32(resource)
	builder.PrependUint32(instance)
	builder.PrependUint32(group)
	builder.PrependUint32(type_)
	return builder.Offset()
}
