package pg2arrow

import "encoding/binary"

// messageVersion is the Arrow metadata version this encoder/decoder
// pair agrees on; it has no meaning beyond round-tripping between them.
const messageVersion = 4

// Message header type tags, mirroring Arrow's MessageHeader union:
// NONE is reserved as 0 so an absent/default field never collides with
// a real header.
const (
	headerNone            byte = 0
	headerSchema          byte = 1
	headerDictionaryBatch byte = 2
	headerRecordBatch     byte = 3
)

// typeTag maps a logical Kind onto the byte stored in Field's type-tag
// slot, shifted up by one from TypeKind's own enumeration so that 0
// stays reserved for "no type", matching the FlatBuffer union
// convention the vtable's zero-offset default relies on.
func typeTag(k TypeKind) byte {
	return byte(k) + 1
}

// Block is one entry of a Footer's dictionaries or recordBatches vector:
// the file offset of a message and its metadata/body lengths.
type Block struct {
	Offset         int64
	MetaDataLength int32
	BodyLength     int64
}

// BuildTypeTable builds the Type union's payload table for t, using the
// field indices spec.md's §4.5 table fixes for Int, FloatingPoint and
// Decimal; the remaining kinds this producer emits carry just enough
// fields for the decoder to reconstruct them, since the spec leaves
// their layout unspecified beyond "the discriminant and payload agree".
func BuildTypeTable(t *ArrowType) *FBTableBuilder {
	switch t.Kind {
	case KindInt:
		b := NewFBTableBuilder(2)
		b.PutScalar(0, int32Bytes(int32(t.IntBitWidth)), 4)
		b.PutScalar(1, boolByte(t.IntSigned), 1)
		return b
	case KindFloatingPoint:
		b := NewFBTableBuilder(1)
		b.PutScalar(0, int16Bytes(int16(t.FloatPrecision)), 2)
		return b
	case KindDecimal:
		b := NewFBTableBuilder(2)
		b.PutScalar(0, int32Bytes(int32(t.DecimalPrecision)), 4)
		b.PutScalar(1, int32Bytes(int32(t.DecimalScale)), 4)
		return b
	case KindDate:
		b := NewFBTableBuilder(1)
		b.PutScalar(0, int16Bytes(int16(t.DateUnit)), 2)
		return b
	case KindTime:
		b := NewFBTableBuilder(2)
		b.PutScalar(0, int16Bytes(int16(t.TimeUnit)), 2)
		b.PutScalar(1, int32Bytes(int32(t.TimeBits)), 4)
		return b
	case KindTimestamp:
		b := NewFBTableBuilder(2)
		b.PutScalar(0, int16Bytes(int16(t.TimeUnit)), 2)
		if t.TimeZone != "" {
			b.PutString(1, t.TimeZone)
		}
		return b
	case KindFixedSizeBinary:
		b := NewFBTableBuilder(1)
		b.PutScalar(0, int32Bytes(int32(t.ByteWidth)), 4)
		return b
	default:
		return NewFBTableBuilder(0)
	}
}

// BuildFieldTable builds the Field table for col: name, nullability, the
// Type union tag and payload, and, for Struct columns, the vector of
// child Field tables. The dictionary-offset and custom-metadata fields
// are never populated (§9's open question on DictionaryEncoding: left
// absent).
func BuildFieldTable(col *Column) *FBTableBuilder {
	f := NewFBTableBuilder(7)
	f.PutString(0, col.Name)
	f.PutScalar(1, boolByte(col.Nullable), 1)
	f.PutScalar(2, []byte{typeTag(col.Type.Kind)}, 1)
	f.PutOffset(3, BuildTypeTable(col.Type))
	if col.Type.Kind == KindStruct {
		children := make([]*FBTableBuilder, len(col.Children()))
		for i, child := range col.Children() {
			children[i] = BuildFieldTable(child)
		}
		f.PutVector(5, children)
	}
	return f
}

// BuildSchemaTable builds the Schema table: little-endian (the only
// endianness this producer emits, so field 0 is left at its zero
// default) and the vector of top-level Field tables.
func BuildSchemaTable(columns []*Column) *FBTableBuilder {
	s := NewFBTableBuilder(3)
	fields := make([]*FBTableBuilder, len(columns))
	for i, col := range columns {
		fields[i] = BuildFieldTable(col)
	}
	s.PutVector(1, fields)
	return s
}

// BuildRecordBatchTable builds the RecordBatch table for an already
// assembled plan, embedding the FieldNode and Buffer vectors as packed
// structs (not FlatBuffer tables) per §4.5. The Buffer vector lands at
// field index 2, the corrected index for the canonical bug spec.md's
// Open Questions names (the original source passes index 1 to both
// vectors).
func BuildRecordBatchTable(plan *RecordBatchPlan) *FBTableBuilder {
	rb := NewFBTableBuilder(3)
	rb.PutScalar(0, int64Bytes(plan.Length), 8)
	rb.PutBinary(1, encodeFieldNodeVector(plan.FieldNodes), 0)
	rb.PutBinary(2, encodeBufferVector(plan.Buffers), 0)
	return rb
}

// BuildMessageTable wraps a Schema or RecordBatch header table in the
// outer Message table every on-disk structure is framed in.
func BuildMessageTable(headerType byte, header *FBTableBuilder, bodyLength int64) *FBTableBuilder {
	m := NewFBTableBuilder(4)
	m.PutScalar(0, int16Bytes(messageVersion), 2)
	m.PutScalar(1, []byte{headerType}, 1)
	m.PutOffset(2, header)
	m.PutScalar(3, int64Bytes(bodyLength), 8)
	return m
}

// BuildFooterTable builds the trailing Footer table: the Schema and the
// dictionaries/recordBatches block vectors, packed structs again rather
// than FlatBuffer tables.
func BuildFooterTable(schema *FBTableBuilder, dictionaries, recordBatches []Block) *FBTableBuilder {
	f := NewFBTableBuilder(4)
	f.PutScalar(0, int16Bytes(messageVersion), 2)
	f.PutOffset(1, schema)
	f.PutBinary(2, encodeBlockVector(dictionaries), 0)
	f.PutBinary(3, encodeBlockVector(recordBatches), 0)
	return f
}

// FrameMessage flattens root and wraps it in the on-disk message
// prelude: a 4-byte metadata length, a 4-byte root offset pointing past
// root's vtable onto its table, and the flattened bytes padded so the
// whole framed message is a multiple of 8 bytes — the alignment every
// message on disk must start at.
func FrameMessage(root *FBTableBuilder) ([]byte, error) {
	fb, err := root.Flatten()
	if err != nil {
		return nil, err
	}
	for len(fb)%8 != 0 {
		fb = append(fb, 0)
	}
	out := make([]byte, 8+len(fb))
	binary.LittleEndian.PutUint32(out[0:4], uint32(4+len(fb)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(root.vlen()))
	copy(out[8:], fb)
	return out, nil
}

// encodeFieldNodeVector packs spec.md §4.5's FieldNodeVector struct:
// int32 nitems, then nitems x {int64 length, int64 null_count}.
func encodeFieldNodeVector(nodes []FieldNode) []byte {
	out := make([]byte, 4+16*len(nodes))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(nodes)))
	for i, n := range nodes {
		pos := 4 + 16*i
		binary.LittleEndian.PutUint64(out[pos:pos+8], uint64(n.Length))
		binary.LittleEndian.PutUint64(out[pos+8:pos+16], uint64(n.NullCount))
	}
	return out
}

// encodeBufferVector packs spec.md §4.5's BufferVector struct: int32
// nitems, then nitems x {int64 offset, int64 length}.
func encodeBufferVector(spans []BufferSpan) []byte {
	out := make([]byte, 4+16*len(spans))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(spans)))
	for i, s := range spans {
		pos := 4 + 16*i
		binary.LittleEndian.PutUint64(out[pos:pos+8], uint64(s.Offset))
		binary.LittleEndian.PutUint64(out[pos+8:pos+16], uint64(s.Length))
	}
	return out
}

// encodeBlockVector packs spec.md §4.5's BlockVector struct: int32
// nitems, then nitems x {int64 offset, int32 metaDataLength, int32 pad,
// int64 bodyLength}.
func encodeBlockVector(blocks []Block) []byte {
	out := make([]byte, 4+24*len(blocks))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(blocks)))
	for i, blk := range blocks {
		pos := 4 + 24*i
		binary.LittleEndian.PutUint64(out[pos:pos+8], uint64(blk.Offset))
		binary.LittleEndian.PutUint32(out[pos+8:pos+12], uint32(blk.MetaDataLength))
		binary.LittleEndian.PutUint32(out[pos+12:pos+16], 0)
		binary.LittleEndian.PutUint64(out[pos+16:pos+24], uint64(blk.BodyLength))
	}
	return out
}

func int16Bytes(v int16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

func int32Bytes(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func int64Bytes(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func boolByte(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}
