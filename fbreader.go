package pg2arrow

import "encoding/binary"

// FBTable is a decoded view over one FlatBuffer table within buf: pos is
// the absolute position of the table's root (the int32 vtable backref),
// and vtablePos/vlen/tlen describe the vtable that precedes it, per
// §4.6's "vtable pointer is p - *p" rule.
type FBTable struct {
	buf       []byte
	pos       int
	vtablePos int
	vlen      uint16
	tlen      uint16
}

// FetchFBTable resolves the table rooted at pos within buf.
func FetchFBTable(buf []byte, pos int) *FBTable {
	backref := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
	vtablePos := pos - backref
	vlen := binary.LittleEndian.Uint16(buf[vtablePos : vtablePos+2])
	tlen := binary.LittleEndian.Uint16(buf[vtablePos+2 : vtablePos+4])
	return &FBTable{buf: buf, pos: pos, vtablePos: vtablePos, vlen: vlen, tlen: tlen}
}

// fieldOffset returns field i's byte offset from the table root, or 0
// (absent/default) if the vtable doesn't reach that far, or the vtable
// slot itself is 0.
func (t *FBTable) fieldOffset(i int) int {
	slotPos := t.vtablePos + 4 + 2*i
	if slotPos+2 > t.vtablePos+int(t.vlen) {
		return 0
	}
	return int(binary.LittleEndian.Uint16(t.buf[slotPos : slotPos+2]))
}

func (t *FBTable) FetchBool(i int) bool {
	off := t.fieldOffset(i)
	if off == 0 {
		return false
	}
	return t.buf[t.pos+off] != 0
}

func (t *FBTable) FetchByte(i int) byte {
	off := t.fieldOffset(i)
	if off == 0 {
		return 0
	}
	return t.buf[t.pos+off]
}

func (t *FBTable) FetchInt16(i int) int16 {
	off := t.fieldOffset(i)
	if off == 0 {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(t.buf[t.pos+off : t.pos+off+2]))
}

func (t *FBTable) FetchInt32(i int) int32 {
	off := t.fieldOffset(i)
	if off == 0 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(t.buf[t.pos+off : t.pos+off+4]))
}

func (t *FBTable) FetchInt64(i int) int64 {
	off := t.fieldOffset(i)
	if off == 0 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(t.buf[t.pos+off : t.pos+off+8]))
}

// fetchPointerTarget resolves field i's pointer slot to an absolute
// buffer position, following the offset stored there. Used by every
// fetch that targets a sub-table, string, vector or packed struct.
func (t *FBTable) fetchPointerTarget(i int) (int, bool) {
	off := t.fieldOffset(i)
	if off == 0 {
		return 0, false
	}
	slot := t.pos + off
	rel := int(binary.LittleEndian.Uint32(t.buf[slot : slot+4]))
	return slot + rel, true
}

// FetchOffset resolves field i as a sub-table.
func (t *FBTable) FetchOffset(i int) (*FBTable, bool) {
	target, ok := t.fetchPointerTarget(i)
	if !ok {
		return nil, false
	}
	return FetchFBTable(t.buf, target), true
}

// FetchString resolves field i as a length-prefixed UTF-8 string.
func (t *FBTable) FetchString(i int) (string, bool) {
	target, ok := t.fetchPointerTarget(i)
	if !ok {
		return "", false
	}
	length := int(binary.LittleEndian.Uint32(t.buf[target : target+4]))
	return string(t.buf[target+4 : target+4+length]), true
}

// FetchVector resolves field i as a vector of offsets to sub-tables,
// returning each element's resolved absolute table-root position.
func (t *FBTable) FetchVector(i int) ([]int, bool) {
	vecPos, ok := t.fetchPointerTarget(i)
	if !ok {
		return nil, false
	}
	nitems := int(binary.LittleEndian.Uint32(t.buf[vecPos : vecPos+4]))
	elems := make([]int, nitems)
	for k := 0; k < nitems; k++ {
		slot := vecPos + 4 + 4*k
		rel := int(binary.LittleEndian.Uint32(t.buf[slot : slot+4]))
		elems[k] = slot + rel
	}
	return elems, true
}

// FetchPackedPos resolves field i as a packed-struct vector (the
// FieldNode/Buffer/Block vectors, which are not FlatBuffer tables) and
// returns the absolute position of its leading nitems int32.
func (t *FBTable) FetchPackedPos(i int) (int, bool) {
	return t.fetchPointerTarget(i)
}

// DecodeFieldNodeVector reads a FieldNodeVector at pos: int32 nitems,
// then nitems x {int64 length, int64 null_count}.
func DecodeFieldNodeVector(buf []byte, pos int) []FieldNode {
	n := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
	out := make([]FieldNode, n)
	for i := 0; i < n; i++ {
		p := pos + 4 + 16*i
		out[i] = FieldNode{
			Length:    int64(binary.LittleEndian.Uint64(buf[p : p+8])),
			NullCount: int64(binary.LittleEndian.Uint64(buf[p+8 : p+16])),
		}
	}
	return out
}

// DecodeBufferVector reads a BufferVector at pos: int32 nitems, then
// nitems x {int64 offset, int64 length}.
func DecodeBufferVector(buf []byte, pos int) []BufferSpan {
	n := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
	out := make([]BufferSpan, n)
	for i := 0; i < n; i++ {
		p := pos + 4 + 16*i
		out[i] = BufferSpan{
			Offset: int64(binary.LittleEndian.Uint64(buf[p : p+8])),
			Length: int64(binary.LittleEndian.Uint64(buf[p+8 : p+16])),
		}
	}
	return out
}

// DecodeBlockVector reads a BlockVector at pos: int32 nitems, then
// nitems x {int64 offset, int32 metaDataLength, int32 pad, int64
// bodyLength}.
func DecodeBlockVector(buf []byte, pos int) []Block {
	n := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
	out := make([]Block, n)
	for i := 0; i < n; i++ {
		p := pos + 4 + 24*i
		out[i] = Block{
			Offset:         int64(binary.LittleEndian.Uint64(buf[p : p+8])),
			MetaDataLength: int32(binary.LittleEndian.Uint32(buf[p+8 : p+12])),
			BodyLength:     int64(binary.LittleEndian.Uint64(buf[p+16 : p+24])),
		}
	}
	return out
}

// DecodeType reconstructs an ArrowType from its tag byte and the Type
// union's payload table, mirroring BuildTypeTable's field choices.
func DecodeType(tag byte, typeTable *FBTable) *ArrowType {
	kind := TypeKind(tag - 1)
	t := &ArrowType{Kind: kind}
	switch kind {
	case KindInt:
		t.IntBitWidth = int(typeTable.FetchInt32(0))
		t.IntSigned = typeTable.FetchBool(1)
	case KindFloatingPoint:
		t.FloatPrecision = FloatPrecision(typeTable.FetchInt16(0))
	case KindDecimal:
		t.DecimalPrecision = int(typeTable.FetchInt32(0))
		t.DecimalScale = int(typeTable.FetchInt32(1))
	case KindDate:
		t.DateUnit = DateUnit(typeTable.FetchInt16(0))
	case KindTime:
		t.TimeUnit = TimeUnit(typeTable.FetchInt16(0))
		t.TimeBits = int(typeTable.FetchInt32(1))
	case KindTimestamp:
		t.TimeUnit = TimeUnit(typeTable.FetchInt16(0))
		if tz, ok := typeTable.FetchString(1); ok {
			t.TimeZone = tz
		}
	case KindFixedSizeBinary:
		t.ByteWidth = int(typeTable.FetchInt32(0))
	}
	return t
}

// DecodeField reconstructs a Column (schema-only: no row data) from a
// Field table, recursing into children for Struct fields.
func DecodeField(field *FBTable) *Column {
	name, _ := field.FetchString(0)
	nullable := field.FetchBool(1)
	tag := field.FetchByte(2)

	var arrowType *ArrowType
	if typeTable, ok := field.FetchOffset(3); ok {
		arrowType = DecodeType(tag, typeTable)
	} else {
		arrowType = &ArrowType{Kind: TypeKind(tag - 1)}
	}

	col := &Column{
		Name:     name,
		Nullable: nullable,
		Type:     arrowType,
		nullmap:  NewGrowableBuffer(),
		values:   NewGrowableBuffer(),
		extra:    NewGrowableBuffer(),
	}

	if arrowType.Kind == KindStruct {
		if childPositions, ok := field.FetchVector(5); ok {
			for _, pos := range childPositions {
				childTable := FetchFBTable(field.buf, pos)
				col.children = append(col.children, DecodeField(childTable))
			}
		}
	}
	return col
}

// DecodeSchema reconstructs the ordered top-level Column list from a
// Schema table's vector<Field>.
func DecodeSchema(schema *FBTable) []*Column {
	positions, ok := schema.FetchVector(1)
	if !ok {
		return nil
	}
	columns := make([]*Column, len(positions))
	for i, pos := range positions {
		columns[i] = DecodeField(FetchFBTable(schema.buf, pos))
	}
	return columns
}
