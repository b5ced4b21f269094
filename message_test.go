package pg2arrow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildAndDecodeTypeTableInt(t *testing.T) {
	t.Parallel()

	typ := &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}
	b := BuildTypeTable(typ)
	image, err := b.Flatten()
	require.NoError(t, err)
	table := FetchFBTable(image, b.vlen())

	got := DecodeType(typeTag(KindInt), table)
	require.Equal(t, typ.IntBitWidth, got.IntBitWidth)
	require.Equal(t, typ.IntSigned, got.IntSigned)
}

func TestBuildAndDecodeTypeTableTimestampWithZone(t *testing.T) {
	t.Parallel()

	typ := &ArrowType{Kind: KindTimestamp, TimeUnit: UnitMicrosecond, TimeZone: "UTC"}
	b := BuildTypeTable(typ)
	image, err := b.Flatten()
	require.NoError(t, err)
	table := FetchFBTable(image, b.vlen())

	got := DecodeType(typeTag(KindTimestamp), table)
	require.Equal(t, UnitMicrosecond, got.TimeUnit)
	require.Equal(t, "UTC", got.TimeZone)
}

func TestBuildAndDecodeFieldStruct(t *testing.T) {
	t.Parallel()

	child1 := NewColumn("a", false, &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}, SourceType{})
	child2 := NewColumn("b", true, &ArrowType{Kind: KindUtf8}, SourceType{})
	structType := &ArrowType{Kind: KindStruct, Children: []*Column{child1, child2}}
	col := NewColumn("point", false, structType, SourceType{})

	fieldBuilder := BuildFieldTable(col)
	image, err := fieldBuilder.Flatten()
	require.NoError(t, err)
	fieldTable := FetchFBTable(image, fieldBuilder.vlen())

	decoded := DecodeField(fieldTable)
	require.Equal(t, "point", decoded.Name)
	require.False(t, decoded.Nullable)
	require.Equal(t, KindStruct, decoded.Type.Kind)
	require.Len(t, decoded.Children(), 2)
	require.Equal(t, "a", decoded.Children()[0].Name)
	require.Equal(t, "b", decoded.Children()[1].Name)
	require.True(t, decoded.Children()[1].Nullable)
}

func TestBuildAndDecodeSchema(t *testing.T) {
	t.Parallel()

	cols := []*Column{
		NewColumn("id", false, &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}, SourceType{}),
		NewColumn("name", true, &ArrowType{Kind: KindUtf8}, SourceType{}),
	}
	schemaBuilder := BuildSchemaTable(cols)
	image, err := schemaBuilder.Flatten()
	require.NoError(t, err)
	schemaTable := FetchFBTable(image, schemaBuilder.vlen())

	decoded := DecodeSchema(schemaTable)
	require.Len(t, decoded, 2)
	require.Equal(t, "id", decoded[0].Name)
	require.Equal(t, "name", decoded[1].Name)
}

func TestBuildRecordBatchTableBufferVectorFieldIndex(t *testing.T) {
	t.Parallel()

	plan := &RecordBatchPlan{
		Length:     2,
		FieldNodes: []FieldNode{{Length: 2, NullCount: 0}},
		Buffers:    []BufferSpan{{Offset: 0, Length: 0}, {Offset: 0, Length: 8}},
	}
	rb := BuildRecordBatchTable(plan)
	image, err := rb.Flatten()
	require.NoError(t, err)
	table := FetchFBTable(image, rb.vlen())

	require.Equal(t, int64(2), table.FetchInt64(0))

	nodesPos, ok := table.FetchPackedPos(1)
	require.True(t, ok)
	nodes := DecodeFieldNodeVector(image, nodesPos)
	require.Len(t, nodes, 1)
	require.Equal(t, int64(2), nodes[0].Length)

	// Field 2, not field 1, must carry the Buffer vector.
	buffersPos, ok := table.FetchPackedPos(2)
	require.True(t, ok)
	buffers := DecodeBufferVector(image, buffersPos)
	require.Len(t, buffers, 2)
	require.Equal(t, int64(8), buffers[1].Length)
}

func TestFrameMessageAlignment(t *testing.T) {
	t.Parallel()

	m := BuildMessageTable(headerSchema, NewFBTableBuilder(0), 0)
	framed, err := FrameMessage(m)
	require.NoError(t, err)
	require.Zero(t, len(framed)%8)
	require.GreaterOrEqual(t, len(framed), 8)
}

func TestBuildAndDecodeFooter(t *testing.T) {
	t.Parallel()

	schema := BuildSchemaTable([]*Column{
		NewColumn("id", false, &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}, SourceType{}),
	})
	blocks := []Block{{Offset: 100, MetaDataLength: 64, BodyLength: 256}}
	footer := BuildFooterTable(schema, nil, blocks)
	image, err := footer.Flatten()
	require.NoError(t, err)
	table := FetchFBTable(image, footer.vlen())

	schemaTable, ok := table.FetchOffset(1)
	require.True(t, ok)
	decodedSchema := DecodeSchema(schemaTable)
	require.Len(t, decodedSchema, 1)

	recordBatchesPos, ok := table.FetchPackedPos(3)
	require.True(t, ok)
	decodedBlocks := DecodeBlockVector(image, recordBatchesPos)
	require.Len(t, decodedBlocks, 1)
	require.Equal(t, int64(100), decodedBlocks[0].Offset)
	require.Equal(t, int32(64), decodedBlocks[0].MetaDataLength)
	require.Equal(t, int64(256), decodedBlocks[0].BodyLength)

	_, ok = table.FetchPackedPos(2)
	require.True(t, ok) // empty dictionaries vector is still a present pointer
	dicts := DecodeBlockVector(image, mustPos(table, 2))
	require.Empty(t, dicts)
}

func mustPos(table *FBTable, field int) int {
	pos, _ := table.FetchPackedPos(field)
	return pos
}
