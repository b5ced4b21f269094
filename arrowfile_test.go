package pg2arrow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSchema() []*Column {
	return []*Column{
		intColumn("id", false),
		NewColumn("name", true, &ArrowType{Kind: KindUtf8}, SourceType{}),
	}
}

func TestWriterCloseWithNoRowsProducesEmptyBatchFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.arrow")
	w, err := Create(path, newTestSchema(), 1<<20, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	af, err := OpenArrowFile(path)
	require.NoError(t, err)
	defer af.Close()

	require.Len(t, af.Schema, 2)
	require.Empty(t, af.RecordBatches)
}

func TestWriterAppendRowsRoundTripsThroughReader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rows.arrow")
	cols := newTestSchema()
	w, err := Create(path, cols, 1<<20, nil)
	require.NoError(t, err)

	require.NoError(t, w.AppendRow([]ColumnValue{
		{Bytes: beUint32(1)}, {Bytes: []byte("alice")},
	}))
	require.NoError(t, w.AppendRow([]ColumnValue{
		{Bytes: beUint32(2)}, {IsNull: true},
	}))
	require.NoError(t, w.Close())

	af, err := OpenArrowFile(path)
	require.NoError(t, err)
	defer af.Close()

	require.Len(t, af.Schema, 2)
	require.Equal(t, "id", af.Schema[0].Name)
	require.Equal(t, "name", af.Schema[1].Name)
	require.Len(t, af.RecordBatches, 1)

	// One Schema message plus one RecordBatch message.
	require.Len(t, af.Messages, 2)
	require.Equal(t, headerSchema, af.Messages[0].HeaderType)
	require.Equal(t, headerRecordBatch, af.Messages[1].HeaderType)

	nodes := DecodeFieldNodeVector(af.data, fieldNodesPos(t, af.Messages[1].Header))
	require.Len(t, nodes, 2)
	require.Equal(t, int64(2), nodes[0].Length)
	require.Equal(t, int64(0), nodes[0].NullCount)
	require.Equal(t, int64(1), nodes[1].NullCount)
}

func TestWriterFlushesAtSegmentBoundaryAcrossMultipleBlocks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "segmented.arrow")
	cols := []*Column{intColumn("n", false)}
	w, err := Create(path, cols, 64, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, w.AppendRow([]ColumnValue{{Bytes: beUint32(uint32(i))}}))
	}
	require.NoError(t, w.Close())

	af, err := OpenArrowFile(path)
	require.NoError(t, err)
	defer af.Close()

	require.GreaterOrEqual(t, len(af.RecordBatches), 2)
}

func TestWriterStructColumnRoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "struct.arrow")
	child1 := intColumn("x", false)
	child2 := NewColumn("y", true, &ArrowType{Kind: KindUtf8}, SourceType{})
	structType := &ArrowType{Kind: KindStruct, Children: []*Column{child1, child2}}
	cols := []*Column{NewColumn("point", false, structType, SourceType{})}

	w, err := Create(path, cols, 1<<20, nil)
	require.NoError(t, err)

	composite := encodeCompositeWire(t, []compositeField{
		{oid: 23, bytes: beUint32(1)},
		{oid: 25, bytes: []byte("hi")},
	})
	require.NoError(t, w.AppendRow([]ColumnValue{{Bytes: composite}}))
	require.NoError(t, w.Close())

	af, err := OpenArrowFile(path)
	require.NoError(t, err)
	defer af.Close()

	require.Len(t, af.Schema, 1)
	require.Equal(t, KindStruct, af.Schema[0].Type.Kind)
	require.Len(t, af.Schema[0].Children(), 2)
}

func TestOpenArrowFileRejectsTruncatedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "short.arrow")
	require.NoError(t, os.WriteFile(path, []byte("AR"), 0644))

	_, err := OpenArrowFile(path)
	require.Error(t, err)
}

// fieldNodesPos fetches the FieldNode vector's position out of a decoded
// RecordBatch header table, field index 1 per the wire layout.
func fieldNodesPos(t *testing.T, header *FBTable) int {
	t.Helper()
	pos, ok := header.FetchPackedPos(1)
	require.True(t, ok)
	return pos
}
