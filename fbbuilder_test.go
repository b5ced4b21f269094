package pg2arrow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fetchRoot wraps a freshly flattened image's table root, skipping the
// leading vtable the way a framed message's rootOffset would.
func fetchRoot(image []byte, b *FBTableBuilder) *FBTable {
	return FetchFBTable(image, b.vlen())
}

func TestFBTableBuilderScalarRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewFBTableBuilder(3)
	b.PutScalar(0, int32Bytes(42), 4)
	b.PutScalar(1, boolByte(true), 1)
	// field 2 left absent

	image, err := b.Flatten()
	require.NoError(t, err)
	table := fetchRoot(image, b)

	require.Equal(t, int32(42), table.FetchInt32(0))
	require.True(t, table.FetchBool(1))
	require.Equal(t, int32(0), table.FetchInt32(2))
}

func TestFBTableBuilderZeroValueOmitted(t *testing.T) {
	t.Parallel()

	b := NewFBTableBuilder(1)
	b.PutScalar(0, int32Bytes(0), 4)
	require.Equal(t, int32(0), b.offsets[0])

	image, err := b.Flatten()
	require.NoError(t, err)
	table := fetchRoot(image, b)
	require.Equal(t, int32(0), table.FetchInt32(0))
}

func TestFBTableBuilderStringRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewFBTableBuilder(1)
	b.PutString(0, "hello")

	image, err := b.Flatten()
	require.NoError(t, err)
	table := fetchRoot(image, b)

	s, ok := table.FetchString(0)
	require.True(t, ok)
	require.Equal(t, "hello", s)
}

func TestFBTableBuilderOffsetRoundTrip(t *testing.T) {
	t.Parallel()

	sub := NewFBTableBuilder(1)
	sub.PutScalar(0, int32Bytes(7), 4)

	parent := NewFBTableBuilder(1)
	parent.PutOffset(0, sub)

	image, err := parent.Flatten()
	require.NoError(t, err)
	table := fetchRoot(image, parent)

	child, ok := table.FetchOffset(0)
	require.True(t, ok)
	require.Equal(t, int32(7), child.FetchInt32(0))
}

func TestFBTableBuilderVectorRoundTrip(t *testing.T) {
	t.Parallel()

	subs := make([]*FBTableBuilder, 3)
	for i := range subs {
		subs[i] = NewFBTableBuilder(1)
		subs[i].PutScalar(0, int32Bytes(int32(i*10)), 4)
	}

	parent := NewFBTableBuilder(1)
	parent.PutVector(0, subs)

	image, err := parent.Flatten()
	require.NoError(t, err)
	table := fetchRoot(image, parent)

	positions, ok := table.FetchVector(0)
	require.True(t, ok)
	require.Len(t, positions, 3)
	for i, pos := range positions {
		child := FetchFBTable(image, pos)
		require.Equal(t, int32(i*10), child.FetchInt32(0))
	}
}

func TestFBTableBuilderMissingFieldDefaultsToAbsent(t *testing.T) {
	t.Parallel()

	b := NewFBTableBuilder(2)
	image, err := b.Flatten()
	require.NoError(t, err)
	table := fetchRoot(image, b)

	_, ok := table.FetchOffset(0)
	require.False(t, ok)
	require.Equal(t, int32(0), table.FetchInt32(1))
}

func TestFBTableBuilderOutOfRangeFieldIndexIsEncodeError(t *testing.T) {
	t.Parallel()

	b := NewFBTableBuilder(1)
	b.PutScalar(5, int32Bytes(1), 4)

	_, err := b.Flatten()
	require.Error(t, err)
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	require.Equal(t, "PutScalar", encErr.Func)
}
