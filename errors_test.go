package pg2arrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnErrorMessage(t *testing.T) {
	t.Parallel()

	wrapped := errors.New("boom")
	err := &ColumnError{Column: "id", Reason: "value size disagrees with fixed width 4", Err: wrapped}
	require.Contains(t, err.Error(), "id")
	require.Contains(t, err.Error(), "boom")
	require.ErrorIs(t, err, wrapped)

	bare := &ColumnError{Column: "name", Reason: "unsupported Int bit width"}
	require.Contains(t, bare.Error(), "name")
	require.Nil(t, bare.Unwrap())
}

func TestEncodeErrorMessage(t *testing.T) {
	t.Parallel()

	err := &EncodeError{Func: "PutOffset", Reason: "sub-table not flattened"}
	require.Contains(t, err.Error(), "PutOffset")
	require.Contains(t, err.Error(), "sub-table not flattened")
}

func TestIOErrorMessage(t *testing.T) {
	t.Parallel()

	wrapped := errors.New("permission denied")
	err := &IOError{Path: "/tmp/out.arrow", Op: "open", Err: wrapped}
	require.Contains(t, err.Error(), "/tmp/out.arrow")
	require.ErrorIs(t, err, wrapped)
}
