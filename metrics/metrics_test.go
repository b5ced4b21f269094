package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRowAppendedIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(rowsAppended)
	RowAppended()
	require.Equal(t, before+1, testutil.ToFloat64(rowsAppended))
}

func TestRecordBatchFlushedUpdatesAllMetrics(t *testing.T) {
	beforeBatches := testutil.ToFloat64(batchesFlushed)
	beforeBytes := testutil.ToFloat64(bytesWritten)

	RecordBatchFlushed(256, 10*time.Millisecond)

	require.Equal(t, beforeBatches+1, testutil.ToFloat64(batchesFlushed))
	require.Equal(t, beforeBytes+256, testutil.ToFloat64(bytesWritten))
}
