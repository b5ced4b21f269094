// Package metrics exposes prometheus counters and histograms for the
// Arrow file producer: rows appended, batches flushed, bytes written,
// and flush latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rowsAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pg2arrow_rows_appended_total",
		Help: "Rows appended to the current Arrow file.",
	})
	batchesFlushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pg2arrow_batches_flushed_total",
		Help: "RecordBatch messages written to the current Arrow file.",
	})
	bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pg2arrow_bytes_written_total",
		Help: "RecordBatch body bytes written, including alignment padding.",
	})
	flushLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "pg2arrow_flush_latency_seconds",
		Help: "Time spent encoding and writing one RecordBatch.",
	})
)

func init() {
	prometheus.MustRegister(rowsAppended, batchesFlushed, bytesWritten, flushLatency)
}

// RowAppended increments the row counter. Call once per successful
// Writer.AppendRow.
func RowAppended() {
	rowsAppended.Inc()
}

// RecordBatchFlushed records one completed flush: it counts the batch,
// adds its on-disk body byte count including padding, and observes how
// long it took.
func RecordBatchFlushed(bytes int64, elapsed time.Duration) {
	batchesFlushed.Inc()
	bytesWritten.Add(float64(bytes))
	flushLatency.Observe(elapsed.Seconds())
}
