package pg2arrow

import (
	"fmt"
)

// FieldNode is the logical (length, null_count) pair recorded for one
// field of a RecordBatch, in schema depth-first order.
type FieldNode struct {
	Length    int64
	NullCount int64
}

// BufferSpan is the logical (offset, length) pair recorded for one
// physical buffer of a RecordBatch. Offset is relative to the start of
// the message body and is always a multiple of 64.
type BufferSpan struct {
	Offset int64
	Length int64
}

// RecordBatchPlan is the fully-assembled logical RecordBatch a Batch
// produces on flush: the FieldNode/Buffer vectors the encoder needs,
// plus the ordered raw buffer bytes to stream as the message body.
type RecordBatchPlan struct {
	Length     int64
	FieldNodes []FieldNode
	Buffers    []BufferSpan
	BodyLength int64
	Bodies     [][]byte // one entry per BufferSpan, already the exact raw bytes
}

// Sink receives the logical structures a Batch assembles and is
// responsible for encoding and writing them to disk. arrowfile.go
// implements this by driving the FlatBuffer encoder and file framing.
type Sink interface {
	WriteSchema(columns []*Column) error
	WriteRecordBatch(plan *RecordBatchPlan) error
}

// Batch drives row ingestion across a fixed set of columns, triggers a
// flush when the accumulated size crosses segmentSize, and assembles
// the logical RecordBatch a Sink then encodes.
type Batch struct {
	columns     []*Column
	sink        Sink
	segmentSize int

	rowCount int
}

// NewBatch constructs a Batch manager over the given columns, flushing
// to sink whenever the accumulated size would exceed segmentSize.
func NewBatch(columns []*Column, sink Sink, segmentSize int) *Batch {
	return &Batch{columns: columns, sink: sink, segmentSize: segmentSize}
}

// AppendRow stages values (one per column, in schema order; an entry
// with IsNull set means null) into every column, checks whether the speculative size
// exceeds the segment threshold, and either commits the row to the
// current batch or flushes the current batch first and starts a new
// one with this row as its first.
//
// A row that alone exceeds segmentSize is fatal: there is no smaller
// batch it could fit into.
func (b *Batch) AppendRow(values []ColumnValue) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("pg2arrow: row has %d values, schema has %d columns", len(values), len(b.columns))
	}

	for i, col := range b.columns {
		if err := col.Stage(values[i].Bytes, values[i].IsNull); err != nil {
			b.unwindFrom(i)
			return err
		}
	}

	usage := b.usage(b.rowCount + 1)
	if usage > b.segmentSize {
		if b.rowCount == 0 {
			for _, col := range b.columns {
				col.Unwind()
			}
			return fmt.Errorf("pg2arrow: row larger than record batch (usage %d exceeds segment size %d)", usage, b.segmentSize)
		}
		// The row staged above hasn't been committed yet; unwind it so
		// Flush sees only the previously committed rows, then restage it
		// into the fresh batch that follows.
		for _, col := range b.columns {
			col.Unwind()
		}
		if err := b.Flush(); err != nil {
			return err
		}
		for i, col := range b.columns {
			if err := col.Stage(values[i].Bytes, values[i].IsNull); err != nil {
				b.unwindFrom(i)
				return err
			}
		}
	}

	for i, col := range b.columns {
		col.Commit(values[i].IsNull)
	}
	b.rowCount++
	return nil
}

// unwindFrom unwinds the columns that were successfully Staged before
// one failed, so a failed AppendRow leaves every column's buffers
// exactly as they were before the call.
func (b *Batch) unwindFrom(failedIndex int) {
	for i := 0; i < failedIndex; i++ {
		b.columns[i].Unwind()
	}
}

func (b *Batch) usage(rowCount int) int {
	total := 0
	for _, col := range b.columns {
		total += col.Usage(rowCount)
	}
	return total
}

// ColumnValue is one row's payload for one column: the raw wire bytes
// in network byte order, or IsNull set with Bytes nil.
type ColumnValue struct {
	Bytes  []byte
	IsNull bool
}

// Flush emits the current batch through the Sink, if it has any rows,
// then resets every column for the next batch. Calling Flush on an
// empty batch is a no-op: a file with no rows gets its Schema message
// from Create and a Footer with no record-batch blocks from Close.
func (b *Batch) Flush() error {
	if b.rowCount == 0 {
		return nil
	}
	plan := b.buildPlan()
	if err := b.sink.WriteRecordBatch(plan); err != nil {
		return err
	}
	for _, col := range b.columns {
		col.Reset()
	}
	b.rowCount = 0
	return nil
}

// buildPlan walks the schema depth-first, producing the FieldNode and
// Buffer vectors in the order §4.3/§4.5 require: a field with
// null_count 0 contributes a zero-length nullmap entry at the current
// running offset without advancing it.
func (b *Batch) buildPlan() *RecordBatchPlan {
	plan := &RecordBatchPlan{Length: int64(b.rowCount)}
	var offset int64
	for _, col := range b.columns {
		appendColumnPlan(plan, col, &offset)
	}
	plan.BodyLength = offset
	return plan
}

// appendColumnPlan appends one column's FieldNode and Buffer entries,
// advancing *offset, and for Struct recurses into its children.
func appendColumnPlan(plan *RecordBatchPlan, col *Column, offset *int64) {
	plan.FieldNodes = append(plan.FieldNodes, FieldNode{
		Length:    int64(col.RowCount()),
		NullCount: int64(col.NullCount()),
	})

	for i, buf := range col.Buffers() {
		if i == 0 && col.NullCount() == 0 {
			plan.Buffers = append(plan.Buffers, BufferSpan{Offset: *offset, Length: 0})
			plan.Bodies = append(plan.Bodies, nil)
			continue
		}
		length := int64(buf.Len())
		plan.Buffers = append(plan.Buffers, BufferSpan{Offset: *offset, Length: length})
		plan.Bodies = append(plan.Bodies, buf.Bytes())
		*offset += int64(align64(buf.Len()))
	}

	if col.Type.Kind == KindStruct {
		for _, child := range col.Children() {
			appendColumnPlan(plan, child, offset)
		}
	}
}
