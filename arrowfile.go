package pg2arrow

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/arrowlabs/pg2arrow/metrics"
)

// fileSignature is the 8-byte magic every Arrow IPC File starts with.
const fileSignature = "ARROW1\x00\x00"

// footerTailSignature is the literal trailer, unlike the header not
// NUL-padded.
const footerTailSignature = "ARROW1"

// Writer is the Arrow file producer's entry point: it owns the output
// file descriptor, the Batch that accumulates rows, and the list of
// RecordBatch blocks to list in the Footer on Close.
type Writer struct {
	f       *os.File
	path    string
	columns []*Column
	batch   *Batch
	logger  *zap.Logger

	offset            int64
	recordBatchBlocks []Block
	dictionaryBlocks  []Block
	batchIndex        int
}

// Create opens path for writing (create/truncate/write-only), writes
// the signature and Schema message, and returns a Writer ready to
// accept rows. segmentSize is the byte threshold that triggers a
// RecordBatch flush; logger may be nil, in which case flush records are
// not logged.
func Create(path string, columns []*Column, segmentSize int, logger *zap.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &IOError{Path: path, Op: "open", Err: err}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{f: f, path: path, columns: columns, logger: logger}
	w.batch = NewBatch(columns, w, segmentSize)

	if _, err := f.WriteString(fileSignature); err != nil {
		f.Close()
		return nil, &IOError{Path: path, Op: "write signature", Err: err}
	}
	w.offset = int64(len(fileSignature))

	if err := w.writeSchemaMessage(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeSchemaMessage() error {
	schema := BuildSchemaTable(w.columns)
	msg := BuildMessageTable(headerSchema, schema, 0)
	framed, err := FrameMessage(msg)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(framed); err != nil {
		return &IOError{Path: w.path, Op: "write schema message", Err: err}
	}
	w.offset += int64(len(framed))
	return nil
}

// AppendRow stages and commits one row across every column, flushing a
// RecordBatch first if the row would overflow the segment threshold.
func (w *Writer) AppendRow(values []ColumnValue) error {
	if err := w.batch.AppendRow(values); err != nil {
		return err
	}
	metrics.RowAppended()
	return nil
}

// WriteSchema implements Sink. The Writer already wrote the Schema
// message in Create, so this only exists to satisfy the interface; the
// Batch never calls it.
func (w *Writer) WriteSchema(columns []*Column) error {
	return nil
}

// WriteRecordBatch implements Sink: it encodes plan's RecordBatch
// table, frames it, writes the framed metadata followed by every
// buffer's body bytes padded to 64 bytes, and records the resulting
// block for the Footer.
func (w *Writer) WriteRecordBatch(plan *RecordBatchPlan) error {
	start := time.Now()
	blockOffset := w.offset

	rb := BuildRecordBatchTable(plan)
	msg := BuildMessageTable(headerRecordBatch, rb, plan.BodyLength)
	framed, err := FrameMessage(msg)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(framed); err != nil {
		return &IOError{Path: w.path, Op: "write record batch message", Err: err}
	}
	w.offset += int64(len(framed))

	var bodyWritten int64
	for _, body := range plan.Bodies {
		if len(body) > 0 {
			if _, err := w.f.Write(body); err != nil {
				return &IOError{Path: w.path, Op: "write record batch body", Err: err}
			}
			bodyWritten += int64(len(body))
		}
		padded := int64(align64(len(body)))
		if pad := padded - int64(len(body)); pad > 0 {
			if _, err := w.f.Write(make([]byte, pad)); err != nil {
				return &IOError{Path: w.path, Op: "pad record batch body", Err: err}
			}
			bodyWritten += pad
		}
	}
	w.offset += bodyWritten

	w.recordBatchBlocks = append(w.recordBatchBlocks, Block{
		Offset:         blockOffset,
		MetaDataLength: int32(len(framed)),
		BodyLength:     bodyWritten,
	})

	w.batchIndex++
	elapsed := time.Since(start)
	metrics.RecordBatchFlushed(bodyWritten, elapsed)
	w.logger.Info("record batch flushed",
		zap.Int("batch", w.batchIndex),
		zap.Int64("rows", plan.Length),
		zap.Int64("bytes", bodyWritten),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// Close flushes any buffered rows, writes the Footer and trailing
// signature, and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.batch.Flush(); err != nil {
		return err
	}

	schema := BuildSchemaTable(w.columns)
	footer := BuildFooterTable(schema, w.dictionaryBlocks, w.recordBatchBlocks)
	footerBytes, err := footer.Flatten()
	if err != nil {
		return err
	}

	footerFB := make([]byte, 4+len(footerBytes))
	putUint32LE(footerFB[0:4], uint32(footer.vlen()))
	copy(footerFB[4:], footerBytes)

	if _, err := w.f.Write(footerFB); err != nil {
		return &IOError{Path: w.path, Op: "write footer", Err: err}
	}

	var lenBuf [4]byte
	putUint32LE(lenBuf[:], uint32(len(footerFB)))
	if _, err := w.f.Write(lenBuf[:]); err != nil {
		return &IOError{Path: w.path, Op: "write footer metadata length", Err: err}
	}
	if _, err := w.f.WriteString(footerTailSignature); err != nil {
		return &IOError{Path: w.path, Op: "write tail signature", Err: err}
	}

	if err := w.f.Close(); err != nil {
		return &IOError{Path: w.path, Op: "close", Err: err}
	}
	return nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
