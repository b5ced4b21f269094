package pg2arrow

import (
	"fmt"
	"io"
	"strings"
)

// Dump renders columns as an indented label/value tree, one line per
// field and one extra indent level per level of Struct nesting.
func Dump(w io.Writer, columns []*Column) {
	for _, col := range columns {
		dumpColumn(w, col, 0)
	}
}

func dumpColumn(w io.Writer, col *Column, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s%s: %s", indent, col.Name, describeType(col.Type))
	if col.Nullable {
		fmt.Fprint(w, " nullable")
	}
	fmt.Fprintln(w)
	for _, child := range col.Children() {
		dumpColumn(w, child, depth+1)
	}
}

// describeType renders an ArrowType's discriminant and payload as a
// single line, e.g. "Int(32, signed)" or "Timestamp(us, UTC)".
func describeType(t *ArrowType) string {
	switch t.Kind {
	case KindInt:
		sign := "unsigned"
		if t.IntSigned {
			sign = "signed"
		}
		return fmt.Sprintf("Int(%d, %s)", t.IntBitWidth, sign)
	case KindFloatingPoint:
		return fmt.Sprintf("FloatingPoint(%s)", precisionName(t.FloatPrecision))
	case KindDecimal:
		return fmt.Sprintf("Decimal(%d, %d)", t.DecimalPrecision, t.DecimalScale)
	case KindDate:
		return fmt.Sprintf("Date(%s)", dateUnitName(t.DateUnit))
	case KindTime:
		return fmt.Sprintf("Time(%s, %d-bit)", timeUnitName(t.TimeUnit), t.TimeBits)
	case KindTimestamp:
		tz := t.TimeZone
		if tz == "" {
			tz = "naive"
		}
		return fmt.Sprintf("Timestamp(%s, %s)", timeUnitName(t.TimeUnit), tz)
	case KindInterval:
		return fmt.Sprintf("Interval(%s)", timeUnitName(t.TimeUnit))
	case KindFixedSizeBinary:
		return fmt.Sprintf("FixedSizeBinary(%d)", t.ByteWidth)
	case KindFixedSizeList:
		return fmt.Sprintf("FixedSizeList(%d)", t.ListSize)
	case KindList:
		return "List"
	case KindStruct:
		return "Struct"
	case KindUnion:
		return fmt.Sprintf("Union(%s)", unionModeName(t.UnionMode))
	case KindMap:
		return "Map"
	default:
		return t.Kind.String()
	}
}

func precisionName(p FloatPrecision) string {
	switch p {
	case PrecisionHalf:
		return "half"
	case PrecisionSingle:
		return "single"
	default:
		return "double"
	}
}

func dateUnitName(u DateUnit) string {
	if u == DateMillisecond {
		return "ms"
	}
	return "day"
}

func timeUnitName(u TimeUnit) string {
	switch u {
	case UnitSecond:
		return "s"
	case UnitMillisecond:
		return "ms"
	case UnitNanosecond:
		return "ns"
	default:
		return "us"
	}
}

func unionModeName(m UnionMode) string {
	if m == UnionDense {
		return "dense"
	}
	return "sparse"
}

// DumpFile renders an open ArrowFile's schema followed by its message
// and record-batch block summary, mirroring arrow_dump.c's layout.
func DumpFile(w io.Writer, af *ArrowFile) {
	fmt.Fprintln(w, "schema:")
	for _, col := range af.Schema {
		dumpColumn(w, col, 1)
	}
	fmt.Fprintf(w, "messages: %d\n", len(af.Messages))
	for i, msg := range af.Messages {
		fmt.Fprintf(w, "  [%d] %s offset=%d bodyLength=%d\n", i, headerTypeName(msg.HeaderType), msg.Offset, msg.BodyLength)
	}
	fmt.Fprintf(w, "record batches: %d\n", len(af.RecordBatches))
	for i, blk := range af.RecordBatches {
		fmt.Fprintf(w, "  [%d] offset=%d metaDataLength=%d bodyLength=%d\n", i, blk.Offset, blk.MetaDataLength, blk.BodyLength)
	}
}

func headerTypeName(t byte) string {
	switch t {
	case headerSchema:
		return "Schema"
	case headerDictionaryBatch:
		return "DictionaryBatch"
	case headerRecordBatch:
		return "RecordBatch"
	default:
		return "None"
	}
}
