package pg2arrow

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// Column is one field's Arrow accumulator: the logical type, the raw
// PostgreSQL source type it was derived from, and the growable buffers
// that hold the current batch's values. Struct columns additionally own
// a recursive slice of child Columns.
//
// Appending to a Column is split into three steps, following the
// speculative-append contract: Stage writes the row's bytes into the
// buffers without committing null-count or row-count bookkeeping; the
// caller then either Commits (advances row/null counts) or Unwinds
// (truncates the buffers back to their pre-Stage length). This lets the
// batch manager check the post-append size against the flush threshold
// before deciding whether this row belongs to the current batch or the
// next one, without ever leaving null_count and buffer contents
// disagreeing about how many rows have been appended.
type Column struct {
	Name     string
	Nullable bool
	Type     *ArrowType
	Source   SourceType

	children []*Column

	nullmap *GrowableBuffer
	values  *GrowableBuffer
	extra   *GrowableBuffer

	rowCount  int
	nullCount int

	// stats, maintained only for signed Int and FloatingPoint columns
	trackStats bool
	haveMin    bool
	haveMax    bool
	intMin     int64
	intMax     int64
	floatMin   float64
	floatMax   float64

	// state staged by the most recent Stage call, consumed by Commit
	stagedIsNull     bool
	stagedIntVal     int64
	stagedFloatVal   float64
	stagedHasNumeric bool
	stagedChildNull  []bool

	// pre-Stage buffer lengths for varlena columns, consumed by Unwind
	unwindValuesMark int
	unwindExtraMark  int
}

// NewColumn builds a Column for a field of the given logical type and
// source type. For a Struct, t.Children must already hold the fully
// built child Columns (DeriveColumns builds children before their
// parent for exactly this reason); they become this Column's children
// directly, with no further construction.
func NewColumn(name string, nullable bool, t *ArrowType, src SourceType) *Column {
	c := &Column{
		Name:     name,
		Nullable: nullable,
		Type:     t,
		Source:   src,
		nullmap:  NewGrowableBuffer(),
		values:   NewGrowableBuffer(),
		extra:    NewGrowableBuffer(),
	}
	switch t.Kind {
	case KindInt:
		c.trackStats = t.IntSigned
	case KindFloatingPoint:
		c.trackStats = true
	}
	if t.Kind == KindStruct {
		c.children = t.Children
	}
	return c
}

// Children returns the Struct's recursively-built child columns, in
// schema order. Empty for every other kind.
func (c *Column) Children() []*Column { return c.children }

// RowCount returns the number of rows committed into this batch.
func (c *Column) RowCount() int { return c.rowCount }

// NullCount returns the number of committed rows that were null.
func (c *Column) NullCount() int { return c.nullCount }

// Buffers returns this column's own physical buffers, in the order the
// wire layout expects, not recursing into Struct children. The buffer
// count per Kind is decided once, by bufferLayout; this only maps that
// count onto the concrete buffers a Column actually holds.
func (c *Column) Buffers() []*GrowableBuffer {
	switch c.Type.bufferLayout() {
	case 0:
		return nil
	case 1:
		return []*GrowableBuffer{c.nullmap}
	case 3:
		return []*GrowableBuffer{c.nullmap, c.values, c.extra}
	default:
		return []*GrowableBuffer{c.nullmap, c.values}
	}
}

// Usage returns the 64-byte-aligned total size of this column's buffers
// plus, recursively, its children's, for the given tentative row count.
// rowCount is passed in rather than read from c.rowCount because the
// batch manager calls this after Stage but before Commit, to decide
// whether the speculatively-appended row belongs in this batch.
func (c *Column) Usage(rowCount int) int {
	usage := align64(c.values.Len()) + align64(c.extra.Len())
	if c.nullCount > 0 || c.stagedIsNull {
		usage += align64(bitmapLen(rowCount))
	}
	for _, child := range c.children {
		usage += child.Usage(rowCount)
	}
	return usage
}

// Stage speculatively appends value (nil when isNull) into this
// column's buffers without touching row/null counts. Call Commit to
// make the append permanent or Unwind to roll it back.
func (c *Column) Stage(value []byte, isNull bool) error {
	c.stagedIsNull = isNull
	c.stagedHasNumeric = false
	switch c.Type.Kind {
	case KindBool:
		return c.stageFixed1(value, isNull)
	case KindInt:
		switch c.Type.IntBitWidth {
		case 16:
			return c.stageFixed2(value, isNull)
		case 32:
			return c.stageFixed4(value, isNull, 0)
		case 64:
			return c.stageFixed8(value, isNull, 0)
		}
		return &ColumnError{Column: c.Name, Reason: "unsupported Int bit width"}
	case KindFloatingPoint:
		switch c.Type.FloatPrecision {
		case PrecisionSingle:
			return c.stageFixed4(value, isNull, 0)
		default:
			return c.stageFixed8(value, isNull, 0)
		}
	case KindDate:
		return c.stageFixed4(value, isNull, postgresUnixEpochDays)
	case KindTime:
		return c.stageFixed8(value, isNull, 0)
	case KindTimestamp:
		return c.stageFixed8(value, isNull, postgresUnixEpochMicro)
	case KindDecimal:
		return c.stageDecimal(value, isNull)
	case KindUtf8, KindBinary:
		return c.stageVarlena(value, isNull)
	case KindStruct:
		return c.stageStruct(value, isNull)
	case KindList:
		return &ColumnError{Column: c.Name, Reason: "List append not supported"}
	default:
		return &ColumnError{Column: c.Name, Reason: "no Arrow type mapping"}
	}
}

// Commit makes the most recently Staged append permanent: it advances
// the row count, flips the null-bitmap bit, and for Struct columns
// recurses into the children's own Commit.
func (c *Column) Commit(isNull bool) {
	if isNull {
		c.nullmap.ClrBit(c.rowCount)
		c.nullCount++
	} else {
		c.nullmap.SetBit(c.rowCount)
		if c.trackStats && c.stagedHasNumeric {
			c.updateStats()
		}
	}
	c.rowCount++
	for i, child := range c.children {
		var childNull bool
		if i < len(c.stagedChildNull) {
			childNull = c.stagedChildNull[i]
		}
		child.Commit(childNull)
	}
}

// Unwind rolls back the most recently Staged append, truncating the
// values/extra buffers to their pre-Stage length. Row/null counts were
// never touched by Stage, so there's nothing to restore there.
func (c *Column) Unwind() {
	// Varlena kinds restore the values/extra marks stageVarlena
	// captured; for fixed-width kinds the mark is implicit in the fixed
	// append width, so recompute it here.
	switch c.Type.Kind {
	case KindStruct:
		for _, child := range c.children {
			child.Unwind()
		}
	default:
		if w := c.Type.fixedWidth(); w >= 0 {
			c.values.Truncate(c.values.Len() - w)
		} else {
			c.values.Truncate(c.unwindValuesMark)
			c.extra.Truncate(c.unwindExtraMark)
		}
	}
}

// Reset clears this column's buffers and stats at the start of a new
// batch, retaining buffer capacity.
func (c *Column) Reset() {
	c.nullmap.Clear()
	c.values.Clear()
	c.extra.Clear()
	c.rowCount = 0
	c.nullCount = 0
	c.haveMin = false
	c.haveMax = false
	for _, child := range c.children {
		child.Reset()
	}
}

func (c *Column) updateStats() {
	switch c.Type.Kind {
	case KindInt:
		v := c.stagedIntVal
		if !c.haveMin || v < c.intMin {
			c.intMin = v
			c.haveMin = true
		}
		if !c.haveMax || v > c.intMax {
			c.intMax = v
			c.haveMax = true
		}
	case KindFloatingPoint:
		v := c.stagedFloatVal
		if !c.haveMin || v < c.floatMin {
			c.floatMin = v
			c.haveMin = true
		}
		if !c.haveMax || v > c.floatMax {
			c.floatMax = v
			c.haveMax = true
		}
	}
}

func (c *Column) stageFixed1(value []byte, isNull bool) error {
	if isNull {
		c.values.Append([]byte{0})
		return nil
	}
	if len(value) != 1 {
		return &ColumnError{Column: c.Name, Reason: "value size disagrees with fixed width 1"}
	}
	c.values.Append(value)
	if c.Type.Kind == KindBool {
		c.stagedIntVal = int64(value[0])
	}
	c.stagedHasNumeric = true
	return nil
}

func (c *Column) stageFixed2(value []byte, isNull bool) error {
	if isNull {
		c.values.AppendZero(2)
		return nil
	}
	if len(value) != 2 {
		return &ColumnError{Column: c.Name, Reason: "value size disagrees with fixed width 2"}
	}
	v := int16(binary.BigEndian.Uint16(value))
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(v))
	c.values.Append(buf[:])
	c.stagedIntVal = int64(v)
	c.stagedHasNumeric = true
	return nil
}

// stageFixed4 appends a 4-byte value, byte-swapping from the wire's
// big-endian order, then adding epochAdjust (used by Date to rebase the
// PostgreSQL 2000-01-01 epoch onto Arrow's 1970-01-01 epoch).
func (c *Column) stageFixed4(value []byte, isNull bool, epochAdjust int32) error {
	if isNull {
		c.values.AppendZero(4)
		return nil
	}
	if len(value) != 4 {
		return &ColumnError{Column: c.Name, Reason: "value size disagrees with fixed width 4"}
	}
	v := int32(binary.BigEndian.Uint32(value)) + epochAdjust
	var buf [4]byte
	if c.Type.Kind == KindFloatingPoint {
		binary.LittleEndian.PutUint32(buf[:], binary.BigEndian.Uint32(value))
		c.stagedFloatVal = float64(math.Float32frombits(binary.BigEndian.Uint32(value)))
	} else {
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		c.stagedIntVal = int64(v)
	}
	c.values.Append(buf[:])
	c.stagedHasNumeric = true
	return nil
}

// stageFixed8 appends an 8-byte value, byte-swapping from the wire's
// big-endian order, then adding epochAdjust (used by Timestamp).
func (c *Column) stageFixed8(value []byte, isNull bool, epochAdjust int64) error {
	if isNull {
		c.values.AppendZero(8)
		return nil
	}
	if len(value) != 8 {
		return &ColumnError{Column: c.Name, Reason: "value size disagrees with fixed width 8"}
	}
	var buf [8]byte
	if c.Type.Kind == KindFloatingPoint {
		binary.LittleEndian.PutUint64(buf[:], binary.BigEndian.Uint64(value))
		c.stagedFloatVal = math.Float64frombits(binary.BigEndian.Uint64(value))
	} else {
		v := int64(binary.BigEndian.Uint64(value)) + epochAdjust
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		c.stagedIntVal = v
	}
	c.values.Append(buf[:])
	c.stagedHasNumeric = true
	return nil
}

// stageDecimal parses the PostgreSQL numeric wire format (ndigits,
// weight, sign, dscale, then ndigits base-10000 digits) into a 16-byte
// little-endian Decimal128, following the integer/fractional assembly
// in arrow_types.c's put_decimal_value.
func (c *Column) stageDecimal(value []byte, isNull bool) error {
	if isNull {
		c.values.AppendZero(16)
		return nil
	}
	if len(value) < 8 {
		return &ColumnError{Column: c.Name, Reason: "numeric value too short"}
	}
	ndigits := int(binary.BigEndian.Uint16(value[0:2]))
	weight := int(int16(binary.BigEndian.Uint16(value[2:4])))
	sign := binary.BigEndian.Uint16(value[4:6])
	if sign == 0xC000 {
		return &ColumnError{Column: c.Name, Reason: "numeric NaN has no Decimal128 representation"}
	}
	if len(value) < 8+2*ndigits {
		return &ColumnError{Column: c.Name, Reason: "numeric digit vector truncated"}
	}
	digits := make([]int16, ndigits)
	for i := 0; i < ndigits; i++ {
		digits[i] = int16(binary.BigEndian.Uint16(value[8+2*i : 10+2*i]))
	}

	result := new(big.Int)
	digitIdx := 0
	for d := 0; d <= weight; d++ {
		result.Mul(result, big.NewInt(10000))
		if digitIdx < ndigits {
			result.Add(result, big.NewInt(int64(digits[digitIdx])))
			digitIdx++
		}
	}

	ascale := c.Type.DecimalScale
	for ascale > 0 {
		var digit int64
		if digitIdx < ndigits {
			digit = int64(digits[digitIdx])
		}
		digitIdx++
		if ascale >= 4 {
			result.Mul(result, big.NewInt(10000))
			result.Add(result, big.NewInt(digit))
			ascale -= 4
		} else {
			pow10 := [5]int64{1, 10, 100, 1000, 10000}
			result.Mul(result, big.NewInt(pow10[ascale]))
			result.Add(result, big.NewInt(digit/pow10[4-ascale]))
			ascale = 0
		}
	}

	if sign == 0x4000 {
		result.Neg(result)
	}

	buf := encodeInt128LE(result)
	c.values.Append(buf[:])
	return nil
}

// stageVarlena appends the value's bytes to the heap and a new offset
// to the offsets vector, emitting the batch-leading sentinel offset 0
// on the first row of a fresh batch.
func (c *Column) stageVarlena(value []byte, isNull bool) error {
	c.unwindValuesMark = c.values.Len()
	c.unwindExtraMark = c.extra.Len()
	if c.values.Len() == 0 {
		var zero [4]byte
		c.values.Append(zero[:])
		c.unwindValuesMark = 0
	}
	if !isNull {
		c.extra.Append(value)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(c.extra.Len()))
	c.values.Append(buf[:])
	return nil
}

// stageStruct decomposes the PostgreSQL composite wire payload into its
// fields and stages each child column with the corresponding field
// bytes and null flag.
func (c *Column) stageStruct(value []byte, isNull bool) error {
	fields, nulls, err := decomposeComposite(value, isNull, len(c.children))
	if err != nil {
		return &ColumnError{Column: c.Name, Reason: "composite payload", Err: err}
	}
	c.stagedChildNull = nulls
	for i, child := range c.children {
		if err := child.Stage(fields[i], nulls[i]); err != nil {
			for _, staged := range c.children[:i] {
				staged.Unwind()
			}
			return err
		}
	}
	return nil
}

// decomposeComposite splits a PostgreSQL composite (record) binary
// value into its per-field byte slices and null flags. Wire format:
// int32 field count, then per field {int32 typeOid, int32 length
// (-1 for null), length bytes}.
func decomposeComposite(value []byte, isNull bool, nfields int) ([][]byte, []bool, error) {
	fields := make([][]byte, nfields)
	nulls := make([]bool, nfields)
	if isNull {
		for i := range nulls {
			nulls[i] = true
		}
		return fields, nulls, nil
	}
	if len(value) < 4 {
		return nil, nil, fmt.Errorf("composite payload shorter than a field count")
	}
	count := int(int32(binary.BigEndian.Uint32(value[0:4])))
	if count != nfields {
		return nil, nil, fmt.Errorf("composite field count %d disagrees with schema's %d fields", count, nfields)
	}
	pos := 4
	for i := 0; i < nfields; i++ {
		if pos+8 > len(value) {
			return nil, nil, fmt.Errorf("composite payload truncated before field %d's length", i)
		}
		pos += 4 // type oid, unused: the schema already carries the type
		length := int32(binary.BigEndian.Uint32(value[pos : pos+4]))
		pos += 4
		if length < 0 {
			nulls[i] = true
			continue
		}
		if pos+int(length) > len(value) {
			return nil, nil, fmt.Errorf("composite payload truncated inside field %d's value", i)
		}
		fields[i] = value[pos : pos+int(length)]
		pos += int(length)
	}
	return fields, nulls, nil
}

// encodeInt128LE renders v as a 16-byte little-endian two's complement
// integer, Arrow's on-wire Decimal128 representation.
func encodeInt128LE(v *big.Int) [16]byte {
	var out [16]byte
	abs := new(big.Int).Abs(v)
	be := abs.Bytes()
	for i := 0; i < len(be) && i < 16; i++ {
		out[i] = be[len(be)-1-i]
	}
	if v.Sign() < 0 {
		carry := uint16(1)
		for i := 0; i < 16; i++ {
			sum := uint16(^out[i]) + carry
			out[i] = byte(sum)
			carry = sum >> 8
		}
	}
	return out
}
