package pg2arrow

import (
	"encoding/binary"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// decodeInt128LE reverses encodeInt128LE for test assertions.
func decodeInt128LE(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	v := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return v
}

func beUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func beUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func stageAndCommit(t *testing.T, c *Column, value []byte, isNull bool) {
	t.Helper()
	require.NoError(t, c.Stage(value, isNull))
	c.Commit(isNull)
}

func TestColumnInt32StageCommitAndStats(t *testing.T) {
	t.Parallel()

	c := NewColumn("n", true, &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}, SourceType{})
	negFive := int32(-5)
	stageAndCommit(t, c, beUint32(uint32(negFive)), false)
	stageAndCommit(t, c, nil, true)
	stageAndCommit(t, c, beUint32(42), false)

	require.Equal(t, 3, c.RowCount())
	require.Equal(t, 1, c.NullCount())
	require.True(t, c.haveMin)
	require.Equal(t, int64(-5), c.intMin)
	require.Equal(t, int64(42), c.intMax)

	require.Equal(t, int32(-5), int32(binary.LittleEndian.Uint32(c.values.Bytes()[0:4])))
	require.Equal(t, int32(42), int32(binary.LittleEndian.Uint32(c.values.Bytes()[8:12])))
}

func TestColumnDateEpochRebase(t *testing.T) {
	t.Parallel()

	c := NewColumn("d", false, &ArrowType{Kind: KindDate, DateUnit: DateDay}, SourceType{})
	// PostgreSQL day 0 is 2000-01-01, which is postgresUnixEpochDays days
	// after the Unix epoch.
	stageAndCommit(t, c, beUint32(0), false)

	got := int32(binary.LittleEndian.Uint32(c.values.Bytes()[0:4]))
	require.Equal(t, int32(postgresUnixEpochDays), got)
}

func TestColumnTimestampEpochRebase(t *testing.T) {
	t.Parallel()

	c := NewColumn("ts", false, &ArrowType{Kind: KindTimestamp, TimeUnit: UnitMicrosecond}, SourceType{})
	stageAndCommit(t, c, beUint64(0), false)

	got := int64(binary.LittleEndian.Uint64(c.values.Bytes()[0:8]))
	require.Equal(t, int64(postgresUnixEpochMicro), got)
}

func TestColumnFloat64PreservesBits(t *testing.T) {
	t.Parallel()

	c := NewColumn("f", false, &ArrowType{Kind: KindFloatingPoint, FloatPrecision: PrecisionDouble}, SourceType{})
	var wire [8]byte
	binary.BigEndian.PutUint64(wire[:], math.Float64bits(3.25))
	stageAndCommit(t, c, wire[:], false)

	got := math.Float64frombits(binary.LittleEndian.Uint64(c.values.Bytes()[0:8]))
	require.Equal(t, 3.25, got)
}

func TestColumnBoolNullLeavesZeroValue(t *testing.T) {
	t.Parallel()

	c := NewColumn("b", true, &ArrowType{Kind: KindBool}, SourceType{})
	stageAndCommit(t, c, nil, true)
	require.Equal(t, byte(0), c.values.Bytes()[0])
	require.Equal(t, 1, c.NullCount())
}

// numericWireBytes builds a PostgreSQL numeric wire value from its
// base-10000 digits, weight and scale.
func numericWireBytes(digits []int16, weight int16, negative bool, dscale uint16) []byte {
	sign := uint16(0x0000)
	if negative {
		sign = 0x4000
	}
	buf := make([]byte, 8+2*len(digits))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(digits)))
	binary.BigEndian.PutUint16(buf[2:4], uint16(weight))
	binary.BigEndian.PutUint16(buf[4:6], sign)
	binary.BigEndian.PutUint16(buf[6:8], dscale)
	for i, d := range digits {
		binary.BigEndian.PutUint16(buf[8+2*i:10+2*i], uint16(d))
	}
	return buf
}

func TestColumnDecimalSimpleInteger(t *testing.T) {
	t.Parallel()

	// 123 as numeric(10,0): one digit group, weight 0.
	c := NewColumn("amt", false, &ArrowType{Kind: KindDecimal, DecimalPrecision: 10, DecimalScale: 0}, SourceType{})
	wire := numericWireBytes([]int16{123}, 0, false, 0)
	stageAndCommit(t, c, wire, false)

	got := decodeInt128LE(c.values.Bytes()[0:16])
	require.Equal(t, big.NewInt(123), got)
}

func TestColumnDecimalNegativeWithScale(t *testing.T) {
	t.Parallel()

	// -1.5 as numeric(10,1): weight 0 (integer digit group "1"), then
	// fractional digit group "5000" contributes scale 1 -> 5.
	c := NewColumn("amt", false, &ArrowType{Kind: KindDecimal, DecimalPrecision: 10, DecimalScale: 1}, SourceType{})
	wire := numericWireBytes([]int16{1, 5000}, 0, true, 1)
	stageAndCommit(t, c, wire, false)

	got := decodeInt128LE(c.values.Bytes()[0:16])
	require.Equal(t, big.NewInt(-15), got)
}

func TestColumnDecimalNaNIsFatal(t *testing.T) {
	t.Parallel()

	c := NewColumn("amt", false, &ArrowType{Kind: KindDecimal, DecimalPrecision: 10, DecimalScale: 0}, SourceType{})
	wire := make([]byte, 8)
	binary.BigEndian.PutUint16(wire[4:6], 0xC000)
	err := c.Stage(wire, false)
	require.Error(t, err)
}

func TestColumnUtf8OffsetsAndNullSentinel(t *testing.T) {
	t.Parallel()

	c := NewColumn("s", true, &ArrowType{Kind: KindUtf8}, SourceType{})
	stageAndCommit(t, c, []byte("ab"), false)
	stageAndCommit(t, c, nil, true)
	stageAndCommit(t, c, []byte("xyz"), false)

	offsets := c.values.Bytes()
	require.Len(t, offsets, 16) // sentinel + 3 rows, 4 bytes each
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(offsets[0:4]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(offsets[4:8]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(offsets[8:12])) // null contributes no heap bytes
	require.Equal(t, uint32(5), binary.LittleEndian.Uint32(offsets[12:16]))
	require.Equal(t, "abxyz", string(c.extra.Bytes()))
}

func TestColumnStageUnwindRollsBackVarlena(t *testing.T) {
	t.Parallel()

	c := NewColumn("s", false, &ArrowType{Kind: KindUtf8}, SourceType{})
	stageAndCommit(t, c, []byte("first"), false)

	require.NoError(t, c.Stage([]byte("second"), false))
	c.Unwind()

	require.Equal(t, 8, c.values.Len()) // sentinel + one committed offset
	require.Equal(t, "first", string(c.extra.Bytes()))
}

func TestColumnStructStageDecomposesComposite(t *testing.T) {
	t.Parallel()

	intChild := NewColumn("x", false, &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}, SourceType{})
	strChild := NewColumn("y", true, &ArrowType{Kind: KindUtf8}, SourceType{})
	structType := &ArrowType{Kind: KindStruct, Children: []*Column{intChild, strChild}}
	c := NewColumn("point", false, structType, SourceType{})

	composite := encodeCompositeWire(t, []compositeField{
		{oid: 23, bytes: beUint32(7)},
		{oid: 25, bytes: []byte("hi")},
	})
	stageAndCommit(t, c, composite, false)

	require.Equal(t, 1, intChild.RowCount())
	require.Equal(t, 1, strChild.RowCount())
	require.Equal(t, int32(7), int32(binary.LittleEndian.Uint32(intChild.values.Bytes()[0:4])))
	require.Equal(t, "hi", string(strChild.extra.Bytes()))
}

func TestColumnStructStageWithNullField(t *testing.T) {
	t.Parallel()

	intChild := NewColumn("x", true, &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}, SourceType{})
	structType := &ArrowType{Kind: KindStruct, Children: []*Column{intChild}}
	c := NewColumn("point", false, structType, SourceType{})

	composite := encodeCompositeWire(t, []compositeField{
		{oid: 23, isNull: true},
	})
	stageAndCommit(t, c, composite, false)

	require.Equal(t, 1, intChild.NullCount())
}

func TestColumnUsageIncludesNullmapOnlyWhenNeeded(t *testing.T) {
	t.Parallel()

	c := NewColumn("n", true, &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}, SourceType{})
	require.NoError(t, c.Stage(beUint32(1), false))
	withoutNull := c.Usage(1)
	c.Commit(false)

	require.NoError(t, c.Stage(nil, true))
	withNull := c.Usage(2)
	require.Equal(t, withoutNull+align64(bitmapLen(2)), withNull)
}

func TestColumnBuffersPerKindMatchesBufferLayout(t *testing.T) {
	t.Parallel()

	intCol := NewColumn("n", false, &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}, SourceType{})
	require.Len(t, intCol.Buffers(), 2)

	strCol := NewColumn("s", false, &ArrowType{Kind: KindUtf8}, SourceType{})
	require.Len(t, strCol.Buffers(), 3)

	structCol := NewColumn("st", false, &ArrowType{Kind: KindStruct}, SourceType{})
	require.Len(t, structCol.Buffers(), 1)

	nullCol := NewColumn("z", true, &ArrowType{Kind: KindNull}, SourceType{})
	require.Empty(t, nullCol.Buffers())
}

type compositeField struct {
	oid    uint32
	bytes  []byte
	isNull bool
}

func encodeCompositeWire(t *testing.T, fields []compositeField) []byte {
	t.Helper()
	buf := beUint32(uint32(len(fields)))
	for _, f := range fields {
		buf = append(buf, beUint32(f.oid)...)
		if f.isNull {
			negOne := int32(-1)
			buf = append(buf, beUint32(uint32(negOne))...)
			continue
		}
		buf = append(buf, beUint32(uint32(len(f.bytes)))...)
		buf = append(buf, f.bytes...)
	}
	return buf
}
