package pg2arrow

import "fmt"

// TypeKind discriminates the tagged union of Arrow logical types this
// producer can emit. Only the variants spec.md §3 lists are represented;
// Tensor/SparseTensor are intentionally absent (Non-goal).
type TypeKind int

const (
	KindNull TypeKind = iota
	KindInt
	KindFloatingPoint
	KindBinary
	KindUtf8
	KindBool
	KindDecimal
	KindDate
	KindTime
	KindTimestamp
	KindInterval
	KindList
	KindStruct
	KindUnion
	KindFixedSizeBinary
	KindFixedSizeList
	KindMap
)

func (k TypeKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInt:
		return "Int"
	case KindFloatingPoint:
		return "FloatingPoint"
	case KindBinary:
		return "Binary"
	case KindUtf8:
		return "Utf8"
	case KindBool:
		return "Bool"
	case KindDecimal:
		return "Decimal"
	case KindDate:
		return "Date"
	case KindTime:
		return "Time"
	case KindTimestamp:
		return "Timestamp"
	case KindInterval:
		return "Interval"
	case KindList:
		return "List"
	case KindStruct:
		return "Struct"
	case KindUnion:
		return "Union"
	case KindFixedSizeBinary:
		return "FixedSizeBinary"
	case KindFixedSizeList:
		return "FixedSizeList"
	case KindMap:
		return "Map"
	default:
		return "Unknown"
	}
}

// DateUnit distinguishes Arrow's two Date representations.
type DateUnit int

const (
	DateDay DateUnit = iota
	DateMillisecond
)

// TimeUnit is shared by Time, Timestamp and Interval payloads.
type TimeUnit int

const (
	UnitSecond TimeUnit = iota
	UnitMillisecond
	UnitMicrosecond
	UnitNanosecond
)

// FloatPrecision selects the width of a FloatingPoint field.
type FloatPrecision int

const (
	PrecisionHalf FloatPrecision = iota
	PrecisionSingle
	PrecisionDouble
)

// UnionMode distinguishes Arrow's two Union layouts. Unions are modeled
// but, like List, not appendable (Non-goal beyond recognition).
type UnionMode int

const (
	UnionSparse UnionMode = iota
	UnionDense
)

// ArrowType is a tagged union of every logical Arrow type this producer's
// schema derivation can assign to a column. Exactly one payload field is
// meaningful for a given Kind; the rest are zero. Once constructed during
// schema derivation, an ArrowType is treated as immutable.
type ArrowType struct {
	Kind TypeKind

	// Int
	IntBitWidth int
	IntSigned   bool

	// FloatingPoint
	FloatPrecision FloatPrecision

	// Decimal
	DecimalPrecision int
	DecimalScale     int

	// Date
	DateUnit DateUnit

	// Time / Timestamp / Interval
	TimeUnit TimeUnit
	TimeBits int // Time only: bit width of the backing integer (32 or 64)

	// Timestamp
	TimeZone string // "" means naive (no zone)

	// Union
	UnionMode UnionMode
	UnionIDs  []int8

	// FixedSizeBinary
	ByteWidth int

	// FixedSizeList
	ListSize int

	// Map
	KeysSorted bool

	// Struct / List / Map children, in schema order. List/Map use a
	// single-element Children slice for their value field.
	Children []*Column
}

// bufferLayout returns how many physical buffers (nullmap + values[+heap])
// this logical type contributes to a RecordBatch, per spec.md §3's
// Column invariant and §4.4's layout table.
func (t *ArrowType) bufferLayout() int {
	switch t.Kind {
	case KindUtf8, KindBinary:
		return 3
	case KindStruct:
		return 1
	case KindNull:
		return 0
	default:
		return 2
	}
}

// fixedWidth returns the inline byte width of one slot for fixed-width
// kinds, or -1 for varlena/struct kinds that have no single per-row width.
func (t *ArrowType) fixedWidth() int {
	switch t.Kind {
	case KindBool:
		return 1
	case KindInt:
		return t.IntBitWidth / 8
	case KindFloatingPoint:
		switch t.FloatPrecision {
		case PrecisionHalf:
			return 2
		case PrecisionSingle:
			return 4
		default:
			return 8
		}
	case KindDecimal:
		return 16
	case KindDate:
		if t.DateUnit == DateDay {
			return 4
		}
		return 8
	case KindTime:
		return t.TimeBits / 8
	case KindTimestamp:
		return 8
	case KindInterval:
		return 16 // month/day/nanosecond triple, as in the teacher's MonthDayNanoInterval
	case KindFixedSizeBinary:
		return t.ByteWidth
	default:
		return -1
	}
}

// SourceKind classifies where a column's values come from on the source
// side, per spec.md §6's row-source contract.
type SourceKind int

const (
	SourceBase SourceKind = iota
	SourceComposite
	SourceEnum
	SourceDomain
)

// SourceType is the source-system half of a Column: the catalog-provided
// description of a PostgreSQL attribute's type, exactly the tuple
// spec.md §6 says the catalog-lookup collaborator returns.
type SourceType struct {
	Namespace   string
	TypeName    string
	ByteLen     int // >0 fixed width, -1 varlena
	ByValue     bool
	Align       int // 1, 2, 4, or 8
	Kind        SourceKind
	CompositeOf []SourceColumn // populated when Kind == SourceComposite
	ElementOf   *SourceType    // populated for array element types
	Modifier    int32          // atttypmod, e.g. numeric (precision,scale) packing
}

// SourceColumn names one attribute of a composite source type, or one
// top-level column of a query result.
type SourceColumn struct {
	Name     string
	Type     SourceType
	Nullable bool
}

// PostgreSQL epoch constants, per spec.md §6's Date/Timestamp rebase
// notes. POSTGRES_EPOCH_JDATE (2000-01-01) minus UNIX_EPOCH_JDATE
// (1970-01-01) is 10957 days.
const (
	postgresUnixEpochDays  = 10957
	microsecondsPerDay     = 86400 * 1000000
	postgresUnixEpochMicro = postgresUnixEpochDays * microsecondsPerDay
)

// MapSourceType derives the ArrowType for a source column per the
// exhaustive table in spec.md §6. It returns an error naming the
// unmapped (namespace, typename) pair when no rule applies. A composite
// type maps to a Struct with no children; DeriveColumns (rowsource.go)
// fills them in from CompositeOf. Array types are not mapped to List:
// ElementOf is not consulted, so a varlena array type takes the generic
// Binary mapping.
func MapSourceType(src SourceType) (*ArrowType, error) {
	if src.Namespace == "pg_catalog" {
		switch src.TypeName {
		case "bool":
			return &ArrowType{Kind: KindBool}, nil
		case "int2":
			return &ArrowType{Kind: KindInt, IntBitWidth: 16, IntSigned: true}, nil
		case "int4":
			return &ArrowType{Kind: KindInt, IntBitWidth: 32, IntSigned: true}, nil
		case "int8":
			return &ArrowType{Kind: KindInt, IntBitWidth: 64, IntSigned: true}, nil
		case "float4":
			return &ArrowType{Kind: KindFloatingPoint, FloatPrecision: PrecisionSingle}, nil
		case "float8":
			return &ArrowType{Kind: KindFloatingPoint, FloatPrecision: PrecisionDouble}, nil
		case "date":
			return &ArrowType{Kind: KindDate, DateUnit: DateDay}, nil
		case "time":
			return &ArrowType{Kind: KindTime, TimeUnit: UnitMicrosecond, TimeBits: 64}, nil
		case "timestamp":
			return &ArrowType{Kind: KindTimestamp, TimeUnit: UnitMicrosecond, TimeZone: ""}, nil
		case "timestamptz":
			return &ArrowType{Kind: KindTimestamp, TimeUnit: UnitMicrosecond, TimeZone: "UTC"}, nil
		case "text", "varchar", "bpchar":
			return &ArrowType{Kind: KindUtf8}, nil
		case "numeric":
			precision, scale := decimalPrecisionScale(src.Modifier)
			return &ArrowType{Kind: KindDecimal, DecimalPrecision: precision, DecimalScale: scale}, nil
		}
	}

	if src.Kind == SourceComposite {
		return &ArrowType{Kind: KindStruct}, nil
	}

	// Generic fallback for types outside the exhaustive pg_catalog table:
	// fixed-width types become an unsigned Int of the matching width,
	// varlena types become opaque Binary.
	if src.ByteLen > 0 {
		switch src.ByteLen {
		case 1, 2, 4, 8:
			return &ArrowType{Kind: KindInt, IntBitWidth: src.ByteLen * 8, IntSigned: false}, nil
		}
	} else if src.ByteLen == -1 {
		return &ArrowType{Kind: KindBinary}, nil
	}

	return nil, fmt.Errorf("pg2arrow: no Arrow type mapping for %s.%s", src.Namespace, src.TypeName)
}

// decimalPrecisionScale unpacks a numeric atttypmod into (precision,
// scale) following spec.md §6: high 16 bits of (modifier-4) are
// precision, low 16 bits are scale. A modifier of -1 (unconstrained
// numeric) defaults to (30, 11), matching the original pg2arrow's choice
// for numerics with no declared precision.
func decimalPrecisionScale(modifier int32) (precision, scale int) {
	if modifier < 0 {
		return 30, 11
	}
	m := modifier - 4
	precision = int(uint32(m) >> 16)
	scale = int(int16(uint32(m) & 0xffff))
	return precision, scale
}
