package pg2arrow

import "context"

// RowSource is the out-of-scope "SQL client transport" collaborator:
// something that issues a query and streams back rows in the source
// wire's binary format along with the schema needed to derive Arrow
// types. pgcopy.Source implements this over a real PostgreSQL
// connection; tests use fakes.
type RowSource interface {
	// Columns returns the query's per-column schema, in result order.
	Columns(ctx context.Context) ([]SourceColumn, error)

	// Next returns the next row's per-column payloads, or ok=false once
	// the result set is exhausted. err is non-nil only on a transport
	// or protocol failure.
	Next(ctx context.Context) (values []ColumnValue, ok bool, err error)

	// Close releases any resources the source holds (a connection, a
	// cursor). Safe to call after the source is exhausted.
	Close() error
}

// CatalogLookup is the out-of-scope "catalog lookup" collaborator: given
// a type OID, returns the tuple spec §6 names. catalog.Lookup
// implements this over pg_catalog; tests use fakes.
type CatalogLookup interface {
	LookupType(ctx context.Context, oid uint32) (SourceType, error)
}

// DeriveColumns maps every entry of cols through MapSourceType,
// recursively handling Struct children already present on
// SourceType.CompositeOf, and builds the Column accumulators the
// producer appends into.
func DeriveColumns(cols []SourceColumn) ([]*Column, error) {
	columns := make([]*Column, len(cols))
	for i, sc := range cols {
		arrowType, err := MapSourceType(sc.Type)
		if err != nil {
			return nil, &ColumnError{Column: sc.Name, Reason: "schema derivation", Err: err}
		}
		if arrowType.Kind == KindStruct {
			children, err := DeriveColumns(sc.Type.CompositeOf)
			if err != nil {
				return nil, err
			}
			arrowType.Children = children
		}
		columns[i] = NewColumn(sc.Name, sc.Nullable, arrowType, sc.Type)
	}
	return columns, nil
}
