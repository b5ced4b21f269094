// Package catalog implements pg2arrow.CatalogLookup over a live
// PostgreSQL connection's pg_catalog tables, the producer's "catalog
// lookup" collaborator.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arrowlabs/pg2arrow"
)

// Lookup resolves PostgreSQL type OIDs to pg2arrow.SourceType tuples by
// joining pg_type and pg_namespace, recursing into pg_attribute for
// composite types. Results are cached per OID for the Lookup's lifetime,
// since the same row type is typically looked up once per column and
// then reused for every row.
type Lookup struct {
	pool  *pgxpool.Pool
	cache map[uint32]pg2arrow.SourceType
}

// NewLookup wraps an already-acquired pool. The caller owns the pool's
// lifecycle; Lookup never closes it.
func NewLookup(pool *pgxpool.Pool) *Lookup {
	return &Lookup{pool: pool, cache: make(map[uint32]pg2arrow.SourceType)}
}

const typeQuery = `
SELECT n.nspname, t.typname, t.typlen, t.typbyval, t.typalign,
       t.typtype, t.typrelid, t.typelem, t.typtypmod
  FROM pg_catalog.pg_type t
  JOIN pg_catalog.pg_namespace n ON t.typnamespace = n.oid
 WHERE t.oid = $1`

// LookupType implements pg2arrow.CatalogLookup.
func (l *Lookup) LookupType(ctx context.Context, oid uint32) (pg2arrow.SourceType, error) {
	if src, ok := l.cache[oid]; ok {
		return src, nil
	}

	var (
		nspname, typname  string
		typlen            int16
		typbyval          bool
		typalign          string
		typtype           string
		typrelid, typelem uint32
		typtypmod         int32
	)
	row := l.pool.QueryRow(ctx, typeQuery, oid)
	if err := row.Scan(&nspname, &typname, &typlen, &typbyval, &typalign,
		&typtype, &typrelid, &typelem, &typtypmod); err != nil {
		if err == pgx.ErrNoRows {
			return pg2arrow.SourceType{}, fmt.Errorf("catalog: no pg_type row for oid %d", oid)
		}
		return pg2arrow.SourceType{}, fmt.Errorf("catalog: querying pg_type for oid %d: %w", oid, err)
	}

	src := pg2arrow.SourceType{
		Namespace: nspname,
		TypeName:  typname,
		ByteLen:   int(typlen),
		ByValue:   typbyval,
		Align:     alignBytes(typalign),
		Modifier:  typtypmod,
	}

	switch typtype {
	case "c":
		src.Kind = pg2arrow.SourceComposite
		cols, err := l.lookupCompositeColumns(ctx, typrelid)
		if err != nil {
			return pg2arrow.SourceType{}, fmt.Errorf("catalog: composite type %s.%s: %w", nspname, typname, err)
		}
		src.CompositeOf = cols
	case "e":
		src.Kind = pg2arrow.SourceEnum
	case "d":
		src.Kind = pg2arrow.SourceDomain
	default:
		src.Kind = pg2arrow.SourceBase
	}

	if typelem != 0 {
		elem, err := l.LookupType(ctx, typelem)
		if err != nil {
			return pg2arrow.SourceType{}, fmt.Errorf("catalog: element type of %s.%s: %w", nspname, typname, err)
		}
		src.ElementOf = &elem
	}

	l.cache[oid] = src
	return src, nil
}

const attributeQuery = `
SELECT attname, atttypid, attnotnull
  FROM pg_catalog.pg_attribute
 WHERE attrelid = $1 AND attnum > 0 AND NOT attisdropped
 ORDER BY attnum`

// lookupCompositeColumns mirrors query.c's pg_attribute join for a
// composite type's typrelid: one row per field, in attnum order.
func (l *Lookup) lookupCompositeColumns(ctx context.Context, typrelid uint32) ([]pg2arrow.SourceColumn, error) {
	rows, err := l.pool.Query(ctx, attributeQuery, typrelid)
	if err != nil {
		return nil, fmt.Errorf("querying pg_attribute for relid %d: %w", typrelid, err)
	}
	defer rows.Close()

	var cols []pg2arrow.SourceColumn
	for rows.Next() {
		var (
			attname    string
			atttypid   uint32
			attnotnull bool
		)
		if err := rows.Scan(&attname, &atttypid, &attnotnull); err != nil {
			return nil, fmt.Errorf("scanning pg_attribute row: %w", err)
		}
		fieldType, err := l.LookupType(ctx, atttypid)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", attname, err)
		}
		cols = append(cols, pg2arrow.SourceColumn{
			Name:     attname,
			Type:     fieldType,
			Nullable: !attnotnull,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

// alignBytes converts pg_type.typalign's single-character code ('c',
// 's', 'i', 'd') into a byte count.
func alignBytes(typalign string) int {
	if len(typalign) != 1 {
		return 1
	}
	switch typalign[0] {
	case 's':
		return 2
	case 'i':
		return 4
	case 'd':
		return 8
	default:
		return 1
	}
}
