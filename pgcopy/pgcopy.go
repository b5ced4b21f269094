// Package pgcopy implements pg2arrow.RowSource over a real PostgreSQL
// connection, the producer's "SQL client transport" collaborator: it
// runs a query once to fetch column metadata, then re-runs it wrapped
// in COPY (...) TO STDOUT (FORMAT BINARY) and streams the PGCOPY wire
// format's field bytes straight through, undecoded.
package pgcopy

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arrowlabs/pg2arrow"
)

var pgcopySignature = []byte{'P', 'G', 'C', 'O', 'P', 'Y', '\n', 0xff, '\r', '\n', 0}

// CatalogResolver maps a query's per-column type OIDs to the
// pg2arrow.SourceType tuples the schema deriver needs. catalog.Lookup
// implements this against pg_catalog.
type CatalogResolver interface {
	LookupType(ctx context.Context, oid uint32) (pg2arrow.SourceType, error)
}

// Source streams one query's result set through COPY TO BINARY.
type Source struct {
	pool     *pgxpool.Pool
	conn     *pgxpool.Conn
	catalog  CatalogResolver
	sql      string
	columns  []pg2arrow.SourceColumn
	pr       *io.PipeReader
	copyErrC chan error

	fieldCount int
}

// NewSource prepares a Source for sql but does not yet open a
// connection or start the COPY. Call Columns first to derive the
// schema, then Next repeatedly to stream rows.
func NewSource(pool *pgxpool.Pool, catalog CatalogResolver, sql string) *Source {
	return &Source{pool: pool, catalog: catalog, sql: sql}
}

// Columns implements pg2arrow.RowSource. It runs sql once (without
// fetching rows) to obtain the result's field descriptions, resolves
// each field's catalog type through the CatalogResolver, and starts
// the COPY TO BINARY stream feeding Next.
func (s *Source) Columns(ctx context.Context) ([]pg2arrow.SourceColumn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgcopy: acquiring connection: %w", err)
	}
	s.conn = conn

	rows, err := conn.Conn().Query(ctx, s.sql)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("pgcopy: preparing query: %w", err)
	}
	fds := rows.FieldDescriptions()
	rows.Close()

	columns := make([]pg2arrow.SourceColumn, len(fds))
	for i, fd := range fds {
		src, err := s.catalog.LookupType(ctx, fd.DataTypeOID)
		if err != nil {
			conn.Release()
			return nil, fmt.Errorf("pgcopy: resolving column %q: %w", fd.Name, err)
		}
		columns[i] = pg2arrow.SourceColumn{
			Name:     fd.Name,
			Type:     src,
			Nullable: true, // COPY's row descriptions don't carry attnotnull; conservative default
		}
	}
	s.columns = columns
	s.fieldCount = len(columns)

	pr, pw := io.Pipe()
	s.pr = pr
	s.copyErrC = make(chan error, 1)
	copySQL := fmt.Sprintf("COPY (%s) TO STDOUT (FORMAT BINARY)", s.sql)
	go func() {
		defer pw.Close()
		_, err := conn.Conn().PgConn().CopyTo(ctx, pw, copySQL)
		s.copyErrC <- err
	}()

	if err := s.readHeader(); err != nil {
		conn.Release()
		return nil, err
	}
	return columns, nil
}

// readHeader consumes the fixed 19-byte PGCOPY header (11-byte
// signature, 4-byte flags, 4-byte extension length) plus any extension
// area, leaving the stream positioned at the first tuple.
func (s *Source) readHeader() error {
	var sig [11]byte
	if _, err := io.ReadFull(s.pr, sig[:]); err != nil {
		return fmt.Errorf("pgcopy: reading COPY header: %w", err)
	}
	for i, b := range sig {
		if b != pgcopySignature[i] {
			return fmt.Errorf("pgcopy: missing PGCOPY signature")
		}
	}
	var rest [8]byte
	if _, err := io.ReadFull(s.pr, rest[:]); err != nil {
		return fmt.Errorf("pgcopy: reading COPY header flags: %w", err)
	}
	extLength := binary.BigEndian.Uint32(rest[4:8])
	if extLength > 0 {
		if _, err := io.CopyN(io.Discard, s.pr, int64(extLength)); err != nil {
			return fmt.Errorf("pgcopy: skipping COPY header extension: %w", err)
		}
	}
	return nil
}

// Next implements pg2arrow.RowSource: it reads one tuple's field count
// and, for each field, its 4-byte length prefix followed by that many
// raw bytes (or nothing, for a NULL). ok=false with a nil error means
// the trailer (-1 field count) was reached.
func (s *Source) Next(ctx context.Context) ([]pg2arrow.ColumnValue, bool, error) {
	var fieldCountBuf [2]byte
	if _, err := io.ReadFull(s.pr, fieldCountBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, false, s.finish(ctx)
		}
		return nil, false, fmt.Errorf("pgcopy: reading tuple field count: %w", err)
	}
	fieldCount := int(int16(binary.BigEndian.Uint16(fieldCountBuf[:])))
	if fieldCount == -1 {
		return nil, false, s.finish(ctx)
	}
	if fieldCount != s.fieldCount {
		return nil, false, fmt.Errorf("pgcopy: tuple has %d fields, schema has %d", fieldCount, s.fieldCount)
	}

	values := make([]pg2arrow.ColumnValue, fieldCount)
	for i := 0; i < fieldCount; i++ {
		var lenBuf [4]byte
		if _, err := io.ReadFull(s.pr, lenBuf[:]); err != nil {
			return nil, false, fmt.Errorf("pgcopy: reading field %d length: %w", i, err)
		}
		length := int32(binary.BigEndian.Uint32(lenBuf[:]))
		if length < 0 {
			values[i] = pg2arrow.ColumnValue{IsNull: true}
			continue
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(s.pr, buf); err != nil {
			return nil, false, fmt.Errorf("pgcopy: reading field %d payload: %w", i, err)
		}
		values[i] = pg2arrow.ColumnValue{Bytes: buf}
	}
	return values, true, nil
}

// finish drains the COPY goroutine's result once the trailer or EOF is
// observed, surfacing any server-side COPY failure.
func (s *Source) finish(ctx context.Context) error {
	select {
	case err := <-s.copyErrC:
		if err != nil {
			return fmt.Errorf("pgcopy: COPY failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements pg2arrow.RowSource, releasing the pooled connection.
// Safe to call after the result set is exhausted or on an early abort.
func (s *Source) Close() error {
	if s.pr != nil {
		s.pr.Close()
	}
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
	return nil
}
