package presto

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"reflect"
	"strings"
)

// prestoRows walks the batches of a query, decoding each batch with the
// result's RowDecoder before converting cells to driver values.
type prestoRows struct {
	qr      *QueryResults
	ctx     context.Context
	columns []Column
	rows    []DecodedRow
	pos     int
	closed  bool
}

var _ driver.Rows = (*prestoRows)(nil)
var _ driver.RowsColumnTypeDatabaseTypeName = (*prestoRows)(nil)
var _ driver.RowsColumnTypeScanType = (*prestoRows)(nil)

func newPrestoRows(ctx context.Context, qr *QueryResults) (*prestoRows, error) {
	r := &prestoRows{qr: qr, ctx: ctx, columns: qr.Columns}
	if err := r.decodeBatch(); err != nil {
		return nil, err
	}
	return r, nil
}

// decodeBatch decodes qr.Data into r.rows.
func (r *prestoRows) decodeBatch() error {
	r.pos = 0
	if len(r.columns) == 0 {
		r.columns = r.qr.Columns
	}
	rows, err := r.qr.DecodedData()
	if err != nil {
		return fmt.Errorf("presto: %w", err)
	}
	r.rows = rows
	return nil
}

func (r *prestoRows) Columns() []string {
	names := make([]string, len(r.columns))
	for i, col := range r.columns {
		names[i] = col.Name
	}
	return names
}

func (r *prestoRows) Close() error {
	r.closed = true
	return nil
}

func (r *prestoRows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}

	for r.pos >= len(r.rows) {
		if !r.qr.HasMoreBatch() {
			return io.EOF
		}
		if err := r.qr.FetchNextBatch(r.ctx); err != nil {
			return err
		}
		if err := r.decodeBatch(); err != nil {
			return err
		}
	}

	row := r.rows[r.pos]
	r.pos++

	if len(row) != len(dest) {
		return &DataError{Expected: len(dest), Actual: len(row), Row: row}
	}
	for i, col := range r.columns {
		val, err := convertValue(row[i], col.displayType())
		if err != nil {
			return fmt.Errorf("presto: column %s: %w", col.Name, err)
		}
		dest[i] = val
	}
	return nil
}

func (r *prestoRows) ColumnTypeDatabaseTypeName(index int) string {
	if index < 0 || index >= len(r.columns) {
		return ""
	}
	return strings.ToUpper(normalizeType(r.columns[index].displayType()))
}

func (r *prestoRows) ColumnTypeScanType(index int) reflect.Type {
	if index < 0 || index >= len(r.columns) {
		return reflect.TypeOf("")
	}
	return scanTypeForPrestoType(r.columns[index].displayType())
}
