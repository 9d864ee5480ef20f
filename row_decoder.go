package presto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodedRow holds the decoded values of one result row, in column order.
type DecodedRow []any

// DataError reports a result row whose value count differs from the number of
// columns.
type DataError struct {
	Expected int
	Actual   int
	Row      []any
}

func (e *DataError) Error() string {
	return fmt.Sprintf("expected %d columns while row values count is %d, row data: %v", e.Expected, e.Actual, e.Row)
}

// RowDecoder decodes whole result rows, one CellDecoder per column. It is
// immutable and can be shared across goroutines.
type RowDecoder struct {
	decoders []CellDecoder
}

// NewRowDecoder creates a RowDecoder from per-column decoders.
func NewRowDecoder(decoders ...CellDecoder) *RowDecoder {
	return &RowDecoder{decoders: append([]CellDecoder(nil), decoders...)}
}

// Len returns the number of columns.
func (d *RowDecoder) Len() int {
	return len(d.decoders)
}

// CellDecoders returns a copy of the per-column decoders.
func (d *RowDecoder) CellDecoders() []CellDecoder {
	return append([]CellDecoder(nil), d.decoders...)
}

// Equal reports whether both decoders would decode every row identically.
func (d *RowDecoder) Equal(other *RowDecoder) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.decoders) != len(other.decoders) {
		return false
	}
	for i := range d.decoders {
		if !EqualDecoders(d.decoders[i], other.decoders[i]) {
			return false
		}
	}
	return true
}

// DecodeRow decodes raw positionally. A row with the wrong number of values
// returns a *DataError. Any cell error fails the whole row.
func (d *RowDecoder) DecodeRow(raw []any) (DecodedRow, error) {
	if len(raw) != len(d.decoders) {
		return nil, &DataError{Expected: len(d.decoders), Actual: len(raw), Row: raw}
	}
	row := make(DecodedRow, len(raw))
	for i, decoder := range d.decoders {
		value, err := decoder.Decode(raw[i])
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = value
	}
	return row, nil
}

// DecodeJSONRow decodes one row as carried in QueryResults.Data. Numbers are
// kept as json.Number so that bigint values keep full precision.
func (d *RowDecoder) DecodeJSONRow(raw json.RawMessage) (DecodedRow, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal row: %w", err)
	}
	return d.DecodeRow(values)
}
