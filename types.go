package presto

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// The driver hands ARRAY, MAP and ROW values to database/sql as JSON text.
// NullSlice, NullMap and NullRow scan that text into typed Go values.

// scanJSON unmarshals a JSON string or []byte into dst. It reports false for
// a NULL source and leaves dst untouched.
func scanJSON(src any, dst any, target string) (bool, error) {
	var data []byte
	switch v := src.(type) {
	case nil:
		return false, nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return false, fmt.Errorf("presto: cannot scan %T into %s", src, target)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("presto: cannot unmarshal %s: %w", target, err)
	}
	return true, nil
}

func jsonValue(valid bool, v any) (driver.Value, error) {
	if !valid {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// NullSlice scans a nullable ARRAY column.
//
//	var names NullSlice[string]
//	err := row.Scan(&names)
type NullSlice[T any] struct {
	Slice []T
	Valid bool
}

var (
	_ sql.Scanner   = (*NullSlice[any])(nil)
	_ driver.Valuer = NullSlice[any]{}
)

func (s *NullSlice[T]) Scan(src any) error {
	s.Slice = nil
	valid, err := scanJSON(src, &s.Slice, "array")
	s.Valid = valid
	return err
}

func (s NullSlice[T]) Value() (driver.Value, error) {
	return jsonValue(s.Valid, s.Slice)
}

// NullMap scans a nullable MAP column. Keys of any integer or string type
// work, since JSON object keys are decoded into K.
//
//	var props NullMap[string, int]
//	err := row.Scan(&props)
type NullMap[K comparable, V any] struct {
	Map   map[K]V
	Valid bool
}

var (
	_ sql.Scanner   = (*NullMap[string, any])(nil)
	_ driver.Valuer = NullMap[string, any]{}
)

func (m *NullMap[K, V]) Scan(src any) error {
	m.Map = nil
	valid, err := scanJSON(src, &m.Map, "map")
	m.Valid = valid
	return err
}

func (m NullMap[K, V]) Value() (driver.Value, error) {
	return jsonValue(m.Valid, m.Map)
}

// NullRow scans a nullable ROW column into a struct or a map. Fields are
// matched by row field name; anonymous fields are named field0, field1 and
// so on.
//
//	type Address struct {
//	    Street string `json:"street"`
//	    City   string `json:"city"`
//	}
//	var addr NullRow[Address]
//	err := row.Scan(&addr)
type NullRow[T any] struct {
	Row   T
	Valid bool
}

var (
	_ sql.Scanner   = (*NullRow[any])(nil)
	_ driver.Valuer = NullRow[any]{}
)

func (r *NullRow[T]) Scan(src any) error {
	var zero T
	r.Row = zero
	valid, err := scanJSON(src, &r.Row, "row")
	r.Valid = valid
	return err
}

func (r NullRow[T]) Value() (driver.Value, error) {
	return jsonValue(r.Valid, r.Row)
}
