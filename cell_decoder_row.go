package presto

import (
	"fmt"
	"strconv"
)

// RowTypeDecoder decodes a value of a row type into a map keyed by field name.
type RowTypeDecoder struct {
	Names  []string
	Fields []CellDecoder
}

func (d RowTypeDecoder) Decode(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	values, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("row: expected []any, got %T", raw)
	}
	if len(values) != len(d.Fields) {
		return nil, fmt.Errorf("row: expected %d fields, got %d", len(d.Fields), len(values))
	}
	out := make(map[string]any, len(values))
	for i, v := range values {
		decoded, err := d.Fields[i].Decode(v)
		if err != nil {
			return nil, fmt.Errorf("row field %s: %w", d.Names[i], err)
		}
		out[d.Names[i]] = decoded
	}
	return out, nil
}

type rowDecoderBuilder struct{}

func (rowDecoderBuilder) innerSignatures(sig ClientTypeSignature) ([]ClientTypeSignature, error) {
	return rowFieldSignatures(sig)
}

func (rowDecoderBuilder) build(sig ClientTypeSignature, inner []CellDecoder) (CellDecoder, error) {
	names := rowFieldNames(sig)
	if len(names) != len(inner) {
		return nil, fmt.Errorf("%w: row has %d field names for %d fields", ErrMalformedTypeSignature, len(names), len(inner))
	}
	return RowTypeDecoder{Names: names, Fields: inner}, nil
}

// rowFieldSignatures expects a normalized signature.
func rowFieldSignatures(sig ClientTypeSignature) ([]ClientTypeSignature, error) {
	if len(sig.Arguments) == 0 {
		return nil, fmt.Errorf("%w: row has no fields", ErrMalformedTypeSignature)
	}
	fields := make([]ClientTypeSignature, len(sig.Arguments))
	for i, arg := range sig.Arguments {
		field, ok := arg.nestedSignature()
		if !ok {
			return nil, fmt.Errorf("%w: row argument %d is a %s, not a field", ErrMalformedTypeSignature, i, arg.Kind)
		}
		fields[i] = field
	}
	return fields, nil
}

// rowFieldNames names anonymous fields field0, field1, ... by position.
func rowFieldNames(sig ClientTypeSignature) []string {
	names := make([]string, len(sig.Arguments))
	for i, arg := range sig.Arguments {
		if named := arg.NamedTypeSignature; named != nil && named.FieldName != nil {
			names[i] = named.FieldName.Name
		} else {
			names[i] = defaultFieldName(i)
		}
	}
	return names
}

func defaultFieldName(i int) string {
	return "field" + strconv.Itoa(i)
}
