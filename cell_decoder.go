package presto

import (
	"encoding/base64"
	"fmt"
	"reflect"
)

// CellDecoder turns one raw wire value of a column into its Go representation.
// A nil raw value always decodes to nil. Implementations are immutable values
// and safe for concurrent use.
type CellDecoder interface {
	Decode(raw any) (any, error)
}

// DefaultDecoder returns raw values unchanged. Every type without a dedicated
// decoder uses it, including type names this client does not know.
type DefaultDecoder struct{}

func (DefaultDecoder) Decode(raw any) (any, error) {
	return raw, nil
}

// VarbinaryDecoder decodes the base64 text carried on the wire into []byte.
type VarbinaryDecoder struct{}

func (VarbinaryDecoder) Decode(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("varbinary: expected base64 string, got %T", raw)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("varbinary: %w", err)
	}
	return b, nil
}

// EqualDecoders reports whether two decoder trees have the same shape and
// leaves. Decoders built from equivalent signatures are equal.
func EqualDecoders(a, b CellDecoder) bool {
	return reflect.DeepEqual(a, b)
}
