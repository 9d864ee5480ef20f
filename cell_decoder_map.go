package presto

import (
	"fmt"
	"strconv"
	"strings"
)

// MapKeyKind selects how the string keys of a map value are converted.
// JSON object keys are always strings, whatever the declared key type.
type MapKeyKind int8

const (
	MapKeyString MapKeyKind = iota
	MapKeyInteger
	MapKeyFloat
	MapKeyVarbinary
)

var mapKeyKinds = map[string]MapKeyKind{
	"integer":   MapKeyInteger,
	"tinyint":   MapKeyInteger,
	"smallint":  MapKeyInteger,
	"bigint":    MapKeyInteger,
	"real":      MapKeyFloat,
	"double":    MapKeyFloat,
	"decimal":   MapKeyFloat,
	"varbinary": MapKeyVarbinary,
}

// MapKeyKindOf returns the key conversion for a raw key type name.
func MapKeyKindOf(rawType string) MapKeyKind {
	return mapKeyKinds[strings.ToLower(strings.TrimSpace(rawType))]
}

// VarbinaryKey is a varbinary map key. Byte slices cannot be map keys, so the
// key bytes are held in a string.
type VarbinaryKey string

// Bytes returns a copy of the key bytes.
func (k VarbinaryKey) Bytes() []byte {
	return []byte(k)
}

func (k MapKeyKind) parse(key string) (any, error) {
	switch k {
	case MapKeyInteger:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("map key %q: %w", key, err)
		}
		return n, nil
	case MapKeyFloat:
		f, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return nil, fmt.Errorf("map key %q: %w", key, err)
		}
		return f, nil
	case MapKeyVarbinary:
		return VarbinaryKey(key), nil
	default:
		return key, nil
	}
}

// MapDecoder converts map keys according to Key and decodes values with Value.
// Keys of the result are string, int64, float64 or VarbinaryKey.
type MapDecoder struct {
	Key   MapKeyKind
	Value CellDecoder
}

func (d MapDecoder) Decode(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	entries, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("map: expected map[string]any, got %T", raw)
	}
	out := make(map[any]any, len(entries))
	for k, v := range entries {
		key, err := d.Key.parse(k)
		if err != nil {
			return nil, err
		}
		value, err := d.Value.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("map value for key %q: %w", k, err)
		}
		out[key] = value
	}
	return out, nil
}

type mapDecoderBuilder struct{}

// innerSignatures returns only the value type; the key type is a leaf handled
// by MapKeyKind.
func (mapDecoderBuilder) innerSignatures(sig ClientTypeSignature) ([]ClientTypeSignature, error) {
	_, value, err := mapSignatures(sig)
	if err != nil {
		return nil, err
	}
	return []ClientTypeSignature{value}, nil
}

func (mapDecoderBuilder) build(sig ClientTypeSignature, inner []CellDecoder) (CellDecoder, error) {
	key, _, err := mapSignatures(sig)
	if err != nil {
		return nil, err
	}
	return MapDecoder{Key: MapKeyKindOf(key.RawType), Value: inner[0]}, nil
}

// mapSignatures expects a normalized signature.
func mapSignatures(sig ClientTypeSignature) (key, value ClientTypeSignature, err error) {
	if len(sig.Arguments) != 2 {
		return key, value, fmt.Errorf("%w: map takes 2 type arguments, got %d", ErrMalformedTypeSignature, len(sig.Arguments))
	}
	key, ok := sig.Arguments[0].nestedSignature()
	if !ok {
		return key, value, fmt.Errorf("%w: map key argument is a %s, not a type", ErrMalformedTypeSignature, sig.Arguments[0].Kind)
	}
	value, ok = sig.Arguments[1].nestedSignature()
	if !ok {
		return key, value, fmt.Errorf("%w: map value argument is a %s, not a type", ErrMalformedTypeSignature, sig.Arguments[1].Kind)
	}
	return key, value, nil
}
