package presto

import "fmt"

// ArrayDecoder applies Element to every item of an array value.
type ArrayDecoder struct {
	Element CellDecoder
}

func (d ArrayDecoder) Decode(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("array: expected []any, got %T", raw)
	}
	out := make([]any, len(items))
	for i, item := range items {
		decoded, err := d.Element.Decode(item)
		if err != nil {
			return nil, fmt.Errorf("array element %d: %w", i, err)
		}
		out[i] = decoded
	}
	return out, nil
}

type arrayDecoderBuilder struct{}

func (arrayDecoderBuilder) innerSignatures(sig ClientTypeSignature) ([]ClientTypeSignature, error) {
	element, err := arrayElementSignature(sig)
	if err != nil {
		return nil, err
	}
	return []ClientTypeSignature{element}, nil
}

func (arrayDecoderBuilder) build(_ ClientTypeSignature, inner []CellDecoder) (CellDecoder, error) {
	return ArrayDecoder{Element: inner[0]}, nil
}

// arrayElementSignature expects a normalized signature.
func arrayElementSignature(sig ClientTypeSignature) (ClientTypeSignature, error) {
	if len(sig.Arguments) != 1 {
		return ClientTypeSignature{}, fmt.Errorf("%w: array takes 1 type argument, got %d", ErrMalformedTypeSignature, len(sig.Arguments))
	}
	element, ok := sig.Arguments[0].nestedSignature()
	if !ok {
		return ClientTypeSignature{}, fmt.Errorf("%w: array argument is a %s, not a type", ErrMalformedTypeSignature, sig.Arguments[0].Kind)
	}
	return element, nil
}
