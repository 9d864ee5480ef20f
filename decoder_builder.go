package presto

import (
	"fmt"
)

// compositeDecoderBuilder builds the decoder of a nested type in two steps:
// it names the signatures of its children, then assembles the decoder once
// the children's decoders exist.
type compositeDecoderBuilder interface {
	innerSignatures(sig ClientTypeSignature) ([]ClientTypeSignature, error)
	build(sig ClientTypeSignature, inner []CellDecoder) (CellDecoder, error)
}

func compositeBuilderFor(kind TypeKind) (compositeDecoderBuilder, bool) {
	switch kind {
	case TypeKindArray:
		return arrayDecoderBuilder{}, true
	case TypeKindMap:
		return mapDecoderBuilder{}, true
	case TypeKindRow:
		return rowDecoderBuilder{}, true
	}
	return nil, false
}

// BuildCellDecoder builds the decoder for values of the given type. Signatures
// in either wire encoding are accepted. Errors wrap ErrMalformedTypeSignature.
func BuildCellDecoder(sig ClientTypeSignature) (CellDecoder, error) {
	return buildCellDecoder(sig.Normalize())
}

func buildCellDecoder(sig ClientTypeSignature) (CellDecoder, error) {
	kind := KindOf(sig.RawType)
	if builder, ok := compositeBuilderFor(kind); ok {
		signatures, err := builder.innerSignatures(sig)
		if err != nil {
			return nil, err
		}
		inner := make([]CellDecoder, len(signatures))
		for i, s := range signatures {
			decoder, err := buildCellDecoder(s)
			if err != nil {
				return nil, fmt.Errorf("%s argument %d: %w", kind, i, err)
			}
			inner[i] = decoder
		}
		return builder.build(sig, inner)
	}

	if kind == TypeKindVarbinary {
		return VarbinaryDecoder{}, nil
	}
	return DefaultDecoder{}, nil
}

// BuildRowDecoder builds one decoder per column, in column order.
func BuildRowDecoder(columns []Column) (*RowDecoder, error) {
	decoders := make([]CellDecoder, len(columns))
	for i, column := range columns {
		decoder, err := BuildCellDecoder(column.Signature())
		if err != nil {
			return nil, fmt.Errorf("column %d (%s): %w", i, column.Name, err)
		}
		decoders[i] = decoder
	}
	return NewRowDecoder(decoders...), nil
}
