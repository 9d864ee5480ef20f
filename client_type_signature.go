package presto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedTypeSignature is wrapped by every error caused by a type signature
// that does not have the shape its raw type requires (e.g. a map without two
// arguments).
var ErrMalformedTypeSignature = errors.New("malformed type signature")

// ParameterKind identifies the payload carried by a ClientTypeSignatureParameter.
type ParameterKind string

const (
	ParameterKindType      ParameterKind = "TYPE"
	ParameterKindNamedType ParameterKind = "NAMED_TYPE"
	ParameterKindLong      ParameterKind = "LONG"
	ParameterKindVariable  ParameterKind = "VARIABLE"
)

// Kind names emitted by older coordinators.
var legacyParameterKinds = map[ParameterKind]ParameterKind{
	"TYPE_SIGNATURE":       ParameterKindType,
	"NAMED_TYPE_SIGNATURE": ParameterKindNamedType,
	"LONG_LITERAL":         ParameterKindLong,
}

// canonical maps legacy kind names onto their current spelling.
func (k ParameterKind) canonical() ParameterKind {
	if modern, ok := legacyParameterKinds[k]; ok {
		return modern
	}
	return k
}

// ClientTypeSignature describes the type of a result column as reported by the
// coordinator. Nested types (array, map, row) carry their element types as
// arguments.
//
// Two encodings exist on the wire. Current coordinators only send Arguments.
// Older coordinators also send TypeArguments (the nested signatures) and
// LiteralArguments (row field names, positionally); when TypeArguments is
// present it takes precedence. Normalize converts the older encoding into the
// current one.
type ClientTypeSignature struct {
	// RawType is the base type name (e.g., "varchar", "bigint", "array")
	RawType string `json:"rawType"`

	// Arguments holds type parameters: element types, named row fields or
	// numeric literals such as a varchar length.
	Arguments []ClientTypeSignatureParameter `json:"arguments,omitempty"`

	// TypeArguments is the legacy list of nested type signatures.
	TypeArguments []ClientTypeSignature `json:"typeArguments,omitempty"`

	// LiteralArguments is the legacy list of row field names. A nil entry
	// marks an anonymous field.
	LiteralArguments []*string `json:"literalArguments,omitempty"`
}

// RowFieldName names a field of a row type.
type RowFieldName struct {
	Name      string `json:"name"`
	Delimited bool   `json:"delimited,omitempty"`
}

// NamedTypeSignature is the payload of a NAMED_TYPE argument: one row field.
type NamedTypeSignature struct {
	// FieldName is nil for anonymous fields.
	FieldName     *RowFieldName       `json:"fieldName,omitempty"`
	TypeSignature ClientTypeSignature `json:"typeSignature"`
}

// ClientTypeSignatureParameter is one argument of a type signature. Exactly one
// payload field is set, selected by Kind.
type ClientTypeSignatureParameter struct {
	Kind               ParameterKind
	TypeSignature      *ClientTypeSignature
	NamedTypeSignature *NamedTypeSignature
	LongLiteral        *int64
	VariableLiteral    *string
}

// NewTypeSignature builds a signature in the current (arguments) encoding.
func NewTypeSignature(rawType string, args ...ClientTypeSignatureParameter) ClientTypeSignature {
	if len(args) == 0 {
		args = nil
	}
	return ClientTypeSignature{RawType: rawType, Arguments: args}
}

// TypeParameter wraps a nested signature as a TYPE argument.
func TypeParameter(sig ClientTypeSignature) ClientTypeSignatureParameter {
	return ClientTypeSignatureParameter{Kind: ParameterKindType, TypeSignature: &sig}
}

// NamedTypeParameter builds a row field argument. An empty name produces an
// anonymous field.
func NamedTypeParameter(name string, sig ClientTypeSignature) ClientTypeSignatureParameter {
	named := &NamedTypeSignature{TypeSignature: sig}
	if name != "" {
		named.FieldName = &RowFieldName{Name: name}
	}
	return ClientTypeSignatureParameter{Kind: ParameterKindNamedType, NamedTypeSignature: named}
}

// LongParameter builds a numeric literal argument, e.g. the length of varchar(255).
func LongParameter(v int64) ClientTypeSignatureParameter {
	return ClientTypeSignatureParameter{Kind: ParameterKindLong, LongLiteral: &v}
}

// UnmarshalJSON accepts both an object and, as some legacy named arguments do,
// a bare type string such as "array(integer)".
func (s *ClientTypeSignature) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		parsed, err := ParseTypeSignature(text)
		if err != nil {
			// Unparseable display strings degrade to their base type.
			parsed = ClientTypeSignature{RawType: normalizeType(text)}
		}
		*s = parsed
		return nil
	}

	type plain ClientTypeSignature
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*s = ClientTypeSignature(p)
	return nil
}

// UnmarshalJSON decodes the value according to the kind. Unknown kinds are
// resolved from the shape of the value.
func (p *ClientTypeSignatureParameter) UnmarshalJSON(data []byte) error {
	var wire struct {
		Kind  ParameterKind   `json:"kind"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	kind := wire.Kind.canonical()
	switch kind {
	case ParameterKindType, ParameterKindNamedType, ParameterKindLong, ParameterKindVariable:
	default:
		if sniffed := sniffParameterKind(wire.Value); sniffed != "" {
			kind = sniffed
		}
	}

	*p = ClientTypeSignatureParameter{Kind: kind}
	switch kind {
	case ParameterKindType:
		var sig ClientTypeSignature
		if err := json.Unmarshal(wire.Value, &sig); err != nil {
			return fmt.Errorf("invalid %s argument: %w", wire.Kind, err)
		}
		p.TypeSignature = &sig
	case ParameterKindNamedType:
		var named NamedTypeSignature
		if err := json.Unmarshal(wire.Value, &named); err != nil {
			return fmt.Errorf("invalid %s argument: %w", wire.Kind, err)
		}
		p.NamedTypeSignature = &named
	case ParameterKindLong:
		var n int64
		if err := json.Unmarshal(wire.Value, &n); err != nil {
			return fmt.Errorf("invalid %s argument: %w", wire.Kind, err)
		}
		p.LongLiteral = &n
	case ParameterKindVariable:
		var v string
		if err := json.Unmarshal(wire.Value, &v); err != nil {
			return fmt.Errorf("invalid %s argument: %w", wire.Kind, err)
		}
		p.VariableLiteral = &v
	}
	return nil
}

// sniffParameterKind guesses the kind of an argument value by its JSON shape.
func sniffParameterKind(value json.RawMessage) ParameterKind {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return ""
	}
	switch c := trimmed[0]; {
	case c == '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return ""
		}
		if _, ok := fields["rawType"]; ok {
			return ParameterKindType
		}
		if _, ok := fields["typeSignature"]; ok {
			return ParameterKindNamedType
		}
	case c == '-' || (c >= '0' && c <= '9'):
		return ParameterKindLong
	case c == '"':
		return ParameterKindVariable
	}
	return ""
}

// MarshalJSON writes the {kind, value} wire form.
func (p ClientTypeSignatureParameter) MarshalJSON() ([]byte, error) {
	var value any
	switch {
	case p.TypeSignature != nil:
		value = p.TypeSignature
	case p.NamedTypeSignature != nil:
		value = p.NamedTypeSignature
	case p.LongLiteral != nil:
		value = *p.LongLiteral
	case p.VariableLiteral != nil:
		value = *p.VariableLiteral
	}
	return json.Marshal(struct {
		Kind  ParameterKind `json:"kind"`
		Value any           `json:"value"`
	}{Kind: p.Kind, Value: value})
}

// isLegacy reports whether the nested types are carried by TypeArguments.
func (s ClientTypeSignature) isLegacy() bool {
	return len(s.TypeArguments) > 0
}

// Normalize returns the signature in the current encoding, recursively.
// Legacy nested signatures become TYPE arguments, or NAMED_TYPE arguments for
// rows, with names taken positionally from LiteralArguments.
func (s ClientTypeSignature) Normalize() ClientTypeSignature {
	out := ClientTypeSignature{RawType: s.RawType}

	if s.isLegacy() {
		isRow := KindOf(s.RawType) == TypeKindRow
		out.Arguments = make([]ClientTypeSignatureParameter, len(s.TypeArguments))
		for i, inner := range s.TypeArguments {
			inner = inner.Normalize()
			if isRow {
				out.Arguments[i] = NamedTypeParameter(legacyFieldName(s.LiteralArguments, i), inner)
			} else {
				out.Arguments[i] = TypeParameter(inner)
			}
		}
		return out
	}

	if len(s.Arguments) > 0 {
		out.Arguments = make([]ClientTypeSignatureParameter, len(s.Arguments))
		for i, arg := range s.Arguments {
			out.Arguments[i] = arg.normalize()
		}
	}
	return out
}

func (p ClientTypeSignatureParameter) normalize() ClientTypeSignatureParameter {
	switch {
	case p.TypeSignature != nil:
		return TypeParameter(p.TypeSignature.Normalize())
	case p.NamedTypeSignature != nil:
		named := &NamedTypeSignature{
			FieldName:     p.NamedTypeSignature.FieldName,
			TypeSignature: p.NamedTypeSignature.TypeSignature.Normalize(),
		}
		return ClientTypeSignatureParameter{Kind: ParameterKindNamedType, NamedTypeSignature: named}
	}
	return p
}

// legacyFieldName returns the i-th literal argument, or "" if it is absent.
func legacyFieldName(literals []*string, i int) string {
	if i < len(literals) && literals[i] != nil {
		return *literals[i]
	}
	return ""
}

// nestedSignature returns the type carried by a TYPE or NAMED_TYPE argument.
func (p ClientTypeSignatureParameter) nestedSignature() (ClientTypeSignature, bool) {
	switch {
	case p.TypeSignature != nil:
		return *p.TypeSignature, true
	case p.NamedTypeSignature != nil:
		return p.NamedTypeSignature.TypeSignature, true
	}
	return ClientTypeSignature{}, false
}

// String renders the signature in the coordinator's display form,
// e.g. "map(varchar,array(bigint))".
func (s ClientTypeSignature) String() string {
	n := s.Normalize()
	if len(n.Arguments) == 0 {
		return n.RawType
	}
	parts := make([]string, len(n.Arguments))
	for i, arg := range n.Arguments {
		parts[i] = arg.String()
	}
	return n.RawType + "(" + strings.Join(parts, ",") + ")"
}

func (p ClientTypeSignatureParameter) String() string {
	switch {
	case p.TypeSignature != nil:
		return p.TypeSignature.String()
	case p.NamedTypeSignature != nil:
		if p.NamedTypeSignature.FieldName != nil {
			return p.NamedTypeSignature.FieldName.Name + " " + p.NamedTypeSignature.TypeSignature.String()
		}
		return p.NamedTypeSignature.TypeSignature.String()
	case p.LongLiteral != nil:
		return strconv.FormatInt(*p.LongLiteral, 10)
	case p.VariableLiteral != nil:
		return *p.VariableLiteral
	}
	return ""
}
