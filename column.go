package presto

// Column represents metadata about a column in a query result.
type Column struct {
	Name string `json:"name"`

	// Type is the type in display form, e.g. "array(varchar)"
	Type string `json:"type"`

	// TypeSignature is the structured form of Type. It may be empty when the
	// server only reported Type.
	TypeSignature ClientTypeSignature `json:"typeSignature"`
}

// Signature returns TypeSignature, or a signature parsed from Type when the
// server sent none.
func (c Column) Signature() ClientTypeSignature {
	if c.TypeSignature.RawType != "" {
		return c.TypeSignature
	}
	if c.Type == "" {
		return ClientTypeSignature{}
	}
	sig, err := ParseTypeSignature(c.Type)
	if err != nil {
		return ClientTypeSignature{RawType: normalizeType(c.Type)}
	}
	return sig
}

// displayType is Type, or the rendered TypeSignature when Type is empty.
func (c Column) displayType() string {
	if c.Type != "" {
		return c.Type
	}
	return c.TypeSignature.String()
}
