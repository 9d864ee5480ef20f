package presto

import (
	"strings"

	"github.com/prestoclient/presto-go/utils"
)

// TypeKind classifies a raw type name for decoding purposes.
type TypeKind int8

const (
	// TypeKindPrimitive covers every type without a dedicated decoder,
	// including types this client has never heard of.
	TypeKindPrimitive TypeKind = iota
	TypeKindArray
	TypeKindMap
	TypeKindRow
	TypeKindVarbinary
)

var typeKindMap = utils.NewBiMap(map[TypeKind]string{
	TypeKindPrimitive: "primitive",
	TypeKindArray:     "array",
	TypeKindMap:       "map",
	TypeKindRow:       "row",
	TypeKindVarbinary: "varbinary",
})

// KindOf classifies a raw type name, case-insensitively.
func KindOf(rawType string) TypeKind {
	name := strings.ToLower(strings.TrimSpace(rawType))
	if kind, ok := typeKindMap.RLookup(name); ok {
		return kind
	}
	return TypeKindPrimitive
}

func (k TypeKind) String() string {
	if name, ok := typeKindMap.Lookup(k); ok {
		return name
	}
	return "primitive"
}
