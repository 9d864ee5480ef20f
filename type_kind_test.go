package presto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		rawType string
		want    TypeKind
	}{
		{"array", TypeKindArray},
		{"ARRAY", TypeKindArray},
		{"map", TypeKindMap},
		{"row", TypeKindRow},
		{" Row ", TypeKindRow},
		{"varbinary", TypeKindVarbinary},
		{"bigint", TypeKindPrimitive},
		{"timestamp with time zone", TypeKindPrimitive},
		{"qdigest", TypeKindPrimitive},
		{"", TypeKindPrimitive},
		// Only the base name is classified.
		{"array(bigint)", TypeKindPrimitive},
	}
	for _, tt := range tests {
		t.Run(tt.rawType, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.rawType))
		})
	}
}

func TestTypeKind_String(t *testing.T) {
	assert.Equal(t, "array", TypeKindArray.String())
	assert.Equal(t, "varbinary", TypeKindVarbinary.String())
	assert.Equal(t, "primitive", TypeKind(100).String())
}
