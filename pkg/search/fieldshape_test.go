package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldShapes(t *testing.T) {
	tests := []struct {
		name  string
		raw   interface{}
		ok    bool
		shape Shape
		norm  []string
	}{
		{"scalar", "a@x.com", true, ShapeScalar, []string{"a@x.com"}},
		{"delimited", "a@x.com | b@y.com", true, ShapeDelimited, []string{"a@x.com", "b@y.com"}},
		{"list", []interface{}{"a@x.com", "b@y.com"}, true, ShapeList, []string{"a@x.com", "b@y.com"}},
		{"number", float64(42), false, 0, nil},
		{"object", map[string]interface{}{"email": "a@x.com"}, false, 0, nil},
		{"mixed list", []interface{}{"a@x.com", float64(1)}, false, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv, ok := ParseField(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.shape, fv.Shape())
				assert.Equal(t, tt.norm, fv.Normalize())
			}
		})
	}
}

func TestMaskFieldPreservesScalarShape(t *testing.T) {
	masked, changed := MaskField("a@x.com", "a@x.com", "DELETED_USER")
	require.True(t, changed)

	// A scalar must stay a scalar, not be promoted to an array
	s, ok := masked.(string)
	require.True(t, ok)
	assert.Equal(t, "DELETED_USER", s)
}

func TestMaskFieldPreservesDelimitedShape(t *testing.T) {
	masked, changed := MaskField("a@x.com | b@y.com", "a@x.com", "DELETED_USER")
	require.True(t, changed)
	assert.Equal(t, "DELETED_USER | b@y.com", masked)
}

func TestMaskFieldPreservesArrayShape(t *testing.T) {
	masked, changed := MaskField([]interface{}{"a@x.com", "b@y.com"}, "a@x.com", "DELETED_USER")
	require.True(t, changed)

	list, ok := masked.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "DELETED_USER", list[0])
	assert.Equal(t, "b@y.com", list[1])
}

func TestMaskFieldLeavesOtherContributorsUntouched(t *testing.T) {
	masked, changed := MaskField("b@y.com", "a@x.com", "DELETED_USER")
	assert.False(t, changed)
	assert.Equal(t, "b@y.com", masked)
}

func TestMaskFieldDelimitedTokenInsideArrayElement(t *testing.T) {
	masked, changed := MaskField(
		[]interface{}{"a@x.com | b@y.com", "c@z.com"},
		"a@x.com", "DELETED_USER")
	require.True(t, changed)

	list := masked.([]interface{})
	assert.Equal(t, "DELETED_USER | b@y.com", list[0])
	assert.Equal(t, "c@z.com", list[1])
}

func TestMaskFieldIsIdempotent(t *testing.T) {
	once, changed := MaskField("a@x.com | b@y.com", "a@x.com", "DELETED_USER")
	require.True(t, changed)

	twice, changedAgain := MaskField(once, "a@x.com", "DELETED_USER")
	assert.False(t, changedAgain)
	assert.Equal(t, once, twice)
}

func TestMaskValuesDoesNotMutateInput(t *testing.T) {
	in := []string{"a@x.com", "b@y.com"}
	out, changed := MaskValues(in, "a@x.com", "DELETED_USER")
	require.True(t, changed)

	assert.Equal(t, []string{"a@x.com", "b@y.com"}, in)
	assert.Equal(t, []string{"DELETED_USER", "b@y.com"}, out)
}

func TestDenormalizeEmptyScalar(t *testing.T) {
	fv, ok := ParseField("x")
	require.True(t, ok)
	assert.Equal(t, "", fv.Denormalize(nil))
}
