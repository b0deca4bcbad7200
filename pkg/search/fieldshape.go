// pkg/search/fieldshape.go
package search

import "strings"

// Delimiter used by pipe-delimited PII fields across the search indices
const Delimiter = " | "

// Shape identifies how a field value is stored in a document
type Shape int

const (
	// ShapeScalar is a single string
	ShapeScalar Shape = iota
	// ShapeDelimited is one string holding multiple delimiter-joined values
	ShapeDelimited
	// ShapeList is an array of strings
	ShapeList
)

// FieldValue is a tagged variant over the three storage shapes. The
// substitution logic runs against the normalized form; Denormalize
// re-encodes into the original shape so downstream readers that key on
// the stored shape keep working.
type FieldValue struct {
	shape Shape
	list  []string
}

// ParseField reads a raw document value defensively. It returns false
// for absent values and for types the masking pass must not touch
// (numbers, objects, mixed arrays).
func ParseField(raw interface{}) (FieldValue, bool) {
	switch v := raw.(type) {
	case string:
		if strings.Contains(v, Delimiter) {
			return FieldValue{shape: ShapeDelimited, list: strings.Split(v, Delimiter)}, true
		}
		return FieldValue{shape: ShapeScalar, list: []string{v}}, true
	case []interface{}:
		list := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return FieldValue{}, false
			}
			list = append(list, s)
		}
		return FieldValue{shape: ShapeList, list: list}, true
	default:
		return FieldValue{}, false
	}
}

// Shape returns the storage shape tag
func (f FieldValue) Shape() Shape {
	return f.shape
}

// Normalize returns the ordered element list common to every shape
func (f FieldValue) Normalize() []string {
	out := make([]string, len(f.list))
	copy(out, f.list)
	return out
}

// Denormalize re-encodes an element list into this value's original
// shape. A scalar stays a scalar, a delimited string keeps its
// delimiter, an array stays an array of the same length.
func (f FieldValue) Denormalize(values []string) interface{} {
	switch f.shape {
	case ShapeScalar:
		if len(values) == 0 {
			return ""
		}
		return values[0]
	case ShapeDelimited:
		return strings.Join(values, Delimiter)
	default:
		out := make([]interface{}, len(values))
		for i, v := range values {
			out[i] = v
		}
		return out
	}
}

// MaskValues replaces every element equal to target with sentinel. An
// element that only contains target as a delimited token has just that
// token replaced, leaving co-located values byte-for-byte unchanged.
func MaskValues(values []string, target, sentinel string) ([]string, bool) {
	if target == "" {
		return values, false
	}

	changed := false
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = maskElement(v, target, sentinel)
		if out[i] != v {
			changed = true
		}
	}
	return out, changed
}

func maskElement(value, target, sentinel string) string {
	if value == target {
		return sentinel
	}
	if !strings.Contains(value, target) {
		return value
	}
	parts := strings.Split(value, Delimiter)
	for i, p := range parts {
		if p == target {
			parts[i] = sentinel
		}
	}
	return strings.Join(parts, Delimiter)
}

// MaskField applies target substitution to one raw document value,
// returning the re-encoded value and whether anything changed. Values
// that cannot be parsed are returned untouched.
func MaskField(raw interface{}, target, sentinel string) (interface{}, bool) {
	fv, ok := ParseField(raw)
	if !ok {
		return raw, false
	}
	masked, changed := MaskValues(fv.Normalize(), target, sentinel)
	if !changed {
		return raw, false
	}
	return fv.Denormalize(masked), true
}
