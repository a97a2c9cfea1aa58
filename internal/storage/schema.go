package storage

import (
	"fmt"
)

// FieldType names the value contract of a schema field.
type FieldType string

const (
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldString FieldType = "string"
	FieldBool   FieldType = "bool"
	// FieldJSON accepts any value; it is the escape hatch for nested or
	// model-produced data.
	FieldJSON FieldType = "json"
)

// Field is one column of a namespace.
type Field struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`
}

// Schema is the ordered field list of a namespace.
type Schema []Field

// FieldNames returns the schema's field names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Field returns the declaration of the named field, if present.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate rejects schemas with unnamed, duplicated or untyped fields.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case FieldInt, FieldFloat, FieldString, FieldBool, FieldJSON:
		default:
			return fmt.Errorf("field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// CheckValue verifies that v satisfies the field type contract. Numeric
// values are widened (int -> int64, float32 -> float64) but never
// cross-coerced; everything else is a data error.
func CheckValue(t FieldType, v any) error {
	if v == nil {
		return nil
	}
	switch t {
	case FieldInt:
		switch v.(type) {
		case int, int32, int64:
			return nil
		}
	case FieldFloat:
		switch v.(type) {
		case float32, float64:
			return nil
		}
	case FieldString:
		if _, ok := v.(string); ok {
			return nil
		}
	case FieldBool:
		if _, ok := v.(bool); ok {
			return nil
		}
	case FieldJSON:
		return nil
	}
	return fmt.Errorf("value %v (%T) does not satisfy field type %q", v, v, t)
}

// Normalize widens a checked value to its canonical representation.
func Normalize(t FieldType, v any) any {
	switch t {
	case FieldInt:
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		}
	case FieldFloat:
		if n, ok := v.(float32); ok {
			return float64(n)
		}
	}
	return v
}
