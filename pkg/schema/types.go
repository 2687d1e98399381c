package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type constrains the values a channel may hold after reduction.
// Channels without a Type accept anything.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "[string]").
	Name() string
	// Check reports whether value conforms to the type.
	Check(value any) error
}

type scalarType struct {
	name  string
	check func(any) bool
}

func (t scalarType) Name() string { return t.name }

func (t scalarType) Check(value any) error {
	if !t.check(value) {
		return fmt.Errorf("expected %s, got %T", t.name, value)
	}
	return nil
}

type listType struct {
	elem Type
}

func (t listType) Name() string { return "[" + t.elem.Name() + "]" }

func (t listType) Check(value any) error {
	rv := reflect.ValueOf(value)
	if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected %s, got %T", t.Name(), value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Check(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

type namedType struct {
	name  string
	check func(any) error
}

func (t namedType) Name() string          { return t.name }
func (t namedType) Check(value any) error { return t.check(value) }

// Any accepts every value.
func Any() Type {
	return scalarType{name: "any", check: func(any) bool { return true }}
}

// String accepts Go strings.
func String() Type {
	return scalarType{name: "string", check: func(v any) bool {
		_, ok := v.(string)
		return ok
	}}
}

// Int accepts integers, and whole floats restored from JSON.
func Int() Type {
	return scalarType{name: "int", check: func(v any) bool {
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	}}
}

// Float accepts any numeric value.
func Float() Type {
	return scalarType{name: "float", check: func(v any) bool {
		switch v.(type) {
		case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
		return false
	}}
}

// Bool accepts booleans.
func Bool() Type {
	return scalarType{name: "bool", check: func(v any) bool {
		_, ok := v.(bool)
		return ok
	}}
}

// Object accepts string-keyed maps.
func Object() Type {
	return scalarType{name: "object", check: func(v any) bool {
		rv := reflect.ValueOf(v)
		return v != nil && rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
	}}
}

// List accepts sequences whose elements all satisfy elem.
func List(elem Type) Type {
	return listType{elem: elem}
}

// Named wraps a user check under a custom type name.
func Named(name string, check func(any) error) Type {
	return namedType{name: name, check: check}
}

// ParseType converts a type name into a Type.
// Supports "any", "string", "int", "float", "bool", "object" and "[elem]".
func ParseType(name string) (Type, error) {
	name = strings.TrimSpace(name)
	if len(name) > 2 && name[0] == '[' && name[len(name)-1] == ']' {
		elem, err := ParseType(name[1 : len(name)-1])
		if err != nil {
			return nil, err
		}
		return List(elem), nil
	}

	switch name {
	case "any", "":
		return Any(), nil
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool":
		return Bool(), nil
	case "object":
		return Object(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", name)
	}
}
