package schema

import (
	"fmt"
	"testing"
)

func TestScalarTypes(t *testing.T) {
	tests := []struct {
		typ     Type
		value   any
		wantErr bool
	}{
		{String(), "hello", false},
		{String(), 42, true},
		{Int(), 42, false},
		{Int(), int64(42), false},
		{Int(), float64(42), false}, // whole number from JSON
		{Int(), 42.5, true},
		{Int(), "42", true},
		{Float(), 3.14, false},
		{Float(), 3, false},
		{Float(), "3.14", true},
		{Bool(), true, false},
		{Bool(), nil, true},
		{Object(), map[string]any{"a": 1}, false},
		{Object(), map[int]any{1: 1}, true},
		{Any(), nil, false},
	}

	for _, tt := range tests {
		err := tt.typ.Check(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Check(%v) error = %v, wantErr %v", tt.typ.Name(), tt.value, err, tt.wantErr)
		}
	}
}

func TestListType(t *testing.T) {
	typ := List(String())

	if typ.Name() != "[string]" {
		t.Errorf("Name() = %q, want %q", typ.Name(), "[string]")
	}

	tests := []struct {
		value   any
		wantErr bool
	}{
		{[]string{"a", "b"}, false},
		{[]any{"a", "b"}, false},
		{[]any{"a", 1}, true},
		{"not a list", true},
		{nil, true},
	}

	for _, tt := range tests {
		err := typ.Check(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("Check(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestNamedType(t *testing.T) {
	positive := Named("positive_int", func(v any) error {
		i, ok := v.(int)
		if !ok {
			return fmt.Errorf("expected int")
		}
		if i <= 0 {
			return fmt.Errorf("must be positive")
		}
		return nil
	})

	if positive.Name() != "positive_int" {
		t.Errorf("Name() = %q", positive.Name())
	}
	if err := positive.Check(5); err != nil {
		t.Errorf("Check(5) = %v", err)
	}
	if err := positive.Check(-1); err == nil {
		t.Error("Check(-1) should fail")
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantErr  bool
	}{
		{"string", "string", false},
		{"int", "int", false},
		{"", "any", false},
		{"[float]", "[float]", false},
		{"[[bool]]", "[[bool]]", false},
		{"object", "object", false},
		{"decimal", "", true},
		{"[decimal]", "", true},
	}

	for _, tt := range tests {
		typ, err := ParseType(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && typ.Name() != tt.wantName {
			t.Errorf("ParseType(%q).Name() = %q, want %q", tt.input, typ.Name(), tt.wantName)
		}
	}
}
