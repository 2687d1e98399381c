package domain

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Values maps state keys to their values.
// A node receives the full Values of the previous step and returns a partial Values.
type Values map[string]any

// Clone returns a deep copy. Nested maps and slices are copied so the result can
// be handed to a node without exposing the committed state.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = cloneValue(val)
	}
	return out
}

// Keys returns the keys in lexical order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pick returns a shallow copy restricted to keys. Missing keys are skipped.
func (v Values) Pick(keys ...string) Values {
	out := make(Values, len(keys))
	for _, k := range keys {
		if val, ok := v[k]; ok {
			out[k] = val
		}
	}
	return out
}

func cloneValue(val any) any {
	switch t := val.(type) {
	case nil, string, bool, int, int64, float64:
		return t
	case Values:
		return t.Clone()
	case map[string]any:
		return map[string]any(Values(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return val
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			setCloned(out.Index(i), rv.Index(i))
		}
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return val
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			elem := reflect.New(rv.Type().Elem()).Elem()
			setCloned(elem, iter.Value())
			out.SetMapIndex(iter.Key(), elem)
		}
		return out.Interface()
	default:
		return val
	}
}

func setCloned(dst, src reflect.Value) {
	if !src.IsValid() {
		return
	}
	if src.Kind() == reflect.Interface && src.IsNil() {
		return
	}
	c := cloneValue(src.Interface())
	if c == nil {
		return
	}
	dst.Set(reflect.ValueOf(c))
}

// Decode copies v into out, a pointer to a struct tagged with `mapstructure`.
// Numeric values restored from JSON (float64) are converted to the field type.
func Decode(v Values, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(v)); err != nil {
		return fmt.Errorf("decode values: %w", err)
	}
	return nil
}

// Encode converts a tagged struct into Values.
func Encode(in any) (Values, error) {
	out := map[string]any{}
	if err := mapstructure.Decode(in, &out); err != nil {
		return nil, fmt.Errorf("encode values: %w", err)
	}
	return Values(out), nil
}
