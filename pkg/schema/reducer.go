package schema

import (
	"reflect"

	"github.com/aretw0/weft/pkg/domain"
)

// Kind names a reducer family.
type Kind string

const (
	KindOverwrite Kind = "overwrite"
	KindAppend    Kind = "append"
	KindCustom    Kind = "custom"
)

// Reducer defines how a channel combines a new write with its current value.
// Implementations must be pure and deterministic: the executor may apply them
// to a discarded copy when a superstep aborts.
type Reducer interface {
	// Kind identifies the reducer family.
	Kind() Kind
	// Name is a human-readable label (the kind, or the custom reducer name).
	Name() string
	// Apply merges next into old. old is nil when the key was never set.
	Apply(key string, old, next any) (any, error)
}

type overwrite struct{}

func (overwrite) Kind() Kind   { return KindOverwrite }
func (overwrite) Name() string { return string(KindOverwrite) }

func (overwrite) Apply(_ string, _, next any) (any, error) {
	return next, nil
}

type appendSeq struct{}

func (appendSeq) Kind() Kind   { return KindAppend }
func (appendSeq) Name() string { return string(KindAppend) }

func (appendSeq) Apply(key string, old, next any) (any, error) {
	return Concat(key, old, next)
}

type custom struct {
	name string
	fn   func(old, next any) (any, error)
}

func (c custom) Kind() Kind   { return KindCustom }
func (c custom) Name() string { return c.name }

func (c custom) Apply(_ string, old, next any) (any, error) {
	return c.fn(old, next)
}

// Overwrite replaces the current value with the new one.
func Overwrite() Reducer { return overwrite{} }

// Append concatenates sequences left to right. Duplicates are kept.
func Append() Reducer { return appendSeq{} }

// Custom wraps a user merge function. Errors it returns abort the superstep.
func Custom(name string, fn func(old, next any) (any, error)) Reducer {
	if name == "" {
		name = string(KindCustom)
	}
	return custom{name: name, fn: fn}
}

// Concat joins two sequences. A nil old value is treated as empty.
// The result keeps old's slice type when every new element fits it, as when
// decoded JSON ([]any of strings) is appended to a []string. Mixed element
// types fall back to []any.
// Two strings are joined as text. Anything else is a SchemaTypeError.
func Concat(key string, old, next any) (any, error) {
	if s, ok := next.(string); ok {
		switch o := old.(type) {
		case nil:
			return s, nil
		case string:
			return o + s, nil
		default:
			return nil, &domain.SchemaTypeError{Key: key, Operand: "old", Want: "a string", Value: old}
		}
	}

	nv, ok := sequence(next)
	if !ok {
		return nil, &domain.SchemaTypeError{Key: key, Operand: "new", Want: "a sequence", Value: next}
	}
	if old == nil {
		return copySeq(nv), nil
	}
	ov, ok := sequence(old)
	if !ok {
		return nil, &domain.SchemaTypeError{Key: key, Operand: "old", Want: "a sequence", Value: old}
	}

	if ov.Type() == nv.Type() && ov.Kind() == reflect.Slice {
		out := reflect.MakeSlice(ov.Type(), 0, ov.Len()+nv.Len())
		out = reflect.AppendSlice(out, ov)
		out = reflect.AppendSlice(out, nv)
		return out.Interface(), nil
	}
	if ov.Kind() == reflect.Slice && fits(nv, ov.Type().Elem()) {
		out := reflect.MakeSlice(ov.Type(), 0, ov.Len()+nv.Len())
		out = reflect.AppendSlice(out, ov)
		for i := 0; i < nv.Len(); i++ {
			out = reflect.Append(out, reflect.ValueOf(nv.Index(i).Interface()))
		}
		return out.Interface(), nil
	}

	out := make([]any, 0, ov.Len()+nv.Len())
	for i := 0; i < ov.Len(); i++ {
		out = append(out, ov.Index(i).Interface())
	}
	for i := 0; i < nv.Len(); i++ {
		out = append(out, nv.Index(i).Interface())
	}
	return out, nil
}

// fits reports whether every element of seq holds a non-nil value assignable to elem.
func fits(seq reflect.Value, elem reflect.Type) bool {
	for i := 0; i < seq.Len(); i++ {
		v := seq.Index(i).Interface()
		if v == nil || !reflect.TypeOf(v).AssignableTo(elem) {
			return false
		}
	}
	return true
}

// IsSequence reports whether v can be an Append operand.
func IsSequence(v any) bool {
	if _, ok := v.(string); ok {
		return true
	}
	_, ok := sequence(v)
	return ok
}

func sequence(v any) (reflect.Value, bool) {
	if v == nil {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv, true
	default:
		return reflect.Value{}, false
	}
}

func copySeq(v reflect.Value) any {
	if v.Kind() == reflect.Array {
		out := make([]any, v.Len())
		for i := range out {
			out[i] = v.Index(i).Interface()
		}
		return out
	}
	out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(out, v)
	return out.Interface()
}
