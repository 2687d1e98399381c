package schema

import (
	"fmt"
	"slices"

	"github.com/aretw0/weft/pkg/domain"
)

// Channel declares one state key and its merge policy.
type Channel struct {
	Key     string
	Reducer Reducer
	Type    Type
	Default any

	hasDefault bool
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithDefault seeds the key when a thread starts.
func WithDefault(v any) ChannelOption {
	return func(c *Channel) {
		c.Default = v
		c.hasDefault = true
	}
}

// WithType constrains the reduced value of the key.
func WithType(t Type) ChannelOption {
	return func(c *Channel) {
		c.Type = t
	}
}

// Field declares a channel. A nil reducer means Overwrite.
func Field(key string, r Reducer, opts ...ChannelOption) Channel {
	if r == nil {
		r = Overwrite()
	}
	c := Channel{Key: key, Reducer: r}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// HasDefault reports whether the channel is seeded on thread start.
func (c Channel) HasDefault() bool { return c.hasDefault }

// Schema is the ordered set of channels a graph may read and write.
// It is immutable after New and safe for concurrent use.
type Schema struct {
	channels []Channel
	index    map[string]int
}

// New validates the channel declarations and returns a Schema.
// Defaults are checked against the channel reducer and type.
func New(channels ...Channel) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(channels))}
	var errs []error

	for _, c := range channels {
		if c.Key == "" {
			errs = append(errs, &domain.ConfigError{Detail: "channel key cannot be empty"})
			continue
		}
		if _, dup := s.index[c.Key]; dup {
			errs = append(errs, &domain.ConfigError{Key: c.Key, Detail: "channel declared twice"})
			continue
		}
		if c.hasDefault {
			if err := checkDefault(c); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		s.index[c.Key] = len(s.channels)
		s.channels = append(s.channels, c)
	}

	if len(errs) > 0 {
		return nil, &AggregateError{Errors: errs}
	}
	return s, nil
}

// MustNew is like New but panics on error. Intended for package-level schemas.
func MustNew(channels ...Channel) *Schema {
	s, err := New(channels...)
	if err != nil {
		panic(err)
	}
	return s
}

func checkDefault(c Channel) error {
	if c.Reducer.Kind() == KindAppend && c.Default != nil && !IsSequence(c.Default) {
		return &domain.ConfigError{
			Kind: domain.ErrSchemaType,
			Key:  c.Key,
			Err:  &domain.SchemaTypeError{Key: c.Key, Operand: "default", Want: "a sequence", Value: c.Default},
		}
	}
	if c.Type != nil && c.Default != nil {
		if err := c.Type.Check(c.Default); err != nil {
			return &domain.ConfigError{
				Kind: domain.ErrSchemaType,
				Key:  c.Key,
				Err:  &domain.SchemaTypeError{Key: c.Key, Operand: "default", Want: c.Type.Name(), Value: c.Default},
			}
		}
	}
	return nil
}

// Keys returns the channel keys in declaration order.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.channels))
	for i, c := range s.channels {
		keys[i] = c.Key
	}
	return keys
}

// Has reports whether key is declared.
func (s *Schema) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Channel returns the declaration for key.
func (s *Schema) Channel(key string) (Channel, bool) {
	i, ok := s.index[key]
	if !ok {
		return Channel{}, false
	}
	return s.channels[i], true
}

// Channels returns a copy of the declarations in order.
func (s *Schema) Channels() []Channel {
	return slices.Clone(s.channels)
}

// Defaults returns the initial values of a new thread.
func (s *Schema) Defaults() domain.Values {
	out := domain.Values{}
	for _, c := range s.channels {
		if c.hasDefault {
			out[c.Key] = c.Default
		}
	}
	return out.Clone()
}

// Undeclared returns the keys of v that the schema does not declare, sorted.
func (s *Schema) Undeclared(v domain.Values) []string {
	var out []string
	for _, k := range v.Keys() {
		if !s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Write is the partial update one node produced in a superstep.
type Write struct {
	Node   string
	Values domain.Values
}

// Reduce folds writes into base in the order given and returns the merged
// values with per-key provenance. base is not modified. Callers order writes
// by node registration, which makes Overwrite conflicts deterministic:
// the last writer wins.
//
// Errors are *domain.ReducerError without thread or step set.
func (s *Schema) Reduce(base domain.Values, writes []Write) (domain.Values, map[string][]string, error) {
	merged := make(domain.Values, len(base))
	for k, v := range base {
		merged[k] = v
	}
	provenance := make(map[string][]string)

	for _, w := range writes {
		for _, key := range w.Values.Keys() {
			c, ok := s.Channel(key)
			if !ok {
				return nil, nil, &domain.ReducerError{
					Key: key, Node: w.Node,
					Err: fmt.Errorf("%w: %q", domain.ErrUndeclaredKey, key),
				}
			}
			next, err := apply(c.Reducer, key, merged[key], w.Values[key])
			if err != nil {
				return nil, nil, &domain.ReducerError{Key: key, Node: w.Node, Err: err}
			}
			merged[key] = next
			provenance[key] = append(provenance[key], w.Node)
		}
	}

	for _, c := range s.channels {
		producers, touched := provenance[c.Key]
		if !touched || c.Type == nil {
			continue
		}
		if err := c.Type.Check(merged[c.Key]); err != nil {
			return nil, nil, &domain.ReducerError{
				Key:  c.Key,
				Node: producers[len(producers)-1],
				Err:  &domain.SchemaTypeError{Key: c.Key, Operand: "new", Want: c.Type.Name(), Value: merged[c.Key]},
			}
		}
	}

	return merged, provenance, nil
}

// apply runs r, reporting a panic as an error.
func apply(r Reducer, key string, old, next any) (merged any, err error) {
	defer func() {
		if p := recover(); p != nil {
			merged, err = nil, fmt.Errorf("reducer %s panicked: %v", r.Name(), p)
		}
	}()
	return r.Apply(key, old, next)
}

// Validate checks every present key of v against the declared channels.
// Unknown keys and type mismatches are reported together in an AggregateError.
func (s *Schema) Validate(v domain.Values) error {
	var errs []error
	for _, key := range v.Keys() {
		c, ok := s.Channel(key)
		if !ok {
			errs = append(errs, &ValidationError{Key: key, Reason: "not declared", Err: domain.ErrUndeclaredKey})
			continue
		}
		if c.Reducer.Kind() == KindAppend && v[key] != nil && !IsSequence(v[key]) {
			errs = append(errs, &ValidationError{Key: key, Reason: "append channel requires a sequence", Value: v[key], Err: domain.ErrSchemaType})
			continue
		}
		if c.Type != nil && c.Reducer.Kind() != KindCustom {
			if err := c.Type.Check(v[key]); err != nil {
				errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: v[key]})
			}
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
