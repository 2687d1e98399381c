package schema_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadDeclarations(t *testing.T) {
	_, err := schema.New(
		schema.Field("a", schema.Overwrite()),
		schema.Field("a", schema.Append()),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = schema.New(schema.Field("history", schema.Append(), schema.WithDefault(42)))
	assert.ErrorIs(t, err, domain.ErrSchemaType)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = schema.New(schema.Field("n", nil, schema.WithType(schema.Int()), schema.WithDefault("x")))
	assert.ErrorIs(t, err, domain.ErrSchemaType)
	assert.Len(t, schema.ValidationErrors(err), 1)
}

func TestDefaults(t *testing.T) {
	s := schema.MustNew(
		schema.Field("history", schema.Append(), schema.WithDefault([]string{"seed"})),
		schema.Field("path", nil),
	)

	d := s.Defaults()
	assert.Equal(t, domain.Values{"history": []string{"seed"}}, d)

	d["history"].([]string)[0] = "mutated"
	assert.Equal(t, []string{"seed"}, s.Defaults()["history"])
	assert.Equal(t, []string{"history", "path"}, s.Keys())
}

func TestReduce_RegistrationOrder(t *testing.T) {
	s := schema.MustNew(
		schema.Field("path", schema.Overwrite()),
		schema.Field("log", schema.Append()),
	)

	base := domain.Values{"path": "start", "log": []string{"s"}}
	writes := []schema.Write{
		{Node: "a", Values: domain.Values{"path": "a", "log": []string{"a"}}},
		{Node: "b", Values: domain.Values{"path": "b", "log": []string{"b"}}},
	}

	merged, provenance, err := s.Reduce(base, writes)
	require.NoError(t, err)

	assert.Equal(t, "b", merged["path"], "last registered writer wins")
	assert.Equal(t, []string{"s", "a", "b"}, merged["log"])
	assert.Equal(t, map[string][]string{"path": {"a", "b"}, "log": {"a", "b"}}, provenance)
	assert.Equal(t, "start", base["path"], "base must not change")
}

func TestReduce_Errors(t *testing.T) {
	failing := schema.Custom("fail", func(old, next any) (any, error) {
		return nil, errors.New("merge refused")
	})
	s := schema.MustNew(
		schema.Field("log", schema.Append()),
		schema.Field("x", failing),
		schema.Field("n", schema.Overwrite(), schema.WithType(schema.Int())),
	)

	_, _, err := s.Reduce(nil, []schema.Write{{Node: "a", Values: domain.Values{"log": 1}}})
	var re *domain.ReducerError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "log", re.Key)
	assert.Equal(t, "a", re.Node)
	assert.ErrorIs(t, err, domain.ErrSchemaType)

	_, _, err = s.Reduce(nil, []schema.Write{{Node: "b", Values: domain.Values{"x": 1}}})
	assert.ErrorIs(t, err, domain.ErrReducer)
	assert.ErrorContains(t, err, "merge refused")

	_, _, err = s.Reduce(nil, []schema.Write{{Node: "c", Values: domain.Values{"n": "not int"}}})
	assert.ErrorIs(t, err, domain.ErrSchemaType)

	_, _, err = s.Reduce(nil, []schema.Write{{Node: "d", Values: domain.Values{"ghost": 1}}})
	assert.ErrorIs(t, err, domain.ErrUndeclaredKey)
}

func TestReduce_CustomPanicIsReducerError(t *testing.T) {
	sum := schema.Custom("sum", func(old, next any) (any, error) {
		return old.(int) + next.(int), nil
	})
	s := schema.MustNew(schema.Field("total", sum))
	base := domain.Values{"total": 1}

	var merged domain.Values
	var err error
	require.NotPanics(t, func() {
		merged, _, err = s.Reduce(base, []schema.Write{{Node: "adder", Values: domain.Values{"total": "two"}}})
	})
	assert.Nil(t, merged)
	assert.ErrorIs(t, err, domain.ErrReducer)
	assert.ErrorContains(t, err, "reducer sum panicked")

	var re *domain.ReducerError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "total", re.Key)
	assert.Equal(t, "adder", re.Node)
	assert.Equal(t, 1, base["total"], "base is untouched")
}

func TestValidate(t *testing.T) {
	s := schema.MustNew(
		schema.Field("domain", nil, schema.WithType(schema.String())),
		schema.Field("history", schema.Append()),
	)

	require.NoError(t, s.Validate(domain.Values{"domain": "A", "history": []string{}}))

	err := s.Validate(domain.Values{"domain": 1, "history": "x", "ghost": true})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUndeclaredKey)
	// "x" is a string, which Append accepts as text; only domain and ghost fail.
	assert.Len(t, schema.ValidationErrors(err), 2)
}

func TestSchema_JSONRoundTrip(t *testing.T) {
	s := schema.MustNew(
		schema.Field("domain", nil, schema.WithType(schema.String())),
		schema.Field("history", schema.Append(), schema.WithType(schema.List(schema.String()))),
	)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"key":"domain","reducer":"overwrite","type":"string"},
		{"key":"history","reducer":"append","type":"[string]"}
	]`, string(data))

	var back schema.Schema
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s.Keys(), back.Keys())

	custom := schema.MustNew(schema.Field("x", schema.Custom("max", nil)))
	data, err = json.Marshal(custom)
	require.NoError(t, err)
	assert.Error(t, json.Unmarshal(data, &back))
}
