package schema_test

import (
	"errors"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverwrite(t *testing.T) {
	got, err := schema.Overwrite().Apply("k", "old", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestAppend(t *testing.T) {
	r := schema.Append()

	tests := []struct {
		name string
		old  any
		next any
		want any
	}{
		{"nil old", nil, []string{"a"}, []string{"a"}},
		{"same type", []string{"a"}, []string{"b", "a"}, []string{"a", "b", "a"}},
		{"mixed types", []any{"a"}, []string{"b"}, []any{"a", "b"}},
		{"decoded elements keep old type", []string{"a"}, []any{"b"}, []string{"a", "b"}},
		{"decoded elements that do not fit", []string{"a"}, []any{1}, []any{"a", 1}},
		{"empty next", []int{1}, []int{}, []int{1}},
		{"strings", "hello", "baz", "hellobaz"},
		{"array", nil, [2]int{1, 2}, []any{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Apply("k", tt.old, tt.next)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppend_DoesNotAliasOperands(t *testing.T) {
	old := make([]string, 1, 10)
	old[0] = "a"

	got, err := schema.Append().Apply("k", old, []string{"b"})
	require.NoError(t, err)

	got.([]string)[0] = "changed"
	assert.Equal(t, "a", old[0])
}

func TestAppend_Associative(t *testing.T) {
	a, b, c := []any{1}, []any{2, 3}, []any{4}
	r := schema.Append()

	ab, err := r.Apply("k", a, b)
	require.NoError(t, err)
	left, err := r.Apply("k", ab, c)
	require.NoError(t, err)

	bc, err := r.Apply("k", b, c)
	require.NoError(t, err)
	right, err := r.Apply("k", a, bc)
	require.NoError(t, err)

	assert.Equal(t, left, right)
}

func TestAppend_TypeErrors(t *testing.T) {
	r := schema.Append()

	_, err := r.Apply("history", []string{"a"}, 1)
	var typeErr *domain.SchemaTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, "new", typeErr.Operand)
	assert.ErrorIs(t, err, domain.ErrSchemaType)

	_, err = r.Apply("history", 7, []string{"a"})
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, "old", typeErr.Operand)

	_, err = r.Apply("history", []string{"a"}, "b")
	assert.ErrorIs(t, err, domain.ErrSchemaType)
}

func TestCustom(t *testing.T) {
	max := schema.Custom("max", func(old, next any) (any, error) {
		o, _ := old.(int)
		n, ok := next.(int)
		if !ok {
			return nil, errors.New("not an int")
		}
		if n > o {
			return n, nil
		}
		return o, nil
	})

	assert.Equal(t, schema.KindCustom, max.Kind())
	assert.Equal(t, "max", max.Name())

	got, err := max.Apply("score", 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	_, err = max.Apply("score", 3, "x")
	assert.EqualError(t, err, "not an int")
}
