package registry_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Execute(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("echo", func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
	reg.Register("calculator", registry.Calculator)

	out, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, []string{"calculator", "echo"}, reg.Names())

	_, err = reg.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, registry.ErrToolNotFound)
}

func TestCalculator(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    float64
		wantErr string
	}{
		{name: "add ints", args: map[string]any{"op": "add", "a": 10, "b": 20}, want: 30},
		{name: "sub floats", args: map[string]any{"op": "sub", "a": 2.5, "b": 1.0}, want: 1.5},
		{name: "mul strings", args: map[string]any{"op": "mul", "a": "3", "b": "4"}, want: 12},
		{name: "div", args: map[string]any{"op": "div", "a": 9, "b": 3}, want: 3},
		{name: "div by zero", args: map[string]any{"op": "div", "a": 1, "b": 0}, wantErr: "division by zero"},
		{name: "unknown op", args: map[string]any{"op": "pow", "a": 1, "b": 2}, wantErr: "unsupported operation"},
		{name: "unknown arg", args: map[string]any{"op": "add", "a": 1, "c": 2}, wantErr: "calculator arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.Calculator(context.Background(), tt.args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolNode_InGraph(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("calculator", registry.Calculator)

	s := schema.MustNew(
		schema.Field(registry.DefaultCallsKey, schema.Overwrite()),
		schema.Field(registry.DefaultResultsKey, schema.Append()),
	)
	b := graph.NewBuilder(s)
	require.NoError(t, b.AddNode("tools", registry.NewToolNode(reg)))
	require.NoError(t, b.AddEdge(domain.Start, "tools"))
	require.NoError(t, b.AddEdge("tools", domain.End))
	g := b.MustCompile()
	assert.Equal(t, registry.KindTool, g.Kind("tools"))

	exec := runtime.NewExecutor(g)
	res, err := exec.Invoke(context.Background(), "t", domain.Values{
		registry.DefaultCallsKey: []any{
			map[string]any{"id": "1", "name": "calculator", "args": map[string]any{"op": "mul", "a": 6, "b": 7}},
			map[string]any{"id": "2", "name": "weather"},
		},
	})
	require.NoError(t, err)

	results, err := registry.DecodeResults(res.Values[registry.DefaultResultsKey])
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, registry.Result{ID: "1", Name: "calculator", Result: float64(42)}, results[0])
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Error, "tool not found")
}

func TestToolNode_FailFast(t *testing.T) {
	reg := registry.NewRegistry()
	node := registry.NewToolNode(reg, registry.WithFailFast(), registry.WithCallsKey("calls"), registry.WithResultsKey("out"))

	_, err := node.Run(context.Background(), domain.Values{"calls": []registry.Call{{ID: "a", Name: "nope"}}})
	assert.ErrorIs(t, err, registry.ErrToolNotFound)

	out, err := node.Run(context.Background(), domain.Values{})
	require.NoError(t, err)
	assert.Nil(t, out, "no calls, no writes")
}

func TestDecodeResults_FromJSON(t *testing.T) {
	data, err := json.Marshal([]registry.Result{{ID: "1", Name: "calculator", Result: 2.0}})
	require.NoError(t, err)
	var restored any
	require.NoError(t, json.Unmarshal(data, &restored))

	results, err := registry.DecodeResults(restored)
	require.NoError(t, err)
	assert.Equal(t, []registry.Result{{ID: "1", Name: "calculator", Result: 2.0}}, results)
}
