package runtime_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_AttachedToNodes(t *testing.T) {
	var seen runtime.Scope
	nodes := map[string]graph.Node{"b": graph.NodeFunc(func(ctx context.Context, s domain.Values) (domain.Values, error) {
		scope, ok := runtime.ScopeFrom(ctx)
		require.True(t, ok)
		seen = scope
		return nil, nil
	})}
	exec := runtime.NewExecutor(chain(t, nodes, "a", "b"),
		runtime.WithStepLimit(7),
		runtime.WithNodeTimeout(time.Second),
	)

	_, err := exec.Invoke(context.Background(), "parent", nil)
	require.NoError(t, err)

	assert.Equal(t, "parent", seen.ThreadID)
	assert.Equal(t, 2, seen.Step)
	assert.Equal(t, "b", seen.NodeID)
	assert.Equal(t, 7, seen.StepLimit)
	assert.Same(t, exec.Sessions(), seen.Sessions)
	assert.Equal(t, "parent/b#2", seen.ChildThreadID())
}

func TestScope_AbsentOutsideRuns(t *testing.T) {
	_, ok := runtime.ScopeFrom(context.Background())
	assert.False(t, ok)
}

func TestScope_OptionsShareStore(t *testing.T) {
	parent := runtime.NewExecutor(chain(t, nil, "a"))
	scope := runtime.Scope{ThreadID: "p", NodeID: "n", Step: 1, Sessions: parent.Sessions(), StepLimit: 3}

	child := runtime.NewExecutor(chain(t, nil, "x"), scope.Options()...)
	_, err := child.Invoke(context.Background(), scope.ChildThreadID(), nil)
	require.NoError(t, err)

	threads, err := parent.Threads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p/n#1"}, threads)
}

func TestScope_NestedRunLogsItsOwnGraph(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	b := graph.NewBuilder(testSchema())
	require.NoError(t, b.AddNode("x", logNode("x")))
	require.NoError(t, b.AddEdge(domain.Start, "x"))
	require.NoError(t, b.AddEdge("x", domain.End))
	inner := b.MustCompile(graph.WithName("inner"))
	nodes := map[string]graph.Node{"b": graph.NodeFunc(func(ctx context.Context, s domain.Values) (domain.Values, error) {
		scope, _ := runtime.ScopeFrom(ctx)
		child := runtime.NewExecutor(inner, scope.Options()...)
		_, err := child.Invoke(ctx, scope.ChildThreadID(), nil)
		return nil, err
	})}
	outer := chain(t, nodes, "a", "b")
	exec := runtime.NewExecutor(outer, runtime.WithLogger(logger))

	_, err := exec.Invoke(context.Background(), "parent", nil)
	require.NoError(t, err)

	var graphs, threads []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, "run finished") {
			continue
		}
		assert.Equal(t, 1, strings.Count(line, `"graph":`), line)
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		graphs = append(graphs, record["graph"].(string))
		threads = append(threads, record["thread_id"].(string))
	}
	assert.Equal(t, []string{"inner", "chain"}, graphs)
	assert.Equal(t, []string{"parent/b#2", "parent"}, threads)
}
