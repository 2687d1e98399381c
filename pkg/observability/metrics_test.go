package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph(t *testing.T, fail bool) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder(schema.MustNew(schema.Field("out", schema.Overwrite())))
	require.NoError(t, b.AddNode("work", graph.NodeFunc(func(ctx context.Context, s domain.Values) (domain.Values, error) {
		if fail {
			return nil, errors.New("broken")
		}
		return domain.Values{"out": "done"}, nil
	})))
	require.NoError(t, b.AddEdge(domain.Start, "work"))
	require.NoError(t, b.AddEdge("work", domain.End))
	return b.MustCompile(graph.WithName("metrics"))
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.New(reg)
	ctx := context.Background()

	ok := runtime.NewExecutor(testGraph(t, false), runtime.WithLifecycleHooks(m.Hooks()))
	_, err := ok.Invoke(ctx, "a", nil)
	require.NoError(t, err)

	bad := runtime.NewExecutor(testGraph(t, true), runtime.WithLifecycleHooks(m.Hooks()))
	_, err = bad.Invoke(ctx, "b", nil)
	require.Error(t, err)

	expected := `
# HELP weft_supersteps_total Supersteps started.
# TYPE weft_supersteps_total counter
weft_supersteps_total{graph="metrics"} 2
# HELP weft_node_failures_total Node executions that returned an error, panicked or timed out.
# TYPE weft_node_failures_total counter
weft_node_failures_total{graph="metrics",node="work"} 1
# HELP weft_run_finished_total Invocations finished, by outcome.
# TYPE weft_run_finished_total counter
weft_run_finished_total{graph="metrics",status="completed"} 1
weft_run_finished_total{graph="metrics",status="failed"} 1
# HELP weft_checkpoints_total Checkpoints committed, by source.
# TYPE weft_checkpoints_total counter
weft_checkpoints_total{source="input",status="running"} 2
weft_checkpoints_total{source="loop",status="completed"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"weft_supersteps_total", "weft_node_failures_total", "weft_run_finished_total", "weft_checkpoints_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "weft_node_duration_seconds"))
	assert.Equal(t, uint64(2), histogramCount(t, reg, "weft_node_duration_seconds"))
}

// histogramCount sums the observations of every series of the named histogram.
func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var n uint64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			n += m.GetHistogram().GetSampleCount()
		}
	}
	return n
}

func TestDefault_RegistersOnce(t *testing.T) {
	assert.Same(t, observability.Default(), observability.Default())
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hooks := observability.LoggingHooks(logger)

	_, err := runtime.NewExecutor(testGraph(t, false), runtime.WithLifecycleHooks(hooks)).
		Invoke(context.Background(), "ok", nil)
	require.NoError(t, err)
	out := buf.String()
	for _, msg := range []string{"step_start", "node_enter", "node_leave", "step_commit", "run_finish"} {
		assert.Contains(t, out, `"msg":"`+msg+`"`)
	}
	assert.Contains(t, out, `"level":"INFO"`)

	buf.Reset()
	_, err = runtime.NewExecutor(testGraph(t, true), runtime.WithLifecycleHooks(hooks)).
		Invoke(context.Background(), "bad", nil)
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"err":"`)
}
