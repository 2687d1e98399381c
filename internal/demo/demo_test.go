package demo_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/weft/internal/demo"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, d demo.Demo, opts ...runtime.Option) (*runtime.Executor, *domain.Result) {
	t.Helper()
	if d.StepLimit > 0 {
		opts = append(opts, runtime.WithStepLimit(d.StepLimit))
	}
	exec := runtime.NewExecutor(d.Graph, opts...)
	res, err := exec.Invoke(context.Background(), "t1", d.Input)
	require.NoError(t, err)
	return exec, res
}

func TestCatalog(t *testing.T) {
	demos, err := demo.Catalog()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"chatbot", "reflection", "router", "subgraph-isolated", "subgraph-shared", "supervisor", "tools",
	}, demo.Names())
	for _, d := range demos {
		assert.NotEmpty(t, d.Description, d.Name)
		assert.Equal(t, d.Name, d.Graph.Name(), "graph name of %s", d.Name)
	}

	_, err = demo.Get("nope")
	assert.ErrorContains(t, err, "unknown demo")
}

func TestRouter_VisitsOnlyTheChosenBranch(t *testing.T) {
	d, err := demo.Get("router")
	require.NoError(t, err)

	exec, res := run(t, d)
	assert.Equal(t, "left", res.Values["path"])
	assert.Equal(t, []string{"record: seasonal allergy, prescribed antihistamine"}, res.Values["documents"])
	assert.NotContains(t, res.Values, "messages", "output keys hide the transcript")

	history, err := exec.History(context.Background(), "t1")
	require.NoError(t, err)
	var visited []string
	for _, snap := range history {
		visited = append(visited, snap.Producers()...)
	}
	assert.Contains(t, visited, "left")
	assert.NotContains(t, visited, "right")
}

func TestRouter_ClassifiesWithTheModel(t *testing.T) {
	g, err := demo.Router(demo.Scripted("B", "covered"), demo.StaticRetriever{"B": {"faq"}})
	require.NoError(t, err)

	res, err := runtime.NewExecutor(g).Invoke(context.Background(), "", domain.Values{"user_query": "covid?"})
	require.NoError(t, err)
	assert.Equal(t, "right", res.Values["path"])
	assert.Equal(t, "covered", res.Values["answer"])
}

func TestReflection_ExitConditionBeatsCeiling(t *testing.T) {
	d, err := demo.Get("reflection")
	require.NoError(t, err)
	require.Equal(t, demo.ReflectionRounds, d.StepLimit)

	_, res := run(t, d)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 6, res.Step)
	assert.Len(t, res.Values["history"], 6)
	assert.Equal(t, []string{"draft", "needs depth", "revision", "tighten the ending", "revision", "good"}, res.Values["history"])
}

func TestReflection_LowerCeilingIsExceeded(t *testing.T) {
	g, err := demo.Reflection(demo.Echo("w"), demo.Echo("c"), demo.ReflectionRounds)
	require.NoError(t, err)

	_, err = runtime.NewExecutor(g, runtime.WithStepLimit(5)).Invoke(context.Background(), "t", domain.Values{"topic": "x"})
	var limit *domain.StepLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 5, limit.Limit)
	assert.Equal(t, []string{"reflect"}, limit.Frontier)
}

func TestSubgraphIsolated(t *testing.T) {
	d, err := demo.Get("subgraph-isolated")
	require.NoError(t, err)

	exec, res := run(t, d)
	assert.Equal(t, domain.Values{"foo": "hellobaz"}, res.Values)

	threads, err := exec.Threads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t1/node#1"}, threads)
}

func TestSubgraphShared(t *testing.T) {
	d, err := demo.Get("subgraph-shared")
	require.NoError(t, err)

	_, res := run(t, d)
	assert.Equal(t, domain.Values{"foo": "hellobar"}, res.Values)
}

func TestSupervisor_DispatchesUntilFinish(t *testing.T) {
	d, err := demo.Get("supervisor")
	require.NoError(t, err)

	_, res := run(t, d)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, demo.Finish, res.Values["next"])
	assert.Equal(t, []string{
		"build a moving average in Go",
		"researcher: done with build a moving average in Go",
		"coder: done with build a moving average in Go",
	}, res.Values["messages"])
}

func TestSupervisor_RejectsUnknownWorker(t *testing.T) {
	g, err := demo.Supervisor(demo.Scripted("janitor"), demo.Echo(""))
	require.NoError(t, err)

	_, err = runtime.NewExecutor(g).Invoke(context.Background(), "", nil)
	var nodeErr *domain.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "supervisor", nodeErr.NodeID)
	assert.ErrorContains(t, err, "janitor")
}

func TestChatbot_RemembersAcrossTurns(t *testing.T) {
	d, err := demo.Get("chatbot")
	require.NoError(t, err)

	exec, res := run(t, d)
	assert.Equal(t, "I remember 1 messages", res.Values["messages"].([]string)[1])

	res, err = exec.Invoke(context.Background(), "t1", domain.Values{"messages": []string{"What did you just say?"}})
	require.NoError(t, err)
	msgs := res.Values["messages"].([]string)
	require.Len(t, msgs, 4)
	assert.Equal(t, "I remember 3 messages", msgs[3])
}

func TestTools_CallsTheCalculator(t *testing.T) {
	d, err := demo.Get("tools")
	require.NoError(t, err)

	_, res := run(t, d)
	assert.Equal(t, "6 times 7 = 42", res.Values["answer"])

	results, err := registry.DecodeResults(res.Values[registry.DefaultResultsKey])
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "calculator", results[0].Name)
	assert.InDelta(t, 42.0, results[0].Result, 1e-9)
}

func TestTools_ReportsToolFailures(t *testing.T) {
	g, err := demo.Tools(demo.Toolbox(), demo.ArithmeticPlanner{})
	require.NoError(t, err)

	res, err := runtime.NewExecutor(g).Invoke(context.Background(), "", domain.Values{"query": "1 over 0"})
	require.NoError(t, err)
	assert.Equal(t, "the calculator failed: division by zero", res.Values["answer"])
}

func TestTools_RunsNamedTool(t *testing.T) {
	reg := demo.Toolbox()
	reg.Register("shout", func(_ context.Context, args map[string]any) (any, error) {
		text, _ := args["text"].(string)
		return strings.ToUpper(text), nil
	})
	d, err := demo.Get("tools", demo.WithToolbox(reg))
	require.NoError(t, err)

	res, err := runtime.NewExecutor(d.Graph).Invoke(context.Background(), "", domain.Values{"query": "run shout text=hey"})
	require.NoError(t, err)
	assert.Equal(t, "shout: HEY", res.Values["answer"])

	res, err = runtime.NewExecutor(d.Graph).Invoke(context.Background(), "", domain.Values{"query": "run missing"})
	require.NoError(t, err)
	assert.Equal(t, `no tool called "missing"`, res.Values["answer"])
}

func TestScripted_Errors(t *testing.T) {
	_, err := demo.Scripted().Reply(context.Background(), "", nil)
	assert.Error(t, err)

	failing := demo.ModelFunc(func(context.Context, string, []string) (string, error) {
		return "", errors.New("offline")
	})
	g, err := demo.Chatbot(failing)
	require.NoError(t, err)
	_, err = runtime.NewExecutor(g).Invoke(context.Background(), "", domain.Values{"messages": []string{"hi"}})
	assert.ErrorContains(t, err, "offline")
}
