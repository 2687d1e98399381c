package demo

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/schema"
)

// Planner turns a query into tool calls, or into an answer once the results
// of earlier calls are known.
type Planner interface {
	Plan(ctx context.Context, query string, tools []string, results []registry.Result) ([]registry.Call, string, error)
}

// Tools selects the tools relevant to the query, then alternates the
// planner and the tool node until the planner answers without calls.
func Tools(reg *registry.Registry, planner Planner) (*graph.Graph, error) {
	s, err := schema.New(
		schema.Field("query", schema.Overwrite(), schema.WithType(schema.String())),
		schema.Field("selected_tools", schema.Overwrite()),
		schema.Field(registry.DefaultCallsKey, schema.Overwrite()),
		schema.Field(registry.DefaultResultsKey, schema.Overwrite()),
		schema.Field("answer", schema.Overwrite(), schema.WithType(schema.String())),
	)
	if err != nil {
		return nil, err
	}

	hasCalls := graph.Route(func(st domain.Values) string {
		switch calls := st[registry.DefaultCallsKey].(type) {
		case []registry.Call:
			if len(calls) > 0 {
				return "tools"
			}
		case []any:
			if len(calls) > 0 {
				return "tools"
			}
		}
		return domain.End
	})

	return dsl.New(s).
		Start("select_tools").
		Func("select_tools", selectTools(reg)).To("model").
		Func("model", plan(planner)).Branch(hasCalls, "tools", domain.End).
		Node("tools", registry.NewToolNode(reg)).To("model").
		Build(graph.WithName("tools"), graph.WithOutputKeys("answer", registry.DefaultResultsKey))
}

// selectTools keeps the tool named by a "run <tool>" query, the calculator
// for queries with digits and the echo tool otherwise.
func selectTools(reg *registry.Registry) func(context.Context, domain.Values) (domain.Values, error) {
	return func(_ context.Context, st domain.Values) (domain.Values, error) {
		query, _ := st["query"].(string)
		want := "echo"
		if name, _, ok := parseRun(query); ok {
			want = name
		} else if strings.ContainsAny(query, "0123456789") {
			want = "calculator"
		}
		var selected []string
		for _, name := range reg.Names() {
			if name == want {
				selected = append(selected, name)
			}
		}
		return domain.Values{"selected_tools": selected}, nil
	}
}

func plan(planner Planner) func(context.Context, domain.Values) (domain.Values, error) {
	return func(ctx context.Context, st domain.Values) (domain.Values, error) {
		query, _ := st["query"].(string)
		tools := messagesOf(st["selected_tools"])

		var results []registry.Result
		if v := st[registry.DefaultResultsKey]; v != nil {
			var err error
			if results, err = registry.DecodeResults(v); err != nil {
				return nil, err
			}
		}

		calls, answer, err := planner.Plan(ctx, query, tools, results)
		if err != nil {
			return nil, err
		}
		return domain.Values{registry.DefaultCallsKey: calls, "answer": answer}, nil
	}
}

// ArithmeticPlanner handles queries of the form "<a> <op> <b>", where op is
// plus, minus, times or over, by calling the calculator tool once.
type ArithmeticPlanner struct{}

var arithmeticOps = map[string]string{"plus": "add", "minus": "sub", "times": "mul", "over": "div"}

// Plan implements Planner.
func (ArithmeticPlanner) Plan(_ context.Context, query string, tools []string, results []registry.Result) ([]registry.Call, string, error) {
	if len(results) > 0 {
		r := results[len(results)-1]
		if r.IsError {
			return nil, "the calculator failed: " + r.Error, nil
		}
		return nil, fmt.Sprintf("%s = %v", query, r.Result), nil
	}

	fields := strings.Fields(query)
	op, known := "", false
	if len(fields) == 3 {
		op, known = arithmeticOps[fields[1]]
	}
	if !known || len(tools) == 0 || tools[0] != "calculator" {
		return nil, "I can only do arithmetic like \"6 times 7\"", nil
	}
	a, errA := strconv.ParseFloat(fields[0], 64)
	b, errB := strconv.ParseFloat(fields[2], 64)
	if errA != nil || errB != nil {
		return nil, "", fmt.Errorf("parse operands of %q", query)
	}
	return []registry.Call{{
		ID:   "call-1",
		Name: "calculator",
		Args: map[string]any{"op": op, "a": a, "b": b},
	}}, "", nil
}

// CommandPlanner handles queries of the form "run <tool> [key=value ...]" by
// calling the named tool once with the given arguments. Other queries go to
// Next.
type CommandPlanner struct {
	Next Planner
}

// Plan implements Planner.
func (p CommandPlanner) Plan(ctx context.Context, query string, tools []string, results []registry.Result) ([]registry.Call, string, error) {
	name, args, ok := parseRun(query)
	if !ok {
		return p.Next.Plan(ctx, query, tools, results)
	}
	if len(results) > 0 {
		r := results[len(results)-1]
		if r.IsError {
			return nil, name + " failed: " + r.Error, nil
		}
		return nil, fmt.Sprintf("%s: %v", name, r.Result), nil
	}
	if !slices.Contains(tools, name) {
		return nil, fmt.Sprintf("no tool called %q", name), nil
	}
	return []registry.Call{{ID: "call-1", Name: name, Args: args}}, "", nil
}

func parseRun(query string) (string, map[string]any, bool) {
	fields := strings.Fields(query)
	if len(fields) < 2 || fields[0] != "run" {
		return "", nil, false
	}
	args := make(map[string]any, len(fields)-2)
	for _, f := range fields[2:] {
		k, v, _ := strings.Cut(f, "=")
		args[k] = v
	}
	return fields[1], args, true
}

// Toolbox returns a registry with the calculator and an echo tool.
func Toolbox() *registry.Registry {
	reg := registry.NewRegistry()
	reg.Register("calculator", registry.Calculator)
	reg.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
	return reg
}

func toolsDemo(reg *registry.Registry) (Demo, error) {
	g, err := Tools(reg, CommandPlanner{Next: ArithmeticPlanner{}})
	if err != nil {
		return Demo{}, err
	}
	return Demo{
		Name:        "tools",
		Description: "Planner and tool node loop around a calculator and allow-listed commands",
		Graph:       g,
		Input:       domain.Values{"query": "6 times 7"},
	}, nil
}
