package demo

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/schema"
)

// Finish is the supervisor decision that ends the run.
const Finish = "FINISH"

var workers = []string{"researcher", "coder"}

// Supervisor lets a deciding model pick the next worker until it answers
// Finish. Every worker reports back to the supervisor.
func Supervisor(decider, worker Model) (*graph.Graph, error) {
	s, err := schema.New(
		schema.Field("messages", schema.Append(), schema.WithDefault([]string{})),
		schema.Field("next", schema.Overwrite(), schema.WithType(schema.String())),
	)
	if err != nil {
		return nil, err
	}

	paths := map[string]string{Finish: domain.End}
	for _, w := range workers {
		paths[w] = w
	}
	route := graph.Route(func(st domain.Values) string {
		next, _ := st["next"].(string)
		return next
	})

	b := dsl.New(s).Start("supervisor")
	b.Func("supervisor", decide(decider)).BranchMap(route, paths)
	for _, w := range workers {
		b.Func(w, work(worker, w)).To("supervisor")
	}
	return b.Build(graph.WithName("supervisor"))
}

func decide(model Model) func(context.Context, domain.Values) (domain.Values, error) {
	system := fmt.Sprintf("You supervise the workers %s. Answer with the worker to act next, or %s.",
		strings.Join(workers, ", "), Finish)
	return func(ctx context.Context, st domain.Values) (domain.Values, error) {
		next, err := model.Reply(ctx, system, messagesOf(st["messages"]))
		if err != nil {
			return nil, err
		}
		next = strings.TrimSpace(next)
		if next != Finish && !slices.Contains(workers, next) {
			return nil, fmt.Errorf("supervisor chose unknown worker %q", next)
		}
		return domain.Values{"next": next}, nil
	}
}

func work(model Model, name string) func(context.Context, domain.Values) (domain.Values, error) {
	system := fmt.Sprintf("You are the %s. Act on the first request in the conversation.", name)
	return func(ctx context.Context, st domain.Values) (domain.Values, error) {
		msgs := messagesOf(st["messages"])
		reply, err := model.Reply(ctx, system, msgs[:min(len(msgs), 1)])
		if err != nil {
			return nil, err
		}
		return domain.Values{"messages": []string{name + ": " + reply}}, nil
	}
}

func supervisorDemo() (Demo, error) {
	g, err := Supervisor(Scripted("researcher", "coder", Finish), Echo("done with "))
	if err != nil {
		return Demo{}, err
	}
	return Demo{
		Name:        "supervisor",
		Description: "Supervisor dispatching to workers until FINISH",
		Graph:       g,
		Input:       domain.Values{"messages": []string{"build a moving average in Go"}},
	}, nil
}
