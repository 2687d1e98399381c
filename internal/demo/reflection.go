package demo

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/schema"
)

// ReflectionRounds is the number of history entries after which the
// reflection loop stops.
const ReflectionRounds = 6

const (
	generatePrompt = "You are an essay assistant. Write the best essay for the request, revising it when given critique."
	reflectPrompt  = "You are a reviewer grading an essay. Give critique and recommendations."
)

// Reflection alternates a writer and a critic. Each appends one entry to
// history; the critic ends the run once history holds rounds entries.
func Reflection(writer, critic Model, rounds int) (*graph.Graph, error) {
	s, err := schema.New(
		schema.Field("topic", schema.Overwrite(), schema.WithType(schema.String())),
		schema.Field("history", schema.Append(), schema.WithDefault([]string{})),
	)
	if err != nil {
		return nil, err
	}

	next := graph.Route(func(st domain.Values) string {
		if len(messagesOf(st["history"])) >= rounds {
			return domain.End
		}
		return "generate"
	})

	return dsl.New(s).
		Start("generate").
		Func("generate", speak(writer, generatePrompt)).To("reflect").
		Func("reflect", speak(critic, reflectPrompt)).Branch(next, "generate", domain.End).
		Build(graph.WithName("reflection"))
}

func speak(model Model, system string) func(context.Context, domain.Values) (domain.Values, error) {
	return func(ctx context.Context, st domain.Values) (domain.Values, error) {
		topic, _ := st["topic"].(string)
		reply, err := model.Reply(ctx, system, append([]string{topic}, messagesOf(st["history"])...))
		if err != nil {
			return nil, err
		}
		return domain.Values{"history": []string{reply}}, nil
	}
}

func reflectionDemo() (Demo, error) {
	g, err := Reflection(Scripted("draft", "revision"), Scripted("needs depth", "tighten the ending", "good"), ReflectionRounds)
	if err != nil {
		return Demo{}, err
	}
	return Demo{
		Name:        "reflection",
		Description: "Writer and critic loop bounded by an exit condition and a step ceiling",
		Graph:       g,
		Input:       domain.Values{"topic": "the future of algorithmic trading"},
		StepLimit:   ReflectionRounds,
	}, nil
}
