package demo

import (
	"context"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/schema"
)

const routerPrompt = "Decide which domain the query belongs to: A (medical records) or B (insurance). Output only the domain."

// Router classifies a query, retrieves documents from the matching domain
// and answers from them. A caller-supplied domain skips classification.
// Only documents, answer and path are returned.
func Router(model Model, retriever Retriever) (*graph.Graph, error) {
	s, err := schema.New(
		schema.Field("user_query", schema.Overwrite(), schema.WithType(schema.String())),
		schema.Field("domain", schema.Overwrite(), schema.WithType(schema.String())),
		schema.Field("documents", schema.Overwrite()),
		schema.Field("answer", schema.Overwrite(), schema.WithType(schema.String())),
		schema.Field("path", schema.Overwrite(), schema.WithType(schema.String())),
		schema.Field("messages", schema.Append(), schema.WithDefault([]string{})),
	)
	if err != nil {
		return nil, err
	}

	route := graph.Route(func(st domain.Values) string {
		if st["domain"] == "A" {
			return "left"
		}
		return "right"
	})

	return dsl.New(s).
		Start("router").
		Func("router", classify(model)).Branch(route, "left", "right").
		Func("left", answerFrom(model, retriever, "left")).Terminal().
		Func("right", answerFrom(model, retriever, "right")).Terminal().
		Build(graph.WithName("router"), graph.WithOutputKeys("documents", "answer", "path"))
}

func classify(model Model) func(context.Context, domain.Values) (domain.Values, error) {
	return func(ctx context.Context, st domain.Values) (domain.Values, error) {
		query, _ := st["user_query"].(string)
		if d, _ := st["domain"].(string); d != "" {
			return domain.Values{"messages": []string{query}}, nil
		}
		d, err := model.Reply(ctx, routerPrompt, append(messagesOf(st["messages"]), query))
		if err != nil {
			return nil, fmt.Errorf("classify query: %w", err)
		}
		return domain.Values{"domain": d, "messages": []string{query, d}}, nil
	}
}

func answerFrom(model Model, retriever Retriever, path string) func(context.Context, domain.Values) (domain.Values, error) {
	return func(ctx context.Context, st domain.Values) (domain.Values, error) {
		d, _ := st["domain"].(string)
		query, _ := st["user_query"].(string)
		docs, err := retriever.Retrieve(ctx, d, query)
		if err != nil {
			return nil, fmt.Errorf("retrieve %s: %w", d, err)
		}
		prompt := fmt.Sprintf("Answer using only these documents: %v", docs)
		answer, err := model.Reply(ctx, prompt, messagesOf(st["messages"]))
		if err != nil {
			return nil, err
		}
		return domain.Values{
			"documents": docs,
			"answer":    answer,
			"path":      path,
			"messages":  []string{answer},
		}, nil
	}
}

func routerDemo() (Demo, error) {
	g, err := Router(Echo("answer: "), StaticRetriever{
		"A": {"record: seasonal allergy, prescribed antihistamine"},
		"B": {"faq: COVID-19 treatment is covered in network"},
	})
	if err != nil {
		return Demo{}, err
	}
	return Demo{
		Name:        "router",
		Description: "Routes a query to one of two retrieval branches",
		Graph:       g,
		Input:       domain.Values{"user_query": "Am I covered for COVID-19 treatment?", "domain": "A"},
	}, nil
}
