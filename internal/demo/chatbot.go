package demo

import (
	"context"
	"strconv"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/schema"
)

const chatbotPrompt = "You are a helpful assistant. Answer all questions to the best of your ability."

// Chatbot answers the latest message with the whole transcript in view.
// Each turn on the same thread sees the earlier ones.
func Chatbot(model Model) (*graph.Graph, error) {
	s, err := schema.New(schema.Field("messages", schema.Append(), schema.WithDefault([]string{})))
	if err != nil {
		return nil, err
	}
	return dsl.New(s).
		Start("chatbot").
		Func("chatbot", func(ctx context.Context, st domain.Values) (domain.Values, error) {
			reply, err := model.Reply(ctx, chatbotPrompt, messagesOf(st["messages"]))
			if err != nil {
				return nil, err
			}
			return domain.Values{"messages": []string{reply}}, nil
		}).Terminal().
		Build(graph.WithName("chatbot"))
}

// Recall is a fake model that answers with how many messages it has seen.
func Recall() Model {
	return ModelFunc(func(_ context.Context, _ string, messages []string) (string, error) {
		return "I remember " + strconv.Itoa(len(messages)) + " messages", nil
	})
}

func chatbotDemo() (Demo, error) {
	g, err := Chatbot(Recall())
	if err != nil {
		return Demo{}, err
	}
	return Demo{
		Name:        "chatbot",
		Description: "Single-node chatbot with memory across turns",
		Graph:       g,
		Input:       domain.Values{"messages": []string{"Translate to French: I love programming."}},
	}, nil
}
