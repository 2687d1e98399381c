package demo

import (
	"context"
	"fmt"
	"sync"
)

// Model answers a conversation. system carries the node's instructions and
// messages the transcript so far, oldest first.
type Model interface {
	Reply(ctx context.Context, system string, messages []string) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, system string, messages []string) (string, error)

// Reply implements Model.
func (f ModelFunc) Reply(ctx context.Context, system string, messages []string) (string, error) {
	return f(ctx, system, messages)
}

// Echo replies with the last message, prefixed with prefix.
func Echo(prefix string) Model {
	return ModelFunc(func(_ context.Context, _ string, messages []string) (string, error) {
		if len(messages) == 0 {
			return prefix, nil
		}
		return prefix + messages[len(messages)-1], nil
	})
}

// Scripted replies with the given answers in order and repeats the last one
// once they run out. It is safe for concurrent use.
func Scripted(replies ...string) Model {
	var (
		mu   sync.Mutex
		next int
	)
	return ModelFunc(func(context.Context, string, []string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return "", fmt.Errorf("scripted model has no replies")
		}
		reply := replies[min(next, len(replies)-1)]
		next++
		return reply, nil
	})
}

// Retriever looks up documents relevant to a query within a domain.
type Retriever interface {
	Retrieve(ctx context.Context, domain, query string) ([]string, error)
}

// StaticRetriever serves fixed documents per domain.
type StaticRetriever map[string][]string

// Retrieve implements Retriever.
func (r StaticRetriever) Retrieve(_ context.Context, domain, _ string) ([]string, error) {
	return append([]string(nil), r[domain]...), nil
}

// messagesOf reads a transcript from state, whether typed or restored from a
// serialized checkpoint.
func messagesOf(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return nil
	}
}
