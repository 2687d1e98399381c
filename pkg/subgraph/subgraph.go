package subgraph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/google/uuid"
)

// Kind is the node kind reported in graph descriptions.
const Kind = "subgraph"

// Mapping renames keys between two states. Each entry maps a source key to a
// destination key: parent to child for input, child to parent for output.
type Mapping map[string]string

// apply copies the mapped keys present in src. Absent keys are skipped.
func (m Mapping) apply(src domain.Values) domain.Values {
	out := make(domain.Values, len(m))
	for from, to := range m {
		if v, ok := src[from]; ok {
			out[to] = v
		}
	}
	return out
}

// adapter runs a compiled child graph as a single node of its parent.
type adapter struct {
	child *graph.Graph
	run   func(ctx context.Context, exec *runtime.Executor, thread string, parent *schema.Schema, state domain.Values) (domain.Values, error)
}

// Kind implements graph.Kinder.
func (a *adapter) Kind() string { return Kind }

// Child implements graph.Parent.
func (a *adapter) Child() *graph.Graph { return a.child }

// Run invokes the child graph to completion. Inside a parent run the child
// shares the parent's store, locks and limits and uses a thread id derived
// from the parent's, so a retried superstep resumes the same child thread.
func (a *adapter) Run(ctx context.Context, state domain.Values) (domain.Values, error) {
	var (
		exec   *runtime.Executor
		thread string
		parent *schema.Schema
	)
	if scope, ok := runtime.ScopeFrom(ctx); ok {
		exec = runtime.NewExecutor(a.child, scope.Options()...)
		thread = scope.ChildThreadID()
		parent = scope.Schema
	} else {
		exec = runtime.NewExecutor(a.child)
		thread = uuid.NewString()
	}

	out, err := a.run(ctx, exec, thread, parent, state)
	if err != nil {
		return nil, fmt.Errorf("subgraph %s: %w", a.child.Name(), err)
	}
	return out, nil
}

// invoke starts the child thread with input, or continues it when it already
// exists from an earlier attempt of the same superstep.
func invoke(ctx context.Context, exec *runtime.Executor, thread string, input domain.Values) (domain.Values, error) {
	_, err := exec.State(ctx, thread)
	switch {
	case err == nil:
		input = nil
	case !errors.Is(err, domain.ErrThreadNotFound):
		return nil, err
	}

	res, err := exec.Invoke(ctx, thread, input)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// Func wraps child with caller-supplied translations. in builds the child
// input from the parent state; out turns the child's final values into the
// parent update. Nil functions pass values through unchanged.
func Func(child *graph.Graph, in, out func(domain.Values) domain.Values) graph.Node {
	if in == nil {
		in = passthrough
	}
	if out == nil {
		out = passthrough
	}
	return &adapter{
		child: child,
		run: func(ctx context.Context, exec *runtime.Executor, thread string, _ *schema.Schema, state domain.Values) (domain.Values, error) {
			values, err := invoke(ctx, exec, thread, in(state))
			if err != nil {
				return nil, err
			}
			return out(values), nil
		},
	}
}

// Isolated wraps child with explicit key mappings. Only the keys named in in
// reach the child, and only the keys named in out come back, as final values.
func Isolated(child *graph.Graph, in, out Mapping) graph.Node {
	return Func(child, in.apply, out.apply)
}

// Shared wraps child so that keys declared by both graphs flow through
// unchanged and child-only keys stay hidden. When the child declares output
// keys, only those come back. The update holds what the child changed:
// sequences grown on an Append channel report only their new tail, so the
// parent reducer does not duplicate elements.
func Shared(child *graph.Graph) graph.Node {
	return &adapter{
		child: child,
		run: func(ctx context.Context, exec *runtime.Executor, thread string, parent *schema.Schema, state domain.Values) (domain.Values, error) {
			keys := sharedKeys(child.Schema(), parent)
			input := state.Pick(keys...)

			values, err := invoke(ctx, exec, thread, input)
			if err != nil {
				return nil, err
			}

			visible := keys
			if outputs := child.OutputKeys(); len(outputs) > 0 {
				visible = slices.DeleteFunc(slices.Clone(keys), func(k string) bool {
					return !slices.Contains(outputs, k)
				})
			}

			update := make(domain.Values)
			for _, key := range visible {
				next, ok := values[key]
				if !ok {
					continue
				}
				prev, had := input[key]
				if had && reflect.DeepEqual(prev, next) {
					continue
				}
				if had && prev != nil && appends(key, parent, child.Schema()) {
					tail, ok := tailOf(prev, next)
					if !ok {
						return nil, fmt.Errorf("shared key %q was rewritten, not appended", key)
					}
					update[key] = tail
					continue
				}
				update[key] = next
			}
			return update, nil
		},
	}
}

// sharedKeys returns the child's keys also declared by parent, in the child's
// declaration order. Without a parent schema every child key is shared.
func sharedKeys(child, parent *schema.Schema) []string {
	keys := child.Keys()
	if parent == nil {
		return keys
	}
	return slices.DeleteFunc(keys, func(k string) bool { return !parent.Has(k) })
}

// appends reports whether key merges with Append on the receiving side.
func appends(key string, parent, child *schema.Schema) bool {
	s := parent
	if s == nil {
		s = child
	}
	c, ok := s.Channel(key)
	return ok && c.Reducer.Kind() == schema.KindAppend
}

// tailOf returns the elements next adds after prev, keeping next's type.
// Strings are treated as text.
func tailOf(prev, next any) (any, bool) {
	if ps, ok := prev.(string); ok {
		ns, ok := next.(string)
		if !ok || len(ns) < len(ps) || ns[:len(ps)] != ps {
			return nil, false
		}
		return ns[len(ps):], true
	}

	pv, nv := reflect.ValueOf(prev), reflect.ValueOf(next)
	if pv.Kind() != reflect.Slice || nv.Kind() != reflect.Slice || nv.Len() < pv.Len() {
		return nil, false
	}
	for i := 0; i < pv.Len(); i++ {
		if !reflect.DeepEqual(pv.Index(i).Interface(), nv.Index(i).Interface()) {
			return nil, false
		}
	}
	tail := reflect.MakeSlice(nv.Type(), nv.Len()-pv.Len(), nv.Len()-pv.Len())
	reflect.Copy(tail, nv.Slice(pv.Len(), nv.Len()))
	return tail.Interface(), true
}

func passthrough(v domain.Values) domain.Values { return v }
