package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

// Redactor masks values whose key matches one of its patterns, at any depth
// of nested maps.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles the key patterns.
func NewRedactor(patterns ...string) (*Redactor, error) {
	r := &Redactor{patterns: make([]*regexp.Regexp, len(patterns))}
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p, err)
		}
		r.patterns[i] = re
	}
	return r, nil
}

// Values returns a masked deep copy of v.
func (r *Redactor) Values(v domain.Values) domain.Values {
	out := v.Clone()
	if r != nil {
		r.mask(out)
	}
	return out
}

// Snapshot returns a masked copy of snap.
func (r *Redactor) Snapshot(snap *domain.Snapshot) *domain.Snapshot {
	if snap == nil {
		return nil
	}
	out := snap.Clone()
	out.Values = r.Values(snap.Values)
	return out
}

func (r *Redactor) mask(m map[string]any) {
	for k, v := range m {
		if r.matches(k) {
			m[k] = Mask
			continue
		}
		switch sub := v.(type) {
		case map[string]any:
			r.mask(sub)
		case domain.Values:
			r.mask(sub)
		}
	}
}

func (r *Redactor) matches(key string) bool {
	for _, p := range r.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

type redactionMiddleware struct {
	next     ports.CheckpointStore
	redactor *Redactor
}

// NewRedactionMiddleware masks matching keys before records reach next.
// Masked values cannot be restored, so a redacting store suits audit copies
// and exports; threads that must resume need the unredacted store.
func NewRedactionMiddleware(r *Redactor) Middleware {
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &redactionMiddleware{next: next, redactor: r}
	}
}

func (m *redactionMiddleware) Put(ctx context.Context, threadID string, step int, snap *domain.Snapshot) error {
	return m.next.Put(ctx, threadID, step, m.redactor.Snapshot(snap))
}

func (m *redactionMiddleware) Latest(ctx context.Context, threadID string) (*domain.Snapshot, error) {
	return m.next.Latest(ctx, threadID)
}

func (m *redactionMiddleware) History(ctx context.Context, threadID string) ([]*domain.Snapshot, error) {
	return m.next.History(ctx, threadID)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *redactionMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}
