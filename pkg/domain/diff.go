package domain

import (
	"reflect"
	"slices"
)

// SnapshotDiff represents the changes between two snapshots of the same thread.
// It is designed to be serialized to JSON for history views and live updates.
type SnapshotDiff struct {
	ThreadID string `json:"thread_id"`
	FromStep int    `json:"from_step"`
	ToStep   int    `json:"to_step"`

	// Values contains only changed, added or deleted keys.
	// Deleted keys are present with a nil value.
	Values map[string]any `json:"values,omitempty"`

	// Appended holds the new tail of sequence values that grew by appending.
	// Such keys are reported here instead of in Values.
	Appended map[string][]any `json:"appended,omitempty"`

	Frontier []string   `json:"frontier,omitempty"`
	Status   *RunStatus `json:"status,omitempty"`
}

// Diff calculates the difference between old and next.
// If old is nil, it returns a diff representing the entire next snapshot.
func Diff(old, next *Snapshot) *SnapshotDiff {
	if next == nil {
		return nil
	}

	diff := &SnapshotDiff{
		ThreadID: next.ThreadID,
		FromStep: -1,
		ToStep:   next.Step,
	}
	var oldValues Values
	if old != nil {
		diff.FromStep = old.Step
		oldValues = old.Values
	}

	if old == nil || old.Status != next.Status {
		status := next.Status
		diff.Status = &status
	}
	if old == nil || !slices.Equal(old.Frontier, next.Frontier) {
		diff.Frontier = slices.Clone(next.Frontier)
	}

	diff.Values, diff.Appended = diffValues(oldValues, next.Values)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffValues(old, next Values) (map[string]any, map[string][]any) {
	changed := make(map[string]any)
	appended := make(map[string][]any)

	for k, nv := range next {
		ov, exists := old[k]
		switch {
		case !exists:
			changed[k] = nv
		case reflect.DeepEqual(ov, nv):
		default:
			if tail, ok := appendedTail(ov, nv); ok {
				appended[k] = tail
				continue
			}
			changed[k] = nv
		}
	}
	for k := range old {
		if _, exists := next[k]; !exists {
			changed[k] = nil
		}
	}

	if len(changed) == 0 {
		changed = nil
	}
	if len(appended) == 0 {
		appended = nil
	}
	return changed, appended
}

// appendedTail reports the new elements when next extends old as a prefix.
func appendedTail(old, next any) ([]any, bool) {
	ov, nv := reflect.ValueOf(old), reflect.ValueOf(next)
	if ov.Kind() != reflect.Slice || nv.Kind() != reflect.Slice || nv.Len() <= ov.Len() {
		return nil, false
	}
	for i := 0; i < ov.Len(); i++ {
		if !reflect.DeepEqual(ov.Index(i).Interface(), nv.Index(i).Interface()) {
			return nil, false
		}
	}
	tail := make([]any, 0, nv.Len()-ov.Len())
	for i := ov.Len(); i < nv.Len(); i++ {
		tail = append(tail, nv.Index(i).Interface())
	}
	return tail, true
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Status == nil &&
		d.Frontier == nil &&
		len(d.Values) == 0 &&
		len(d.Appended) == 0
}
