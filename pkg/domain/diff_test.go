package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	running := StatusRunning
	completed := StatusCompleted

	tests := []struct {
		name     string
		old      *Snapshot
		new      *Snapshot
		wantDiff *SnapshotDiff // nil means we expect no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &Snapshot{
				ThreadID: "t-1",
				Step:     0,
				Status:   StatusRunning,
				Values:   Values{"a": 1},
				Frontier: []string{"router"},
			},
			wantDiff: &SnapshotDiff{
				ThreadID: "t-1",
				FromStep: -1,
				ToStep:   0,
				Status:   &running,
				Frontier: []string{"router"},
				Values:   map[string]any{"a": 1},
			},
		},
		{
			name: "No Changes",
			old: &Snapshot{
				ThreadID: "t-1", Step: 1, Status: StatusRunning,
				Values: Values{"a": 1}, Frontier: []string{"left"},
			},
			new: &Snapshot{
				ThreadID: "t-1", Step: 2, Status: StatusRunning,
				Values: Values{"a": 1}, Frontier: []string{"left"},
			},
			wantDiff: nil,
		},
		{
			name: "Completion",
			old: &Snapshot{
				ThreadID: "t-1", Step: 1, Status: StatusRunning,
				Values: Values{"path": "router"}, Frontier: []string{"left"},
			},
			new: &Snapshot{
				ThreadID: "t-1", Step: 2, Status: StatusCompleted,
				Values: Values{"path": "left"},
			},
			wantDiff: &SnapshotDiff{
				ThreadID: "t-1",
				FromStep: 1,
				ToStep:   2,
				Status:   &completed,
				Values:   map[string]any{"path": "left"},
			},
		},
		{
			name: "Append Detection",
			old: &Snapshot{
				ThreadID: "t-1", Step: 1, Status: StatusRunning,
				Values: Values{"history": []any{"draft"}}, Frontier: []string{"reflect"},
			},
			new: &Snapshot{
				ThreadID: "t-1", Step: 2, Status: StatusRunning,
				Values: Values{"history": []any{"draft", "critique"}}, Frontier: []string{"reflect"},
			},
			wantDiff: &SnapshotDiff{
				ThreadID: "t-1",
				FromStep: 1,
				ToStep:   2,
				Appended: map[string][]any{"history": {"critique"}},
			},
		},
		{
			name: "Deletion",
			old: &Snapshot{
				ThreadID: "t-1", Step: 3, Status: StatusCompleted,
				Values: Values{"a": 1, "b": 2},
			},
			new: &Snapshot{
				ThreadID: "t-1", Step: 4, Status: StatusCompleted,
				Values: Values{"a": 1},
			},
			wantDiff: &SnapshotDiff{
				ThreadID: "t-1",
				FromStep: 3,
				ToStep:   4,
				Values:   map[string]any{"b": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if !reflect.DeepEqual(got, tt.wantDiff) {
				gotJSON, _ := json.MarshalIndent(got, "", "  ")
				wantJSON, _ := json.MarshalIndent(tt.wantDiff, "", "  ")
				t.Errorf("Diff() mismatch:\ngot:  %s\nwant: %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestDiff_JSONOmitsEmptyFields(t *testing.T) {
	d := Diff(
		&Snapshot{ThreadID: "t", Step: 1, Status: StatusRunning, Values: Values{"x": 1}, Frontier: []string{"n"}},
		&Snapshot{ThreadID: "t", Step: 2, Status: StatusRunning, Values: Values{"x": 2}, Frontier: []string{"n"}},
	)
	if d == nil {
		t.Fatal("expected a diff")
	}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, absent := range []string{"status", "frontier", "appended"} {
		if strings.Contains(out, `"`+absent+`"`) {
			t.Errorf("expected %q to be omitted, got %s", absent, out)
		}
	}
}
