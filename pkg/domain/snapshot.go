package domain

import (
	"slices"
	"time"
)

// RunStatus describes where a thread stands in its lifecycle.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"      // No checkpoint yet
	StatusRunning   RunStatus = "running"   // Pending frontier
	StatusCompleted RunStatus = "completed" // Frontier empty or only End
	StatusFailed    RunStatus = "failed"    // Last invocation aborted; the previous checkpoint is still current
)

// Source records why a checkpoint was written.
type Source string

const (
	SourceInput Source = "input" // Caller input merged into state
	SourceLoop  Source = "loop"  // Superstep commit
	SourceFork  Source = "fork"  // Head of a forked thread
)

// Snapshot is the committed state of a thread at one step.
// Snapshots are immutable once stored; use Clone before modifying one.
type Snapshot struct {
	ThreadID  string              `json:"thread_id" yaml:"thread_id"`
	Step      int                 `json:"step" yaml:"step"`
	Values    Values              `json:"values" yaml:"values"`
	Frontier  []string            `json:"frontier,omitempty" yaml:"frontier,omitempty"`
	Writes    map[string][]string `json:"writes,omitempty" yaml:"writes,omitempty"`
	Status    RunStatus           `json:"status" yaml:"status"`
	Source    Source              `json:"source" yaml:"source"`
	Timestamp time.Time           `json:"timestamp" yaml:"timestamp"`
}

// Pending reports whether the snapshot still has nodes to run.
func (s *Snapshot) Pending() bool {
	return s != nil && len(s.Frontier) > 0
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Values = s.Values.Clone()
	c.Frontier = slices.Clone(s.Frontier)
	if s.Writes != nil {
		c.Writes = make(map[string][]string, len(s.Writes))
		for k, producers := range s.Writes {
			c.Writes[k] = slices.Clone(producers)
		}
	}
	return &c
}

// Producers returns every node id recorded in the write provenance, deduplicated
// and sorted. Sentinels are omitted.
func (s *Snapshot) Producers() []string {
	seen := map[string]bool{}
	var out []string
	for _, producers := range s.Writes {
		for _, p := range producers {
			if IsSentinel(p) || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// StatusFor derives the status of a snapshot from its frontier.
func StatusFor(frontier []string) RunStatus {
	if len(frontier) == 0 {
		return StatusCompleted
	}
	return StatusRunning
}

// Observation is emitted once per committed superstep while streaming.
type Observation struct {
	ThreadID string            `json:"thread_id"`
	Step     int               `json:"step"`
	Updates  map[string]Values `json:"updates"`
	Values   Values            `json:"values"`
	Frontier []string          `json:"frontier,omitempty"`
	Status   RunStatus         `json:"status"`
}

// Result is the outcome of a single-shot invocation.
type Result struct {
	ThreadID string    `json:"thread_id"`
	Step     int       `json:"step"`
	Status   RunStatus `json:"status"`
	Values   Values    `json:"values"`
}
