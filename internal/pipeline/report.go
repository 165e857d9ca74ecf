package pipeline

import (
	"time"

	"sparkify/internal/schema"
)

// Step outcomes
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Step is the outcome of one executed statement
type Step struct {
	Stage       string        `json:"stage" yaml:"stage"`
	Name        string        `json:"name" yaml:"name"`
	Table       string        `json:"table" yaml:"table"`
	Fingerprint string        `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Rows        int64         `json:"rows" yaml:"rows"`
	Status      string        `json:"status" yaml:"status"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunReport summarises a run
type RunReport struct {
	RunID      string
	Target     string
	Atomic     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []Step
	Err        error
}

// Duration is the wall time of the run
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether every step ran without error
func (r *RunReport) Succeeded() bool {
	return r.Err == nil
}

// TotalRows sums the rows affected by the insert stage
func (r *RunReport) TotalRows() int64 {
	var n int64
	for _, s := range r.Steps {
		if s.Stage == StageInsert {
			n += s.Rows
		}
	}
	return n
}

// Failed returns the failing step, if any
func (r *RunReport) Failed() (Step, bool) {
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			return s, true
		}
	}
	return Step{}, false
}

// TableCount is the row count of one table after a run
type TableCount struct {
	Table string
	Role  schema.TableRole
	Rows  int64
}
