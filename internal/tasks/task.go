// Package tasks schedules pipeline executions as asynchronous jobs with
// retry, timeouts and periodic triggers.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Task lifecycle states exposed to status polling.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusRetrying  = "retrying"
)

// Task kinds. Imagery-fetch tasks search the catalog for a boundary and
// report the best scene without running the full pipeline.
const (
	KindAnalysis     = "analyze_farm"
	KindImageryFetch = "fetch_imagery"
)

// Record is the poll-visible snapshot of one task. Result is the pipeline
// result (or best-scene report) once the task succeeds; Error carries the
// final failure reason.
type Record struct {
	ID          uuid.UUID  `json:"task_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Record) done() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}
