package engine

import (
	"time"

	"github.com/rpaflow/rpaflow/pkg/kernel/vars"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunResult is the outcome of running a program.
type RunResult struct {
	RunID     string
	Status    string
	Error     error
	Duration  time.Duration
	Reported  []ReportedError
	Variables []vars.Binding
	// Outputs holds the out and inout arguments.
	Outputs map[string]any
}

// Failed reports whether the run ended with an unhandled error.
func (r *RunResult) Failed() bool { return r.Status == StatusFailed }
