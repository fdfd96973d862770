package types

import (
	"github.com/RezaEskandarii/stepfire/internal/state"
	"time"
)

// Step is one outbound HTTP call belonging to a transaction.
type Step struct {
	ID            int64
	TransactionID int64
	URL           string
	IsRunning     bool
	StartedAt     *time.Time
	DurationMs    int64
	Result        state.StepResult
	CreatedAt     time.Time
}

// StepOutcome is what a step execution reports back to its runner.
type StepOutcome struct {
	StepID     int64
	Result     state.StepResult
	StatusCode int
	Payload    []byte // response body on success
	Err        error  // failure cause on error
	Duration   time.Duration
	PersistErr error // set when the outcome could not be written to the store

	// Interrupted is set when shutdown aborted the call. The step keeps its pending result.
	Interrupted bool
}

func (o StepOutcome) Succeeded() bool {
	return o.Result == state.ResultSuccess
}
