package types

import (
	"time"
)

// Transaction is a schedulable unit of work owning a fixed, ordered list of steps.
type Transaction struct {
	ID             int64
	Schedule       string
	IsRecurring    bool
	IsRunning      bool
	IsFinished     bool
	IsCanceled     bool
	CompletedSteps int
	NumSteps       int
	WaitAfterStep  int // seconds
	CreatedAt      time.Time
}

// WaitDuration is the pause applied between two consecutive steps.
func (t Transaction) WaitDuration() time.Duration {
	if t.WaitAfterStep <= 0 {
		return 0
	}
	return time.Duration(t.WaitAfterStep) * time.Second
}
