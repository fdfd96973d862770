// Package parser resolves transaction schedule expressions to due instants.
package parser

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Now schedules a transaction for immediate execution.
	Now = "now"

	// TimestampLayout is the accepted absolute form, always read as UTC.
	TimestampLayout = "2006-01-02 15:04:05"
)

// ScheduleParseError reports a schedule expression that matches no accepted form.
type ScheduleParseError struct {
	Expression string
	Err        error
}

func (e *ScheduleParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid schedule expression %q: %v", e.Expression, e.Err)
	}
	return fmt.Sprintf("invalid schedule expression %q", e.Expression)
}

func (e *ScheduleParseError) Unwrap() error {
	return e.Err
}

// Resolve maps a schedule expression to the instant it becomes due.
// "now" resolves to ref; "YYYY-MM-DD HH:MM:SS" resolves to that UTC instant regardless of ref.
func Resolve(expr string, ref time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == Now {
		return ref, nil
	}

	if len(trimmed) != len(TimestampLayout) {
		return time.Time{}, &ScheduleParseError{Expression: expr}
	}

	due, err := time.ParseInLocation(TimestampLayout, trimmed, time.UTC)
	if err != nil {
		return time.Time{}, &ScheduleParseError{Expression: expr, Err: err}
	}
	return due, nil
}
