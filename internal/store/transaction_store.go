package store

import (
	"context"
	"errors"
	"github.com/RezaEskandarii/stepfire/internal/state"
	"github.com/RezaEskandarii/stepfire/types"
	"time"
)

// ErrNotFound is returned when a transaction or step row does not exist.
var ErrNotFound = errors.New("not found")

// TransactionFlags selects the transaction columns to write. Nil fields are left untouched.
type TransactionFlags struct {
	IsCanceled     *bool
	IsRunning      *bool
	IsFinished     *bool
	CompletedSteps *int
}

// StepUpdate selects the step columns to write. Nil fields are left untouched.
type StepUpdate struct {
	IsRunning  *bool
	StartedAt  *time.Time
	DurationMs *int64
	Result     *state.StepResult
}

// TransactionStore defines the persistence operations the scheduling engine consumes.
type TransactionStore interface {
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// FetchPendingTransactions returns transactions that are neither canceled nor finished,
	// oldest first.
	FetchPendingTransactions(ctx context.Context) ([]types.Transaction, error)

	// FetchTransaction returns ErrNotFound when the id is unknown.
	FetchTransaction(ctx context.Context, id int64) (*types.Transaction, error)

	// FetchSteps returns the steps of a transaction in creation order.
	FetchSteps(ctx context.Context, transactionID int64) ([]types.Step, error)

	UpdateTransactionFlags(ctx context.Context, id int64, flags TransactionFlags) error

	// UpdateStep writes the selected columns. Setting Result on a step whose result is no
	// longer pending fails with ErrNotFound.
	UpdateStep(ctx context.Context, id int64, update StepUpdate) error

	Close() error
}

func Bool(v bool) *bool { return &v }

func Int(v int) *int { return &v }

func Int64(v int64) *int64 { return &v }

func Time(v time.Time) *time.Time { return &v }

func Result(v state.StepResult) *state.StepResult { return &v }

// Empty reports whether no column is selected.
func (f TransactionFlags) Empty() bool {
	return f.IsCanceled == nil && f.IsRunning == nil && f.IsFinished == nil && f.CompletedSteps == nil
}

func (u StepUpdate) Empty() bool {
	return u.IsRunning == nil && u.StartedAt == nil && u.DurationMs == nil && u.Result == nil
}
