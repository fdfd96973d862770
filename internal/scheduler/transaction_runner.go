package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RezaEskandarii/stepfire/internal/state"
	"github.com/RezaEskandarii/stepfire/internal/store"
	"github.com/RezaEskandarii/stepfire/types"
	"github.com/rs/zerolog"
)

// TransactionRunner is the in-memory execution handle of one transaction.
// It moves pending -> running -> finished, or pending -> finished when canceled early.
type TransactionRunner struct {
	id       int64
	due      time.Time
	store    store.TransactionStore
	executor *StepExecutor
	log      zerolog.Logger

	mu          sync.Mutex
	state       state.RunnerState
	canceled    bool
	interrupted bool
	stale       bool
	failedStart bool
	cancel      context.CancelCauseFunc
	done        chan struct{}
	doneOnce    sync.Once
}

func newTransactionRunner(id int64, due time.Time, st store.TransactionStore, executor *StepExecutor, log zerolog.Logger) *TransactionRunner {
	return &TransactionRunner{
		id:       id,
		due:      due,
		store:    st,
		executor: executor,
		log:      log.With().Int64("transaction_id", id).Logger(),
		state:    state.RunnerPending,
		done:     make(chan struct{}),
	}
}

func (r *TransactionRunner) ID() int64 {
	return r.id
}

func (r *TransactionRunner) Due() time.Time {
	return r.due
}

func (r *TransactionRunner) State() state.RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *TransactionRunner) IsFinished() bool {
	return r.State() == state.RunnerFinished
}

// FailedStart reports whether the runner finished without being able to load its work.
func (r *TransactionRunner) FailedStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failedStart
}

// Done is closed once the runner reaches finished.
func (r *TransactionRunner) Done() <-chan struct{} {
	return r.done
}

// Start moves a pending runner to running and executes it in its own goroutine.
// onExit runs after the runner finished. Start returns false if the runner was not pending.
func (r *TransactionRunner) Start(parent context.Context, onExit func()) bool {
	r.mu.Lock()
	if !state.IsValidRunnerTransition(r.state, state.RunnerRunning) {
		r.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancelCause(parent)
	r.state = state.RunnerRunning
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error().Interface("panic", p).Msg("transaction runner panicked")
				r.markFailedStart()
				r.finish(context.WithoutCancel(ctx))
			}
			cancel(nil)
			if onExit != nil {
				onExit()
			}
		}()
		r.run(ctx)
	}()
	return true
}

// Cancel records the cancellation in the store, then stops the runner: a pending runner is
// finished without running anything, a running one has its in-flight call aborted.
func (r *TransactionRunner) Cancel(ctx context.Context) error {
	if err := r.store.UpdateTransactionFlags(ctx, r.id, store.TransactionFlags{IsCanceled: store.Bool(true)}); err != nil {
		return fmt.Errorf("mark transaction %d canceled: %w", r.id, err)
	}

	r.mu.Lock()
	r.canceled = true
	switch r.state {
	case state.RunnerPending:
		r.state = state.RunnerFinished
		r.mu.Unlock()
		r.closeDone()
		r.log.Info().Msg("pending transaction canceled")
	case state.RunnerRunning:
		cancel := r.cancel
		r.mu.Unlock()
		cancel(ErrCanceled)
		r.log.Info().Msg("running transaction canceled")
	default:
		r.mu.Unlock()
	}
	return nil
}

func (r *TransactionRunner) run(ctx context.Context) {
	persistCtx := context.WithoutCancel(ctx)

	trx, steps, err := r.load(ctx)
	if err != nil {
		if r.stoppedBeforeStart(ctx) {
			r.finish(persistCtx)
			return
		}
		r.log.Error().Err(err).Msg("failed to load transaction")
		r.markFailedStart()
		r.finish(persistCtx)
		return
	}

	switch {
	case trx.IsFinished:
		// Re-added after it already completed or failed to start: the row is history.
		r.mu.Lock()
		r.stale = true
		r.mu.Unlock()
		r.log.Info().Msg("transaction already finished, not running it again")
		r.finish(persistCtx)
		return
	case trx.IsCanceled:
		r.mu.Lock()
		r.canceled = true
		r.mu.Unlock()
		r.log.Info().Msg("transaction was canceled before it started")
		r.finish(persistCtx)
		return
	}

	if err := r.store.UpdateTransactionFlags(persistCtx, r.id, store.TransactionFlags{
		IsRunning:  store.Bool(true),
		IsFinished: store.Bool(false),
	}); err != nil {
		r.log.Error().Err(err).Msg("failed to mark transaction running")
		r.markFailedStart()
		r.finish(persistCtx)
		return
	}

	r.execute(ctx, trx, steps)

	r.mu.Lock()
	if ctx.Err() != nil && !r.canceled {
		r.interrupted = true
	}
	r.mu.Unlock()
	r.finish(persistCtx)
}

// stoppedBeforeStart reports whether ctx was canceled while the runner was loading, and records
// whether that came from Cancel or from shutdown.
func (r *TransactionRunner) stoppedBeforeStart(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canceled {
		r.log.Info().Msg("transaction canceled while loading")
	} else {
		r.interrupted = true
		r.log.Info().Msg("transaction interrupted while loading")
	}
	return true
}

// load fetches the transaction and its ordered steps once.
func (r *TransactionRunner) load(ctx context.Context) (*types.Transaction, []types.Step, error) {
	trx, err := r.store.FetchTransaction(ctx, r.id)
	if err != nil {
		return nil, nil, err
	}

	steps, err := r.store.FetchSteps(ctx, r.id)
	if err != nil {
		return nil, nil, err
	}

	if len(steps) != trx.NumSteps {
		r.log.Warn().Int("num_steps", trx.NumSteps).Int("loaded_steps", len(steps)).Msg("step count does not match transaction")
	}
	if trx.IsRecurring {
		r.log.Debug().Msg("recurring transactions are executed once")
	}
	return trx, steps, nil
}

// execute runs the steps strictly in order. Steps that already have a result are skipped so a
// resumed transaction never executes a step twice.
func (r *TransactionRunner) execute(ctx context.Context, trx *types.Transaction, steps []types.Step) {
	persistCtx := context.WithoutCancel(ctx)
	wait := trx.WaitDuration()

	completed := 0
	for _, step := range steps {
		if step.Result.IsTerminal() {
			completed++
		}
	}

	for i, step := range steps {
		if step.Result.IsTerminal() {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		outcome := r.executor.Execute(ctx, step)
		if outcome.Interrupted {
			return
		}
		if outcome.PersistErr != nil {
			r.log.Error().Err(outcome.PersistErr).Int64("step_id", step.ID).Msg("finishing transaction early")
			r.markFailedStart()
			return
		}

		completed++
		if err := r.store.UpdateTransactionFlags(persistCtx, r.id, store.TransactionFlags{CompletedSteps: store.Int(completed)}); err != nil {
			r.log.Error().Err(err).Msg("failed to persist completed steps")
			r.markFailedStart()
			return
		}

		r.log.Debug().
			Int64("step_id", step.ID).
			Str("result", outcome.Result.String()).
			Dur("duration", outcome.Duration).
			Int("completed_steps", completed).
			Msg("step completed")

		if i == len(steps)-1 || wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// finish is terminal. A canceled transaction keeps is_finished false in the store so the row
// shows it was stopped rather than completed, and one interrupted by shutdown stays pending so
// the next Init resumes it. A stale runner, queued again for a row that is already finished,
// writes nothing.
func (r *TransactionRunner) finish(ctx context.Context) {
	r.mu.Lock()
	canceled, interrupted, stale := r.canceled, r.interrupted, r.stale
	r.mu.Unlock()

	if !stale {
		flags := store.TransactionFlags{IsRunning: store.Bool(false)}
		if !canceled && !interrupted {
			flags.IsFinished = store.Bool(true)
		}
		if err := r.store.UpdateTransactionFlags(ctx, r.id, flags); err != nil {
			r.log.Error().Err(err).Msg("failed to mark transaction finished")
		}
	}

	r.mu.Lock()
	r.state = state.RunnerFinished
	r.mu.Unlock()
	r.closeDone()

	r.log.Info().Bool("canceled", canceled).Bool("interrupted", interrupted).Msg("transaction finished")
}

func (r *TransactionRunner) markFailedStart() {
	r.mu.Lock()
	r.failedStart = true
	r.mu.Unlock()
}

func (r *TransactionRunner) closeDone() {
	r.doneOnce.Do(func() { close(r.done) })
}
