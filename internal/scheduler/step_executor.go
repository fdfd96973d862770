package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RezaEskandarii/stepfire/internal/eventlog"
	"github.com/RezaEskandarii/stepfire/internal/state"
	"github.com/RezaEskandarii/stepfire/internal/store"
	"github.com/RezaEskandarii/stepfire/types"
	"github.com/rs/zerolog"
)

// maxResponseBody caps how much of a response body is kept for logging and the outcome payload.
const maxResponseBody = 1 << 20

// StepExecutor performs the outbound GET of a step and records its outcome.
type StepExecutor struct {
	store   store.TransactionStore
	client  *http.Client
	events  eventlog.Logger
	log     zerolog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewStepExecutor(st store.TransactionStore, client *http.Client, events eventlog.Logger, log zerolog.Logger, timeout time.Duration) *StepExecutor {
	if client == nil {
		client = &http.Client{}
	}
	if events == nil {
		events = eventlog.Nop{}
	}
	return &StepExecutor{
		store:   st,
		client:  client,
		events:  events,
		log:     log,
		timeout: timeout,
		now:     time.Now,
	}
}

// Execute runs the step once. Canceling ctx aborts the HTTP call and records an error outcome.
func (e *StepExecutor) Execute(ctx context.Context, step types.Step) types.StepOutcome {
	log := e.log.With().Int64("transaction_id", step.TransactionID).Int64("step_id", step.ID).Logger()
	label := fmt.Sprintf("transaction:%d/step:%d", step.TransactionID, step.ID)

	// Store writes must land even when the call itself was aborted.
	persistCtx := context.WithoutCancel(ctx)

	started := e.now()
	if err := e.store.UpdateStep(persistCtx, step.ID, store.StepUpdate{
		IsRunning: store.Bool(true),
		StartedAt: store.Time(started),
	}); err != nil {
		log.Error().Err(err).Msg("failed to mark step running")
		return types.StepOutcome{StepID: step.ID, Result: state.ResultError, Err: err, PersistErr: err}
	}

	e.events.Log(eventlog.KindRequest, label, map[string]string{"method": http.MethodGet, "url": step.URL})

	outcome := e.call(ctx, step)
	outcome.StepID = step.ID
	outcome.Duration = e.now().Sub(started)

	if outcome.StatusCode > 0 {
		e.events.Log(eventlog.KindResponse, label, map[string]any{
			"status": outcome.StatusCode,
			"body":   string(outcome.Payload),
		})
	} else {
		e.events.Log(eventlog.KindError, label, outcome.Err)
	}
	if outcome.Err != nil && interruptedByShutdown(ctx) {
		// Keep the result pending so the resumed transaction calls it again.
		outcome.Result = step.Result
		outcome.Interrupted = true
		log.Info().Err(outcome.Err).Msg("step interrupted by shutdown")
		if err := e.store.UpdateStep(persistCtx, step.ID, store.StepUpdate{IsRunning: store.Bool(false)}); err != nil {
			log.Error().Err(err).Msg("failed to clear running step")
			outcome.PersistErr = err
		}
		return outcome
	}
	if outcome.Err != nil {
		log.Warn().Err(outcome.Err).Int("status", outcome.StatusCode).Msg("step failed")
	}

	if !state.IsValidTransition(step.Result, outcome.Result) {
		outcome.PersistErr = fmt.Errorf("step %d: invalid result transition %s -> %s", step.ID, step.Result, outcome.Result)
		log.Error().Err(outcome.PersistErr).Msg("refusing to overwrite step result")
		return outcome
	}

	if err := e.store.UpdateStep(persistCtx, step.ID, store.StepUpdate{
		IsRunning:  store.Bool(false),
		DurationMs: store.Int64(durationMillis(outcome.Duration)),
		Result:     store.Result(outcome.Result),
	}); err != nil {
		log.Error().Err(err).Msg("failed to persist step outcome")
		outcome.PersistErr = err
	}

	return outcome
}

func (e *StepExecutor) call(ctx context.Context, step types.Step) types.StepOutcome {
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, step.URL, nil)
	if err != nil {
		return types.StepOutcome{Result: state.ResultError, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("step timed out after %s: %w", e.timeout, err)
		}
		return types.StepOutcome{Result: state.ResultError, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return types.StepOutcome{Result: state.ResultError, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return types.StepOutcome{
			Result:     state.ResultError,
			StatusCode: resp.StatusCode,
			Payload:    body,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return types.StepOutcome{Result: state.ResultSuccess, StatusCode: resp.StatusCode, Payload: body}
}

// interruptedByShutdown reports whether ctx was canceled by something other than Cancel.
func interruptedByShutdown(ctx context.Context) bool {
	return ctx.Err() != nil && !errors.Is(context.Cause(ctx), ErrCanceled)
}

// durationMillis rounds up so any completed call records at least one millisecond.
func durationMillis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}
