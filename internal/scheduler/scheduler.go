// Package scheduler owns the live queue of transaction runners and drives it with a periodic tick.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RezaEskandarii/stepfire/internal/eventlog"
	"github.com/RezaEskandarii/stepfire/internal/parser"
	"github.com/RezaEskandarii/stepfire/internal/state"
	"github.com/RezaEskandarii/stepfire/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

type Scheduler struct {
	store    store.TransactionStore
	executor *StepExecutor
	log      zerolog.Logger
	opts     options

	mu      sync.Mutex
	queue   map[int64]*TransactionRunner
	stopped bool

	// cancelMu serializes Cancel so the already-canceled check and the write happen as one step.
	cancelMu sync.Mutex

	slots     *semaphore.Weighted
	runCtx    context.Context
	runCancel context.CancelFunc
	runners   sync.WaitGroup
	ticker    sync.WaitGroup
	tickOnce  sync.Once
	stopOnce  sync.Once
}

func New(st store.TransactionStore, events eventlog.Logger, log zerolog.Logger, opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	executor := NewStepExecutor(st, o.httpClient, events, log, o.executionTimeout)
	executor.now = o.now

	return &Scheduler{
		store:     st,
		executor:  executor,
		log:       log,
		opts:      o,
		queue:     make(map[int64]*TransactionRunner),
		slots:     semaphore.NewWeighted(o.maxConcurrentRunners),
		runCtx:    runCtx,
		runCancel: runCancel,
	}
}

// Init waits for the store, adopts every pending transaction and starts ticking.
// Store failures are retried with a fixed backoff until ctx is done.
func (s *Scheduler) Init(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := s.store.Ping(ctx)
		if err == nil {
			var adopted int
			adopted, err = s.Resync(ctx)
			if err == nil {
				s.log.Info().Int("adopted", adopted).Msg("scheduler initialized")
				break
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", s.opts.connectRetryInterval).Msg("store unavailable, retrying")

		timer := time.NewTimer(s.opts.connectRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.startTicking(ctx)
	return nil
}

// Resync adopts every transaction the store reports as pending. Transactions already queued are
// left alone, so it is safe to call repeatedly.
func (s *Scheduler) Resync(ctx context.Context) (int, error) {
	transactions, err := s.store.FetchPendingTransactions(ctx)
	if err != nil {
		return 0, err
	}

	adopted := 0
	for _, trx := range transactions {
		added, err := s.Add(trx.ID, trx.Schedule)
		if err != nil {
			s.log.Error().Err(err).Int64("transaction_id", trx.ID).Msg("failed to adopt transaction")
			continue
		}
		if added {
			adopted++
		}
	}
	return adopted, nil
}

// Add queues a runner for the transaction. It returns false without error when a runner for the
// id is already queued.
func (s *Scheduler) Add(id int64, scheduleExpr string) (bool, error) {
	if id <= 0 {
		return false, ErrInvalidTransactionID
	}

	due, err := parser.Resolve(scheduleExpr, s.opts.now())
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queue[id]; exists {
		return false, nil
	}
	s.queue[id] = newTransactionRunner(id, due, s.store, s.executor, s.log)
	s.log.Debug().Int64("transaction_id", id).Time("due", due).Msg("transaction queued")
	return true, nil
}

// Tick reaps finished runners and starts every pending runner that is due.
func (s *Scheduler) Tick() {
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	for id, runner := range s.queue {
		switch runner.State() {
		case state.RunnerFinished:
			delete(s.queue, id)
			s.log.Debug().Int64("transaction_id", id).Msg("runner reaped")
			continue
		case state.RunnerRunning:
			continue
		}

		if runner.Due().After(now) {
			continue
		}
		if !s.slots.TryAcquire(1) {
			continue
		}

		s.runners.Add(1)
		release := func() {
			s.slots.Release(1)
			s.runners.Done()
		}
		if !runner.Start(s.runCtx, release) {
			release()
		}
	}
}

// Stop halts ticking, aborts running transactions and waits for their runners to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.runCancel()
		s.ticker.Wait()
		s.runners.Wait()
		s.log.Info().Msg("scheduler stopped")
	})
}

// Len returns the number of queued runners.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.queue[id]
	return ok
}

// Runner returns the queued runner for id, if any.
func (s *Scheduler) Runner(id int64) (*TransactionRunner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runner, ok := s.queue[id]
	return runner, ok
}

func (s *Scheduler) startTicking(ctx context.Context) {
	s.tickOnce.Do(func() {
		s.ticker.Add(1)
		go func() {
			defer s.ticker.Done()

			ticker := time.NewTicker(s.opts.tickInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-s.runCtx.Done():
					return
				case <-ticker.C:
					s.Tick()
				}
			}
		}()
	})
}

// IsScheduleError reports whether err came from an unparseable schedule expression.
func IsScheduleError(err error) bool {
	var parseErr *parser.ScheduleParseError
	return errors.As(err, &parseErr)
}
