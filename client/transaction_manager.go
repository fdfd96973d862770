package client

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/RezaEskandarii/stepfire/internal/constants"
	"github.com/RezaEskandarii/stepfire/internal/lock"
	"github.com/RezaEskandarii/stepfire/internal/notify"
	"github.com/RezaEskandarii/stepfire/internal/scheduler"
	"github.com/RezaEskandarii/stepfire/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const listenRetryInterval = 5 * time.Second

// TransactionManager is the entry point the CRUD layer talks to. It owns the scheduler and the
// background loops feeding it: the notify listener and the periodic resync.
type TransactionManager struct {
	Store      store.TransactionStore
	scheduler  *scheduler.Scheduler
	lock       lock.DistributedLockManager
	listener   *notify.Listener
	resyncSpec string
	closers    []io.Closer
	log        zerolog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTransactionManager wires the manager. lockMgr and listener may be nil; closers are closed by
// Close after the engine stopped.
func NewTransactionManager(
	st store.TransactionStore,
	sched *scheduler.Scheduler,
	lockMgr lock.DistributedLockManager,
	listener *notify.Listener,
	resyncSpec string,
	log zerolog.Logger,
	closers ...io.Closer,
) *TransactionManager {
	return &TransactionManager{
		Store:      st,
		scheduler:  sched,
		lock:       lockMgr,
		listener:   listener,
		resyncSpec: resyncSpec,
		closers:    closers,
		log:        log,
	}
}

// Start runs the engine in the background until Close is called or ctx is done.
func (tm *TransactionManager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	tm.mu.Lock()
	tm.cancel = cancel
	tm.mu.Unlock()

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		if err := tm.Run(ctx); err != nil {
			tm.log.Error().Err(err).Msg("engine stopped with error")
		}
	}()
}

// Run blocks until ctx is done. Only one engine per database executes at a time: Run waits for the
// engine advisory lock before adopting any transaction.
func (tm *TransactionManager) Run(ctx context.Context) error {
	if tm.lock != nil {
		tm.log.Info().Msg("waiting for engine lock")
		if err := tm.lock.Acquire(ctx, constants.EngineLock); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		defer func() {
			if err := tm.lock.Release(context.Background(), constants.EngineLock); err != nil {
				tm.log.Warn().Err(err).Msg("failed to release engine lock")
			}
		}()
	}

	if err := tm.scheduler.Init(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			tm.scheduler.Stop()
			return nil
		}
		return err
	}
	defer tm.scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tm.runResync(gctx) })
	if tm.listener != nil {
		g.Go(func() error { return tm.runListener(gctx) })
	}

	tm.log.Info().Msg("engine running")
	return g.Wait()
}

// runResync periodically re-adopts pending rows, so transactions whose notification was lost still run.
func (tm *TransactionManager) runResync(ctx context.Context) error {
	if tm.resyncSpec == "" {
		<-ctx.Done()
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(tm.resyncSpec, func() {
		adopted, err := tm.scheduler.Resync(ctx)
		if err != nil {
			tm.log.Warn().Err(err).Msg("resync failed")
			return
		}
		if adopted > 0 {
			tm.log.Info().Int("adopted", adopted).Msg("resync adopted transactions")
		}
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (tm *TransactionManager) runListener(ctx context.Context) error {
	for {
		err := tm.listener.Listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		tm.log.Warn().Err(err).Dur("retry_in", listenRetryInterval).Msg("notify listener stopped, resubscribing")

		timer := time.NewTimer(listenRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Add queues a transaction that was just created. It returns false if it is already queued.
func (tm *TransactionManager) Add(id int64, scheduleExpr string) (bool, error) {
	return tm.scheduler.Add(id, scheduleExpr)
}

func (tm *TransactionManager) Cancel(ctx context.Context, id int64) error {
	return tm.scheduler.Cancel(ctx, id)
}

// Close stops the engine, waits for running transactions to wind down, then releases resources.
func (tm *TransactionManager) Close() error {
	var errs []error
	tm.closeOnce.Do(func() {
		tm.mu.Lock()
		cancel := tm.cancel
		tm.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		tm.wg.Wait()
		tm.scheduler.Stop()

		for _, c := range tm.closers {
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := tm.Store.Close(); err != nil {
			errs = append(errs, err)
		}
		tm.log.Info().Msg("transaction manager closed")
	})
	return errors.Join(errs...)
}

// GracefulExit blocks until SIGINT or SIGTERM, then closes the manager.
func (tm *TransactionManager) GracefulExit() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	tm.log.Info().Msg("shutting down gracefully")
	if err := tm.Close(); err != nil {
		tm.log.Error().Err(err).Msg("shutdown finished with errors")
	}
}
