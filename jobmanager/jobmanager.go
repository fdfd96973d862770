package jobmanager

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/RezaEskandarii/stepfire/app"
	"github.com/RezaEskandarii/stepfire/client"
	"github.com/RezaEskandarii/stepfire/internal/db"
	"github.com/RezaEskandarii/stepfire/types/config"
	"github.com/rs/zerolog"
)

// New initializes the transaction execution engine using the provided StepfireConfig.
//
// The function performs the following steps:
//  1. Builds the dependency container (store, lock manager, event log sinks, scheduler, listener).
//  2. Runs schema and migration setup under the migration advisory lock, retrying while the
//     database is unreachable.
//  3. Returns the TransactionManager; call Start or Run on it to begin executing transactions.
//
// Parameters:
//   - ctx: bounds the migration retries; canceling it aborts the setup.
//   - cfg: full configuration of the engine.
//   - log: process logger.
//   - opts: optional connection overrides, mostly for tests.
func New(ctx context.Context, cfg *config.StepfireConfig, log zerolog.Logger, opts ...app.ContainerOption) (tm *client.TransactionManager, err error) {
	log.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Str("instance", cfg.Instance).Msg("starting stepfire")

	// ---------------------------------------------------------------------------------------------
	// Recover from any panic during boot and surface it as an error
	// ---------------------------------------------------------------------------------------------
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stepfire setup panicked: %v", p)
		}
	}()

	container, err := app.NewContainer(ctx, cfg, log, opts...)
	if err != nil {
		return nil, err
	}

	// ---------------------------------------------------------------------------------------------
	// Initialize database under the migration lock
	// ---------------------------------------------------------------------------------------------
	if err = migrate(ctx, container, cfg.ConnectRetryInterval()); err != nil {
		_ = container.TransactionManager.Close()
		return nil, err
	}

	return container.TransactionManager, nil
}

func migrate(ctx context.Context, c *app.Container, retry time.Duration) error {
	for attempt := 1; ; attempt++ {
		err := db.Init(ctx, c.DB, c.LockManager, c.Log)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("migrations aborted: %w", err)
		}
		c.Log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", retry).Msg("database migration failed, retrying")

		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("migrations aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
