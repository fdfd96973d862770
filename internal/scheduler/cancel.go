package scheduler

import (
	"context"
	"fmt"

	"github.com/RezaEskandarii/stepfire/internal/store"
)

// Cancel stops a transaction. Finished or already canceled transactions are rejected with
// ErrAlreadyFinished or ErrAlreadyCanceled. A transaction with no queued runner is only marked
// canceled in the store. Concurrent calls for the same id are serialized, so only the first one
// succeeds.
func (s *Scheduler) Cancel(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidTransactionID
	}

	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()

	trx, err := s.store.FetchTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel transaction %d: %w", id, err)
	}
	if trx.IsFinished {
		return ErrAlreadyFinished
	}
	if trx.IsCanceled {
		return ErrAlreadyCanceled
	}

	s.mu.Lock()
	runner, queued := s.queue[id]
	s.mu.Unlock()

	if queued {
		return runner.Cancel(ctx)
	}

	if err := s.store.UpdateTransactionFlags(ctx, id, store.TransactionFlags{IsCanceled: store.Bool(true)}); err != nil {
		return fmt.Errorf("cancel transaction %d: %w", id, err)
	}
	s.log.Info().Int64("transaction_id", id).Msg("transaction canceled without a queued runner")
	return nil
}
