package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/stepfire/internal/state"
	"github.com/RezaEskandarii/stepfire/internal/store"
	"github.com/RezaEskandarii/stepfire/types"
	"strings"
)

const transactionColumns = `id, schedule, is_recurring, is_running, is_finished, is_canceled,
		       completed_steps, num_steps, wait_after_step, created_at`

type PostgresTransactionStore struct {
	db *sql.DB
}

func NewPostgresTransactionStore(db *sql.DB) *PostgresTransactionStore {
	return &PostgresTransactionStore{db: db}
}

func (r *PostgresTransactionStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresTransactionStore) FetchPendingTransactions(ctx context.Context) ([]types.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM stepfire_schema.transactions
		WHERE is_canceled = FALSE AND is_finished = FALSE
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending transactions: %w", err)
	}
	defer rows.Close()

	var transactions []types.Transaction
	for rows.Next() {
		trx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *trx)
	}

	return transactions, rows.Err()
}

func (r *PostgresTransactionStore) FetchTransaction(ctx context.Context, id int64) (*types.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM stepfire_schema.transactions
		WHERE id = $1`

	trx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return trx, nil
}

func (r *PostgresTransactionStore) FetchSteps(ctx context.Context, transactionID int64) ([]types.Step, error) {
	query := `
		SELECT id, transaction_id, url, is_running, started_at, duration_ms, result, created_at
		FROM stepfire_schema.steps
		WHERE transaction_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch steps: %w", err)
	}
	defer rows.Close()

	var steps []types.Step
	for rows.Next() {
		var step types.Step
		var startedAt sql.NullTime
		if err := rows.Scan(
			&step.ID, &step.TransactionID, &step.URL, &step.IsRunning,
			&startedAt, &step.DurationMs, &step.Result, &step.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if startedAt.Valid {
			step.StartedAt = &startedAt.Time
		}
		steps = append(steps, step)
	}

	return steps, rows.Err()
}

func (r *PostgresTransactionStore) UpdateTransactionFlags(ctx context.Context, id int64, flags store.TransactionFlags) error {
	if flags.Empty() {
		return nil
	}

	set := newSetClause()
	if flags.IsCanceled != nil {
		set.add("is_canceled", *flags.IsCanceled)
	}
	if flags.IsRunning != nil {
		set.add("is_running", *flags.IsRunning)
	}
	if flags.IsFinished != nil {
		set.add("is_finished", *flags.IsFinished)
	}
	if flags.CompletedSteps != nil {
		set.add("completed_steps", *flags.CompletedSteps)
	}

	query := fmt.Sprintf(`
	UPDATE stepfire_schema.transactions
	SET %s
	WHERE id = $%d;
	`, set.String(), set.next())

	res, err := r.db.ExecContext(ctx, query, append(set.args, id)...)
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", id, err)
	}
	return expectAffected(res, "transaction", id)
}

func (r *PostgresTransactionStore) UpdateStep(ctx context.Context, id int64, update store.StepUpdate) error {
	if update.Empty() {
		return nil
	}

	set := newSetClause()
	if update.IsRunning != nil {
		set.add("is_running", *update.IsRunning)
	}
	if update.StartedAt != nil {
		set.add("started_at", *update.StartedAt)
	}
	if update.DurationMs != nil {
		set.add("duration_ms", *update.DurationMs)
	}
	if update.Result != nil {
		set.add("result", *update.Result)
	}

	where := fmt.Sprintf("id = $%d", set.next())
	args := append(set.args, id)
	if update.Result != nil {
		where += fmt.Sprintf(" AND result = $%d", len(args)+1)
		args = append(args, state.ResultPending)
	}

	query := fmt.Sprintf(`
	UPDATE stepfire_schema.steps
	SET %s
	WHERE %s;
	`, set.String(), where)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update step %d: %w", id, err)
	}
	return expectAffected(res, "step", id)
}

func (r *PostgresTransactionStore) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*types.Transaction, error) {
	var trx types.Transaction
	err := row.Scan(
		&trx.ID, &trx.Schedule, &trx.IsRecurring, &trx.IsRunning, &trx.IsFinished, &trx.IsCanceled,
		&trx.CompletedSteps, &trx.NumSteps, &trx.WaitAfterStep, &trx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

func expectAffected(res sql.Result, kind string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// setClause builds "col = $n" assignments with positional arguments.
type setClause struct {
	columns []string
	args    []any
}

func newSetClause() *setClause {
	return &setClause{}
}

func (s *setClause) add(column string, value any) {
	s.args = append(s.args, value)
	s.columns = append(s.columns, fmt.Sprintf("%s = $%d", column, len(s.args)))
}

func (s *setClause) next() int {
	return len(s.args) + 1
}

func (s *setClause) String() string {
	return strings.Join(s.columns, ", ")
}
