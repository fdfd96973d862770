package postgres

import (
	"context"
	"database/sql"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/stepfire/internal/state"
	"github.com/RezaEskandarii/stepfire/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

var transactionRowColumns = []string{
	"id", "schedule", "is_recurring", "is_running", "is_finished", "is_canceled",
	"completed_steps", "num_steps", "wait_after_step", "created_at",
}

func TestNewPostgresTransactionStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)
	require.NotNil(t, s)
}

func TestPostgresTransactionStore_FetchPendingTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM stepfire_schema.transactions WHERE is_canceled = FALSE AND is_finished = FALSE").
		WillReturnRows(sqlmock.NewRows(transactionRowColumns).
			AddRow(1, "now", false, false, false, false, 0, 2, 0, created).
			AddRow(2, "2024-01-02 03:04:05", false, true, false, false, 1, 3, 5, created.Add(time.Second)))

	transactions, err := s.FetchPendingTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, int64(1), transactions[0].ID)
	assert.Equal(t, "now", transactions[0].Schedule)
	assert.Equal(t, 2, transactions[0].NumSteps)
	assert.Equal(t, int64(2), transactions[1].ID)
	assert.True(t, transactions[1].IsRunning)
	assert.Equal(t, 5, transactions[1].WaitAfterStep)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_FetchPendingTransactions_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)

	mock.ExpectQuery("SELECT (.+) FROM stepfire_schema.transactions").
		WillReturnError(sql.ErrConnDone)

	_, err = s.FetchPendingTransactions(context.Background())
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_FetchTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)

	mock.ExpectQuery("SELECT (.+) FROM stepfire_schema.transactions WHERE id = \\$1").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(transactionRowColumns).
			AddRow(7, "now", true, false, false, true, 0, 1, 0, time.Now()))

	trx, err := s.FetchTransaction(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), trx.ID)
	assert.True(t, trx.IsRecurring)
	assert.True(t, trx.IsCanceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_FetchTransaction_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)

	mock.ExpectQuery("SELECT (.+) FROM stepfire_schema.transactions WHERE id = \\$1").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows(transactionRowColumns))

	_, err = s.FetchTransaction(context.Background(), 99)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_FetchSteps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)
	started := time.Now().Add(-time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM stepfire_schema.steps WHERE transaction_id = \\$1 ORDER BY created_at ASC, id ASC").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "url", "is_running", "started_at", "duration_ms", "result", "created_at"}).
			AddRow(10, 3, "http://a.example", false, started, 120, "success", started).
			AddRow(11, 3, "http://b.example", false, nil, 0, "pending", started))

	steps, err := s.FetchSteps(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, state.ResultSuccess, steps[0].Result)
	require.NotNil(t, steps[0].StartedAt)
	assert.Equal(t, int64(120), steps[0].DurationMs)
	assert.Nil(t, steps[1].StartedAt)
	assert.Equal(t, state.ResultPending, steps[1].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_UpdateTransactionFlags(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)

	mock.ExpectExec("UPDATE stepfire_schema.transactions SET is_running = \\$1, is_finished = \\$2 WHERE id = \\$3").
		WithArgs(true, false, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.UpdateTransactionFlags(context.Background(), 3, store.TransactionFlags{
		IsRunning:  store.Bool(true),
		IsFinished: store.Bool(false),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_UpdateTransactionFlags_CompletedSteps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)

	mock.ExpectExec("UPDATE stepfire_schema.transactions SET completed_steps = \\$1 WHERE id = \\$2").
		WithArgs(2, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.UpdateTransactionFlags(context.Background(), 3, store.TransactionFlags{CompletedSteps: store.Int(2)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_UpdateTransactionFlags_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)

	mock.ExpectExec("UPDATE stepfire_schema.transactions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.UpdateTransactionFlags(context.Background(), 42, store.TransactionFlags{IsCanceled: store.Bool(true)})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_UpdateTransactionFlags_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)

	err = s.UpdateTransactionFlags(context.Background(), 1, store.TransactionFlags{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_UpdateStep_Start(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)
	started := time.Now()

	mock.ExpectExec("UPDATE stepfire_schema.steps SET is_running = \\$1, started_at = \\$2 WHERE id = \\$3;").
		WithArgs(true, started, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.UpdateStep(context.Background(), 10, store.StepUpdate{
		IsRunning: store.Bool(true),
		StartedAt: store.Time(started),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_UpdateStep_Result(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)

	mock.ExpectExec("UPDATE stepfire_schema.steps SET is_running = \\$1, duration_ms = \\$2, result = \\$3 WHERE id = \\$4 AND result = \\$5;").
		WithArgs(false, int64(12), state.ResultSuccess, 10, state.ResultPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.UpdateStep(context.Background(), 10, store.StepUpdate{
		IsRunning:  store.Bool(false),
		DurationMs: store.Int64(12),
		Result:     store.Result(state.ResultSuccess),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransactionStore_UpdateStep_ResultAlreadySet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTransactionStore(db)

	mock.ExpectExec("UPDATE stepfire_schema.steps").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.UpdateStep(context.Background(), 10, store.StepUpdate{Result: store.Result(state.ResultError)})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
