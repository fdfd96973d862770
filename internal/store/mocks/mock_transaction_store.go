package mocks

import (
	"context"
	"fmt"
	"github.com/RezaEskandarii/stepfire/internal/state"
	"github.com/RezaEskandarii/stepfire/internal/store"
	"github.com/RezaEskandarii/stepfire/types"
	"sort"
	"sync"
	"time"
)

// MockTransactionStore is an in-memory store.TransactionStore.
// The *Err hooks let tests inject failures per operation.
type MockTransactionStore struct {
	mu           sync.Mutex
	transactions map[int64]*types.Transaction
	steps        map[int64]*types.Step
	nextID       int64

	PingErr                   func() error
	FetchTransactionErr       func(id int64) error
	FetchStepsErr             func(transactionID int64) error
	UpdateTransactionFlagsErr func(id int64, flags store.TransactionFlags) error
	UpdateStepErr             func(id int64, update store.StepUpdate) error

	pingCalls int
}

func NewMockTransactionStore() *MockTransactionStore {
	return &MockTransactionStore{
		transactions: make(map[int64]*types.Transaction),
		steps:        make(map[int64]*types.Step),
	}
}

// AddTransaction inserts a transaction with one pending step per url and returns its id.
func (m *MockTransactionStore) AddTransaction(schedule string, waitAfterStep int, urls ...string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	trx := &types.Transaction{
		ID:            m.nextID,
		Schedule:      schedule,
		NumSteps:      len(urls),
		WaitAfterStep: waitAfterStep,
		CreatedAt:     time.Now(),
	}
	m.transactions[trx.ID] = trx

	for _, url := range urls {
		m.nextID++
		m.steps[m.nextID] = &types.Step{
			ID:            m.nextID,
			TransactionID: trx.ID,
			URL:           url,
			Result:        state.ResultPending,
			CreatedAt:     time.Now(),
		}
	}
	return trx.ID
}

// Transaction returns a copy of the stored transaction.
func (m *MockTransactionStore) Transaction(id int64) (types.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trx, ok := m.transactions[id]
	if !ok {
		return types.Transaction{}, false
	}
	return *trx, true
}

// Steps returns copies of a transaction's steps in creation order.
func (m *MockTransactionStore) Steps(transactionID int64) []types.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stepsLocked(transactionID)
}

func (m *MockTransactionStore) PingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingCalls
}

func (m *MockTransactionStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.pingCalls++
	hook := m.PingErr
	m.mu.Unlock()

	if hook != nil {
		return hook()
	}
	return nil
}

func (m *MockTransactionStore) FetchPendingTransactions(ctx context.Context) ([]types.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []types.Transaction
	for _, trx := range m.transactions {
		if !trx.IsCanceled && !trx.IsFinished {
			pending = append(pending, *trx)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

func (m *MockTransactionStore) FetchTransaction(ctx context.Context, id int64) (*types.Transaction, error) {
	if m.FetchTransactionErr != nil {
		if err := m.FetchTransactionErr(id); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	trx, ok := m.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
	}
	cp := *trx
	return &cp, nil
}

func (m *MockTransactionStore) FetchSteps(ctx context.Context, transactionID int64) ([]types.Step, error) {
	if m.FetchStepsErr != nil {
		if err := m.FetchStepsErr(transactionID); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stepsLocked(transactionID), nil
}

func (m *MockTransactionStore) UpdateTransactionFlags(ctx context.Context, id int64, flags store.TransactionFlags) error {
	if m.UpdateTransactionFlagsErr != nil {
		if err := m.UpdateTransactionFlagsErr(id, flags); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	trx, ok := m.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
	}
	if flags.IsCanceled != nil {
		trx.IsCanceled = *flags.IsCanceled
	}
	if flags.IsRunning != nil {
		trx.IsRunning = *flags.IsRunning
	}
	if flags.IsFinished != nil {
		trx.IsFinished = *flags.IsFinished
	}
	if flags.CompletedSteps != nil {
		trx.CompletedSteps = *flags.CompletedSteps
	}
	return nil
}

func (m *MockTransactionStore) UpdateStep(ctx context.Context, id int64, update store.StepUpdate) error {
	if m.UpdateStepErr != nil {
		if err := m.UpdateStepErr(id, update); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	step, ok := m.steps[id]
	if !ok {
		return fmt.Errorf("step %d: %w", id, store.ErrNotFound)
	}
	if update.Result != nil && !state.IsValidTransition(step.Result, *update.Result) {
		return fmt.Errorf("step %d: %w", id, store.ErrNotFound)
	}
	if update.IsRunning != nil {
		step.IsRunning = *update.IsRunning
	}
	if update.StartedAt != nil {
		started := *update.StartedAt
		step.StartedAt = &started
	}
	if update.DurationMs != nil {
		step.DurationMs = *update.DurationMs
	}
	if update.Result != nil {
		step.Result = *update.Result
	}
	return nil
}

func (m *MockTransactionStore) Close() error {
	return nil
}

func (m *MockTransactionStore) stepsLocked(transactionID int64) []types.Step {
	var steps []types.Step
	for _, step := range m.steps {
		if step.TransactionID == transactionID {
			steps = append(steps, *step)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].ID < steps[j].ID })
	return steps
}
