package mocks

import "context"

// MockDistributedLockManager is a mock implementation of lock.DistributedLockManager for testing.
type MockDistributedLockManager struct {
	AcquireFunc func(lockID int) error
	ReleaseFunc func(lockID int) error
}

func (m *MockDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(lockID)
	}
	return nil
}

func (m *MockDistributedLockManager) Release(ctx context.Context, lockID int) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(lockID)
	}
	return nil
}
