package lock

import "context"

type DistributedLockManager interface {
	Acquire(ctx context.Context, lockID int) error
	Release(ctx context.Context, lockID int) error
}
