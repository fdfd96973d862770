package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// PostgresDistributedLockManager holds session-level advisory locks. Each held lock pins its own
// connection, since pg_advisory_unlock only succeeds on the session that took the lock.
type PostgresDistributedLockManager struct {
	db    *sql.DB
	mu    sync.Mutex
	conns map[int]*sql.Conn
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		db:    db,
		conns: make(map[int]*sql.Conn),
	}
}

// Acquire blocks until the lock is granted or ctx is done.
func (l *PostgresDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	l.mu.Lock()
	_, held := l.conns[lockID]
	l.mu.Unlock()
	if held {
		return fmt.Errorf("failed to acquire lock: lock %d already held by this process", lockID)
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if _, err = conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		conn.Close()
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.mu.Lock()
	l.conns[lockID] = conn
	l.mu.Unlock()
	return nil
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	conn, held := l.conns[lockID]
	delete(l.conns, lockID)
	l.mu.Unlock()

	if !held {
		return fmt.Errorf("failed to release lock: lock %d is not held", lockID)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
