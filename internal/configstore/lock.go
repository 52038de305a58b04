package configstore

import (
	"context"
	"fmt"
	"time"

	"github.com/paperpulse/analysis-service/internal/database"
	"github.com/paperpulse/analysis-service/internal/domain"
)

// LockBatchStart serializes the admin batch-start section across replicas,
// so the one-batch-in-flight check cannot race a concurrent start.
const LockBatchStart = "batch-start"

// LockManager provides conditional-set-with-expiry locks for cross-replica
// mutual exclusion. A lock is taken by inserting a lease row; a competing
// acquire succeeds only when the existing lease has expired. Leases always
// expire, so a crashed holder cannot wedge the lock.
type LockManager struct {
	db database.DBTX
}

// NewLockManager creates a LockManager.
func NewLockManager(db database.DBTX) *LockManager {
	return &LockManager{db: db}
}

// Acquire tries to take the named lock for holder with the given TTL.
// Returns domain.ErrLockNotAcquired when another holder owns a live lease.
func (m *LockManager) Acquire(ctx context.Context, name, holder string, ttl time.Duration) error {
	if ttl <= 0 {
		return domain.NewValidationError("ttl", "lock TTL must be positive")
	}

	query := `
		INSERT INTO runtime_locks (name, holder, expires_at)
		VALUES ($1, $2, now() + $3)
		ON CONFLICT (name) DO UPDATE SET
			holder = EXCLUDED.holder,
			expires_at = EXCLUDED.expires_at
		WHERE runtime_locks.expires_at < now() OR runtime_locks.holder = EXCLUDED.holder`

	tag, err := m.db.Exec(ctx, query, name, holder, ttl)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLockNotAcquired
	}
	return nil
}

// Release drops the lease if holder still owns it. Releasing a lock that
// expired or was taken over is a no-op.
func (m *LockManager) Release(ctx context.Context, name, holder string) error {
	query := `DELETE FROM runtime_locks WHERE name = $1 AND holder = $2`
	if _, err := m.db.Exec(ctx, query, name, holder); err != nil {
		return fmt.Errorf("failed to release lock %q: %w", name, err)
	}
	return nil
}

// WithLock runs fn while holding the named lock and always releases it,
// including on the error path. When the lock is held elsewhere it returns
// domain.ErrLockNotAcquired without running fn.
func (m *LockManager) WithLock(ctx context.Context, name, holder string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if err := m.Acquire(ctx, name, holder, ttl); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = m.Release(releaseCtx, name, holder)
	}()
	return fn(ctx)
}
