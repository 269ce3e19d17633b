package postgres

import (
	"context"
	"fmt"
)

// Advisory lock namespace. pg_advisory_xact_lock takes a (classid, objid)
// pair; each lock kind gets its own classid so per-user locks can never
// collide with the allocation lock. The locks are reentrant within a
// transaction and released automatically at commit or rollback.
const (
	lockClassAllocation int32 = 0x5b41
	lockClassUser       int32 = 0x5b42
)

// AcquireAllocationLock takes the single global allocation lock. Every
// quota-affecting decision must hold it: quota scopes aggregate across all
// users, so these decisions are serialised system-wide.
func (r *TicketRepository) AcquireAllocationLock(ctx context.Context) error {
	return acquireXactLock(ctx, lockClassAllocation, 0)
}

// AcquireUserLock takes the per-user lock serialising read-modify-write
// operations on one user's tickets (buy, finalise, payment, release).
func (r *TicketRepository) AcquireUserLock(ctx context.Context, userID int64) error {
	return acquireXactLock(ctx, lockClassUser, int32(userID))
}

// AcquireAllocationLock on the settings repository guards policy mutations,
// which race against capacity decisions the same way purchases do.
func (r *SettingsRepository) AcquireAllocationLock(ctx context.Context) error {
	return acquireXactLock(ctx, lockClassAllocation, 0)
}

func acquireXactLock(ctx context.Context, classID, objID int32) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return errNoTx
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, classID, objID); err != nil {
		return fmt.Errorf("acquire advisory lock (%d, %d): %w", classID, objID, err)
	}
	return nil
}
