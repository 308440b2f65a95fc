package tenant

import (
	"context"
	"errors"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/tx"
)

// Locker runs mutating ledger work inside a single transaction that holds
// the tenant row lock. Operations on different tenants never contend.
type Locker struct {
	txm  tx.Manager
	repo Repository
}

// NewLocker creates a Locker.
func NewLocker(txm tx.Manager, repo Repository) *Locker {
	return &Locker{txm: txm, repo: repo}
}

// WithLock begins a transaction, locks the tenant row and runs fn.
// Any error from fn rolls back everything fn did, counters included.
func (l *Locker) WithLock(ctx context.Context, tenantID string, fn func(ctx context.Context, t *Tenant) error) error {
	if tenantID == "" {
		return apperror.NewUnauthorized("no tenant resolved for caller")
	}

	return l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := l.repo.GetForUpdate(ctx, tenantID)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) || apperror.IsNotFound(err) {
				return apperror.NewUnauthorized("tenant not found").WithDetail("tenant_id", tenantID)
			}
			return err
		}
		return fn(WithTenant(ctx, t), t)
	})
}
