package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/id"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/infrastructure/storage/postgres"
)

var tenantColumns = postgres.ExtractDBColumns[tenant.Tenant]()

// LockWaitObserver receives how long GetForUpdate waited for the tenant row.
type LockWaitObserver func(wait time.Duration)

// TenantRepo implements tenant.Repository.
type TenantRepo struct {
	base
	onLockWait LockWaitObserver
}

var _ tenant.Repository = (*TenantRepo)(nil)

// NewTenantRepo creates a tenant repository. onLockWait may be nil.
func NewTenantRepo(db postgres.QuerierProvider, onLockWait LockWaitObserver) *TenantRepo {
	return &TenantRepo{base: base{db: db}, onLockWait: onLockWait}
}

func tenantQuery(tenantID string, forUpdate bool) squirrel.SelectBuilder {
	q := builder().Select(tenantColumns...).From("tenants").Where("id = ?", tenantID)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *TenantRepo) get(ctx context.Context, tenantID string, forUpdate bool) (*tenant.Tenant, error) {
	sql, args, err := tenantQuery(tenantID, forUpdate).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t tenant.Tenant
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, postgres.MapError(ctx, fmt.Errorf("get tenant: %w", err))
	}
	return &t, nil
}

// GetByID reads a tenant without locking.
func (r *TenantRepo) GetByID(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	return r.get(ctx, tenantID, false)
}

// GetForUpdate takes the tenant row lock. Waiting is bounded by the
// transaction's lock_timeout; exceeding it surfaces as LOCK_TIMEOUT.
func (r *TenantRepo) GetForUpdate(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	start := time.Now()
	t, err := r.get(ctx, tenantID, true)
	if r.onLockWait != nil {
		r.onLockWait(time.Since(start))
	}
	return t, err
}

// List returns all tenants ordered by name.
func (r *TenantRepo) List(ctx context.Context) ([]*tenant.Tenant, error) {
	sql, args, err := builder().Select(tenantColumns...).From("tenants").OrderBy("name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []*tenant.Tenant
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return out, nil
}

// Create inserts a tenant row.
func (r *TenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	if t.ID == "" {
		t.ID = id.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	sql, args, err := builder().Insert("tenants").SetMap(postgres.StructToMap(t)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return apperror.NewDuplicate("tenant", "id", t.ID)
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}
