package tenant

import (
	"context"

	appctx "tpvcore/internal/core/context"
)

type ctxKey int

const tenantKey ctxKey = iota

// WithTenant stores the locked tenant in context.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// GetTenant retrieves tenant from context.
func GetTenant(ctx context.Context) *Tenant {
	t, _ := ctx.Value(tenantKey).(*Tenant)
	return t
}

// GetTenantID returns tenant ID or empty string.
func GetTenantID(ctx context.Context) string {
	if t := GetTenant(ctx); t != nil {
		return t.ID
	}
	return ""
}

// CallerTenantID returns the locked tenant ID, falling back to the tenant
// resolved for the caller before the lock was taken.
func CallerTenantID(ctx context.Context) string {
	if id := GetTenantID(ctx); id != "" {
		return id
	}
	return appctx.GetTenantID(ctx)
}
