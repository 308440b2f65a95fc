package tenant

import (
	"context"
)

// Repository provides access to tenant rows.
type Repository interface {
	// GetByID reads a tenant without locking.
	GetByID(ctx context.Context, tenantID string) (*Tenant, error)

	// GetForUpdate reads a tenant and takes its exclusive row lock for the
	// rest of the current transaction.
	GetForUpdate(ctx context.Context, tenantID string) (*Tenant, error)

	// List returns all tenants ordered by name.
	List(ctx context.Context) ([]*Tenant, error)

	// Create inserts a new tenant row and populates t.ID.
	Create(ctx context.Context, t *Tenant) error
}
