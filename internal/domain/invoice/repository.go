package invoice

import (
	"context"
	"time"
)

// ListFilter selects invoices of one tenant.
type ListFilter struct {
	TenantID  string
	ClosureID string
	Type      Type
	Status    Status
	From      *time.Time // issued_at >= From
	To        *time.Time // issued_at < To
	Limit     int
	Offset    int
}

// Repository defines invoice persistence.
type Repository interface {
	// Create inserts the invoice with its items and payments.
	Create(ctx context.Context, inv *Invoice) error

	// GetByID loads an invoice with items and payments. Not scoped by tenant:
	// callers check ownership themselves.
	GetByID(ctx context.Context, invoiceID string) (*Invoice, error)

	// UpdateStatus is the only mutation an issued invoice allows.
	UpdateStatus(ctx context.Context, invoiceID string, status Status) error

	// ListByClosure returns invoices attached to a shift, oldest first.
	ListByClosure(ctx context.Context, tenantID, closureID string, statuses ...Status) ([]*Invoice, error)

	// ListRectifications returns every rectificativa referencing originalID.
	ListRectifications(ctx context.Context, tenantID, originalID string) ([]*Invoice, error)

	// List returns a page of invoices, newest first, and the total count.
	List(ctx context.Context, filter ListFilter) ([]*Invoice, int64, error)
}
