package product

import (
	"context"

	"tpvcore/internal/core/types"
)

// Repository defines product persistence used by the ledger.
type Repository interface {
	// GetByIDs returns the tenant's non-deleted products keyed by id.
	// Missing ids are simply absent from the map.
	GetByIDs(ctx context.Context, tenantID string, ids []string) (map[string]*Product, error)

	// AdjustStock adds delta to the stock counter, flooring at zero.
	// Products without stock tracking are left untouched.
	AdjustStock(ctx context.Context, tenantID, productID string, delta types.Quantity) error
}
