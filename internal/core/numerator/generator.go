package numerator

import (
	"context"
)

// Generator advances a tenant counter.
// This is the domain contract - implementations live in infrastructure layer.
//
// Next must run inside the transaction that holds the tenant row lock and
// that inserts the numbered invoice, so a rollback also rolls the counter back.
type Generator interface {
	// Next increments the series counter and returns the new value.
	Next(ctx context.Context, tenantID string, series Series) (int64, error)
}
