// Package tx provides the unit-of-work abstraction used by ledger services.
// Domain code depends on this interface; implementations live in
// infrastructure/storage (postgres and memory).
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
//
// Repositories resolve the active transaction from ctx, so anything called
// with the ctx passed to fn takes part in the same unit of work.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
