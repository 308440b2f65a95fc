package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchQuery is one statement of a multi-table write.
type BatchQuery struct {
	SQL  string
	Args []any
}

// BatchExecutor sends the statements of one aggregate (an invoice with its
// lines and payments) in a single round-trip on the ambient transaction.
type BatchExecutor struct {
	txManager *TxManager
}

// NewBatchExecutor creates a batch executor bound to txManager.
func NewBatchExecutor(txManager *TxManager) *BatchExecutor {
	return &BatchExecutor{txManager: txManager}
}

// ExecuteBatch runs queries in order; the first failure aborts the rest and
// poisons the transaction, so the caller's unit of work rolls back.
func (e *BatchExecutor) ExecuteBatch(ctx context.Context, queries []BatchQuery) error {
	if len(queries) == 0 {
		return nil
	}
	tx := e.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("batch of %d statements outside a transaction", len(queries))
	}

	var batch pgx.Batch
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}
	results := tx.SendBatch(ctx, &batch)

	var execErr error
	for i := range queries {
		if _, err := results.Exec(); err != nil {
			execErr = fmt.Errorf("statement %d of %d: %w", i+1, len(queries), err)
			break
		}
	}
	if err := results.Close(); err != nil && execErr == nil {
		execErr = fmt.Errorf("close batch: %w", err)
	}
	return execErr
}
