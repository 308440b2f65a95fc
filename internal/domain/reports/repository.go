package reports

import (
	"context"
	"errors"
	"time"

	"tpvcore/internal/domain/register"
)

// ClosureReader is the read side the aggregator needs. register.Repository satisfies it.
type ClosureReader interface {
	// ListClosed returns closed shifts whose period_start lies in [from, to].
	ListClosed(ctx context.Context, tenantID string, from, to time.Time) ([]*register.Closure, error)
}

// ReadRunner runs fn in a read-only unit of work. postgres.TxManager and the
// memory store implement it.
type ReadRunner interface {
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("report cache miss")

// Cache stores encoded reports of fully elapsed periods.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
