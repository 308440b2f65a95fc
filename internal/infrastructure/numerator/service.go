// Package numerator provides the PostgreSQL implementation of invoice counters.
// This is the infrastructure layer - it implements core/numerator.Generator interface.
package numerator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	corenumerator "tpvcore/internal/core/numerator"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/infrastructure/storage/postgres"
)

// counterColumns whitelists the tenant column backing each series.
var counterColumns = map[corenumerator.Series]string{
	corenumerator.SeriesTicket:        "last_ticket_number",
	corenumerator.SeriesFactura:       "last_factura_number",
	corenumerator.SeriesRectificativa: "last_rectificativa_number",
}

// Service advances the per-tenant counters stored on the tenants row.
// The counters are gapless: Next runs in the caller's transaction, which
// already holds the tenant row lock, so a rollback also rolls the counter back.
type Service struct {
	db postgres.QuerierProvider
}

// Ensure compile-time interface compliance.
var _ corenumerator.Generator = (*Service)(nil)

// New creates a numerator service.
func New(db postgres.QuerierProvider) *Service {
	return &Service{db: db}
}

// Next increments the series counter and returns the new value.
func (s *Service) Next(ctx context.Context, tenantID string, series corenumerator.Series) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("numerator service is not initialized")
	}
	column, ok := counterColumns[series]
	if !ok {
		return 0, fmt.Errorf("unknown series %q", series)
	}

	var num int64
	err := s.db.GetQuerier(ctx).QueryRow(ctx, fmt.Sprintf(`
		UPDATE tenants SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING %[1]s
	`, column), tenantID).Scan(&num)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, tenant.ErrTenantNotFound
	}
	if err != nil {
		return 0, postgres.MapError(ctx, fmt.Errorf("next %s number: %w", series, err))
	}

	// Keep the locked snapshot in sync with the row
	if t := tenant.GetTenant(ctx); t != nil && t.ID == tenantID {
		t.SetCounter(series, num)
	}
	return num, nil
}
