package tax

import (
	"context"
	"strings"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/types"
)

// Source provides the current zone table. Implementations may swap it at runtime.
type Source interface {
	Table() *Table
}

// StaticSource serves a fixed table.
type StaticSource struct {
	table *Table
}

// NewStaticSource wraps a table.
func NewStaticSource(t *Table) StaticSource {
	return StaticSource{table: t}
}

// Table implements Source.
func (s StaticSource) Table() *Table { return s.table }

// Resolver implements invoice.TaxRates over a Source.
type Resolver struct {
	src Source
}

// NewResolver creates a resolver.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// RateFor returns the rate of taxClass in the zone of postcode.
func (r *Resolver) RateFor(_ context.Context, postcode, taxClass string) (types.Money, error) {
	postcode = strings.TrimSpace(postcode)
	zone, ok := r.src.Table().Lookup(postcode)
	if !ok {
		return types.Zero(), apperror.NewValidation("no tax zone for postcode").
			WithDetail("postcode", postcode)
	}
	rate, ok := zone.Rate(taxClass)
	if !ok {
		return types.Zero(), apperror.NewValidation("unknown tax class").
			WithDetail("tax_class", taxClass).
			WithDetail("zone", zone.Name)
	}
	return rate, nil
}
