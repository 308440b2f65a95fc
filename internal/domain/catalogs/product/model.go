// Package product provides the sellable product catalog read by the ledger.
package product

import (
	"time"

	"tpvcore/internal/core/types"
)

// Product is a sellable item. PriceGross is tax-inclusive.
type Product struct {
	ID         string      `db:"id" json:"id"`
	TenantID   string      `db:"tenant_id" json:"tenantId"`
	Name       string      `db:"name" json:"name"`
	PriceGross types.Money `db:"price_gross" json:"priceGross"`
	TaxClass   string      `db:"tax_class" json:"taxClass"`
	CostCenter *string     `db:"cost_center" json:"costCenter,omitempty"`

	// Stock is nil for products that do not track stock.
	Stock *types.Quantity `db:"stock" json:"stock,omitempty"`

	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// TracksStock reports whether sales move the stock counter.
func (p *Product) TracksStock() bool {
	return p.Stock != nil
}

// CostCenterLabel returns the cost center or empty string.
func (p *Product) CostCenterLabel() string {
	if p.CostCenter == nil {
		return ""
	}
	return *p.CostCenter
}

// AdjustedStock applies delta and floors the result at zero.
func AdjustedStock(current, delta types.Quantity) types.Quantity {
	return types.ClampZero(current.Add(delta))
}
