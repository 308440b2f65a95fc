// Package customer provides customer records whose data is snapshotted onto facturas.
package customer

import "context"

// Customer holds the fiscal identity printed on a factura.
type Customer struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenantId"`
	Name     string `db:"name" json:"name"`
	TaxID    string `db:"tax_id" json:"taxId"`
	Address  string `db:"address" json:"address"`
}

// Repository reads customers.
type Repository interface {
	GetByID(ctx context.Context, tenantID, customerID string) (*Customer, error)
}
