// Package tenant provides the tenant model and the per-tenant critical section
// that serializes every mutating ledger operation.
package tenant

import (
	"fmt"
	"strings"
	"time"

	"tpvcore/internal/core/numerator"
)

// Tenant is a shop using the ledger. Counters are mutated only under the row lock.
type Tenant struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	InvoicePrefix string `db:"invoice_prefix"` // template with %year%, %month%, %day%, %date%, %count%
	Timezone      string `db:"timezone"`       // IANA name, e.g. Europe/Madrid
	Postcode      string `db:"postcode"`

	LastTicketNumber        int64 `db:"last_ticket_number"`
	LastFacturaNumber       int64 `db:"last_factura_number"`
	LastRectificativaNumber int64 `db:"last_rectificativa_number"`

	// Issuer snapshot copied onto every invoice
	IssuerName    string `db:"issuer_name"`
	IssuerTaxID   string `db:"issuer_tax_id"`
	IssuerAddress string `db:"issuer_address"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Location resolves the tenant timezone. Empty means UTC.
func (t *Tenant) Location() (*time.Location, error) {
	if strings.TrimSpace(t.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("tenant %s timezone %q: %w", t.ID, t.Timezone, err)
	}
	return loc, nil
}

// LocalTime converts an instant to the tenant's wall clock, falling back to UTC.
func (t *Tenant) LocalTime(at time.Time) time.Time {
	loc, err := t.Location()
	if err != nil {
		return at.UTC()
	}
	return at.In(loc)
}

// Counter returns the last issued value of the series counter.
func (t *Tenant) Counter(series numerator.Series) int64 {
	switch series {
	case numerator.SeriesFactura:
		return t.LastFacturaNumber
	case numerator.SeriesRectificativa:
		return t.LastRectificativaNumber
	default:
		return t.LastTicketNumber
	}
}

// SetCounter stores the last issued value of the series counter.
func (t *Tenant) SetCounter(series numerator.Series, value int64) {
	switch series {
	case numerator.SeriesFactura:
		t.LastFacturaNumber = value
	case numerator.SeriesRectificativa:
		t.LastRectificativaNumber = value
	default:
		t.LastTicketNumber = value
	}
}

// CreateTenantInput contains data for provisioning a tenant.
type CreateTenantInput struct {
	Name          string
	InvoicePrefix string
	Timezone      string
	Postcode      string
	IssuerName    string
	IssuerTaxID   string
	IssuerAddress string
}

// Validate checks if input is valid.
func (i *CreateTenantInput) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if i.Timezone == "" {
		i.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(i.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q", i.Timezone)
	}
	if i.InvoicePrefix == "" {
		i.InvoicePrefix = "%year%-%count%"
	}
	return nil
}
