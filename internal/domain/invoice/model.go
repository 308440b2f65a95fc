// Package invoice provides the invoice model, the decimal-exact invoice
// calculator and the service that issues sales invoices.
package invoice

import (
	"encoding/json"
	"time"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/numerator"
	"tpvcore/internal/core/types"
)

// Type is the legal kind of an invoice. Each type has its own number series.
type Type string

const (
	TypeTicket        Type = "ticket"
	TypeFactura       Type = "factura"
	TypeRectificativa Type = "rectificativa"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeTicket, TypeFactura, TypeRectificativa:
		return true
	}
	return false
}

// Series maps the type to its numbering series.
func (t Type) Series() numerator.Series {
	return numerator.Series(t)
}

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusPaid        Status = "paid"
	StatusCancelled   Status = "cancelled"
	StatusRectificada Status = "rectificada"
)

// PaymentMethod is how an invoice was settled.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// Party is an issuer or customer snapshot, copied at creation time.
type Party struct {
	Name    string `json:"name"`
	TaxID   string `json:"taxId,omitempty"`
	Address string `json:"address,omitempty"`
}

// Item is a persisted invoice line. Quantity and money are negative on rectificativas.
type Item struct {
	ID          string         `db:"id"`
	InvoiceID   string         `db:"invoice_id"`
	LineNo      int            `db:"line_no"`
	ProductID   *string        `db:"product_id"`
	ProductName string         `db:"product_name"`
	Quantity    types.Quantity `db:"quantity"`
	TaxRate     types.Money    `db:"tax_rate"`    // percentage, 2 decimals
	PriceGross  types.Money    `db:"price_gross"` // unit, 4 decimals
	UnitNet     types.Money    `db:"unit_net"`    // 8 decimals, audit only
	RowNet      types.Money    `db:"row_net"`         // 8 decimals, audit only
	RowNetTotal types.Money    `db:"row_net_rounded"` // 2 decimals, summed into Net
	RowGross    types.Money    `db:"row_gross"`       // 2 decimals
	Discount    *Discount      `db:"-"`
	CostCenter  string         `db:"cost_center"`
}

// Key identifies the line for rectification accounting.
func (it *Item) Key() LineKey {
	return NewLineKey(it.ProductID, it.ProductName)
}

// Payment is one settlement row. Only Amount takes part in ledger math.
type Payment struct {
	ID        string        `db:"id"`
	InvoiceID string        `db:"invoice_id"`
	LineNo    int           `db:"line_no"`
	Method    PaymentMethod `db:"method"`
	Amount    types.Money   `db:"amount"`
	Tendered  types.Money   `db:"tendered"`
	Change    types.Money   `db:"change"`
}

// Invoice is immutable once issued except for paid→rectificada.
type Invoice struct {
	ID       string
	TenantID string
	Number   string
	Type     Type
	Status   Status

	Subtotal      types.Money
	DiscountTotal types.Money
	Net           types.Money
	Tax           types.Money
	Gross         types.Money
	Discount      *Discount

	ClosureID           *string
	OriginalInvoiceID   *string
	RectificationReason string

	CustomerID *string
	Customer   *Party
	Issuer     Party

	Items        []Item
	Payments     []Payment
	TaxBreakdown []TaxLine

	IssuedAt time.Time
}

// FirstPaymentMethod decides the cash/card split. Defaults to cash.
func (inv *Invoice) FirstPaymentMethod() PaymentMethod {
	if len(inv.Payments) == 0 {
		return PaymentCash
	}
	return inv.Payments[0].Method
}

// CanBeRectified checks the status preconditions of a rectification.
func (inv *Invoice) CanBeRectified() error {
	if inv.Type == TypeRectificativa {
		return apperror.NewState("a rectificativa cannot be rectified").
			WithDetail("invoice_id", inv.ID)
	}
	if inv.Status != StatusPaid {
		return apperror.NewState("only paid invoices can be rectified").
			WithDetail("invoice_id", inv.ID).
			WithDetail("status", string(inv.Status))
	}
	return nil
}

// TaxLine is one per-rate bucket of a tax breakdown. Net + Tax == Gross exactly.
type TaxLine struct {
	Rate  types.Money `json:"rate"`
	Net   types.Money `json:"net"`
	Tax   types.Money `json:"tax"`
	Gross types.Money `json:"gross"`
}

// MarshalJSON renders fixed-scale strings.
func (l TaxLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Rate  string `json:"rate"`
		Net   string `json:"net"`
		Tax   string `json:"tax"`
		Gross string `json:"gross"`
	}{types.Format2(l.Rate), types.Format2(l.Net), types.Format2(l.Tax), types.Format2(l.Gross)})
}

// MergeTaxLines adds buckets with equal rate, keeping ascending rate order.
func MergeTaxLines(a, b []TaxLine) []TaxLine {
	idx := make(map[string]int, len(a)+len(b))
	out := make([]TaxLine, 0, len(a)+len(b))
	add := func(l TaxLine) {
		key := types.Format2(l.Rate)
		if i, ok := idx[key]; ok {
			out[i].Net = out[i].Net.Add(l.Net)
			out[i].Tax = out[i].Tax.Add(l.Tax)
			out[i].Gross = out[i].Gross.Add(l.Gross)
			return
		}
		idx[key] = len(out)
		out = append(out, l)
	}
	for _, l := range a {
		add(l)
	}
	for _, l := range b {
		add(l)
	}
	sortTaxLines(out)
	return out
}
