// Package register implements the cash-register ledger: exactly one open
// shift per tenant, closed once with a server-computed snapshot.
package register

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/invoice"
)

// Status of a shift.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Denomination is one counted coin or note value.
type Denomination struct {
	Value types.Money `json:"value"`
	Count int         `json:"count"`
}

// DenominationTotal sums value × count.
func DenominationTotal(ds []Denomination) types.Money {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d.Value.Mul(decimal.NewFromInt(int64(d.Count))))
	}
	return types.Round2(total)
}

// ProductLine is one product breakdown row, keyed by name and cost center.
type ProductLine struct {
	ProductName string         `json:"productName"`
	CostCenter  string         `json:"costCenter,omitempty"`
	Quantity    types.Quantity `json:"quantity"`
	Gross       types.Money    `json:"gross"`
}

// MarshalJSON renders fixed-scale strings.
func (p ProductLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProductName string `json:"productName"`
		CostCenter  string `json:"costCenter,omitempty"`
		Quantity    string `json:"quantity"`
		Gross       string `json:"gross"`
	}{p.ProductName, p.CostCenter, types.FormatQuantity(p.Quantity), types.Format2(p.Gross)})
}

// Snapshot is the set of totals computed at close time.
type Snapshot struct {
	TotalGross        types.Money
	TotalNet          types.Money
	TotalTax          types.Money
	TotalCash         types.Money
	TotalCard         types.Money
	TransactionCount  int
	TaxBreakdown      []invoice.TaxLine
	ProductBreakdown  []ProductLine
	InvoiceTypeCounts map[invoice.Type]int
}

// EmptySnapshot returns a zero snapshot with non-nil collections.
func EmptySnapshot() Snapshot {
	return Snapshot{
		TotalGross:        decimal.Zero,
		TotalNet:          decimal.Zero,
		TotalTax:          decimal.Zero,
		TotalCash:         decimal.Zero,
		TotalCard:         decimal.Zero,
		TaxBreakdown:      []invoice.TaxLine{},
		ProductBreakdown:  []ProductLine{},
		InvoiceTypeCounts: map[invoice.Type]int{},
	}
}

// BuildSnapshot aggregates invoices of one shift. Rectificativas carry
// negative amounts and quantities, so returns net out of every total.
// The cash/card split follows each invoice's first payment method.
func BuildSnapshot(invoices []*invoice.Invoice) Snapshot {
	s := EmptySnapshot()
	products := newProductAccumulator()

	for _, inv := range invoices {
		s.TotalGross = s.TotalGross.Add(inv.Gross)
		s.TotalNet = s.TotalNet.Add(inv.Net)
		s.TotalTax = s.TotalTax.Add(inv.Tax)
		if inv.FirstPaymentMethod() == invoice.PaymentCard {
			s.TotalCard = s.TotalCard.Add(inv.Gross)
		} else {
			s.TotalCash = s.TotalCash.Add(inv.Gross)
		}
		s.TransactionCount++
		s.InvoiceTypeCounts[inv.Type]++
		s.TaxBreakdown = invoice.MergeTaxLines(s.TaxBreakdown, inv.TaxBreakdown)

		for _, it := range inv.Items {
			products.add(ProductLine{
				ProductName: it.ProductName,
				CostCenter:  it.CostCenter,
				Quantity:    it.Quantity,
				Gross:       it.RowGross,
			})
		}
	}

	s.ProductBreakdown = products.lines()
	return s
}

// Merge adds two snapshots with exact decimal addition.
func (s Snapshot) Merge(o Snapshot) Snapshot {
	out := EmptySnapshot()
	out.TotalGross = s.TotalGross.Add(o.TotalGross)
	out.TotalNet = s.TotalNet.Add(o.TotalNet)
	out.TotalTax = s.TotalTax.Add(o.TotalTax)
	out.TotalCash = s.TotalCash.Add(o.TotalCash)
	out.TotalCard = s.TotalCard.Add(o.TotalCard)
	out.TransactionCount = s.TransactionCount + o.TransactionCount
	out.TaxBreakdown = invoice.MergeTaxLines(s.TaxBreakdown, o.TaxBreakdown)

	for t, n := range s.InvoiceTypeCounts {
		out.InvoiceTypeCounts[t] += n
	}
	for t, n := range o.InvoiceTypeCounts {
		out.InvoiceTypeCounts[t] += n
	}

	products := newProductAccumulator()
	for _, p := range s.ProductBreakdown {
		products.add(p)
	}
	for _, p := range o.ProductBreakdown {
		products.add(p)
	}
	out.ProductBreakdown = products.lines()
	return out
}

type productKey struct {
	name       string
	costCenter string
}

type productAccumulator struct {
	idx   map[productKey]int
	items []ProductLine
}

func newProductAccumulator() *productAccumulator {
	return &productAccumulator{idx: make(map[productKey]int)}
}

func (a *productAccumulator) add(p ProductLine) {
	k := productKey{p.ProductName, p.CostCenter}
	if i, ok := a.idx[k]; ok {
		a.items[i].Quantity = a.items[i].Quantity.Add(p.Quantity)
		a.items[i].Gross = a.items[i].Gross.Add(p.Gross)
		return
	}
	a.idx[k] = len(a.items)
	a.items = append(a.items, p)
}

func (a *productAccumulator) lines() []ProductLine {
	out := make([]ProductLine, len(a.items))
	copy(out, a.items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProductName != out[j].ProductName {
			return out[i].ProductName < out[j].ProductName
		}
		return out[i].CostCenter < out[j].CostCenter
	})
	return out
}

// Closure is one cash register shift.
type Closure struct {
	ID          string
	TenantID    string
	Status      Status
	PeriodStart time.Time
	PeriodEnd   *time.Time

	StartingCash  types.Money
	CountedCash   *types.Money
	ExpectedCash  *types.Money // starting_cash + total_cash
	Difference    *types.Money // counted_cash − expected_cash
	Denominations []Denomination

	Snapshot
}

// IsOpen reports whether the shift still accepts invoices.
func (c *Closure) IsOpen() bool {
	return c.Status == StatusOpen
}

// finalize stamps the close-time fields. It never mutates a closed shift.
func (c *Closure) finalize(snap Snapshot, counted types.Money, denominations []Denomination, at time.Time) {
	expected := c.StartingCash.Add(snap.TotalCash)
	diff := counted.Sub(expected)
	end := at

	c.Snapshot = snap
	c.CountedCash = &counted
	c.ExpectedCash = &expected
	c.Difference = &diff
	c.Denominations = denominations
	c.PeriodEnd = &end
	c.Status = StatusClosed
}
