// Package rectification issues rectificativas: partial or full reversals of a
// paid invoice that never consume more of a line than was originally sold.
package rectification

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/invoice"
)

// ItemRequest asks to return Quantity units of one original line.
type ItemRequest struct {
	ProductID   *string
	ProductName string
	Quantity    types.Quantity // positive magnitude
}

// Key identifies the original line the request refers to.
func (r ItemRequest) Key() invoice.LineKey {
	return invoice.NewLineKey(r.ProductID, r.ProductName)
}

// RemainingLine reports how much of an original line can still be rectified.
type RemainingLine struct {
	ProductID   *string        `json:"productId,omitempty"`
	ProductName string         `json:"productName"`
	Original    types.Quantity `json:"original"`
	Rectified   types.Quantity `json:"rectified"`
	Remaining   types.Quantity `json:"remaining"`
}

// usage is the absolute quantity and gross consumed from one line key.
type usage struct {
	quantity types.Quantity
	gross    types.Money
}

// originalLine pools every row of the original invoice sharing a key.
// Price, rate and cost center come from the first such row.
type originalLine struct {
	item     invoice.Item
	quantity types.Quantity
	gross    types.Money
}

// Ledger is the remaining-quantity view of one original invoice.
type Ledger struct {
	order    []invoice.LineKey
	original map[invoice.LineKey]*originalLine
	consumed map[invoice.LineKey]usage
}

// NewLedger builds the view from the original and all of its prior rectificativas.
func NewLedger(original *invoice.Invoice, prior []*invoice.Invoice) *Ledger {
	l := &Ledger{
		original: make(map[invoice.LineKey]*originalLine),
		consumed: make(map[invoice.LineKey]usage),
	}
	for _, it := range original.Items {
		k := it.Key()
		if ol, ok := l.original[k]; ok {
			ol.quantity = ol.quantity.Add(it.Quantity.Abs())
			ol.gross = ol.gross.Add(it.RowGross.Abs())
			continue
		}
		l.order = append(l.order, k)
		l.original[k] = &originalLine{item: it, quantity: it.Quantity.Abs(), gross: it.RowGross.Abs()}
	}
	for _, r := range prior {
		for _, it := range r.Items {
			l.consume(it.Key(), it.Quantity.Abs(), it.RowGross.Abs())
		}
	}
	return l
}

func (l *Ledger) consume(k invoice.LineKey, qty types.Quantity, gross types.Money) {
	u, ok := l.consumed[k]
	if !ok {
		u = usage{quantity: decimal.Zero, gross: decimal.Zero}
	}
	u.quantity = u.quantity.Add(qty)
	u.gross = u.gross.Add(gross)
	l.consumed[k] = u
}

func (l *Ledger) used(k invoice.LineKey) usage {
	if u, ok := l.consumed[k]; ok {
		return u
	}
	return usage{quantity: decimal.Zero, gross: decimal.Zero}
}

// Remaining lists every original line in invoice order.
func (l *Ledger) Remaining() []RemainingLine {
	out := make([]RemainingLine, 0, len(l.order))
	for _, k := range l.order {
		ol := l.original[k]
		used := l.used(k).quantity
		out = append(out, RemainingLine{
			ProductID:   ol.item.ProductID,
			ProductName: ol.item.ProductName,
			Original:    ol.quantity,
			Rectified:   used,
			Remaining:   types.ClampZero(ol.quantity.Sub(used)),
		})
	}
	return out
}

// FullyConsumed reports whether every original line has been rectified completely.
func (l *Ledger) FullyConsumed() bool {
	for _, k := range l.order {
		if l.used(k).quantity.LessThan(l.original[k].quantity) {
			return false
		}
	}
	return true
}

// Reverse validates the request against the remaining quantities and returns
// the negated rows. Requests naming the same line are summed. The last
// rectification of a line refunds exactly the gross not yet refunded, so a
// line reversed in parts adds back up to its original row gross.
// The ledger records the consumption only when every item passes.
func (l *Ledger) Reverse(items []ItemRequest) ([]invoice.CalculatedLine, types.Quantity, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, apperror.NewValidation("rectification needs at least one item").WithDetail("field", "items")
	}

	requested := make(map[invoice.LineKey]types.Quantity)
	var order []invoice.LineKey
	for i, it := range items {
		if !it.Quantity.IsPositive() {
			return nil, decimal.Zero, apperror.NewValidation("quantity must be positive").
				WithDetail("field", fmt.Sprintf("items[%d].quantity", i))
		}
		k := it.Key()
		if _, ok := l.original[k]; !ok {
			return nil, decimal.Zero, apperror.NewValidation(fmt.Sprintf("%q is not on the original invoice", it.ProductName)).
				WithDetail("field", fmt.Sprintf("items[%d]", i)).
				WithDetail("product", it.ProductName)
		}
		if _, seen := requested[k]; !seen {
			order = append(order, k)
			requested[k] = decimal.Zero
		}
		requested[k] = requested[k].Add(it.Quantity)
	}

	rows := make([]invoice.CalculatedLine, 0, len(order))
	units := decimal.Zero
	for _, k := range order {
		ol := l.original[k]
		req := requested[k]
		used := l.used(k)
		remaining := types.ClampZero(ol.quantity.Sub(used.quantity))

		if req.GreaterThan(remaining) {
			return nil, decimal.Zero, apperror.NewValidation(fmt.Sprintf(
				"cannot rectify %s units of %q: only %s remaining",
				types.FormatQuantity(req), ol.item.ProductName, types.FormatQuantity(remaining))).
				WithDetail("product", ol.item.ProductName).
				WithDetail("requested", types.FormatQuantity(req)).
				WithDetail("remaining", types.FormatQuantity(remaining))
		}

		var gross types.Money
		if used.quantity.Add(req).Equal(ol.quantity) {
			gross = ol.gross.Sub(used.gross)
		} else {
			gross = types.Round2(ol.gross.Mul(req).DivRound(ol.quantity, types.ScalePrecise))
		}

		rows = append(rows, invoice.CalculatedLine{
			Line: invoice.Line{
				ProductID:   ol.item.ProductID,
				ProductName: ol.item.ProductName,
				PriceGross:  ol.item.PriceGross,
				TaxRate:     ol.item.TaxRate,
				Quantity:    req.Neg(),
				CostCenter:  ol.item.CostCenter,
			},
			LineGross: gross.Neg(),
			RowGross:  gross.Neg(),
		})
		units = units.Add(req)
	}

	for _, r := range rows {
		l.consume(invoice.NewLineKey(r.ProductID, r.ProductName), r.Quantity.Abs(), r.RowGross.Abs())
	}
	return rows, units, nil
}

// normalizeReason trims the reason and rejects an empty one.
func normalizeReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", apperror.NewValidation("a rectification reason is required").WithDetail("field", "reason")
	}
	return reason, nil
}
