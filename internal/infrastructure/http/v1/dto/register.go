package dto

import (
	"fmt"
	"time"

	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/register"
)

// OpenRegisterRequest starts a shift.
type OpenRegisterRequest struct {
	StartingCash string `json:"startingCash" binding:"required"`
}

// StartingCashValue parses the starting float.
func (r *OpenRegisterRequest) StartingCashValue() (types.Money, error) {
	return types.ParseMoney("startingCash", r.StartingCash)
}

// DenominationRequest is one counted coin or note value.
type DenominationRequest struct {
	Value string `json:"value" binding:"required"`
	Count int    `json:"count" binding:"gte=0"`
}

// CloseRegisterRequest ends the open shift. CountedCash defaults to the
// denomination total.
type CloseRegisterRequest struct {
	CountedCash   *string               `json:"countedCash,omitempty"`
	Denominations []DenominationRequest `json:"denominations,omitempty" binding:"dive"`
}

// ToDomain converts the request to service input.
func (r *CloseRegisterRequest) ToDomain() (register.CloseInput, error) {
	counted, err := parseOptionalMoney("countedCash", r.CountedCash)
	if err != nil {
		return register.CloseInput{}, err
	}
	in := register.CloseInput{CountedCash: counted}
	for i, d := range r.Denominations {
		value, err := types.ParseMoney(fmt.Sprintf("denominations[%d].value", i), d.Value)
		if err != nil {
			return register.CloseInput{}, err
		}
		in.Denominations = append(in.Denominations, register.Denomination{Value: value, Count: d.Count})
	}
	return in, nil
}

// SnapshotResponse is the set of shift or period totals.
type SnapshotResponse struct {
	TotalGross        string                 `json:"totalGross"`
	TotalNet          string                 `json:"totalNet"`
	TotalTax          string                 `json:"totalTax"`
	TotalCash         string                 `json:"totalCash"`
	TotalCard         string                 `json:"totalCard"`
	TransactionCount  int                    `json:"transactionCount"`
	TaxBreakdown      []invoice.TaxLine      `json:"taxBreakdown"`
	ProductBreakdown  []register.ProductLine `json:"productBreakdown"`
	InvoiceTypeCounts map[invoice.Type]int   `json:"invoiceTypeCounts"`
}

// FromSnapshot converts ledger totals.
func FromSnapshot(s register.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		TotalGross:        types.Format2(s.TotalGross),
		TotalNet:          types.Format2(s.TotalNet),
		TotalTax:          types.Format2(s.TotalTax),
		TotalCash:         types.Format2(s.TotalCash),
		TotalCard:         types.Format2(s.TotalCard),
		TransactionCount:  s.TransactionCount,
		TaxBreakdown:      taxLines(s.TaxBreakdown),
		ProductBreakdown:  s.ProductBreakdown,
		InvoiceTypeCounts: s.InvoiceTypeCounts,
	}
	if resp.ProductBreakdown == nil {
		resp.ProductBreakdown = []register.ProductLine{}
	}
	if resp.InvoiceTypeCounts == nil {
		resp.InvoiceTypeCounts = map[invoice.Type]int{}
	}
	return resp
}

// DenominationResponse is one counted value.
type DenominationResponse struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ClosureResponse is a cash register shift.
type ClosureResponse struct {
	ID            string                 `json:"id"`
	Status        string                 `json:"status"`
	PeriodStart   time.Time              `json:"periodStart"`
	PeriodEnd     *time.Time             `json:"periodEnd,omitempty"`
	StartingCash  string                 `json:"startingCash"`
	CountedCash   *string                `json:"countedCash,omitempty"`
	ExpectedCash  *string                `json:"expectedCash,omitempty"`
	Difference    *string                `json:"difference,omitempty"`
	Denominations []DenominationResponse `json:"denominations"`
	SnapshotResponse
}

// FromClosure converts a shift.
func FromClosure(c *register.Closure) ClosureResponse {
	resp := ClosureResponse{
		ID:               c.ID,
		Status:           string(c.Status),
		PeriodStart:      c.PeriodStart,
		PeriodEnd:        c.PeriodEnd,
		StartingCash:     types.Format2(c.StartingCash),
		CountedCash:      formatOptional(c.CountedCash),
		ExpectedCash:     formatOptional(c.ExpectedCash),
		Difference:       formatOptional(c.Difference),
		Denominations:    make([]DenominationResponse, 0, len(c.Denominations)),
		SnapshotResponse: FromSnapshot(c.Snapshot),
	}
	for _, d := range c.Denominations {
		resp.Denominations = append(resp.Denominations, DenominationResponse{
			Value: types.Format2(d.Value),
			Count: d.Count,
		})
	}
	return resp
}
