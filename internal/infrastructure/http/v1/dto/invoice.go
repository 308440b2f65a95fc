package dto

import (
	"fmt"
	"time"

	"tpvcore/internal/core/types"
	"tpvcore/internal/domain"
	"tpvcore/internal/domain/invoice"
)

// --- Request DTOs ---

// CalculateLineRequest is one calculator row. The tax rate is given directly.
type CalculateLineRequest struct {
	ProductID   *string          `json:"productId,omitempty"`
	ProductName string           `json:"productName" binding:"required"`
	PriceGross  string           `json:"priceGross" binding:"required"`
	TaxRate     string           `json:"taxRate" binding:"required"`
	Quantity    string           `json:"quantity" binding:"required"`
	Discount    *DiscountRequest `json:"discount,omitempty"`
	CostCenter  string           `json:"costCenter,omitempty"`
}

// CalculateInvoiceRequest previews totals without issuing anything.
type CalculateInvoiceRequest struct {
	Lines    []CalculateLineRequest `json:"lines" binding:"required,min=1,dive"`
	Discount *DiscountRequest       `json:"discount,omitempty"`
}

// ToDomain converts the request to calculator input.
func (r *CalculateInvoiceRequest) ToDomain() ([]invoice.Line, *invoice.Discount, error) {
	lines := make([]invoice.Line, 0, len(r.Lines))
	for i, l := range r.Lines {
		price, err := types.ParseMoney(lineField(i, "priceGross"), l.PriceGross)
		if err != nil {
			return nil, nil, err
		}
		rate, err := types.ParseMoney(lineField(i, "taxRate"), l.TaxRate)
		if err != nil {
			return nil, nil, err
		}
		qty, err := types.ParseMoney(lineField(i, "quantity"), l.Quantity)
		if err != nil {
			return nil, nil, err
		}
		discount, err := l.Discount.toDomain(lineField(i, "discount"))
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, invoice.Line{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			PriceGross:  price,
			TaxRate:     rate,
			Quantity:    qty,
			Discount:    discount,
			CostCenter:  l.CostCenter,
		})
	}
	discount, err := r.Discount.toDomain("discount")
	if err != nil {
		return nil, nil, err
	}
	return lines, discount, nil
}

// SaleLineRequest is one sold row: a catalog product or an open-price line.
type SaleLineRequest struct {
	ProductID   string           `json:"productId,omitempty"`
	ProductName string           `json:"productName,omitempty"`
	PriceGross  *string          `json:"priceGross,omitempty"`
	TaxClass    string           `json:"taxClass,omitempty"`
	Quantity    string           `json:"quantity" binding:"required"`
	Discount    *DiscountRequest `json:"discount,omitempty"`
}

// PaymentRequest is one settlement row.
type PaymentRequest struct {
	Method   string  `json:"method" binding:"required,oneof=cash card"`
	Amount   string  `json:"amount" binding:"required"`
	Tendered *string `json:"tendered,omitempty"`
}

// CreateInvoiceRequest issues a ticket or factura.
type CreateInvoiceRequest struct {
	InvoiceType string            `json:"invoiceType,omitempty" binding:"omitempty,oneof=ticket factura"`
	Lines       []SaleLineRequest `json:"lines" binding:"required,min=1,dive"`
	Discount    *DiscountRequest  `json:"discount,omitempty"`
	CustomerID  string            `json:"customerId,omitempty"`
	Payments    []PaymentRequest  `json:"payments" binding:"required,min=1,dive"`
}

// ToDomain converts the request to service input.
func (r *CreateInvoiceRequest) ToDomain() (invoice.CreateInput, error) {
	in := invoice.CreateInput{
		Type:       invoice.Type(r.InvoiceType),
		CustomerID: r.CustomerID,
		Lines:      make([]invoice.SaleLine, 0, len(r.Lines)),
		Payments:   make([]invoice.PaymentInput, 0, len(r.Payments)),
	}
	for i, l := range r.Lines {
		qty, err := types.ParseMoney(lineField(i, "quantity"), l.Quantity)
		if err != nil {
			return in, err
		}
		price, err := parseOptionalMoney(lineField(i, "priceGross"), l.PriceGross)
		if err != nil {
			return in, err
		}
		discount, err := l.Discount.toDomain(lineField(i, "discount"))
		if err != nil {
			return in, err
		}
		in.Lines = append(in.Lines, invoice.SaleLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			PriceGross:  price,
			TaxClass:    l.TaxClass,
			Quantity:    qty,
			Discount:    discount,
		})
	}
	for i, p := range r.Payments {
		amount, err := types.ParseMoney(fmt.Sprintf("payments[%d].amount", i), p.Amount)
		if err != nil {
			return in, err
		}
		tendered, err := parseOptionalMoney(fmt.Sprintf("payments[%d].tendered", i), p.Tendered)
		if err != nil {
			return in, err
		}
		in.Payments = append(in.Payments, invoice.PaymentInput{
			Method:   invoice.PaymentMethod(p.Method),
			Amount:   amount,
			Tendered: tendered,
		})
	}
	discount, err := r.Discount.toDomain("discount")
	if err != nil {
		return in, err
	}
	in.Discount = discount
	return in, nil
}

// ListInvoicesQuery filters GET /invoices.
type ListInvoicesQuery struct {
	ClosureID string     `form:"closureId"`
	Type      string     `form:"type" binding:"omitempty,oneof=ticket factura rectificativa"`
	Status    string     `form:"status" binding:"omitempty,oneof=draft paid cancelled rectificada"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int        `form:"limit"`
	Offset    int        `form:"offset"`
}

// ToFilter scopes the query to a tenant.
func (q *ListInvoicesQuery) ToFilter(tenantID string) invoice.ListFilter {
	return invoice.ListFilter{
		TenantID:  tenantID,
		ClosureID: q.ClosureID,
		Type:      invoice.Type(q.Type),
		Status:    invoice.Status(q.Status),
		From:      q.From,
		To:        q.To,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
}

// --- Response DTOs ---

// CalculatedLineResponse is one computed calculator row.
type CalculatedLineResponse struct {
	ProductID    *string           `json:"productId,omitempty"`
	ProductName  string            `json:"productName"`
	Quantity     string            `json:"quantity"`
	PriceGross   string            `json:"priceGross"`
	TaxRate      string            `json:"taxRate"`
	Discount     *DiscountResponse `json:"discount,omitempty"`
	LineDiscount string            `json:"lineDiscount"`
	RowGross     string            `json:"rowGross"`
	UnitNet      string            `json:"unitNet"`
	RowNet       string            `json:"rowNet"`
}

// CalculationResponse is the calculateInvoice result.
type CalculationResponse struct {
	Lines         []CalculatedLineResponse `json:"lines"`
	Subtotal      string                   `json:"subtotal"`
	DiscountTotal string                   `json:"discountTotal"`
	Net           string                   `json:"net"`
	Tax           string                   `json:"tax"`
	Gross         string                   `json:"gross"`
	TaxBreakdown  []invoice.TaxLine        `json:"taxBreakdown"`
	Count         string                   `json:"count"`
}

// FromCalculation converts a calculation to its response.
func FromCalculation(c *invoice.Calculation) CalculationResponse {
	resp := CalculationResponse{
		Lines:         make([]CalculatedLineResponse, 0, len(c.Lines)),
		Subtotal:      types.Format2(c.Subtotal),
		DiscountTotal: types.Format2(c.DiscountTotal),
		Net:           types.Format2(c.Net),
		Tax:           types.Format2(c.Tax),
		Gross:         types.Format2(c.Gross),
		TaxBreakdown:  taxLines(c.TaxBreakdown),
		Count:         types.FormatQuantity(c.Count),
	}
	for _, l := range c.Lines {
		resp.Lines = append(resp.Lines, CalculatedLineResponse{
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			Quantity:     types.FormatQuantity(l.Quantity),
			PriceGross:   types.Format4(l.PriceGross),
			TaxRate:      types.Format2(l.TaxRate),
			Discount:     fromDiscount(l.Discount),
			LineDiscount: types.Format2(l.LineDiscount),
			RowGross:     types.Format2(l.RowGross),
			UnitNet:      types.Format8(l.UnitNet),
			RowNet:       types.Format2(l.RowNet),
		})
	}
	return resp
}

// ItemResponse is one persisted invoice line.
type ItemResponse struct {
	LineNo      int               `json:"lineNo"`
	ProductID   *string           `json:"productId,omitempty"`
	ProductName string            `json:"productName"`
	Quantity    string            `json:"quantity"`
	TaxRate     string            `json:"taxRate"`
	PriceGross  string            `json:"priceGross"`
	UnitNet     string            `json:"unitNet"`
	RowNet      string            `json:"rowNet"`
	RowNetTotal string            `json:"rowNetRounded"`
	RowGross    string            `json:"rowGross"`
	Discount    *DiscountResponse `json:"discount,omitempty"`
	CostCenter  string            `json:"costCenter,omitempty"`
}

// PaymentResponse is one settlement row.
type PaymentResponse struct {
	Method   string `json:"method"`
	Amount   string `json:"amount"`
	Tendered string `json:"tendered"`
	Change   string `json:"change"`
}

// InvoiceResponse is an issued invoice.
type InvoiceResponse struct {
	ID                  string            `json:"id"`
	Number              string            `json:"invoiceNumber"`
	Type                string            `json:"invoiceType"`
	Status              string            `json:"status"`
	Subtotal            string            `json:"subtotal"`
	DiscountTotal       string            `json:"discountTotal"`
	Discount            *DiscountResponse `json:"discount,omitempty"`
	Net                 string            `json:"net"`
	Tax                 string            `json:"tax"`
	Gross               string            `json:"gross"`
	TaxBreakdown        []invoice.TaxLine `json:"taxBreakdown"`
	ClosureID           *string           `json:"closureId,omitempty"`
	OriginalInvoiceID   *string           `json:"originalInvoiceId,omitempty"`
	RectificationReason string            `json:"rectificationReason,omitempty"`
	CustomerID          *string           `json:"customerId,omitempty"`
	Customer            *invoice.Party    `json:"customer,omitempty"`
	Issuer              invoice.Party     `json:"issuer"`
	Items               []ItemResponse    `json:"items"`
	Payments            []PaymentResponse `json:"payments"`
	IssuedAt            time.Time         `json:"issuedAt"`
}

// FromInvoice converts an invoice to its response.
func FromInvoice(inv *invoice.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                  inv.ID,
		Number:              inv.Number,
		Type:                string(inv.Type),
		Status:              string(inv.Status),
		Subtotal:            types.Format2(inv.Subtotal),
		DiscountTotal:       types.Format2(inv.DiscountTotal),
		Discount:            fromDiscount(inv.Discount),
		Net:                 types.Format2(inv.Net),
		Tax:                 types.Format2(inv.Tax),
		Gross:               types.Format2(inv.Gross),
		TaxBreakdown:        taxLines(inv.TaxBreakdown),
		ClosureID:           inv.ClosureID,
		OriginalInvoiceID:   inv.OriginalInvoiceID,
		RectificationReason: inv.RectificationReason,
		CustomerID:          inv.CustomerID,
		Customer:            inv.Customer,
		Issuer:              inv.Issuer,
		Items:               make([]ItemResponse, 0, len(inv.Items)),
		Payments:            make([]PaymentResponse, 0, len(inv.Payments)),
		IssuedAt:            inv.IssuedAt,
	}
	for _, it := range inv.Items {
		resp.Items = append(resp.Items, ItemResponse{
			LineNo:      it.LineNo,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    types.FormatQuantity(it.Quantity),
			TaxRate:     types.Format2(it.TaxRate),
			PriceGross:  types.Format4(it.PriceGross),
			UnitNet:     types.Format8(it.UnitNet),
			RowNet:      types.Format8(it.RowNet),
			RowNetTotal: types.Format2(it.RowNetTotal),
			RowGross:    types.Format2(it.RowGross),
			Discount:    fromDiscount(it.Discount),
			CostCenter:  it.CostCenter,
		})
	}
	for _, p := range inv.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			Method:   string(p.Method),
			Amount:   types.Format2(p.Amount),
			Tendered: types.Format2(p.Tendered),
			Change:   types.Format2(p.Change),
		})
	}
	return resp
}

// FromInvoiceList converts a page of invoices.
func FromInvoiceList(res domain.ListResult[*invoice.Invoice]) ListResponse[InvoiceResponse] {
	out := ListResponse[InvoiceResponse]{
		Items:      make([]InvoiceResponse, 0, len(res.Items)),
		TotalCount: res.TotalCount,
		Limit:      res.Limit,
		Offset:     res.Offset,
	}
	for _, inv := range res.Items {
		out.Items = append(out.Items, FromInvoice(inv))
	}
	return out
}

func taxLines(lines []invoice.TaxLine) []invoice.TaxLine {
	if lines == nil {
		return []invoice.TaxLine{}
	}
	return lines
}
