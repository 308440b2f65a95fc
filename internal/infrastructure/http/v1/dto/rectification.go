package dto

import (
	"fmt"

	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/rectification"
)

// RectifyItemRequest returns Quantity units of one original line.
type RectifyItemRequest struct {
	ProductID   *string `json:"productId,omitempty"`
	ProductName string  `json:"productName" binding:"required"`
	Quantity    string  `json:"quantity" binding:"required"`
}

// RectifyInvoiceRequest issues a rectificativa against an invoice.
type RectifyInvoiceRequest struct {
	Reason        string               `json:"reason" binding:"required"`
	Items         []RectifyItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod string               `json:"paymentMethod,omitempty" binding:"omitempty,oneof=cash card"`
}

// ToDomain converts the request for the invoice at originalID.
func (r *RectifyInvoiceRequest) ToDomain(originalID string) (rectification.Input, error) {
	in := rectification.Input{
		OriginalInvoiceID: originalID,
		Reason:            r.Reason,
		PaymentMethod:     invoice.PaymentMethod(r.PaymentMethod),
		Items:             make([]rectification.ItemRequest, 0, len(r.Items)),
	}
	for i, it := range r.Items {
		qty, err := types.ParseMoney(fmt.Sprintf("items[%d].quantity", i), it.Quantity)
		if err != nil {
			return in, err
		}
		in.Items = append(in.Items, rectification.ItemRequest{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    qty,
		})
	}
	return in, nil
}

// RectificationResponse carries the new rectificativa and the updated original.
type RectificationResponse struct {
	Rectificativa InvoiceResponse `json:"rectificativa"`
	Original      InvoiceResponse `json:"original"`
}

// FromRectification converts a rectification result.
func FromRectification(res *rectification.Result) RectificationResponse {
	return RectificationResponse{
		Rectificativa: FromInvoice(res.Rectificativa),
		Original:      FromInvoice(res.Original),
	}
}

// RemainingLineResponse is one rectifiable line.
type RemainingLineResponse struct {
	ProductID   *string `json:"productId,omitempty"`
	ProductName string  `json:"productName"`
	Original    string  `json:"original"`
	Rectified   string  `json:"rectified"`
	Remaining   string  `json:"remaining"`
}

// FromRemainingLines converts the tracker view of an invoice.
func FromRemainingLines(lines []rectification.RemainingLine) []RemainingLineResponse {
	out := make([]RemainingLineResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, RemainingLineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Original:    types.FormatQuantity(l.Original),
			Rectified:   types.FormatQuantity(l.Rectified),
			Remaining:   types.FormatQuantity(l.Remaining),
		})
	}
	return out
}
