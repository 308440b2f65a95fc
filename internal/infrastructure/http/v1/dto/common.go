// Package dto defines the request and response bodies of the HTTP API.
// Money travels as fixed-scale decimal strings in both directions.
package dto

import (
	"fmt"

	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/invoice"
)

// ListResponse is a page of items.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// DiscountRequest is a per-line or global discount.
type DiscountRequest struct {
	Type  string `json:"type" binding:"required,oneof=percent fixed"`
	Value string `json:"value" binding:"required"`
}

func (r *DiscountRequest) toDomain(field string) (*invoice.Discount, error) {
	if r == nil {
		return nil, nil
	}
	value, err := types.ParseMoney(field+".value", r.Value)
	if err != nil {
		return nil, err
	}
	d := &invoice.Discount{Type: invoice.DiscountType(r.Type), Value: value}
	if err := d.Validate(field); err != nil {
		return nil, err
	}
	return d, nil
}

// DiscountResponse echoes an applied discount definition.
type DiscountResponse struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func fromDiscount(d *invoice.Discount) *DiscountResponse {
	if d == nil {
		return nil
	}
	return &DiscountResponse{Type: string(d.Type), Value: types.Format2(d.Value)}
}

func parseOptionalMoney(field string, s *string) (*types.Money, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	m, err := types.ParseMoney(field, *s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func lineField(i int, name string) string {
	return fmt.Sprintf("lines[%d].%s", i, name)
}

func formatOptional(m *types.Money) *string {
	if m == nil {
		return nil
	}
	s := types.Format2(*m)
	return &s
}
