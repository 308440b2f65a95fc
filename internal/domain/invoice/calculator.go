package invoice

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/types"
)

// DiscountType selects how a discount value is applied.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Discount is a per-line or global discount.
type Discount struct {
	Type  DiscountType `json:"type"`
	Value types.Money  `json:"value"`
}

// Validate checks type and value range. field names the offending input.
func (d *Discount) Validate(field string) error {
	if d == nil {
		return nil
	}
	switch d.Type {
	case DiscountPercent:
		if d.Value.IsNegative() || d.Value.GreaterThan(decimal.NewFromInt(100)) {
			return apperror.NewValidation("percent discount must be between 0 and 100").
				WithDetail("field", field).
				WithDetail("value", d.Value.String())
		}
	case DiscountFixed:
		if d.Value.IsNegative() {
			return apperror.NewValidation("fixed discount cannot be negative").
				WithDetail("field", field).
				WithDetail("value", d.Value.String())
		}
	default:
		return apperror.NewValidation("unknown discount type").
			WithDetail("field", field).
			WithDetail("type", string(d.Type))
	}
	return nil
}

// amount returns the discount applied to base, clamped to [0, base].
func (d *Discount) amount(base types.Money) types.Money {
	if d == nil || !base.IsPositive() {
		return decimal.Zero
	}
	var amt types.Money
	if d.Type == DiscountPercent {
		amt = types.PercentOf(base, d.Value)
	} else {
		amt = d.Value
	}
	if amt.GreaterThan(base) {
		return base
	}
	return types.ClampZero(amt)
}

// LineKey identifies an invoice line across an original and its rectificativas.
// It concatenates product id and product name, so a renamed product yields a new key.
type LineKey string

// NewLineKey builds the key for a product id (nil for deleted products) and name.
func NewLineKey(productID *string, productName string) LineKey {
	pid := ""
	if productID != nil {
		pid = *productID
	}
	return LineKey(pid + "|" + productName)
}

// Line is one calculator input row.
type Line struct {
	ProductID   *string        `json:"productId,omitempty"`
	ProductName string         `json:"productName"`
	PriceGross  types.Money    `json:"priceGross"`
	TaxRate     types.Money    `json:"taxRate"`
	Quantity    types.Quantity `json:"quantity"`
	Discount    *Discount      `json:"discount,omitempty"`
	CostCenter  string         `json:"costCenter,omitempty"`
}

// CalculatedLine is a line with every computed field filled.
type CalculatedLine struct {
	Line

	LineDiscount  types.Money // item discount amount
	LineGross     types.Money // price × quantity − item discount, before the global discount
	RowGross      types.Money // after the global discount, 2 decimals
	UnitNet       types.Money // 8 decimals, audit only
	RowNetPrecise types.Money // 8 decimals, audit only
	RowNet        types.Money // 2 decimals, summed into the totals
}

// Calculation is the result of Calculate.
type Calculation struct {
	Lines         []CalculatedLine
	Subtotal      types.Money // Σ line gross after item discounts
	DiscountTotal types.Money // global discount actually applied
	Gross         types.Money
	Net           types.Money
	Tax           types.Money
	TaxBreakdown  []TaxLine
	Count         types.Quantity
}

// Totals is the tax summary of a set of rows whose RowGross is final.
type Totals struct {
	Gross        types.Money
	Net          types.Money
	Tax          types.Money
	TaxBreakdown []TaxLine
}

var cent = decimal.New(1, -2)

// Calculate computes totals for sales lines and an optional global discount.
// It performs no I/O.
func Calculate(lines []Line, discount *Discount) (*Calculation, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	if err := discount.Validate("discount"); err != nil {
		return nil, err
	}

	calc := &Calculation{
		Lines:        make([]CalculatedLine, len(lines)),
		TaxBreakdown: []TaxLine{},
		Count:        decimal.Zero,
	}

	subtotal := decimal.Zero
	for i, l := range lines {
		raw := l.PriceGross.Mul(l.Quantity)
		off := l.Discount.amount(raw)
		lineGross := types.ClampZero(raw.Sub(off))

		calc.Lines[i] = CalculatedLine{Line: l, LineDiscount: off, LineGross: lineGross}
		subtotal = subtotal.Add(lineGross)
		calc.Count = calc.Count.Add(l.Quantity)
	}

	calc.Subtotal = types.Round2(subtotal)
	final := calc.Subtotal
	if calc.Subtotal.IsPositive() {
		final = types.ClampZero(types.Round2(calc.Subtotal.Sub(discount.amount(calc.Subtotal))))
	}
	calc.DiscountTotal = calc.Subtotal.Sub(final)

	allocate(calc.Lines, subtotal, final)

	totals := FinalizeRows(calc.Lines)
	calc.Gross = totals.Gross
	calc.Net = totals.Net
	calc.Tax = totals.Tax
	calc.TaxBreakdown = totals.TaxBreakdown
	return calc, nil
}

// allocate spreads final over the lines proportionally to their gross
// (discountRatio = final / subtotal, or 1 when subtotal is zero) and rounds
// each row to cents. Leftover cents from rounding go to the largest rows so
// that Σ RowGross == final.
func allocate(rows []CalculatedLine, subtotal, final types.Money) {
	if len(rows) == 0 {
		return
	}

	allocated := decimal.Zero
	for i := range rows {
		if subtotal.IsPositive() {
			rows[i].RowGross = types.Round2(rows[i].LineGross.Mul(final).DivRound(subtotal, types.ScalePrecise))
		} else {
			rows[i].RowGross = types.Round2(rows[i].LineGross)
		}
		allocated = allocated.Add(rows[i].RowGross)
	}

	residual := final.Sub(allocated)
	if residual.IsZero() {
		return
	}

	order := make([]int, 0, len(rows))
	for i := range rows {
		if rows[i].LineGross.IsPositive() {
			order = append(order, i)
		}
	}
	if len(order) == 0 {
		return
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rows[order[a]].LineGross.GreaterThan(rows[order[b]].LineGross)
	})

	step := cent
	if residual.IsNegative() {
		step = cent.Neg()
	}
	for n := 0; !residual.IsZero(); n++ {
		i := order[n%len(order)]
		rows[i].RowGross = rows[i].RowGross.Add(step)
		residual = residual.Sub(step)
	}
}

// FinalizeRows fills the net audit fields from RowGross and TaxRate and
// builds the per-rate breakdown. Each bucket's tax is Σ gross − Σ rounded net,
// never rounded on its own, so Σ bucket.Tax == Gross − Net exactly.
// Works for negative (rectificativa) rows as well.
func FinalizeRows(rows []CalculatedLine) Totals {
	totals := Totals{
		Gross:        decimal.Zero,
		Net:          decimal.Zero,
		Tax:          decimal.Zero,
		TaxBreakdown: []TaxLine{},
	}
	idx := make(map[string]int)

	for i := range rows {
		r := &rows[i]
		r.UnitNet = types.GrossToNet(r.PriceGross, r.TaxRate)
		r.RowNetPrecise = types.GrossToNet(r.RowGross, r.TaxRate)
		r.RowNet = types.Round2(r.RowNetPrecise)

		totals.Gross = totals.Gross.Add(r.RowGross)
		totals.Net = totals.Net.Add(r.RowNet)

		key := types.Format2(r.TaxRate)
		j, ok := idx[key]
		if !ok {
			j = len(totals.TaxBreakdown)
			idx[key] = j
			totals.TaxBreakdown = append(totals.TaxBreakdown, TaxLine{
				Rate:  types.Round2(r.TaxRate),
				Net:   decimal.Zero,
				Tax:   decimal.Zero,
				Gross: decimal.Zero,
			})
		}
		b := &totals.TaxBreakdown[j]
		b.Gross = b.Gross.Add(r.RowGross)
		b.Net = b.Net.Add(r.RowNet)
	}

	for i := range totals.TaxBreakdown {
		b := &totals.TaxBreakdown[i]
		b.Tax = b.Gross.Sub(b.Net)
	}
	totals.Tax = totals.Gross.Sub(totals.Net)
	sortTaxLines(totals.TaxBreakdown)
	return totals
}

func sortTaxLines(lines []TaxLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Rate.LessThan(lines[j].Rate)
	})
}

func validateLines(lines []Line) error {
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		switch {
		case l.PriceGross.IsNegative():
			return apperror.NewValidation("price cannot be negative").WithDetail("field", field+".priceGross")
		case l.Quantity.IsNegative():
			return apperror.NewValidation("quantity cannot be negative").WithDetail("field", field+".quantity")
		case l.TaxRate.IsNegative() || l.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(100)):
			return apperror.NewValidation("tax rate must be between 0 and 100").WithDetail("field", field+".taxRate")
		}
		if err := l.Discount.Validate(field + ".discount"); err != nil {
			return err
		}
	}
	return nil
}
