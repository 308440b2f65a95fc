package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/id"
	"tpvcore/internal/core/numerator"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain"
	"tpvcore/internal/domain/catalogs/customer"
	"tpvcore/internal/domain/catalogs/product"
	"tpvcore/pkg/logger"
)

// TaxRates resolves the rate of a tax class for a postcode.
type TaxRates interface {
	RateFor(ctx context.Context, postcode, taxClass string) (types.Money, error)
}

// ShiftLocator finds the open cash register shift a new invoice is attached to.
type ShiftLocator interface {
	// OpenClosureID returns "" when the tenant has no open shift.
	OpenClosureID(ctx context.Context, tenantID string) (string, error)
}

// SaleLine is a requested sale row. Either ProductID or an open-price
// ProductName + PriceGross + TaxClass must be given.
type SaleLine struct {
	ProductID   string
	ProductName string
	PriceGross  *types.Money
	TaxClass    string
	Quantity    types.Quantity
	Discount    *Discount
}

// PaymentInput is a requested payment row.
type PaymentInput struct {
	Method   PaymentMethod
	Amount   types.Money
	Tendered *types.Money
}

// CreateInput is the createInvoice request.
type CreateInput struct {
	Type       Type // optional: factura when CustomerID is set, ticket otherwise
	Lines      []SaleLine
	Discount   *Discount
	CustomerID string
	Payments   []PaymentInput
}

// ServiceConfig wires the invoice service.
type ServiceConfig struct {
	Locker    *tenant.Locker
	Repo      Repository
	Products  product.Repository
	Customers customer.Repository
	Taxes     TaxRates
	Shifts    ShiftLocator
	Numbers   numerator.Generator
	Numbering numerator.Config
	Events    domain.EventPublisher
	Metrics   domain.Metrics
	Clock     domain.Clock
}

// Service issues and reads sales invoices.
type Service struct {
	locker    *tenant.Locker
	repo      Repository
	products  product.Repository
	customers customer.Repository
	taxes     TaxRates
	shifts    ShiftLocator
	numbers   numerator.Generator
	numbering numerator.Config
	events    domain.EventPublisher
	metrics   domain.Metrics
	now       domain.Clock
}

// NewService creates a new invoice service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		locker:    cfg.Locker,
		repo:      cfg.Repo,
		products:  cfg.Products,
		customers: cfg.Customers,
		taxes:     cfg.Taxes,
		shifts:    cfg.Shifts,
		numbers:   cfg.Numbers,
		numbering: cfg.Numbering,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		now:       cfg.Clock,
	}
	if s.events == nil {
		s.events = domain.NoopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = domain.NoopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.numbering.PadWidth == 0 {
		s.numbering = numerator.DefaultConfig()
	}
	return s
}

// Calculate runs the calculator without touching tenant state.
func (s *Service) Calculate(_ context.Context, lines []Line, discount *Discount) (*Calculation, error) {
	return Calculate(lines, discount)
}

// Create issues a ticket or factura. Numbering, the insert, the stock moves
// and the outbox event share one transaction under the tenant lock.
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (*Invoice, error) {
	invType, err := in.resolveType()
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var inv *Invoice
	err = s.locker.WithLock(ctx, tenantID, func(ctx context.Context, t *tenant.Tenant) error {
		lines, err := s.resolveLines(ctx, t, in.Lines)
		if err != nil {
			return err
		}

		calc, err := Calculate(lines, in.Discount)
		if err != nil {
			return err
		}

		payments, err := buildPayments(in.Payments, calc.Gross)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		inv = &Invoice{
			ID:            id.NewString(),
			TenantID:      t.ID,
			Type:          invType,
			Status:        StatusPaid,
			Subtotal:      calc.Subtotal,
			DiscountTotal: calc.DiscountTotal,
			Net:           calc.Net,
			Tax:           calc.Tax,
			Gross:         calc.Gross,
			Discount:      in.Discount,
			Issuer:        Party{Name: t.IssuerName, TaxID: t.IssuerTaxID, Address: t.IssuerAddress},
			Items:         ItemsFromRows(calc.Lines),
			Payments:      payments,
			TaxBreakdown:  calc.TaxBreakdown,
			IssuedAt:      now,
		}

		if in.CustomerID != "" {
			c, err := s.customers.GetByID(ctx, t.ID, in.CustomerID)
			if err != nil {
				return err
			}
			inv.CustomerID = &c.ID
			inv.Customer = &Party{Name: c.Name, TaxID: c.TaxID, Address: c.Address}
		}

		closureID, err := s.shifts.OpenClosureID(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("find open shift: %w", err)
		}
		if closureID != "" {
			inv.ClosureID = &closureID
		}

		if inv.Number, err = s.nextNumber(ctx, t, invType.Series(), now); err != nil {
			return err
		}

		if err := s.repo.Create(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		for _, it := range inv.Items {
			if it.ProductID == nil || it.Quantity.IsZero() {
				continue
			}
			if err := s.products.AdjustStock(ctx, t.ID, *it.ProductID, it.Quantity.Neg()); err != nil {
				return fmt.Errorf("adjust stock: %w", err)
			}
		}

		return s.events.Publish(ctx, domain.Event{
			TenantID:      t.ID,
			AggregateType: "invoice",
			AggregateID:   inv.ID,
			EventType:     domain.EventInvoiceIssued,
			Payload:       map[string]any{"number": inv.Number, "type": inv.Type, "gross": types.Format2(inv.Gross)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InvoiceIssued(string(inv.Type))
	logger.Info(ctx, "invoice issued",
		"invoice_id", inv.ID,
		"number", inv.Number,
		"type", inv.Type,
		"gross", types.Format2(inv.Gross),
		"closure_id", inv.ClosureID,
	)
	return inv, nil
}

// Get returns an invoice owned by the tenant.
func (s *Service) Get(ctx context.Context, tenantID, invoiceID string) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := EnsureTenant(inv, tenantID); err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns a page of the tenant's invoices.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Invoice], error) {
	filter.Limit, filter.Offset = domain.NormalizePage(filter.Limit, filter.Offset)
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return domain.ListResult[*Invoice]{}, apperror.NewValidation("from must be before to")
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResult[*Invoice]{}, fmt.Errorf("list invoices: %w", err)
	}
	return domain.ListResult[*Invoice]{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (s *Service) nextNumber(ctx context.Context, t *tenant.Tenant, series numerator.Series, now time.Time) (string, error) {
	count, err := s.numbers.Next(ctx, t.ID, series)
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", series, err)
	}
	return numerator.Format(s.numbering, t.InvoicePrefix, series, count, t.LocalTime(now)), nil
}

// EnsureTenant rejects access to another tenant's invoice.
func EnsureTenant(inv *Invoice, tenantID string) error {
	if inv.TenantID != tenantID {
		return apperror.NewState("invoice belongs to another tenant").WithDetail("invoice_id", inv.ID)
	}
	return nil
}

// resolveLines turns sale lines into calculator lines using the catalog and tax zones.
func (s *Service) resolveLines(ctx context.Context, t *tenant.Tenant, in []SaleLine) ([]Line, error) {
	ids := make([]string, 0, len(in))
	for _, l := range in {
		if l.ProductID != "" {
			ids = append(ids, l.ProductID)
		}
	}

	products := map[string]*product.Product{}
	if len(ids) > 0 {
		var err error
		if products, err = s.products.GetByIDs(ctx, t.ID, ids); err != nil {
			return nil, fmt.Errorf("load products: %w", err)
		}
	}

	lines := make([]Line, len(in))
	for i, l := range in {
		line := Line{Quantity: l.Quantity, Discount: l.Discount}
		taxClass := l.TaxClass

		if l.ProductID != "" {
			p, ok := products[l.ProductID]
			if !ok {
				return nil, apperror.NewNotFound("product", l.ProductID)
			}
			pid := p.ID
			line.ProductID = &pid
			line.ProductName = p.Name
			line.PriceGross = p.PriceGross
			line.CostCenter = p.CostCenterLabel()
			taxClass = p.TaxClass
		} else {
			line.ProductName = strings.TrimSpace(l.ProductName)
		}
		if l.PriceGross != nil {
			line.PriceGross = *l.PriceGross
		}
		line.PriceGross = types.Round4(line.PriceGross)

		rate, err := s.taxes.RateFor(ctx, t.Postcode, taxClass)
		if err != nil {
			return nil, err
		}
		line.TaxRate = rate
		lines[i] = line
	}
	return lines, nil
}

func (in *CreateInput) resolveType() (Type, error) {
	switch in.Type {
	case "":
		if in.CustomerID != "" {
			return TypeFactura, nil
		}
		return TypeTicket, nil
	case TypeTicket:
		return TypeTicket, nil
	case TypeFactura:
		if in.CustomerID == "" {
			return "", apperror.NewValidation("a factura requires a customer").WithDetail("field", "customerId")
		}
		return TypeFactura, nil
	case TypeRectificativa:
		return "", apperror.NewValidation("rectificativas are issued through rectification").WithDetail("field", "type")
	default:
		return "", apperror.NewValidation("unknown invoice type").WithDetail("type", string(in.Type))
	}
}

func (in *CreateInput) validate() error {
	if len(in.Lines) == 0 {
		return apperror.NewValidation("invoice needs at least one line").WithDetail("field", "lines")
	}
	for i, l := range in.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if l.ProductID == "" {
			if strings.TrimSpace(l.ProductName) == "" || l.PriceGross == nil || l.TaxClass == "" {
				return apperror.NewValidation("open-price line needs productName, priceGross and taxClass").
					WithDetail("field", field)
			}
		}
		if l.PriceGross != nil && l.PriceGross.IsNegative() {
			return apperror.NewValidation("price cannot be negative").WithDetail("field", field+".priceGross")
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").WithDetail("field", field+".quantity")
		}
	}
	for i, p := range in.Payments {
		if !p.Method.Valid() {
			return apperror.NewValidation("unknown payment method").
				WithDetail("field", fmt.Sprintf("payments[%d].method", i)).
				WithDetail("method", string(p.Method))
		}
	}
	return nil
}

// buildPayments checks that payments settle gross and computes change.
func buildPayments(in []PaymentInput, gross types.Money) ([]Payment, error) {
	if len(in) == 0 && !gross.IsZero() {
		return nil, apperror.NewValidation("invoice needs at least one payment").WithDetail("field", "payments")
	}

	total := decimal.Zero
	out := make([]Payment, len(in))
	for i, p := range in {
		field := fmt.Sprintf("payments[%d]", i)
		amount := types.Round2(p.Amount)
		if amount.IsNegative() {
			return nil, apperror.NewValidation("payment amount cannot be negative").WithDetail("field", field+".amount")
		}

		tendered := amount
		if p.Tendered != nil && p.Method == PaymentCash {
			tendered = types.Round2(*p.Tendered)
		}
		if tendered.LessThan(amount) {
			return nil, apperror.NewValidation("tendered cash is less than the amount").
				WithDetail("field", field+".tendered").
				WithDetail("amount", types.Format2(amount)).
				WithDetail("tendered", types.Format2(tendered))
		}

		out[i] = Payment{
			ID:       id.NewString(),
			LineNo:   i + 1,
			Method:   p.Method,
			Amount:   amount,
			Tendered: tendered,
			Change:   tendered.Sub(amount),
		}
		total = total.Add(amount)
	}

	if !total.Equal(gross) {
		return nil, apperror.NewValidation("payments do not match the invoice total").
			WithDetail("gross", types.Format2(gross)).
			WithDetail("paid", types.Format2(total))
	}
	return out, nil
}

// ItemsFromRows converts calculated rows to persisted items at their rounding points.
func ItemsFromRows(rows []CalculatedLine) []Item {
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = Item{
			ID:          id.NewString(),
			LineNo:      i + 1,
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Quantity:    r.Quantity,
			TaxRate:     types.Round2(r.TaxRate),
			PriceGross:  types.Round4(r.PriceGross),
			UnitNet:     types.Round8(r.UnitNet),
			RowNet:      types.Round8(r.RowNetPrecise),
			RowNetTotal: types.Round2(r.RowNet),
			RowGross:    types.Round2(r.RowGross),
			Discount:    r.Discount,
			CostCenter:  r.CostCenter,
		}
	}
	return items
}
