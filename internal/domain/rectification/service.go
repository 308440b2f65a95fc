package rectification

import (
	"context"
	"fmt"
	"time"

	"tpvcore/internal/core/apperror"
	appctx "tpvcore/internal/core/context"
	"tpvcore/internal/core/id"
	"tpvcore/internal/core/numerator"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain"
	"tpvcore/internal/domain/catalogs/product"
	"tpvcore/internal/domain/invoice"
	"tpvcore/pkg/logger"
)

// Input is the rectifyInvoice request.
type Input struct {
	OriginalInvoiceID string
	Reason            string
	Items             []ItemRequest
	// PaymentMethod of the refund; defaults to the original's first payment method.
	PaymentMethod invoice.PaymentMethod
}

// Result carries the new rectificativa and the original after the status update.
type Result struct {
	Rectificativa *invoice.Invoice
	Original      *invoice.Invoice
}

// ServiceConfig wires the rectification service.
type ServiceConfig struct {
	Locker    *tenant.Locker
	Invoices  invoice.Repository
	Products  product.Repository
	Shifts    invoice.ShiftLocator
	Numbers   numerator.Generator
	Numbering numerator.Config
	Events    domain.EventPublisher
	Audit     domain.AuditRecorder
	Metrics   domain.Metrics
	Clock     domain.Clock
}

// Service validates and records rectifications.
type Service struct {
	locker    *tenant.Locker
	invoices  invoice.Repository
	products  product.Repository
	shifts    invoice.ShiftLocator
	numbers   numerator.Generator
	numbering numerator.Config
	events    domain.EventPublisher
	audit     domain.AuditRecorder
	metrics   domain.Metrics
	now       domain.Clock
}

// NewService creates a new rectification service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		locker:    cfg.Locker,
		invoices:  cfg.Invoices,
		products:  cfg.Products,
		shifts:    cfg.Shifts,
		numbers:   cfg.Numbers,
		numbering: cfg.Numbering,
		events:    cfg.Events,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		now:       cfg.Clock,
	}
	if s.events == nil {
		s.events = domain.NoopPublisher{}
	}
	if s.audit == nil {
		s.audit = domain.NoopAudit{}
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

// Rectify issues a rectificativa for part or all of a paid invoice.
// The remaining-quantity check, numbering, insert, restock and the original's
// status change all happen under the tenant lock in one transaction.
func (s *Service) Rectify(ctx context.Context, tenantID string, in Input) (*Result, error) {
	reason, err := normalizeReason(in.Reason)
	if err != nil {
		return nil, err
	}
	if in.PaymentMethod != "" && !in.PaymentMethod.Valid() {
		return nil, apperror.NewValidation("unknown payment method").WithDetail("method", string(in.PaymentMethod))
	}

	var res *Result
	var units types.Quantity
	err = s.locker.WithLock(ctx, tenantID, func(ctx context.Context, t *tenant.Tenant) error {
		original, err := s.invoices.GetByID(ctx, in.OriginalInvoiceID)
		if err != nil {
			return err
		}
		if err := invoice.EnsureTenant(original, t.ID); err != nil {
			return err
		}
		if err := original.CanBeRectified(); err != nil {
			return err
		}

		closureID, err := s.shifts.OpenClosureID(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("find open shift: %w", err)
		}
		if closureID == "" {
			return apperror.NewNotFound("closure", "open").
				WithDetail("reason", "a cash register shift must be open to rectify")
		}

		prior, err := s.invoices.ListRectifications(ctx, t.ID, original.ID)
		if err != nil {
			return fmt.Errorf("list prior rectifications: %w", err)
		}
		ledger := NewLedger(original, prior)

		rows, n, err := ledger.Reverse(in.Items)
		if err != nil {
			return err
		}
		units = n
		totals := invoice.FinalizeRows(rows)

		method := in.PaymentMethod
		if method == "" {
			method = original.FirstPaymentMethod()
		}

		now := s.now().UTC()
		originalID := original.ID
		rect := &invoice.Invoice{
			ID:                  id.NewString(),
			TenantID:            t.ID,
			Type:                invoice.TypeRectificativa,
			Status:              invoice.StatusPaid,
			Subtotal:            totals.Gross,
			DiscountTotal:       types.Zero(),
			Net:                 totals.Net,
			Tax:                 totals.Tax,
			Gross:               totals.Gross,
			ClosureID:           &closureID,
			OriginalInvoiceID:   &originalID,
			RectificationReason: reason,
			CustomerID:          original.CustomerID,
			Customer:            original.Customer,
			Issuer:              original.Issuer,
			Items:               invoice.ItemsFromRows(rows),
			Payments: []invoice.Payment{{
				ID:       id.NewString(),
				LineNo:   1,
				Method:   method,
				Amount:   totals.Gross,
				Tendered: totals.Gross,
				Change:   types.Zero(),
			}},
			TaxBreakdown: totals.TaxBreakdown,
			IssuedAt:     now,
		}

		count, err := s.numbers.Next(ctx, t.ID, numerator.SeriesRectificativa)
		if err != nil {
			return fmt.Errorf("next rectificativa number: %w", err)
		}
		rect.Number = numerator.Format(s.numbering, t.InvoicePrefix, numerator.SeriesRectificativa, count, t.LocalTime(now))

		if err := s.invoices.Create(ctx, rect); err != nil {
			return fmt.Errorf("create rectificativa: %w", err)
		}

		for _, it := range rect.Items {
			if it.ProductID == nil {
				continue
			}
			if err := s.products.AdjustStock(ctx, t.ID, *it.ProductID, it.Quantity.Abs()); err != nil {
				return fmt.Errorf("restock: %w", err)
			}
		}

		if ledger.FullyConsumed() {
			if err := s.invoices.UpdateStatus(ctx, original.ID, invoice.StatusRectificada); err != nil {
				return fmt.Errorf("mark original rectificada: %w", err)
			}
			original.Status = invoice.StatusRectificada
		}

		if err := s.audit.Record(ctx, domain.AuditEntry{
			TenantID:   t.ID,
			EntityType: "invoice",
			EntityID:   rect.ID,
			Action:     "rectify",
			UserID:     appctx.GetUserID(ctx),
			Snapshot: map[string]any{
				"rectificativa": rect,
				"original_id":   original.ID,
				"remaining":     ledger.Remaining(),
			},
		}); err != nil {
			return fmt.Errorf("audit rectification: %w", err)
		}

		if err := s.events.Publish(ctx, domain.Event{
			TenantID:      t.ID,
			AggregateType: "invoice",
			AggregateID:   rect.ID,
			EventType:     domain.EventInvoiceRectified,
			Payload: map[string]any{
				"number":          rect.Number,
				"original_id":     original.ID,
				"original_status": original.Status,
				"gross":           types.Format2(rect.Gross),
			},
		}); err != nil {
			return err
		}

		res = &Result{Rectificativa: rect, Original: original}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u, _ := units.Float64()
	s.metrics.UnitsRectified(u)
	s.metrics.InvoiceIssued(string(invoice.TypeRectificativa))
	logger.Info(ctx, "rectification issued",
		"original_id", res.Original.ID,
		"original_number", res.Original.Number,
		"original_status", res.Original.Status,
		"number", res.Rectificativa.Number,
		"gross", types.Format2(res.Rectificativa.Gross),
	)
	return res, nil
}

// RemainingLines reports the rectifiable quantity of every line of an invoice.
func (s *Service) RemainingLines(ctx context.Context, tenantID, invoiceID string) ([]RemainingLine, error) {
	original, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := invoice.EnsureTenant(original, tenantID); err != nil {
		return nil, err
	}
	prior, err := s.invoices.ListRectifications(ctx, tenantID, original.ID)
	if err != nil {
		return nil, fmt.Errorf("list prior rectifications: %w", err)
	}
	return NewLedger(original, prior).Remaining(), nil
}
