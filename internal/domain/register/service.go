package register

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tpvcore/internal/core/apperror"
	appctx "tpvcore/internal/core/context"
	"tpvcore/internal/core/id"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain"
	"tpvcore/internal/domain/invoice"
	"tpvcore/pkg/logger"
)

// Repository defines closure persistence.
type Repository interface {
	// Create inserts a new open shift.
	Create(ctx context.Context, c *Closure) error

	// GetOpen returns the tenant's open shift or a NotFound error.
	GetOpen(ctx context.Context, tenantID string) (*Closure, error)

	// GetByID loads any shift.
	GetByID(ctx context.Context, closureID string) (*Closure, error)

	// Finalize persists the close-time fields of a shift that is still open.
	Finalize(ctx context.Context, c *Closure) error

	// ListClosed returns closed shifts whose period_start lies in [from, to], newest first.
	ListClosed(ctx context.Context, tenantID string, from, to time.Time) ([]*Closure, error)
}

// CloseObserver is notified after a shift close has been committed.
type CloseObserver interface {
	ClosureClosed(ctx context.Context, c *Closure)
}

// ServiceConfig wires the register service.
type ServiceConfig struct {
	Locker    *tenant.Locker
	Repo      Repository
	Invoices  invoice.Repository
	Events    domain.EventPublisher
	Audit     domain.AuditRecorder
	Metrics   domain.Metrics
	Observers []CloseObserver
	Clock     domain.Clock
}

// Service is the cash register ledger.
type Service struct {
	locker    *tenant.Locker
	repo      Repository
	invoices  invoice.Repository
	events    domain.EventPublisher
	audit     domain.AuditRecorder
	metrics   domain.Metrics
	observers []CloseObserver
	now       domain.Clock
}

// NewService creates a new register service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		locker:    cfg.Locker,
		repo:      cfg.Repo,
		invoices:  cfg.Invoices,
		events:    cfg.Events,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		observers: cfg.Observers,
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
	return s
}

// Open starts a new shift. Fails with Conflict while another shift is open.
func (s *Service) Open(ctx context.Context, tenantID string, startingCash types.Money) (*Closure, error) {
	if startingCash.IsNegative() {
		return nil, apperror.NewValidation("starting cash cannot be negative").WithDetail("field", "startingCash")
	}

	var c *Closure
	err := s.locker.WithLock(ctx, tenantID, func(ctx context.Context, t *tenant.Tenant) error {
		current, err := s.repo.GetOpen(ctx, t.ID)
		switch {
		case err == nil:
			return apperror.NewConflict("cash register is already open").
				WithDetail("closure_id", current.ID).
				WithDetail("period_start", current.PeriodStart)
		case !apperror.IsNotFound(err):
			return fmt.Errorf("check open register: %w", err)
		}

		c = &Closure{
			ID:           id.NewString(),
			TenantID:     t.ID,
			Status:       StatusOpen,
			PeriodStart:  s.now().UTC(),
			StartingCash: types.Round2(startingCash),
			Snapshot:     EmptySnapshot(),
		}
		if err := s.repo.Create(ctx, c); err != nil {
			return fmt.Errorf("create closure: %w", err)
		}

		return s.events.Publish(ctx, domain.Event{
			TenantID:      t.ID,
			AggregateType: "closure",
			AggregateID:   c.ID,
			EventType:     domain.EventRegisterOpened,
			Payload:       map[string]any{"starting_cash": types.Format2(c.StartingCash)},
		})
	})
	s.metrics.RegisterOperation("open", resultLabel(err))
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "register opened",
		"closure_id", c.ID,
		"starting_cash", types.Format2(c.StartingCash),
	)
	return c, nil
}

// CloseInput is the closeRegister request. CountedCash defaults to the denomination total.
type CloseInput struct {
	CountedCash   *types.Money
	Denominations []Denomination
}

// Close finalizes the open shift with totals computed from its invoices.
// Fails with NotFound when no shift is open.
func (s *Service) Close(ctx context.Context, tenantID string, in CloseInput) (*Closure, error) {
	counted, err := in.counted()
	if err != nil {
		return nil, err
	}

	var c *Closure
	err = s.locker.WithLock(ctx, tenantID, func(ctx context.Context, t *tenant.Tenant) error {
		var err error
		if c, err = s.repo.GetOpen(ctx, t.ID); err != nil {
			return err
		}

		invoices, err := s.invoices.ListByClosure(ctx, t.ID, c.ID, invoice.StatusPaid, invoice.StatusRectificada)
		if err != nil {
			return fmt.Errorf("list shift invoices: %w", err)
		}

		c.finalize(BuildSnapshot(invoices), counted, in.Denominations, s.now().UTC())
		if err := s.repo.Finalize(ctx, c); err != nil {
			return fmt.Errorf("finalize closure: %w", err)
		}

		if err := s.audit.Record(ctx, domain.AuditEntry{
			TenantID:   t.ID,
			EntityType: "closure",
			EntityID:   c.ID,
			Action:     "close",
			UserID:     appctx.GetUserID(ctx),
			Snapshot:   c,
		}); err != nil {
			return fmt.Errorf("audit closure: %w", err)
		}

		return s.events.Publish(ctx, domain.Event{
			TenantID:      t.ID,
			AggregateType: "closure",
			AggregateID:   c.ID,
			EventType:     domain.EventRegisterClosed,
			Payload: map[string]any{
				"total_gross":   types.Format2(c.TotalGross),
				"expected_cash": types.Format2(*c.ExpectedCash),
				"difference":    types.Format2(*c.Difference),
			},
		})
	})
	s.metrics.RegisterOperation("close", resultLabel(err))
	if err != nil {
		return nil, err
	}

	diff, _ := c.Difference.Float64()
	s.metrics.CashDifference(diff)
	for _, o := range s.observers {
		o.ClosureClosed(ctx, c)
	}

	logger.Info(ctx, "register closed",
		"closure_id", c.ID,
		"transactions", c.TransactionCount,
		"total_gross", types.Format2(c.TotalGross),
		"expected_cash", types.Format2(*c.ExpectedCash),
		"difference", types.Format2(*c.Difference),
	)
	return c, nil
}

// Current returns the open shift with a live, unpersisted snapshot.
func (s *Service) Current(ctx context.Context, tenantID string) (*Closure, error) {
	c, err := s.repo.GetOpen(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.invoices.ListByClosure(ctx, tenantID, c.ID, invoice.StatusPaid, invoice.StatusRectificada)
	if err != nil {
		return nil, fmt.Errorf("list shift invoices: %w", err)
	}
	c.Snapshot = BuildSnapshot(invoices)
	expected := c.StartingCash.Add(c.TotalCash)
	c.ExpectedCash = &expected
	return c, nil
}

// Get returns a shift owned by the tenant.
func (s *Service) Get(ctx context.Context, tenantID, closureID string) (*Closure, error) {
	c, err := s.repo.GetByID(ctx, closureID)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, apperror.NewState("closure belongs to another tenant").WithDetail("closure_id", closureID)
	}
	return c, nil
}

// OpenClosureID returns the id of the open shift or "".
func (s *Service) OpenClosureID(ctx context.Context, tenantID string) (string, error) {
	c, err := s.repo.GetOpen(ctx, tenantID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return c.ID, nil
}

func (in CloseInput) counted() (types.Money, error) {
	for i, d := range in.Denominations {
		if !d.Value.IsPositive() || d.Count < 0 {
			return types.Zero(), apperror.NewValidation("invalid denomination").
				WithDetail("field", fmt.Sprintf("denominations[%d]", i))
		}
	}

	if in.CountedCash == nil {
		if len(in.Denominations) == 0 {
			return types.Zero(), apperror.NewValidation("counted cash or denominations are required").
				WithDetail("field", "countedCash")
		}
		return DenominationTotal(in.Denominations), nil
	}
	if in.CountedCash.IsNegative() {
		return types.Zero(), apperror.NewValidation("counted cash cannot be negative").WithDetail("field", "countedCash")
	}
	return types.Round2(*in.CountedCash), nil
}

func resultLabel(err error) string {
	var appErr *apperror.AppError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &appErr):
		return appErr.Code
	default:
		return "error"
	}
}
