package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/domain/register"
	"tpvcore/pkg/logger"
)

// DefaultCacheTTL applies when ServiceConfig.CacheTTL is zero.
const DefaultCacheTTL = time.Hour

// ServiceConfig wires the reports service.
type ServiceConfig struct {
	Tenants  tenant.Repository
	Closures ClosureReader
	Reads    ReadRunner // optional; reads run directly without it
	Cache    Cache      // optional
	CacheTTL time.Duration
	Clock    func() time.Time
}

// Service provides period reports.
type Service struct {
	tenants  tenant.Repository
	closures ClosureReader
	reads    ReadRunner
	cache    Cache
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates a new reports service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		tenants:  cfg.Tenants,
		closures: cfg.Closures,
		reads:    cfg.Reads,
		cache:    cfg.Cache,
		ttl:      cfg.CacheTTL,
		now:      cfg.Clock,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultCacheTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// GetReport aggregates the tenant's closed shifts for a period.
// Reports of fully elapsed periods are served from the cache when one is configured.
func (s *Service) GetReport(ctx context.Context, tenantID string, pt PeriodType, p Params) (*Report, error) {
	t, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	loc, err := t.Location()
	if err != nil {
		return nil, err
	}
	rng, err := ComputeRange(pt, p, loc)
	if err != nil {
		return nil, err
	}

	key := CacheKey(t.ID, rng)
	cacheable := s.cache != nil && rng.Elapsed(s.now())
	var stamp []byte
	if cacheable {
		if r, ok := s.fromCache(ctx, key); ok {
			return r, nil
		}
		stamp = s.invalidationStamp(ctx, t.ID)
	}

	var closures []*register.Closure
	err = s.read(ctx, func(ctx context.Context) error {
		var err error
		closures, err = s.closures.ListClosed(ctx, t.ID, rng.From, rng.To)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list closures: %w", err)
	}
	report := Aggregate(t.ID, rng, closures)

	if cacheable {
		s.toCache(ctx, key, report)
		// A close that committed after the read above has already run its
		// invalidation, possibly before our write. Its new stamp tells us so.
		if !bytes.Equal(stamp, s.invalidationStamp(ctx, t.ID)) {
			if err := s.cache.Delete(ctx, key); err != nil {
				logger.Warn(ctx, "report cache invalidation failed", "key", key, "error", err)
			}
		}
	}

	logger.Info(ctx, "report served",
		"period", rng.Type,
		"label", rng.Label,
		"shifts", report.ClosureCount,
	)
	return report, nil
}

// ClosureClosed drops every cached report whose period holds the shift's start day.
func (s *Service) ClosureClosed(ctx context.Context, c *register.Closure) {
	if s.cache == nil {
		return
	}
	t, err := s.tenants.GetByID(ctx, c.TenantID)
	if err != nil {
		logger.Warn(ctx, "report cache invalidation skipped", "closure_id", c.ID, "error", err)
		return
	}

	loc, err := t.Location()
	if err != nil {
		logger.Warn(ctx, "report cache invalidation skipped", "closure_id", c.ID, "error", err)
		return
	}
	// The stamp goes first: a reader that misses the deletes below will see it.
	stamp := fmt.Appendf(nil, "%s:%d", c.ID, s.now().UnixNano())
	if err := s.cache.Set(ctx, invalidationKey(t.ID), stamp, 2*s.ttl); err != nil {
		logger.Warn(ctx, "report cache stamp failed", "closure_id", c.ID, "error", err)
	}

	ranges := RangesContaining(c.PeriodStart, loc)
	keys := make([]string, len(ranges))
	for i, r := range ranges {
		keys[i] = CacheKey(t.ID, r)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.Warn(ctx, "report cache invalidation failed", "closure_id", c.ID, "error", err)
	}
}

func (s *Service) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.reads == nil {
		return fn(ctx)
	}
	return s.reads.ReadOnly(ctx, fn)
}

func invalidationKey(tenantID string) string {
	return "report:" + tenantID + ":invalidated"
}

// invalidationStamp returns the marker of the tenant's last close, nil when none.
func (s *Service) invalidationStamp(ctx context.Context, tenantID string) []byte {
	v, err := s.cache.Get(ctx, invalidationKey(tenantID))
	if err != nil {
		return nil
	}
	return v
}

func (s *Service) tenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	if tenantID == "" {
		return nil, apperror.NewUnauthorized("no tenant resolved for caller")
	}
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) || apperror.IsNotFound(err) {
			return nil, apperror.NewUnauthorized("tenant not found").WithDetail("tenant_id", tenantID)
		}
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	return t, nil
}

func (s *Service) fromCache(ctx context.Context, key string) (*Report, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.Warn(ctx, "report cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		logger.Warn(ctx, "report cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return &r, true
}

func (s *Service) toCache(ctx context.Context, key string, r *Report) {
	data, err := json.Marshal(r)
	if err != nil {
		logger.Warn(ctx, "report cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		logger.Warn(ctx, "report cache write failed", "key", key, "error", err)
	}
}
