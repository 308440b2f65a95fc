package reports

import (
	"context"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/register"
)

type stubTenants struct {
	tenants map[string]*tenant.Tenant
}

func (s *stubTenants) GetByID(_ context.Context, id string) (*tenant.Tenant, error) {
	if t, ok := s.tenants[id]; ok {
		return t, nil
	}
	return nil, tenant.ErrTenantNotFound
}

func (s *stubTenants) GetForUpdate(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.GetByID(ctx, id)
}

func (s *stubTenants) List(context.Context) ([]*tenant.Tenant, error) { return nil, nil }

func (s *stubTenants) Create(context.Context, *tenant.Tenant) error { return nil }

type stubClosures struct {
	closures []*register.Closure
	calls    int
	onList   func(ctx context.Context)
}

func (s *stubClosures) ListClosed(ctx context.Context, tenantID string, from, to time.Time) ([]*register.Closure, error) {
	s.calls++
	if s.onList != nil {
		s.onList(ctx)
	}
	var out []*register.Closure
	for _, c := range s.closures {
		if c.TenantID == tenantID && !c.PeriodStart.Before(from) && !c.PeriodStart.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

type mapCache struct {
	data    map[string][]byte
	deleted []string
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, ErrCacheMiss
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

type readOnlyKey struct{}

type stubReads struct{ calls int }

func (r *stubReads) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(context.WithValue(ctx, readOnlyKey{}, true))
}

func newReportService(t *testing.T, now time.Time, cache Cache) (*Service, *stubClosures) {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	closures := &stubClosures{closures: []*register.Closure{
		closedShift(t, rng, "c1", time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)),
		closedShift(t, rng, "c2", time.Date(2026, 10, 13, 8, 0, 0, 0, time.UTC)),
		closedShift(t, rng, "c3", time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)),
	}}
	tenants := &stubTenants{tenants: map[string]*tenant.Tenant{
		"t1": {ID: "t1", Timezone: "Europe/Madrid"},
	}}
	svc := NewService(ServiceConfig{
		Tenants:  tenants,
		Closures: closures,
		Cache:    cache,
		Clock:    func() time.Time { return now },
	})
	return svc, closures
}

func TestService_GetReport(t *testing.T) {
	now := time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)
	svc, _ := newReportService(t, now, nil)

	r, err := svc.GetReport(context.Background(), "t1", PeriodWeekly, Params{Date: "2026-10-14"})
	require.NoError(t, err)
	assert.Equal(t, "2026-W42", r.Range.Label)
	assert.Equal(t, 3, r.ClosureCount)

	daily, err := svc.GetReport(context.Background(), "t1", PeriodDaily, Params{Date: "2026-10-13"})
	require.NoError(t, err)
	require.Len(t, daily.Shifts, 1)
	assert.Equal(t, "c2", daily.Shifts[0].ID)
}

func TestService_CachesElapsedPeriods(t *testing.T) {
	now := time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)
	cache := newMapCache()
	svc, closures := newReportService(t, now, cache)
	ctx := context.Background()

	first, err := svc.GetReport(ctx, "t1", PeriodDaily, Params{Date: "2026-10-13"})
	require.NoError(t, err)
	second, err := svc.GetReport(ctx, "t1", PeriodDaily, Params{Date: "2026-10-13"})
	require.NoError(t, err)

	assert.Equal(t, 1, closures.calls)
	assert.Contains(t, cache.data, "report:t1:daily:2026-10-13")
	assert.Equal(t, types.Format2(first.TotalGross), types.Format2(second.TotalGross))
	assert.Equal(t, first.ClosureCount, second.ClosureCount)
	require.Len(t, second.Shifts, 1)
	assert.Equal(t, "c2", second.Shifts[0].ID)

	// The running day is never cached.
	_, err = svc.GetReport(ctx, "t1", PeriodDaily, Params{Date: "2026-10-14"})
	require.NoError(t, err)
	_, err = svc.GetReport(ctx, "t1", PeriodDaily, Params{Date: "2026-10-14"})
	require.NoError(t, err)
	assert.Equal(t, 3, closures.calls)
	assert.NotContains(t, cache.data, "report:t1:daily:2026-10-14")
}

func TestService_ClosureClosedInvalidates(t *testing.T) {
	now := time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)
	cache := newMapCache()
	svc, _ := newReportService(t, now, cache)

	c := &register.Closure{ID: "late", TenantID: "t1", PeriodStart: time.Date(2026, 10, 13, 21, 0, 0, 0, time.UTC)}
	svc.ClosureClosed(context.Background(), c)

	sort.Strings(cache.deleted)
	assert.Equal(t, []string{
		"report:t1:daily:2026-10-13",
		"report:t1:monthly:2026-10",
		"report:t1:quarterly:2026-Q4",
		"report:t1:weekly:2026-W42",
		"report:t1:yearly:2026",
	}, cache.deleted)
}

func TestService_Errors(t *testing.T) {
	svc, _ := newReportService(t, time.Now(), nil)
	ctx := context.Background()

	_, err := svc.GetReport(ctx, "", PeriodDaily, Params{Date: "2026-10-14"})
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	_, err = svc.GetReport(ctx, "ghost", PeriodDaily, Params{Date: "2026-10-14"})
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	_, err = svc.GetReport(ctx, "t1", PeriodMonthly, Params{Year: 2026})
	assert.True(t, apperror.IsValidation(err))
}

func TestService_ReadsClosuresReadOnly(t *testing.T) {
	now := time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)
	svc, closures := newReportService(t, now, nil)
	reads := &stubReads{}
	svc.reads = reads

	var inReadOnly bool
	closures.onList = func(ctx context.Context) {
		inReadOnly, _ = ctx.Value(readOnlyKey{}).(bool)
	}

	_, err := svc.GetReport(context.Background(), "t1", PeriodDaily, Params{Date: "2026-10-13"})
	require.NoError(t, err)
	assert.Equal(t, 1, reads.calls)
	assert.True(t, inReadOnly, "closures must be listed inside the read-only unit of work")
}

func TestService_CloseDuringReadDropsStaleEntry(t *testing.T) {
	now := time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)
	cache := newMapCache()
	svc, closures := newReportService(t, now, cache)
	ctx := context.Background()

	late := &register.Closure{ID: "late", TenantID: "t1", PeriodStart: time.Date(2026, 10, 13, 21, 0, 0, 0, time.UTC)}
	closures.onList = func(ctx context.Context) {
		// The shift closes and invalidates after the reader has listed,
		// but before the reader writes its now stale report.
		closures.onList = nil
		svc.ClosureClosed(ctx, late)
	}

	_, err := svc.GetReport(ctx, "t1", PeriodDaily, Params{Date: "2026-10-13"})
	require.NoError(t, err)
	assert.NotContains(t, cache.data, "report:t1:daily:2026-10-13")

	// With no close in between, the next read is cached again.
	_, err = svc.GetReport(ctx, "t1", PeriodDaily, Params{Date: "2026-10-13"})
	require.NoError(t, err)
	assert.Contains(t, cache.data, "report:t1:daily:2026-10-13")
	assert.Equal(t, 2, closures.calls)
}
