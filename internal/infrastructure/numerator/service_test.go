package numerator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "tpvcore/internal/core/numerator"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/infrastructure/storage/postgres"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the tenants row counters.
type mockQuerier struct {
	mu       sync.Mutex
	counters map[string]int64 // column -> value
	missing  bool
	lastSQL  string
}

func (m *mockQuerier) GetQuerier(context.Context) postgres.Querier { return m }

func (m *mockQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSQL = sql
	if m.missing {
		return &mockRow{err: pgx.ErrNoRows}
	}
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	for _, col := range counterColumns {
		if strings.Contains(sql, "RETURNING "+col) {
			m.counters[col]++
			return &mockRow{val: m.counters[col]}
		}
	}
	return &mockRow{err: pgx.ErrNoRows}
}

func TestService_Next(t *testing.T) {
	q := &mockQuerier{}
	s := New(q)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Next(ctx, "t1", corenumerator.SeriesTicket)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Contains(t, q.lastSQL, "last_ticket_number = last_ticket_number + 1")

	// Series are independent
	got, err := s.Next(ctx, "t1", corenumerator.SeriesRectificativa)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestService_NextUpdatesLockedTenant(t *testing.T) {
	q := &mockQuerier{counters: map[string]int64{"last_factura_number": 41}}
	locked := &tenant.Tenant{ID: "t1", LastFacturaNumber: 41}
	ctx := tenant.WithTenant(context.Background(), locked)

	got, err := New(q).Next(ctx, "t1", corenumerator.SeriesFactura)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
	assert.Equal(t, int64(42), locked.LastFacturaNumber)
}

func TestService_NextErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(&mockQuerier{}).Next(ctx, "t1", corenumerator.Series("albaran"))
	assert.Error(t, err)

	_, err = New(&mockQuerier{missing: true}).Next(ctx, "nope", corenumerator.SeriesTicket)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)

	var nilService *Service
	_, err = nilService.Next(ctx, "t1", corenumerator.SeriesTicket)
	assert.Error(t, err)
}
