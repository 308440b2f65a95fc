package tenant

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/numerator"
)

type fakeTxManager struct {
	calls int
}

func (m *fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type fakeRepo struct {
	tenants map[string]*Tenant
	locked  []string
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*Tenant, error) {
	if t, ok := r.tenants[id]; ok {
		return t, nil
	}
	return nil, ErrTenantNotFound
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, id string) (*Tenant, error) {
	r.locked = append(r.locked, id)
	return r.GetByID(ctx, id)
}

func (r *fakeRepo) List(context.Context) ([]*Tenant, error) { return nil, nil }

func (r *fakeRepo) Create(context.Context, *Tenant) error { return nil }

func TestLocker_WithLock(t *testing.T) {
	repo := &fakeRepo{tenants: map[string]*Tenant{"t1": {ID: "t1", Name: "Bar Pepe"}}}
	txm := &fakeTxManager{}
	locker := NewLocker(txm, repo)

	var seen string
	err := locker.WithLock(context.Background(), "t1", func(ctx context.Context, tn *Tenant) error {
		seen = GetTenantID(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", seen)
	assert.Equal(t, []string{"t1"}, repo.locked)
	assert.Equal(t, 1, txm.calls)
}

func TestLocker_RejectsMissingTenant(t *testing.T) {
	locker := NewLocker(&fakeTxManager{}, &fakeRepo{tenants: map[string]*Tenant{}})

	err := locker.WithLock(context.Background(), "", func(context.Context, *Tenant) error { return nil })
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	err = locker.WithLock(context.Background(), "ghost", func(context.Context, *Tenant) error { return nil })
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
}

func TestLocker_PropagatesCallbackError(t *testing.T) {
	repo := &fakeRepo{tenants: map[string]*Tenant{"t1": {ID: "t1"}}}
	boom := errors.New("boom")

	err := NewLocker(&fakeTxManager{}, repo).WithLock(context.Background(), "t1", func(context.Context, *Tenant) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestTenant_CountersAndLocation(t *testing.T) {
	tn := &Tenant{ID: "t1", Timezone: "Atlantic/Canary"}
	tn.SetCounter(numerator.SeriesFactura, 9)
	tn.SetCounter(numerator.SeriesRectificativa, 2)

	assert.Equal(t, int64(0), tn.Counter(numerator.SeriesTicket))
	assert.Equal(t, int64(9), tn.Counter(numerator.SeriesFactura))
	assert.Equal(t, int64(2), tn.Counter(numerator.SeriesRectificativa))

	local := tn.LocalTime(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 13, local.Hour())

	bad := &Tenant{ID: "t2", Timezone: "Mars/Olympus"}
	_, err := bad.Location()
	assert.Error(t, err)
	assert.Equal(t, time.UTC, bad.LocalTime(time.Now()).Location())
}

func TestCreateTenantInput_Validate(t *testing.T) {
	in := CreateTenantInput{Name: "Bar Pepe"}
	require.NoError(t, in.Validate())
	assert.Equal(t, "UTC", in.Timezone)
	assert.Equal(t, "%year%-%count%", in.InvoicePrefix)

	assert.Error(t, (&CreateTenantInput{}).Validate())
	assert.Error(t, (&CreateTenantInput{Name: "x", Timezone: "Nowhere/Land"}).Validate())
}
