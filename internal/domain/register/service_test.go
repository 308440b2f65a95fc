package register_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain"
	"tpvcore/internal/domain/catalogs/product"
	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/register"
	"tpvcore/internal/domain/tax"
	"tpvcore/internal/infrastructure/storage/memory"
)

type recordingObserver struct {
	mu     sync.Mutex
	closed []string
}

func (o *recordingObserver) ClosureClosed(_ context.Context, c *register.Closure) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, c.ID)
}

type fixture struct {
	store    *memory.Store
	register *register.Service
	invoices *invoice.Service
	observer *recordingObserver
	now      time.Time
}

func money(s string) types.Money { return types.MustMoney(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	store.PutTenant(&tenant.Tenant{ID: "t1", Name: "Bar Pepe", InvoicePrefix: "%year%-%count%", Postcode: "28013"})
	store.PutTenant(&tenant.Tenant{ID: "t2", Name: "Otro", Postcode: "28013"})
	store.PutProduct(&product.Product{ID: "cafe", TenantID: "t1", Name: "Café", PriceGross: money("1.50"), TaxClass: tax.ClassReduced})
	store.PutProduct(&product.Product{ID: "vino", TenantID: "t1", Name: "Vino", PriceGross: money("3.00"), TaxClass: tax.ClassGeneral})

	f := &fixture{store: store, observer: &recordingObserver{}, now: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	locker := tenant.NewLocker(store, store.Tenants())

	f.register = register.NewService(register.ServiceConfig{
		Locker:    locker,
		Repo:      store.Closures(),
		Invoices:  store.Invoices(),
		Events:    store.Outbox(),
		Audit:     store.Audit(),
		Observers: []register.CloseObserver{f.observer},
		Clock:     clock,
	})
	f.invoices = invoice.NewService(invoice.ServiceConfig{
		Locker:    locker,
		Repo:      store.Invoices(),
		Products:  store.Products(),
		Customers: store.Customers(),
		Taxes:     tax.NewResolver(tax.NewStaticSource(tax.DefaultTable())),
		Shifts:    f.register,
		Numbers:   store.Numbers(),
		Events:    store.Outbox(),
		Clock:     clock,
	})
	return f
}

func (f *fixture) sell(t *testing.T, productID, qty, amount string, method invoice.PaymentMethod) *invoice.Invoice {
	t.Helper()
	inv, err := f.invoices.Create(context.Background(), "t1", invoice.CreateInput{
		Lines:    []invoice.SaleLine{{ProductID: productID, Quantity: money(qty)}},
		Payments: []invoice.PaymentInput{{Method: method, Amount: money(amount)}},
	})
	require.NoError(t, err)
	return inv
}

func counted(s string) *types.Money {
	m := money(s)
	return &m
}

func TestService_OpenAndClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	opened, err := f.register.Open(ctx, "t1", money("100"))
	require.NoError(t, err)
	assert.Equal(t, register.StatusOpen, opened.Status)
	assert.True(t, opened.PeriodStart.Equal(f.now))

	f.sell(t, "cafe", "2", "3.00", invoice.PaymentCash)
	f.sell(t, "vino", "1", "3.00", invoice.PaymentCard)
	f.sell(t, "cafe", "1", "1.50", invoice.PaymentCash)

	f.now = f.now.Add(8 * time.Hour)
	closed, err := f.register.Close(ctx, "t1", register.CloseInput{CountedCash: counted("104.00")})
	require.NoError(t, err)

	assert.Equal(t, register.StatusClosed, closed.Status)
	require.NotNil(t, closed.PeriodEnd)
	assert.True(t, closed.PeriodEnd.Equal(f.now))
	assert.Equal(t, 3, closed.TransactionCount)
	assert.Equal(t, "7.50", types.Format2(closed.TotalGross))
	assert.Equal(t, "4.50", types.Format2(closed.TotalCash))
	assert.Equal(t, "3.00", types.Format2(closed.TotalCard))
	assert.Equal(t, "104.50", types.Format2(*closed.ExpectedCash))
	assert.Equal(t, "-0.50", types.Format2(*closed.Difference))
	assert.True(t, closed.TotalNet.Add(closed.TotalTax).Equal(closed.TotalGross))
	assert.Equal(t, 3, closed.InvoiceTypeCounts[invoice.TypeTicket])

	require.Len(t, closed.ProductBreakdown, 2)
	assert.Equal(t, "Café", closed.ProductBreakdown[0].ProductName)
	assert.Equal(t, "3", closed.ProductBreakdown[0].Quantity.String())
	assert.Equal(t, "4.50", types.Format2(closed.ProductBreakdown[0].Gross))

	assert.Equal(t, []string{closed.ID}, f.observer.closed)

	audit := f.store.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, "close", audit[0].Action)

	_, err = f.register.Current(ctx, "t1")
	assert.True(t, apperror.IsNotFound(err))

	// A new shift starts a fresh cycle.
	reopened, err := f.register.Open(ctx, "t1", money("50"))
	require.NoError(t, err)
	assert.NotEqual(t, closed.ID, reopened.ID)
}

func TestService_OpenTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.register.Open(ctx, "t1", money("100"))
	require.NoError(t, err)

	_, err = f.register.Open(ctx, "t1", money("100"))
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))

	current, err := f.register.Current(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	// Other tenants are unaffected.
	_, err = f.register.Open(ctx, "t2", money("0"))
	require.NoError(t, err)
}

func TestService_ConcurrentOpen(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.register.Open(context.Background(), "t1", money("10"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperror.IsConflict(err):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

func TestService_CloseWithoutOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.register.Close(ctx, "t1", register.CloseInput{CountedCash: counted("0")})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, f.store.AuditEntries())
	assert.Empty(t, f.store.Events())
	assert.Empty(t, f.observer.closed)
}

func TestService_CloseFromDenominations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.register.Open(ctx, "t1", money("20"))
	require.NoError(t, err)
	f.sell(t, "cafe", "2", "3.00", invoice.PaymentCash)

	closed, err := f.register.Close(ctx, "t1", register.CloseInput{Denominations: []register.Denomination{
		{Value: money("20"), Count: 1},
		{Value: money("1"), Count: 3},
	}})
	require.NoError(t, err)
	assert.Equal(t, "23.00", types.Format2(*closed.CountedCash))
	assert.Equal(t, "0.00", types.Format2(*closed.Difference))
	assert.Len(t, closed.Denominations, 2)
}

func TestService_CloseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.register.Open(ctx, "t1", money("20"))
	require.NoError(t, err)

	tests := []struct {
		name string
		in   register.CloseInput
	}{
		{"nothing counted", register.CloseInput{}},
		{"negative counted", register.CloseInput{CountedCash: counted("-1")}},
		{"bad denomination", register.CloseInput{Denominations: []register.Denomination{{Value: money("0"), Count: 1}}}},
		{"negative count", register.CloseInput{Denominations: []register.Denomination{{Value: money("5"), Count: -1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.register.Close(ctx, "t1", tt.in)
			assert.True(t, apperror.IsValidation(err))
		})
	}

	current, err := f.register.Current(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, current.IsOpen())
}

func TestService_OpenValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.register.Open(context.Background(), "t1", money("-5"))
	assert.True(t, apperror.IsValidation(err))

	_, err = f.register.Open(context.Background(), "ghost", money("5"))
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
}

func TestService_CurrentLiveSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.register.Open(ctx, "t1", money("10"))
	require.NoError(t, err)
	f.sell(t, "cafe", "1", "1.50", invoice.PaymentCash)

	current, err := f.register.Current(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, current.TransactionCount)
	assert.Equal(t, "11.50", types.Format2(*current.ExpectedCash))
	assert.Nil(t, current.Difference)

	stored, err := f.register.Get(ctx, "t1", current.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.TransactionCount, "running totals are not persisted")

	_, err = f.register.Get(ctx, "t2", current.ID)
	assert.True(t, apperror.IsState(err))
}

func TestService_ClosedShiftIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.register.Open(ctx, "t1", money("0"))
	require.NoError(t, err)
	f.sell(t, "cafe", "1", "1.50", invoice.PaymentCash)
	closed, err := f.register.Close(ctx, "t1", register.CloseInput{CountedCash: counted("1.50")})
	require.NoError(t, err)

	// Sales after the close are not attached to the closed shift.
	late := f.sell(t, "cafe", "1", "1.50", invoice.PaymentCash)
	assert.Nil(t, late.ClosureID)

	stored, err := f.register.Get(ctx, "t1", closed.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TransactionCount)

	events := f.store.Events()
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.EventType)
	}
	assert.Contains(t, kinds, domain.EventRegisterClosed)
}
