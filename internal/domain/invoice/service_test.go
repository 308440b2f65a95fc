package invoice_test

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/numerator"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain"
	"tpvcore/internal/domain/catalogs/customer"
	"tpvcore/internal/domain/catalogs/product"
	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/register"
	"tpvcore/internal/domain/tax"
	"tpvcore/internal/infrastructure/storage/memory"
)

type fixture struct {
	store    *memory.Store
	invoices *invoice.Service
	register *register.Service
	now      time.Time
}

func money(s string) types.Money { return types.MustMoney(s) }

func moneyPtr(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	store.PutTenant(&tenant.Tenant{
		ID:            "t1",
		Name:          "Bar Pepe",
		InvoicePrefix: "T%year%-%count%",
		Timezone:      "Europe/Madrid",
		Postcode:      "28013",
		IssuerName:    "Bar Pepe SL",
		IssuerTaxID:   "B12345678",
	})
	store.PutTenant(&tenant.Tenant{ID: "t2", Name: "Otro", Postcode: "35001"})

	stock := money("10")
	store.PutProduct(&product.Product{ID: "cafe", TenantID: "t1", Name: "Café", PriceGross: money("1.50"), TaxClass: tax.ClassReduced, Stock: &stock})
	store.PutProduct(&product.Product{ID: "vino", TenantID: "t1", Name: "Vino", PriceGross: money("3.00"), TaxClass: tax.ClassGeneral})
	store.PutCustomer(&customer.Customer{ID: "c1", TenantID: "t1", Name: "Cliente SA", TaxID: "A87654321", Address: "Calle Mayor 1"})

	f := &fixture{store: store, now: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	locker := tenant.NewLocker(store, store.Tenants())

	f.register = register.NewService(register.ServiceConfig{
		Locker:   locker,
		Repo:     store.Closures(),
		Invoices: store.Invoices(),
		Events:   store.Outbox(),
		Audit:    store.Audit(),
		Clock:    clock,
	})
	f.invoices = invoice.NewService(invoice.ServiceConfig{
		Locker:    locker,
		Repo:      store.Invoices(),
		Products:  store.Products(),
		Customers: store.Customers(),
		Taxes:     tax.NewResolver(tax.NewStaticSource(tax.DefaultTable())),
		Shifts:    f.register,
		Numbers:   store.Numbers(),
		Numbering: numerator.DefaultConfig(),
		Events:    store.Outbox(),
		Clock:     clock,
	})
	return f
}

func cashSale(lines []invoice.SaleLine, amount string) invoice.CreateInput {
	return invoice.CreateInput{
		Lines:    lines,
		Payments: []invoice.PaymentInput{{Method: invoice.PaymentCash, Amount: money(amount)}},
	}
}

func cafes(n string) []invoice.SaleLine {
	return []invoice.SaleLine{{ProductID: "cafe", Quantity: money(n)}}
}

func stockOf(t *testing.T, f *fixture, productID string) string {
	t.Helper()
	ps, err := f.store.Products().GetByIDs(context.Background(), "t1", []string{productID})
	require.NoError(t, err)
	return ps[productID].Stock.String()
}

func TestService_CreateTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shift, err := f.register.Open(ctx, "t1", money("100"))
	require.NoError(t, err)

	inv, err := f.invoices.Create(ctx, "t1", invoice.CreateInput{
		Lines: []invoice.SaleLine{
			{ProductID: "cafe", Quantity: money("2")},
			{ProductID: "vino", Quantity: money("1")},
		},
		Payments: []invoice.PaymentInput{{Method: invoice.PaymentCash, Amount: money("6.00"), Tendered: moneyPtr("10")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "T2026-00001", inv.Number)
	assert.Equal(t, invoice.TypeTicket, inv.Type)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	assert.Equal(t, "6.00", types.Format2(inv.Gross))
	assert.True(t, inv.Net.Add(inv.Tax).Equal(inv.Gross))
	require.NotNil(t, inv.ClosureID)
	assert.Equal(t, shift.ID, *inv.ClosureID)
	assert.Equal(t, "Bar Pepe SL", inv.Issuer.Name)
	assert.Nil(t, inv.Customer)

	require.Len(t, inv.Payments, 1)
	assert.Equal(t, "4.00", types.Format2(inv.Payments[0].Change))

	require.Len(t, inv.TaxBreakdown, 2)
	assert.Equal(t, "10.00", types.Format2(inv.TaxBreakdown[0].Rate))
	assert.Equal(t, "21.00", types.Format2(inv.TaxBreakdown[1].Rate))

	// The 2dp row nets are what Net is summed from
	require.Len(t, inv.Items, 2)
	assert.Equal(t, "2.73", types.Format2(inv.Items[0].RowNetTotal))
	assert.Equal(t, "2.48", types.Format2(inv.Items[1].RowNetTotal))
	assert.Equal(t, "2.72727273", types.Format8(inv.Items[0].RowNet))
	assert.True(t, inv.Items[0].RowNetTotal.Add(inv.Items[1].RowNetTotal).Equal(inv.Net))

	assert.Equal(t, "8", stockOf(t, f, "cafe"))

	events := f.store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventInvoiceIssued, events[1].EventType)

	got, err := f.invoices.Get(ctx, "t1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, got.Number)
}

func TestService_CreateWithoutShift(t *testing.T) {
	f := newFixture(t)

	inv, err := f.invoices.Create(context.Background(), "t1", cashSale(cafes("1"), "1.50"))
	require.NoError(t, err)
	assert.Nil(t, inv.ClosureID)
}

func TestService_CreateFactura(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.invoices.Create(ctx, "t1", cashSale(cafes("1"), "1.50"))
	require.NoError(t, err)

	in := cashSale(cafes("2"), "3.00")
	in.CustomerID = "c1"
	fac, err := f.invoices.Create(ctx, "t1", in)
	require.NoError(t, err)

	assert.Equal(t, invoice.TypeFactura, fac.Type)
	assert.Equal(t, "T2026-00001", fac.Number, "facturas have their own counter")
	require.NotNil(t, fac.Customer)
	assert.Equal(t, "A87654321", fac.Customer.TaxID)

	tn, err := f.store.Tenants().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, tn.LastTicketNumber)
	assert.EqualValues(t, 1, tn.LastFacturaNumber)
}

func TestService_OpenPriceLine(t *testing.T) {
	f := newFixture(t)

	inv, err := f.invoices.Create(context.Background(), "t1", cashSale([]invoice.SaleLine{{
		ProductName: "Menú del día",
		PriceGross:  moneyPtr("12.50"),
		TaxClass:    tax.ClassReduced,
		Quantity:    money("2"),
	}}, "25.00"))
	require.NoError(t, err)
	require.Len(t, inv.Items, 1)
	assert.Nil(t, inv.Items[0].ProductID)
	assert.Equal(t, "10.00", types.Format2(inv.Items[0].TaxRate))
	assert.Equal(t, "25.00", types.Format2(inv.Gross))
}

func TestService_CanaryRates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.invoices.Create(ctx, "t2", cashSale([]invoice.SaleLine{{
		ProductName: "Agua",
		PriceGross:  moneyPtr("1.07"),
		TaxClass:    tax.ClassGeneral,
		Quantity:    money("1"),
	}}, "1.07"))
	require.NoError(t, err)
	assert.Equal(t, "7.00", types.Format2(inv.Items[0].TaxRate))
	assert.Equal(t, "0.07", types.Format2(inv.Tax))
}

func TestService_CreateRejections(t *testing.T) {
	tests := []struct {
		name  string
		input invoice.CreateInput
		check func(error) bool
	}{
		{
			name:  "no lines",
			input: invoice.CreateInput{Payments: []invoice.PaymentInput{{Method: invoice.PaymentCash, Amount: money("1")}}},
			check: apperror.IsValidation,
		},
		{
			name:  "payments do not settle gross",
			input: cashSale(cafes("2"), "2.00"),
			check: apperror.IsValidation,
		},
		{
			name: "tendered below amount",
			input: invoice.CreateInput{
				Lines:    cafes("1"),
				Payments: []invoice.PaymentInput{{Method: invoice.PaymentCash, Amount: money("1.50"), Tendered: moneyPtr("1")}},
			},
			check: apperror.IsValidation,
		},
		{
			name:  "no payment",
			input: invoice.CreateInput{Lines: cafes("1")},
			check: apperror.IsValidation,
		},
		{
			name:  "unknown product",
			input: cashSale([]invoice.SaleLine{{ProductID: "ghost", Quantity: money("1")}}, "1.00"),
			check: apperror.IsNotFound,
		},
		{
			name:  "unknown tax class",
			input: cashSale([]invoice.SaleLine{{ProductName: "X", PriceGross: moneyPtr("1"), TaxClass: "luxury", Quantity: money("1")}}, "1.00"),
			check: apperror.IsValidation,
		},
		{
			name:  "factura without customer",
			input: invoice.CreateInput{Type: invoice.TypeFactura, Lines: cafes("1"), Payments: []invoice.PaymentInput{{Method: invoice.PaymentCash, Amount: money("1.50")}}},
			check: apperror.IsValidation,
		},
		{
			name:  "unknown customer",
			input: invoice.CreateInput{CustomerID: "nobody", Lines: cafes("1"), Payments: []invoice.PaymentInput{{Method: invoice.PaymentCash, Amount: money("1.50")}}},
			check: apperror.IsNotFound,
		},
		{
			name:  "rectificativa through create",
			input: invoice.CreateInput{Type: invoice.TypeRectificativa, Lines: cafes("1")},
			check: apperror.IsValidation,
		},
		{
			name: "bad payment method",
			input: invoice.CreateInput{
				Lines:    cafes("1"),
				Payments: []invoice.PaymentInput{{Method: "bizum", Amount: money("1.50")}},
			},
			check: apperror.IsValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.invoices.Create(ctx, "t1", tt.input)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)

			// Nothing leaked: no invoice, no counter, no stock move, no event.
			list, err := f.invoices.List(ctx, invoice.ListFilter{TenantID: "t1"})
			require.NoError(t, err)
			assert.Zero(t, list.TotalCount)
			tn, _ := f.store.Tenants().GetByID(ctx, "t1")
			assert.Zero(t, tn.LastTicketNumber)
			assert.Zero(t, tn.LastFacturaNumber)
			assert.Equal(t, "10", stockOf(t, f, "cafe"))
			assert.Empty(t, f.store.Events())
		})
	}
}

func TestService_UnknownTenant(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoices.Create(context.Background(), "ghost", cashSale(cafes("1"), "1.50"))
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	_, err = f.invoices.Create(context.Background(), "", cashSale(cafes("1"), "1.50"))
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
}

func TestService_GetOtherTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.invoices.Create(ctx, "t1", cashSale(cafes("1"), "1.50"))
	require.NoError(t, err)

	_, err = f.invoices.Get(ctx, "t2", inv.ID)
	assert.True(t, apperror.IsState(err))

	_, err = f.invoices.Get(ctx, "t1", "missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_ConcurrentNumbering(t *testing.T) {
	f := newFixture(t)
	const n = 25

	var wg sync.WaitGroup
	numbers := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := f.invoices.Create(context.Background(), "t1", cashSale(cafes("0.1"), "0.15"))
			if assert.NoError(t, err) {
				numbers <- inv.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		assert.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["T2026-00001"])
	assert.True(t, seen["T2026-00025"])
}

func TestService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.invoices.Create(ctx, "t1", cashSale(cafes("1"), "1.50"))
		require.NoError(t, err)
		f.now = f.now.Add(time.Minute)
	}

	page, err := f.invoices.List(ctx, invoice.ListFilter{TenantID: "t1", Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "T2026-00003", page.Items[0].Number)

	from := f.now.Add(time.Hour)
	to := f.now
	_, err = f.invoices.List(ctx, invoice.ListFilter{TenantID: "t1", From: &from, To: &to})
	assert.True(t, apperror.IsValidation(err))
}

func TestService_Calculate(t *testing.T) {
	f := newFixture(t)

	calc, err := f.invoices.Calculate(context.Background(), []invoice.Line{
		{ProductName: "A", PriceGross: money("10.00"), TaxRate: money("21"), Quantity: money("2")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "20.00", types.Format2(calc.Gross))
}

func TestService_NumberingFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.register.Open(ctx, "t1", money("0"))
	require.NoError(t, err)

	locker := tenant.NewLocker(f.store, f.store.Tenants())
	failing := invoice.NewService(invoice.ServiceConfig{
		Locker:    locker,
		Repo:      f.store.Invoices(),
		Products:  f.store.Products(),
		Customers: f.store.Customers(),
		Taxes:     tax.NewResolver(tax.NewStaticSource(tax.DefaultTable())),
		Shifts:    f.register,
		Numbers: &numerator.MockGenerator{NextFunc: func(context.Context, string, numerator.Series) (int64, error) {
			return 0, assert.AnError
		}},
		Events: f.store.Outbox(),
		Clock:  func() time.Time { return f.now },
	})

	_, err = failing.Create(ctx, "t1", cashSale(cafes("2"), "3.00"))
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, "10", stockOf(t, f, "cafe"))
	res, err := f.invoices.List(ctx, invoice.ListFilter{TenantID: "t1"})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)

	// The mock counts per tenant and series when no func is set
	gen := &numerator.MockGenerator{}
	n1, _ := gen.Next(ctx, "t1", numerator.SeriesTicket)
	n2, _ := gen.Next(ctx, "t1", numerator.SeriesTicket)
	n3, _ := gen.Next(ctx, "t1", numerator.SeriesFactura)
	assert.Equal(t, []int64{1, 2, 1}, []int64{n1, n2, n3})
}
