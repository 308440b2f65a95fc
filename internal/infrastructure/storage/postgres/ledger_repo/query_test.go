package ledger_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/register"
)

func TestQueries_SQL(t *testing.T) {
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC)
	delta := types.MustMoney("-2")
	invoiceSelect := "SELECT " + strings.Join(invoiceColumns, ", ") + " FROM invoices"
	closureSelect := "SELECT " + strings.Join(closureColumns, ", ") + " FROM cash_register_closures"

	tests := []struct {
		name     string
		sqlizer  interface{ ToSql() (string, []any, error) }
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "tenant for update",
			sqlizer:  tenantQuery("t1", true),
			wantSQL:  "SELECT " + strings.Join(tenantColumns, ", ") + " FROM tenants WHERE id = $1 FOR UPDATE",
			wantArgs: []any{"t1"},
		},
		{
			name:     "products by ids",
			sqlizer:  (&ProductRepo{}).getByIDsQuery("t1", []string{"p1", "p2"}),
			wantSQL:  "SELECT id, tenant_id, name, price_gross, tax_class, cost_center, stock, deleted_at FROM products WHERE deleted_at IS NULL AND id IN ($1,$2) AND tenant_id = $3",
			wantArgs: []any{"p1", "p2", "t1"},
		},
		{
			name:     "adjust stock floors at zero",
			sqlizer:  (&ProductRepo{}).adjustStockQuery("t1", "p1", delta),
			wantSQL:  "UPDATE products SET stock = GREATEST(stock + $1, 0) WHERE id = $2 AND tenant_id = $3 AND stock IS NOT NULL",
			wantArgs: []any{delta, "p1", "t1"},
		},
		{
			name:     "invoices of a shift by status",
			sqlizer:  listByClosureQuery("t1", "c1", []invoice.Status{invoice.StatusPaid, invoice.StatusRectificada}),
			wantSQL:  invoiceSelect + " WHERE closure_id = $1 AND tenant_id = $2 AND status IN ($3,$4) ORDER BY issued_at, id",
			wantArgs: []any{"c1", "t1", "paid", "rectificada"},
		},
		{
			name:     "invoices of a shift, any status",
			sqlizer:  listByClosureQuery("t1", "c1", nil),
			wantSQL:  invoiceSelect + " WHERE closure_id = $1 AND tenant_id = $2 ORDER BY issued_at, id",
			wantArgs: []any{"c1", "t1"},
		},
		{
			name: "invoice list filter",
			sqlizer: listFilter(builder().Select("COUNT(*)").From("invoices"), invoice.ListFilter{
				TenantID: "t1", Type: invoice.TypeTicket, From: &from, To: &to,
			}),
			wantSQL:  "SELECT COUNT(*) FROM invoices WHERE tenant_id = $1 AND invoice_type = $2 AND issued_at >= $3 AND issued_at < $4",
			wantArgs: []any{"t1", "ticket", from, to},
		},
		{
			name:     "closed shifts in period",
			sqlizer:  listClosedQuery("t1", from, to),
			wantSQL:  closureSelect + " WHERE status = $1 AND tenant_id = $2 AND period_start >= $3 AND period_start <= $4 ORDER BY period_start DESC, id DESC",
			wantArgs: []any{"closed", "t1", from, to},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.sqlizer.ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", tt.wantSQL, sql)
			}
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestFinalizeQuery_OnlyTouchesOpenShift(t *testing.T) {
	row, err := toClosureRow(&register.Closure{ID: "c1", TenantID: "t1", Status: register.StatusClosed})
	require.NoError(t, err)

	sql, args, err := finalizeQuery(row).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "UPDATE cash_register_closures SET counted_cash = $1, "), sql)
	assert.True(t, strings.HasSuffix(sql, " WHERE id = $16 AND status = $17"), sql)
	require.Len(t, args, 17)
	assert.Equal(t, "c1", args[15])
	assert.Equal(t, "open", args[16])
}

func TestInsertQueries_OneStatementPerTable(t *testing.T) {
	pid := "p1"
	inv := &invoice.Invoice{
		ID: "i1", TenantID: "t1", Number: "2026-00001", Type: invoice.TypeTicket, Status: invoice.StatusPaid,
		Items: []invoice.Item{
			{ID: "l1", InvoiceID: "i1", LineNo: 1, ProductID: &pid, ProductName: "Café"},
			{ID: "l2", InvoiceID: "i1", LineNo: 2, ProductName: "Varios", Discount: &invoice.Discount{Type: invoice.DiscountPercent, Value: types.MustMoney("10")}},
		},
		Payments: []invoice.Payment{{ID: "pay1", InvoiceID: "i1", LineNo: 1, Method: invoice.PaymentCash}},
	}

	queries, err := insertQueries(inv)
	require.NoError(t, err)
	require.Len(t, queries, 3)

	assert.True(t, strings.HasPrefix(queries[0].SQL, "INSERT INTO invoices "))
	assert.True(t, strings.HasPrefix(queries[1].SQL, "INSERT INTO invoice_items "))
	assert.Len(t, queries[1].Args, 2*len(itemColumns))
	assert.True(t, strings.HasPrefix(queries[2].SQL, "INSERT INTO invoice_payments "))
	assert.Len(t, queries[2].Args, len(paymentColumns))
	assert.Contains(t, itemColumns, "row_net_rounded")
	assert.Contains(t, itemColumns, "discount_type")
	assert.NotContains(t, itemColumns, "discount")
}

func TestInsertQueries_NoLines(t *testing.T) {
	queries, err := insertQueries(&invoice.Invoice{ID: "i1", TenantID: "t1"})
	require.NoError(t, err)
	assert.Len(t, queries, 1)
}

func TestInvoiceRow_Snapshots(t *testing.T) {
	cid := "cust1"
	inv := &invoice.Invoice{
		ID: "i1", TenantID: "t1", CustomerID: &cid,
		Customer: &invoice.Party{Name: "Bar Pepe", TaxID: "B12345678"},
		Issuer:   invoice.Party{Name: "Cafetería Sol", TaxID: "A87654321", Address: "Calle Mayor 1"},
		Discount: &invoice.Discount{Type: invoice.DiscountFixed, Value: types.MustMoney("1.00")},
		TaxBreakdown: []invoice.TaxLine{{
			Rate: types.MustMoney("10"), Net: types.MustMoney("4.09"), Tax: types.MustMoney("0.41"), Gross: types.MustMoney("4.50"),
		}},
		IssuedAt: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC),
	}

	row, err := toInvoiceRow(inv)
	require.NoError(t, err)
	assert.Equal(t, "Bar Pepe", *row.CustomerName)
	assert.Equal(t, "fixed", *row.DiscountType)
	assert.JSONEq(t, `[{"rate":"10.00","net":"4.09","tax":"0.41","gross":"4.50"}]`, string(row.TaxBreakdown))

	back, err := row.toDomain()
	require.NoError(t, err)
	require.NotNil(t, back.Customer)
	assert.Equal(t, "B12345678", back.Customer.TaxID)
	assert.Equal(t, "Calle Mayor 1", back.Issuer.Address)
	require.Len(t, back.TaxBreakdown, 1)
	assert.True(t, back.TaxBreakdown[0].Gross.Equal(types.MustMoney("4.50")))
	assert.True(t, back.Discount.Value.Equal(types.MustMoney("1")))
}

func TestClosureRow_EmptyCollections(t *testing.T) {
	row, err := toClosureRow(&register.Closure{ID: "c1", TenantID: "t1", Status: register.StatusOpen})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(row.Denominations))
	assert.Equal(t, "[]", string(row.TaxBreakdown))
	assert.Equal(t, "[]", string(row.ProductBreakdown))
	assert.Equal(t, "{}", string(row.InvoiceTypeCounts))

	row.InvoiceTypeCounts = []byte(`{"ticket":3,"rectificativa":1}`)
	c, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, 3, c.InvoiceTypeCounts[invoice.TypeTicket])
	assert.Equal(t, 1, c.InvoiceTypeCounts[invoice.TypeRectificativa])
	assert.NotNil(t, c.ProductBreakdown)
}
