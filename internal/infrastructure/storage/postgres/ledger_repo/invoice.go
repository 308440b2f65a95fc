package ledger_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/id"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/infrastructure/storage/postgres"
)

const uniqueInvoiceNumber = "uq_invoices_number"

// invoiceRow is the invoices table row. Snapshots are flattened into columns.
type invoiceRow struct {
	ID                  string       `db:"id"`
	TenantID            string       `db:"tenant_id"`
	Number              string       `db:"invoice_number"`
	Type                string       `db:"invoice_type"`
	Status              string       `db:"status"`
	Subtotal            types.Money  `db:"subtotal"`
	DiscountTotal       types.Money  `db:"discount_total"`
	DiscountType        *string      `db:"discount_type"`
	DiscountValue       *types.Money `db:"discount_value"`
	Net                 types.Money  `db:"net"`
	Tax                 types.Money  `db:"tax"`
	Gross               types.Money  `db:"gross"`
	ClosureID           *string      `db:"closure_id"`
	OriginalInvoiceID   *string      `db:"original_invoice_id"`
	RectificationReason string       `db:"rectification_reason"`
	CustomerID          *string      `db:"customer_id"`
	CustomerName        *string      `db:"customer_name"`
	CustomerTaxID       *string      `db:"customer_tax_id"`
	CustomerAddress     *string      `db:"customer_address"`
	IssuerName          string       `db:"issuer_name"`
	IssuerTaxID         string       `db:"issuer_tax_id"`
	IssuerAddress       string       `db:"issuer_address"`
	TaxBreakdown        []byte       `db:"tax_breakdown"`
	IssuedAt            time.Time    `db:"issued_at"`
}

// itemRow is the invoice_items table row.
type itemRow struct {
	invoice.Item
	DiscountType  *string      `db:"discount_type"`
	DiscountValue *types.Money `db:"discount_value"`
}

var (
	invoiceColumns = postgres.ExtractDBColumns[invoiceRow]()
	itemColumns    = postgres.ExtractDBColumns[itemRow]()
	paymentColumns = postgres.ExtractDBColumns[invoice.Payment]()
)

func discountColumns(d *invoice.Discount) (*string, *types.Money) {
	if d == nil {
		return nil, nil
	}
	t, v := string(d.Type), d.Value
	return &t, &v
}

func discountFromColumns(t *string, v *types.Money) *invoice.Discount {
	if t == nil || v == nil {
		return nil
	}
	return &invoice.Discount{Type: invoice.DiscountType(*t), Value: *v}
}

func toInvoiceRow(inv *invoice.Invoice) (invoiceRow, error) {
	breakdown, err := json.Marshal(inv.TaxBreakdown)
	if err != nil {
		return invoiceRow{}, fmt.Errorf("marshal tax breakdown: %w", err)
	}
	row := invoiceRow{
		ID:                  inv.ID,
		TenantID:            inv.TenantID,
		Number:              inv.Number,
		Type:                string(inv.Type),
		Status:              string(inv.Status),
		Subtotal:            inv.Subtotal,
		DiscountTotal:       inv.DiscountTotal,
		Net:                 inv.Net,
		Tax:                 inv.Tax,
		Gross:               inv.Gross,
		ClosureID:           inv.ClosureID,
		OriginalInvoiceID:   inv.OriginalInvoiceID,
		RectificationReason: inv.RectificationReason,
		CustomerID:          inv.CustomerID,
		IssuerName:          inv.Issuer.Name,
		IssuerTaxID:         inv.Issuer.TaxID,
		IssuerAddress:       inv.Issuer.Address,
		TaxBreakdown:        breakdown,
		IssuedAt:            inv.IssuedAt,
	}
	row.DiscountType, row.DiscountValue = discountColumns(inv.Discount)
	if c := inv.Customer; c != nil {
		row.CustomerName, row.CustomerTaxID, row.CustomerAddress = &c.Name, &c.TaxID, &c.Address
	}
	return row, nil
}

func (row *invoiceRow) toDomain() (*invoice.Invoice, error) {
	inv := &invoice.Invoice{
		ID:                  row.ID,
		TenantID:            row.TenantID,
		Number:              row.Number,
		Type:                invoice.Type(row.Type),
		Status:              invoice.Status(row.Status),
		Subtotal:            row.Subtotal,
		DiscountTotal:       row.DiscountTotal,
		Net:                 row.Net,
		Tax:                 row.Tax,
		Gross:               row.Gross,
		Discount:            discountFromColumns(row.DiscountType, row.DiscountValue),
		ClosureID:           row.ClosureID,
		OriginalInvoiceID:   row.OriginalInvoiceID,
		RectificationReason: row.RectificationReason,
		CustomerID:          row.CustomerID,
		Issuer:              invoice.Party{Name: row.IssuerName, TaxID: row.IssuerTaxID, Address: row.IssuerAddress},
		IssuedAt:            row.IssuedAt.UTC(),
	}
	if row.CustomerName != nil {
		inv.Customer = &invoice.Party{Name: *row.CustomerName, TaxID: deref(row.CustomerTaxID), Address: deref(row.CustomerAddress)}
	}
	if len(row.TaxBreakdown) > 0 {
		if err := json.Unmarshal(row.TaxBreakdown, &inv.TaxBreakdown); err != nil {
			return nil, fmt.Errorf("decode tax breakdown of %s: %w", row.ID, err)
		}
	}
	return inv, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct {
	base
	batch *postgres.BatchExecutor
}

var _ invoice.Repository = (*InvoiceRepo)(nil)

// NewInvoiceRepo creates an invoice repository.
func NewInvoiceRepo(txm *postgres.TxManager) *InvoiceRepo {
	return &InvoiceRepo{base: base{db: txm}, batch: postgres.NewBatchExecutor(txm)}
}

// insertQueries builds the header, item and payment inserts of one invoice.
func insertQueries(inv *invoice.Invoice) ([]postgres.BatchQuery, error) {
	row, err := toInvoiceRow(inv)
	if err != nil {
		return nil, err
	}

	var out []postgres.BatchQuery
	add := func(q squirrel.InsertBuilder) error {
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		out = append(out, postgres.BatchQuery{SQL: sql, Args: args})
		return nil
	}

	if err := add(builder().Insert("invoices").SetMap(postgres.StructToMap(row))); err != nil {
		return nil, err
	}

	if len(inv.Items) > 0 {
		q := builder().Insert("invoice_items").Columns(itemColumns...)
		for _, it := range inv.Items {
			ir := itemRow{Item: it}
			ir.DiscountType, ir.DiscountValue = discountColumns(it.Discount)
			m := postgres.StructToMap(ir)
			vals := make([]any, len(itemColumns))
			for i, c := range itemColumns {
				vals[i] = m[c]
			}
			q = q.Values(vals...)
		}
		if err := add(q); err != nil {
			return nil, err
		}
	}

	if len(inv.Payments) > 0 {
		q := builder().Insert("invoice_payments").Columns(paymentColumns...)
		for _, p := range inv.Payments {
			m := postgres.StructToMap(p)
			vals := make([]any, len(paymentColumns))
			for i, c := range paymentColumns {
				vals[i] = m[c]
			}
			q = q.Values(vals...)
		}
		if err := add(q); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Create inserts the invoice with its items and payments in one round-trip.
func (r *InvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv.ID == "" {
		inv.ID = id.NewString()
	}
	for i := range inv.Items {
		if inv.Items[i].ID == "" {
			inv.Items[i].ID = id.NewString()
		}
		inv.Items[i].InvoiceID = inv.ID
	}
	for i := range inv.Payments {
		if inv.Payments[i].ID == "" {
			inv.Payments[i].ID = id.NewString()
		}
		inv.Payments[i].InvoiceID = inv.ID
	}

	queries, err := insertQueries(inv)
	if err != nil {
		return err
	}
	if err := r.batch.ExecuteBatch(ctx, queries); err != nil {
		if postgres.IsUniqueViolation(err, uniqueInvoiceNumber) {
			return apperror.NewDuplicate("invoice", "invoice_number", inv.Number)
		}
		return postgres.MapError(ctx, fmt.Errorf("insert invoice: %w", err))
	}
	return nil
}

// GetByID loads an invoice with items and payments.
func (r *InvoiceRepo) GetByID(ctx context.Context, invoiceID string) (*invoice.Invoice, error) {
	list, err := r.selectInvoices(ctx, builder().Select(invoiceColumns...).From("invoices").
		Where(squirrel.Eq{"id": invoiceID}))
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperror.NewNotFound("invoice", invoiceID)
	}
	return list[0], nil
}

// UpdateStatus changes the invoice status.
func (r *InvoiceRepo) UpdateStatus(ctx context.Context, invoiceID string, status invoice.Status) error {
	sql, args, err := builder().Update("invoices").Set("status", string(status)).
		Where(squirrel.Eq{"id": invoiceID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(ctx, fmt.Errorf("update invoice status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("invoice", invoiceID)
	}
	return nil
}

func listByClosureQuery(tenantID, closureID string, statuses []invoice.Status) squirrel.SelectBuilder {
	q := builder().Select(invoiceColumns...).From("invoices").
		Where(squirrel.Eq{"tenant_id": tenantID, "closure_id": closureID}).
		OrderBy("issued_at", "id")
	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, s := range statuses {
			ss[i] = string(s)
		}
		q = q.Where(squirrel.Eq{"status": ss})
	}
	return q
}

// ListByClosure returns invoices attached to a shift, oldest first.
func (r *InvoiceRepo) ListByClosure(ctx context.Context, tenantID, closureID string, statuses ...invoice.Status) ([]*invoice.Invoice, error) {
	return r.selectInvoices(ctx, listByClosureQuery(tenantID, closureID, statuses))
}

// ListRectifications returns every rectificativa referencing originalID.
func (r *InvoiceRepo) ListRectifications(ctx context.Context, tenantID, originalID string) ([]*invoice.Invoice, error) {
	return r.selectInvoices(ctx, builder().Select(invoiceColumns...).From("invoices").
		Where(squirrel.Eq{
			"tenant_id":           tenantID,
			"invoice_type":        string(invoice.TypeRectificativa),
			"original_invoice_id": originalID,
		}).
		OrderBy("issued_at", "id"))
}

// listFilter applies ListFilter to a select.
func listFilter(q squirrel.SelectBuilder, f invoice.ListFilter) squirrel.SelectBuilder {
	q = q.Where(squirrel.Eq{"tenant_id": f.TenantID})
	if f.ClosureID != "" {
		q = q.Where(squirrel.Eq{"closure_id": f.ClosureID})
	}
	if f.Type != "" {
		q = q.Where(squirrel.Eq{"invoice_type": string(f.Type)})
	}
	if f.Status != "" {
		q = q.Where(squirrel.Eq{"status": string(f.Status)})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"issued_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"issued_at": *f.To})
	}
	return q
}

// List returns a page of invoices, newest first, and the total count.
func (r *InvoiceRepo) List(ctx context.Context, f invoice.ListFilter) ([]*invoice.Invoice, int64, error) {
	countSQL, countArgs, err := listFilter(builder().Select("COUNT(*)").From("invoices"), f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int64
	if err := r.db.GetQuerier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	q := listFilter(builder().Select(invoiceColumns...).From("invoices"), f).
		OrderBy("issued_at DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	list, err := r.selectInvoices(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// selectInvoices runs a header query and attaches items and payments.
func (r *InvoiceRepo) selectInvoices(ctx context.Context, q squirrel.SelectBuilder) ([]*invoice.Invoice, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.db.GetQuerier(ctx)
	var rows []*invoiceRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("select invoices: %w", err))
	}
	out := make([]*invoice.Invoice, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	byID := make(map[string]*invoice.Invoice, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		inv, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
		byID[inv.ID] = inv
		ids = append(ids, inv.ID)
	}

	itemSQL, itemArgs, err := builder().Select(itemColumns...).From("invoice_items").
		Where(squirrel.Eq{"invoice_id": ids}).OrderBy("invoice_id", "line_no").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}
	var items []itemRow
	if err := pgxscan.Select(ctx, querier, &items, itemSQL, itemArgs...); err != nil {
		return nil, fmt.Errorf("select invoice items: %w", err)
	}
	for _, ir := range items {
		it := ir.Item
		it.Discount = discountFromColumns(ir.DiscountType, ir.DiscountValue)
		byID[it.InvoiceID].Items = append(byID[it.InvoiceID].Items, it)
	}

	paySQL, payArgs, err := builder().Select(paymentColumns...).From("invoice_payments").
		Where(squirrel.Eq{"invoice_id": ids}).OrderBy("invoice_id", "line_no").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payments query: %w", err)
	}
	var payments []invoice.Payment
	if err := pgxscan.Select(ctx, querier, &payments, paySQL, payArgs...); err != nil {
		return nil, fmt.Errorf("select invoice payments: %w", err)
	}
	for _, p := range payments {
		byID[p.InvoiceID].Payments = append(byID[p.InvoiceID].Payments, p)
	}
	return out, nil
}
