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
	"tpvcore/internal/domain/register"
	"tpvcore/internal/infrastructure/storage/postgres"
)

const uniqueOpenClosure = "uq_closures_one_open"

// closureRow is the cash_register_closures row. Breakdowns are JSONB.
type closureRow struct {
	ID                string       `db:"id"`
	TenantID          string       `db:"tenant_id"`
	Status            string       `db:"status"`
	PeriodStart       time.Time    `db:"period_start"`
	PeriodEnd         *time.Time   `db:"period_end"`
	StartingCash      types.Money  `db:"starting_cash"`
	CountedCash       *types.Money `db:"counted_cash"`
	ExpectedCash      *types.Money `db:"expected_cash"`
	Difference        *types.Money `db:"difference"`
	Denominations     []byte       `db:"denomination_count"`
	TotalGross        types.Money  `db:"total_gross"`
	TotalNet          types.Money  `db:"total_net"`
	TotalTax          types.Money  `db:"total_tax"`
	TotalCash         types.Money  `db:"total_cash"`
	TotalCard         types.Money  `db:"total_card"`
	TransactionCount  int          `db:"transaction_count"`
	TaxBreakdown      []byte       `db:"tax_breakdown"`
	ProductBreakdown  []byte       `db:"product_breakdown"`
	InvoiceTypeCounts []byte       `db:"invoice_type_counts"`
}

var closureColumns = postgres.ExtractDBColumns[closureRow]()

func toClosureRow(c *register.Closure) (closureRow, error) {
	row := closureRow{
		ID:               c.ID,
		TenantID:         c.TenantID,
		Status:           string(c.Status),
		PeriodStart:      c.PeriodStart,
		PeriodEnd:        c.PeriodEnd,
		StartingCash:     c.StartingCash,
		CountedCash:      c.CountedCash,
		ExpectedCash:     c.ExpectedCash,
		Difference:       c.Difference,
		TotalGross:       c.TotalGross,
		TotalNet:         c.TotalNet,
		TotalTax:         c.TotalTax,
		TotalCash:        c.TotalCash,
		TotalCard:        c.TotalCard,
		TransactionCount: c.TransactionCount,
	}

	denominations := c.Denominations
	if denominations == nil {
		denominations = []register.Denomination{}
	}
	snap := c.Snapshot
	if snap.TaxBreakdown == nil {
		snap.TaxBreakdown = []invoice.TaxLine{}
	}
	if snap.ProductBreakdown == nil {
		snap.ProductBreakdown = []register.ProductLine{}
	}
	if snap.InvoiceTypeCounts == nil {
		snap.InvoiceTypeCounts = map[invoice.Type]int{}
	}

	for _, f := range []struct {
		dst *[]byte
		src any
	}{
		{&row.Denominations, denominations},
		{&row.TaxBreakdown, snap.TaxBreakdown},
		{&row.ProductBreakdown, snap.ProductBreakdown},
		{&row.InvoiceTypeCounts, snap.InvoiceTypeCounts},
	} {
		b, err := json.Marshal(f.src)
		if err != nil {
			return closureRow{}, fmt.Errorf("marshal closure snapshot: %w", err)
		}
		*f.dst = b
	}
	return row, nil
}

func (row *closureRow) toDomain() (*register.Closure, error) {
	c := &register.Closure{
		ID:           row.ID,
		TenantID:     row.TenantID,
		Status:       register.Status(row.Status),
		PeriodStart:  row.PeriodStart.UTC(),
		StartingCash: row.StartingCash,
		CountedCash:  row.CountedCash,
		ExpectedCash: row.ExpectedCash,
		Difference:   row.Difference,
		Snapshot:     register.EmptySnapshot(),
	}
	if row.PeriodEnd != nil {
		end := row.PeriodEnd.UTC()
		c.PeriodEnd = &end
	}
	c.TotalGross = row.TotalGross
	c.TotalNet = row.TotalNet
	c.TotalTax = row.TotalTax
	c.TotalCash = row.TotalCash
	c.TotalCard = row.TotalCard
	c.TransactionCount = row.TransactionCount

	for _, f := range []struct {
		src []byte
		dst any
	}{
		{row.Denominations, &c.Denominations},
		{row.TaxBreakdown, &c.TaxBreakdown},
		{row.ProductBreakdown, &c.ProductBreakdown},
		{row.InvoiceTypeCounts, &c.InvoiceTypeCounts},
	} {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("decode closure %s: %w", row.ID, err)
		}
	}
	return c, nil
}

// ClosureRepo implements register.Repository.
type ClosureRepo struct{ base }

var _ register.Repository = (*ClosureRepo)(nil)

// NewClosureRepo creates a closure repository.
func NewClosureRepo(db postgres.QuerierProvider) *ClosureRepo {
	return &ClosureRepo{base{db: db}}
}

// Create inserts an open shift. The partial unique index rejects a second one.
func (r *ClosureRepo) Create(ctx context.Context, c *register.Closure) error {
	if c.ID == "" {
		c.ID = id.NewString()
	}
	row, err := toClosureRow(c)
	if err != nil {
		return err
	}
	sql, args, err := builder().Insert("cash_register_closures").SetMap(postgres.StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, uniqueOpenClosure) {
			return apperror.NewConflict("cash register is already open").WithDetail("tenant_id", c.TenantID)
		}
		return postgres.MapError(ctx, fmt.Errorf("insert closure: %w", err))
	}
	return nil
}

func (r *ClosureRepo) getOne(ctx context.Context, q squirrel.SelectBuilder) (*register.Closure, error) {
	sql, args, err := q.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var row closureRow
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &row, sql, args...); err != nil {
		return nil, err
	}
	return row.toDomain()
}

// GetOpen returns the tenant's open shift.
func (r *ClosureRepo) GetOpen(ctx context.Context, tenantID string) (*register.Closure, error) {
	c, err := r.getOne(ctx, builder().Select(closureColumns...).From("cash_register_closures").
		Where(squirrel.Eq{"tenant_id": tenantID, "status": string(register.StatusOpen)}))
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("closure", "open")
		}
		return nil, postgres.MapError(ctx, fmt.Errorf("get open closure: %w", err))
	}
	return c, nil
}

// GetByID loads any shift.
func (r *ClosureRepo) GetByID(ctx context.Context, closureID string) (*register.Closure, error) {
	c, err := r.getOne(ctx, builder().Select(closureColumns...).From("cash_register_closures").
		Where(squirrel.Eq{"id": closureID}))
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("closure", closureID)
		}
		return nil, postgres.MapError(ctx, fmt.Errorf("get closure: %w", err))
	}
	return c, nil
}

func finalizeQuery(row closureRow) squirrel.UpdateBuilder {
	return builder().Update("cash_register_closures").
		SetMap(map[string]any{
			"status":              row.Status,
			"period_end":          row.PeriodEnd,
			"counted_cash":        row.CountedCash,
			"expected_cash":       row.ExpectedCash,
			"difference":          row.Difference,
			"denomination_count":  row.Denominations,
			"total_gross":         row.TotalGross,
			"total_net":           row.TotalNet,
			"total_tax":           row.TotalTax,
			"total_cash":          row.TotalCash,
			"total_card":          row.TotalCard,
			"transaction_count":   row.TransactionCount,
			"tax_breakdown":       row.TaxBreakdown,
			"product_breakdown":   row.ProductBreakdown,
			"invoice_type_counts": row.InvoiceTypeCounts,
		}).
		Where(squirrel.Eq{"id": row.ID, "status": string(register.StatusOpen)})
}

// Finalize writes the close-time fields. A shift already closed is rejected.
func (r *ClosureRepo) Finalize(ctx context.Context, c *register.Closure) error {
	row, err := toClosureRow(c)
	if err != nil {
		return err
	}
	sql, args, err := finalizeQuery(row).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(ctx, fmt.Errorf("finalize closure: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewState("closure is already closed").WithDetail("closure_id", c.ID)
	}
	return nil
}

func listClosedQuery(tenantID string, from, to time.Time) squirrel.SelectBuilder {
	return builder().Select(closureColumns...).From("cash_register_closures").
		Where(squirrel.Eq{"tenant_id": tenantID, "status": string(register.StatusClosed)}).
		Where(squirrel.GtOrEq{"period_start": from}).
		Where(squirrel.LtOrEq{"period_start": to}).
		OrderBy("period_start DESC", "id DESC")
}

// ListClosed returns closed shifts started in [from, to], newest first.
func (r *ClosureRepo) ListClosed(ctx context.Context, tenantID string, from, to time.Time) ([]*register.Closure, error) {
	sql, args, err := listClosedQuery(tenantID, from, to).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []*closureRow
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, postgres.MapError(ctx, fmt.Errorf("list closures: %w", err))
	}
	out := make([]*register.Closure, 0, len(rows))
	for _, row := range rows {
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
