package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/catalogs/customer"
	"tpvcore/internal/domain/catalogs/product"
	"tpvcore/internal/infrastructure/storage/postgres"
)

var (
	productColumns  = postgres.ExtractDBColumns[product.Product]()
	customerColumns = postgres.ExtractDBColumns[customer.Customer]()
)

// ProductRepo implements product.Repository.
type ProductRepo struct{ base }

var _ product.Repository = (*ProductRepo)(nil)

// NewProductRepo creates a product repository.
func NewProductRepo(db postgres.QuerierProvider) *ProductRepo {
	return &ProductRepo{base{db: db}}
}

func (r *ProductRepo) getByIDsQuery(tenantID string, ids []string) squirrel.SelectBuilder {
	return builder().Select(productColumns...).From("products").
		Where(squirrel.Eq{"tenant_id": tenantID, "id": ids, "deleted_at": nil})
}

// GetByIDs returns the tenant's non-deleted products keyed by id.
func (r *ProductRepo) GetByIDs(ctx context.Context, tenantID string, ids []string) (map[string]*product.Product, error) {
	out := make(map[string]*product.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sql, args, err := r.getByIDsQuery(tenantID, ids).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*product.Product
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (r *ProductRepo) adjustStockQuery(tenantID, productID string, delta types.Quantity) squirrel.UpdateBuilder {
	return builder().Update("products").
		Set("stock", squirrel.Expr("GREATEST(stock + ?, 0)", delta)).
		Where(squirrel.Eq{"id": productID, "tenant_id": tenantID}).
		Where(squirrel.NotEq{"stock": nil})
}

// AdjustStock adds delta to the stock counter, flooring at zero.
func (r *ProductRepo) AdjustStock(ctx context.Context, tenantID, productID string, delta types.Quantity) error {
	sql, args, err := r.adjustStockQuery(tenantID, productID, delta).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(ctx, fmt.Errorf("adjust stock: %w", err))
	}
	return nil
}

// CustomerRepo implements customer.Repository.
type CustomerRepo struct{ base }

var _ customer.Repository = (*CustomerRepo)(nil)

// NewCustomerRepo creates a customer repository.
func NewCustomerRepo(db postgres.QuerierProvider) *CustomerRepo {
	return &CustomerRepo{base{db: db}}
}

// GetByID loads a customer of the tenant.
func (r *CustomerRepo) GetByID(ctx context.Context, tenantID, customerID string) (*customer.Customer, error) {
	sql, args, err := builder().Select(customerColumns...).From("customers").
		Where(squirrel.Eq{"id": customerID, "tenant_id": tenantID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var c customer.Customer
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("customer", customerID)
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}
