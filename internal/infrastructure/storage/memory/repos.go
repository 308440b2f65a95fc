package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/id"
	"tpvcore/internal/core/numerator"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain"
	"tpvcore/internal/domain/catalogs/customer"
	"tpvcore/internal/domain/catalogs/product"
	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/register"
)

// --- Tenants ---

// TenantRepo implements tenant.Repository.
type TenantRepo struct{ s *Store }

var _ tenant.Repository = (*TenantRepo)(nil)

func (r *TenantRepo) GetByID(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	var out *tenant.Tenant
	err := r.s.view(ctx, func(st *state) error {
		t, ok := st.tenants[tenantID]
		if !ok {
			return tenant.ErrTenantNotFound
		}
		cp := *t
		out = &cp
		return nil
	})
	return out, err
}

// GetForUpdate returns the tenant. The store-wide transaction already serializes writers.
func (r *TenantRepo) GetForUpdate(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	return r.GetByID(ctx, tenantID)
}

func (r *TenantRepo) List(ctx context.Context) ([]*tenant.Tenant, error) {
	var out []*tenant.Tenant
	err := r.s.view(ctx, func(st *state) error {
		for _, t := range st.tenants {
			cp := *t
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r *TenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	if t.ID == "" {
		t.ID = id.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.tenants[t.ID]; ok {
			return apperror.NewDuplicate("tenant", "id", t.ID)
		}
		cp := *t
		st.tenants[t.ID] = &cp
		return nil
	})
}

// --- Counters ---

// Numbers implements numerator.Generator on the tenant counters.
type Numbers struct{ s *Store }

var _ numerator.Generator = (*Numbers)(nil)

func (n *Numbers) Next(ctx context.Context, tenantID string, series numerator.Series) (int64, error) {
	if !series.Valid() {
		return 0, fmt.Errorf("unknown series %q", series)
	}
	var next int64
	err := n.s.view(ctx, func(st *state) error {
		t, ok := st.tenants[tenantID]
		if !ok {
			return tenant.ErrTenantNotFound
		}
		next = t.Counter(series) + 1
		t.SetCounter(series, next)
		return nil
	})
	return next, err
}

// --- Products ---

// ProductRepo implements product.Repository.
type ProductRepo struct{ s *Store }

var _ product.Repository = (*ProductRepo)(nil)

func (r *ProductRepo) GetByIDs(ctx context.Context, tenantID string, ids []string) (map[string]*product.Product, error) {
	out := make(map[string]*product.Product, len(ids))
	err := r.s.view(ctx, func(st *state) error {
		for _, pid := range ids {
			p, ok := st.products[pid]
			if !ok || p.TenantID != tenantID || p.DeletedAt != nil {
				continue
			}
			out[pid] = copyProduct(p)
		}
		return nil
	})
	return out, err
}

func (r *ProductRepo) AdjustStock(ctx context.Context, tenantID, productID string, delta types.Quantity) error {
	return r.s.view(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok || p.TenantID != tenantID || !p.TracksStock() {
			return nil
		}
		next := product.AdjustedStock(*p.Stock, delta)
		p.Stock = &next
		return nil
	})
}

// --- Customers ---

// CustomerRepo implements customer.Repository.
type CustomerRepo struct{ s *Store }

var _ customer.Repository = (*CustomerRepo)(nil)

func (r *CustomerRepo) GetByID(ctx context.Context, tenantID, customerID string) (*customer.Customer, error) {
	var out *customer.Customer
	err := r.s.view(ctx, func(st *state) error {
		c, ok := st.customers[customerID]
		if !ok || c.TenantID != tenantID {
			return apperror.NewNotFound("customer", customerID)
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

// --- Invoices ---

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct{ s *Store }

var _ invoice.Repository = (*InvoiceRepo)(nil)

func (r *InvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv.ID == "" {
		inv.ID = id.NewString()
	}
	for i := range inv.Items {
		inv.Items[i].InvoiceID = inv.ID
	}
	for i := range inv.Payments {
		inv.Payments[i].InvoiceID = inv.ID
	}

	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.invoices[inv.ID]; ok {
			return apperror.NewDuplicate("invoice", "id", inv.ID)
		}
		for _, other := range st.invoices {
			if other.TenantID == inv.TenantID && other.Type == inv.Type && other.Number == inv.Number {
				return apperror.NewDuplicate("invoice", "invoice_number", inv.Number)
			}
		}
		st.invoices[inv.ID] = copyInvoice(inv)
		st.order = append(st.order, inv.ID)
		return nil
	})
}

func (r *InvoiceRepo) GetByID(ctx context.Context, invoiceID string) (*invoice.Invoice, error) {
	var out *invoice.Invoice
	err := r.s.view(ctx, func(st *state) error {
		inv, ok := st.invoices[invoiceID]
		if !ok {
			return apperror.NewNotFound("invoice", invoiceID)
		}
		out = copyInvoice(inv)
		return nil
	})
	return out, err
}

func (r *InvoiceRepo) UpdateStatus(ctx context.Context, invoiceID string, status invoice.Status) error {
	return r.s.view(ctx, func(st *state) error {
		inv, ok := st.invoices[invoiceID]
		if !ok {
			return apperror.NewNotFound("invoice", invoiceID)
		}
		inv.Status = status
		return nil
	})
}

func (r *InvoiceRepo) ListByClosure(ctx context.Context, tenantID, closureID string, statuses ...invoice.Status) ([]*invoice.Invoice, error) {
	return r.collect(ctx, func(inv *invoice.Invoice) bool {
		return inv.TenantID == tenantID &&
			inv.ClosureID != nil && *inv.ClosureID == closureID &&
			hasStatus(inv.Status, statuses)
	})
}

func (r *InvoiceRepo) ListRectifications(ctx context.Context, tenantID, originalID string) ([]*invoice.Invoice, error) {
	return r.collect(ctx, func(inv *invoice.Invoice) bool {
		return inv.TenantID == tenantID &&
			inv.Type == invoice.TypeRectificativa &&
			inv.OriginalInvoiceID != nil && *inv.OriginalInvoiceID == originalID
	})
}

func (r *InvoiceRepo) List(ctx context.Context, f invoice.ListFilter) ([]*invoice.Invoice, int64, error) {
	all, err := r.collect(ctx, func(inv *invoice.Invoice) bool {
		switch {
		case inv.TenantID != f.TenantID:
			return false
		case f.ClosureID != "" && (inv.ClosureID == nil || *inv.ClosureID != f.ClosureID):
			return false
		case f.Type != "" && inv.Type != f.Type:
			return false
		case f.Status != "" && inv.Status != f.Status:
			return false
		case f.From != nil && inv.IssuedAt.Before(*f.From):
			return false
		case f.To != nil && !inv.IssuedAt.Before(*f.To):
			return false
		}
		return true
	})
	if err != nil {
		return nil, 0, err
	}

	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	total := int64(len(all))
	if f.Offset >= len(all) {
		return []*invoice.Invoice{}, total, nil
	}
	end := len(all)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return all[f.Offset:end], total, nil
}

// collect returns matching invoices in insertion order.
func (r *InvoiceRepo) collect(ctx context.Context, match func(*invoice.Invoice) bool) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	err := r.s.view(ctx, func(st *state) error {
		for _, invID := range st.order {
			if inv := st.invoices[invID]; match(inv) {
				out = append(out, copyInvoice(inv))
			}
		}
		return nil
	})
	return out, err
}

func hasStatus(s invoice.Status, in []invoice.Status) bool {
	if len(in) == 0 {
		return true
	}
	for _, x := range in {
		if s == x {
			return true
		}
	}
	return false
}

// --- Closures ---

// ClosureRepo implements register.Repository.
type ClosureRepo struct{ s *Store }

var _ register.Repository = (*ClosureRepo)(nil)

func (r *ClosureRepo) Create(ctx context.Context, c *register.Closure) error {
	if c.ID == "" {
		c.ID = id.NewString()
	}
	return r.s.view(ctx, func(st *state) error {
		for _, other := range st.closures {
			if other.TenantID == c.TenantID && other.IsOpen() {
				return apperror.NewConflict("cash register is already open").WithDetail("closure_id", other.ID)
			}
		}
		st.closures[c.ID] = copyClosure(c)
		return nil
	})
}

func (r *ClosureRepo) GetOpen(ctx context.Context, tenantID string) (*register.Closure, error) {
	var out *register.Closure
	err := r.s.view(ctx, func(st *state) error {
		for _, c := range st.closures {
			if c.TenantID == tenantID && c.IsOpen() {
				out = copyClosure(c)
				return nil
			}
		}
		return apperror.NewNotFound("closure", "open")
	})
	return out, err
}

func (r *ClosureRepo) GetByID(ctx context.Context, closureID string) (*register.Closure, error) {
	var out *register.Closure
	err := r.s.view(ctx, func(st *state) error {
		c, ok := st.closures[closureID]
		if !ok {
			return apperror.NewNotFound("closure", closureID)
		}
		out = copyClosure(c)
		return nil
	})
	return out, err
}

func (r *ClosureRepo) Finalize(ctx context.Context, c *register.Closure) error {
	return r.s.view(ctx, func(st *state) error {
		cur, ok := st.closures[c.ID]
		if !ok {
			return apperror.NewNotFound("closure", c.ID)
		}
		if !cur.IsOpen() {
			return apperror.NewState("closure is already closed").WithDetail("closure_id", c.ID)
		}
		st.closures[c.ID] = copyClosure(c)
		return nil
	})
}

func (r *ClosureRepo) ListClosed(ctx context.Context, tenantID string, from, to time.Time) ([]*register.Closure, error) {
	var out []*register.Closure
	err := r.s.view(ctx, func(st *state) error {
		for _, c := range st.closures {
			if c.TenantID != tenantID || c.Status != register.StatusClosed {
				continue
			}
			if c.PeriodStart.Before(from) || c.PeriodStart.After(to) {
				continue
			}
			out = append(out, copyClosure(c))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	return out, err
}

// --- Outbox and audit ---

// Outbox implements domain.EventPublisher.
type Outbox struct{ s *Store }

var _ domain.EventPublisher = (*Outbox)(nil)

func (o *Outbox) Publish(ctx context.Context, e domain.Event) error {
	return o.s.view(ctx, func(st *state) error {
		st.events = append(st.events, e)
		return nil
	})
}

// Audit implements domain.AuditRecorder.
type Audit struct{ s *Store }

var _ domain.AuditRecorder = (*Audit)(nil)

func (a *Audit) Record(ctx context.Context, e domain.AuditEntry) error {
	return a.s.view(ctx, func(st *state) error {
		st.audit = append(st.audit, e)
		return nil
	})
}
