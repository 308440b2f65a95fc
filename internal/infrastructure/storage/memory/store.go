// Package memory is an in-process implementation of every ledger repository.
// It backs the service tests and local development without PostgreSQL.
//
// A transaction works on a private copy of the whole store and swaps it in on
// commit, so a failed transaction leaves nothing behind. Transactions are
// serialized store-wide, which is stricter than the per-tenant row lock of
// the postgres backend.
package memory

import (
	"context"
	"maps"
	"slices"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/tenant"
	"tpvcore/internal/core/tx"
	"tpvcore/internal/domain"
	"tpvcore/internal/domain/catalogs/customer"
	"tpvcore/internal/domain/catalogs/product"
	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/register"
)

type txKey struct{}

// state is everything the store holds. It is copied at transaction start.
type state struct {
	tenants   map[string]*tenant.Tenant
	products  map[string]*product.Product
	customers map[string]*customer.Customer
	invoices  map[string]*invoice.Invoice
	order     []string // invoice ids in insertion order
	closures  map[string]*register.Closure
	audit     []domain.AuditEntry
	events    []domain.Event
}

func newState() *state {
	return &state{
		tenants:   make(map[string]*tenant.Tenant),
		products:  make(map[string]*product.Product),
		customers: make(map[string]*customer.Customer),
		invoices:  make(map[string]*invoice.Invoice),
		closures:  make(map[string]*register.Closure),
	}
}

func (s *state) clone() *state {
	c := &state{
		tenants:   make(map[string]*tenant.Tenant, len(s.tenants)),
		products:  make(map[string]*product.Product, len(s.products)),
		customers: make(map[string]*customer.Customer, len(s.customers)),
		invoices:  make(map[string]*invoice.Invoice, len(s.invoices)),
		order:     slices.Clone(s.order),
		closures:  make(map[string]*register.Closure, len(s.closures)),
		audit:     slices.Clone(s.audit),
		events:    slices.Clone(s.events),
	}
	for k, v := range s.tenants {
		t := *v
		c.tenants[k] = &t
	}
	for k, v := range s.products {
		c.products[k] = copyProduct(v)
	}
	for k, v := range s.customers {
		cu := *v
		c.customers[k] = &cu
	}
	for k, v := range s.invoices {
		c.invoices[k] = copyInvoice(v)
	}
	for k, v := range s.closures {
		c.closures[k] = copyClosure(v)
	}
	return c
}

// Store is the in-memory database.
type Store struct {
	sem   chan struct{}
	state *state
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sem:   make(chan struct{}, 1),
		state: newState(),
	}
}

var _ tx.Manager = (*Store)(nil)

// RunInTransaction implements tx.Manager. Waiting for the store honours ctx
// and fails with LOCK_TIMEOUT when ctx expires first.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	work := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, work)); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apperror.NewLockTimeout(tenant.CallerTenantID(ctx)).WithCause(ctx.Err())
	}
}

func (s *Store) release() { <-s.sem }

// ReadOnly runs fn against a private snapshot that is never committed.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	snapshot := s.state.clone()
	s.release()
	return fn(context.WithValue(ctx, txKey{}, snapshot))
}

// view runs fn against the transaction state in ctx, or against the committed
// state while holding the store.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if st, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(st)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn(s.state)
}

// Seeding helpers.

// PutTenant stores a tenant as is.
func (s *Store) PutTenant(t *tenant.Tenant) {
	_ = s.view(context.Background(), func(st *state) error {
		cp := *t
		st.tenants[t.ID] = &cp
		return nil
	})
}

// PutProduct stores a product as is.
func (s *Store) PutProduct(p *product.Product) {
	_ = s.view(context.Background(), func(st *state) error {
		st.products[p.ID] = copyProduct(p)
		return nil
	})
}

// PutCustomer stores a customer as is.
func (s *Store) PutCustomer(c *customer.Customer) {
	_ = s.view(context.Background(), func(st *state) error {
		cp := *c
		st.customers[c.ID] = &cp
		return nil
	})
}

// AuditEntries returns the committed audit trail.
func (s *Store) AuditEntries() []domain.AuditEntry {
	var out []domain.AuditEntry
	_ = s.view(context.Background(), func(st *state) error {
		out = append(out, st.audit...)
		return nil
	})
	return out
}

// Events returns the committed outbox.
func (s *Store) Events() []domain.Event {
	var out []domain.Event
	_ = s.view(context.Background(), func(st *state) error {
		out = append(out, st.events...)
		return nil
	})
	return out
}

// Repositories.

// Tenants returns the tenant repository.
func (s *Store) Tenants() *TenantRepo { return &TenantRepo{s: s} }

// Products returns the product repository.
func (s *Store) Products() *ProductRepo { return &ProductRepo{s: s} }

// Customers returns the customer repository.
func (s *Store) Customers() *CustomerRepo { return &CustomerRepo{s: s} }

// Invoices returns the invoice repository.
func (s *Store) Invoices() *InvoiceRepo { return &InvoiceRepo{s: s} }

// Closures returns the closure repository.
func (s *Store) Closures() *ClosureRepo { return &ClosureRepo{s: s} }

// Numbers returns the counter generator.
func (s *Store) Numbers() *Numbers { return &Numbers{s: s} }

// Outbox returns the event publisher.
func (s *Store) Outbox() *Outbox { return &Outbox{s: s} }

// Audit returns the audit recorder.
func (s *Store) Audit() *Audit { return &Audit{s: s} }

func copyProduct(p *product.Product) *product.Product {
	cp := *p
	if p.Stock != nil {
		st := *p.Stock
		cp.Stock = &st
	}
	return &cp
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	cp := *inv
	cp.Items = slices.Clone(inv.Items)
	cp.Payments = slices.Clone(inv.Payments)
	cp.TaxBreakdown = slices.Clone(inv.TaxBreakdown)
	if inv.Customer != nil {
		c := *inv.Customer
		cp.Customer = &c
	}
	return &cp
}

func copyClosure(c *register.Closure) *register.Closure {
	cp := *c
	cp.Denominations = slices.Clone(c.Denominations)
	cp.TaxBreakdown = slices.Clone(c.TaxBreakdown)
	cp.ProductBreakdown = slices.Clone(c.ProductBreakdown)
	cp.InvoiceTypeCounts = maps.Clone(c.InvoiceTypeCounts)
	return &cp
}
