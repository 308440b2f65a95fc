// Package domain holds the ports shared by the ledger services: event
// publication, the audit trail and operational metrics.
package domain

import (
	"context"
	"time"
)

// Event is a ledger fact handed to the document-rendering service through the outbox.
type Event struct {
	TenantID      string
	AggregateType string // invoice, closure
	AggregateID   string
	EventType     string
	Payload       any
}

// Event types written by the ledger.
const (
	EventInvoiceIssued    = "invoice.issued"
	EventInvoiceRectified = "invoice.rectified"
	EventRegisterOpened   = "register.opened"
	EventRegisterClosed   = "register.closed"
)

// EventPublisher stores events in the same transaction as the state change.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// AuditEntry is an immutable snapshot of a ledger state change.
type AuditEntry struct {
	TenantID   string
	EntityType string
	EntityID   string
	Action     string
	UserID     string
	Snapshot   any
}

// AuditRecorder appends entries to the audit trail inside the current transaction.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Metrics receives operational signals from the services.
type Metrics interface {
	InvoiceIssued(invoiceType string)
	RegisterOperation(op, result string)
	UnitsRectified(units float64)
	CashDifference(diff float64)
}

// Clock returns the current instant. Services default to time.Now.
type Clock func() time.Time

// NoopPublisher drops events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// NoopAudit drops audit entries.
type NoopAudit struct{}

func (NoopAudit) Record(context.Context, AuditEntry) error { return nil }

// NoopMetrics drops metrics.
type NoopMetrics struct{}

func (NoopMetrics) InvoiceIssued(string)            {}
func (NoopMetrics) RegisterOperation(string, string) {}
func (NoopMetrics) UnitsRectified(float64)           {}
func (NoopMetrics) CashDifference(float64)           {}
