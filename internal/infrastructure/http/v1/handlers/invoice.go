package handlers

import (
	"github.com/gin-gonic/gin"

	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/rectification"
	"tpvcore/internal/infrastructure/http/v1/dto"
)

// InvoiceHandler handles invoice issuing, reads and rectifications.
type InvoiceHandler struct {
	*BaseHandler
	invoices      *invoice.Service
	rectification *rectification.Service
}

// NewInvoiceHandler creates a new invoice handler.
func NewInvoiceHandler(base *BaseHandler, invoices *invoice.Service, rect *rectification.Service) *InvoiceHandler {
	return &InvoiceHandler{BaseHandler: base, invoices: invoices, rectification: rect}
}

// Calculate previews totals. No tenant state is touched.
// POST /invoices/calculate
func (h *InvoiceHandler) Calculate(c *gin.Context) {
	var req dto.CalculateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	lines, discount, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	calc, err := h.invoices.Calculate(c.Request.Context(), lines, discount)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCalculation(calc))
}

// Create issues a ticket or factura.
// POST /invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var req dto.CreateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	inv, err := h.invoices.Create(c.Request.Context(), tenantID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromInvoice(inv))
}

// List returns a page of the tenant's invoices, newest first.
// GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var q dto.ListInvoicesQuery
	if !h.BindQuery(c, &q) {
		return
	}
	res, err := h.invoices.List(c.Request.Context(), q.ToFilter(tenantID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoiceList(res))
}

// Get returns one invoice.
// GET /invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	inv, err := h.invoices.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoice(inv))
}

// Rectifiable lists the quantities still open to rectification.
// GET /invoices/:id/rectifiable
func (h *InvoiceHandler) Rectifiable(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	lines, err := h.rectification.RemainingLines(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": dto.FromRemainingLines(lines)})
}

// Rectify issues a rectificativa against the invoice.
// POST /invoices/:id/rectifications
func (h *InvoiceHandler) Rectify(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var req dto.RectifyInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain(c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.rectification.Rectify(c.Request.Context(), tenantID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromRectification(res))
}
