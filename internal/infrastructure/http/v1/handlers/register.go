package handlers

import (
	"github.com/gin-gonic/gin"

	"tpvcore/internal/domain/register"
	"tpvcore/internal/infrastructure/http/v1/dto"
)

// RegisterHandler handles the cash register shift lifecycle.
type RegisterHandler struct {
	*BaseHandler
	service *register.Service
}

// NewRegisterHandler creates a new register handler.
func NewRegisterHandler(base *BaseHandler, service *register.Service) *RegisterHandler {
	return &RegisterHandler{BaseHandler: base, service: service}
}

// Open starts a shift.
// POST /register/open
func (h *RegisterHandler) Open(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var req dto.OpenRegisterRequest
	if !h.BindJSON(c, &req) {
		return
	}
	startingCash, err := req.StartingCashValue()
	if err != nil {
		h.Error(c, err)
		return
	}
	closure, err := h.service.Open(c.Request.Context(), tenantID, startingCash)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromClosure(closure))
}

// Close finalizes the open shift.
// POST /register/close
func (h *RegisterHandler) Close(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var req dto.CloseRegisterRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	closure, err := h.service.Close(c.Request.Context(), tenantID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromClosure(closure))
}

// Current returns the open shift with live totals.
// GET /register/current
func (h *RegisterHandler) Current(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	closure, err := h.service.Current(c.Request.Context(), tenantID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromClosure(closure))
}

// GetClosure returns one shift.
// GET /register/closures/:id
func (h *RegisterHandler) GetClosure(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	closure, err := h.service.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromClosure(closure))
}
