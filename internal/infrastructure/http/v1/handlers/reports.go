package handlers

import (
	"github.com/gin-gonic/gin"

	"tpvcore/internal/domain/reports"
	"tpvcore/internal/infrastructure/http/v1/dto"
)

// ReportsHandler serves period reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{BaseHandler: base, service: service}
}

// GetReport aggregates closed shifts of a period.
// GET /reports/:period?date=YYYY-MM-DD | year=&month= | year=&quarter= | year=
func (h *ReportsHandler) GetReport(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	var q dto.ReportQuery
	if !h.BindQuery(c, &q) {
		return
	}
	report, err := h.service.GetReport(c.Request.Context(), tenantID, reports.PeriodType(c.Param("period")), q.ToParams())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReport(report))
}
