package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tayaan/arena/internal/service"
)

// RiskHandler serves /admin/risk endpoints: open exposure and house
// liquidity injections.
type RiskHandler struct {
	betSvc    *service.BetService
	injectSvc *service.InjectionService
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(betSvc *service.BetService, injectSvc *service.InjectionService) *RiskHandler {
	return &RiskHandler{betSvc: betSvc, injectSvc: injectSvc}
}

// Exposure godoc
// GET /admin/risk/exposure
// Pending stake per match, selection and source.
func (h *RiskHandler) Exposure(c *gin.Context) {
	rows, err := h.betSvc.Exposure(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "could not compute exposure")
		return
	}
	respondSuccess(c, http.StatusOK, rows)
}

// InjectionStats godoc
// GET /admin/risk/injections/stats
func (h *RiskHandler) InjectionStats(c *gin.Context) {
	st, err := h.injectSvc.Stats(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "could not fetch injection stats")
		return
	}
	respondSuccess(c, http.StatusOK, st)
}

// Injections godoc
// GET /admin/risk/injections?event_id=uuid&page=1&limit=50
func (h *RiskHandler) Injections(c *gin.Context) {
	eventID := uuid.Nil
	if raw := c.Query("event_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid event_id")
			return
		}
		eventID = id
	}
	page, limit := adminPagination(c)
	logs, err := h.injectSvc.List(c.Request.Context(), eventID, limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch injections")
		return
	}
	respondList(c, logs, len(logs), page, limit)
}
