package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tayaan/arena/internal/service"
)

// MatchHandler serves the public sabong match endpoints.
type MatchHandler struct {
	matchSvc *service.MatchService
	pools    *service.PoolService
}

// NewMatchHandler creates a MatchHandler.
func NewMatchHandler(matchSvc *service.MatchService, pools *service.PoolService) *MatchHandler {
	return &MatchHandler{matchSvc: matchSvc, pools: pools}
}

// ListMatches godoc
// GET /api/matches?status=open&page=1&limit=20
func (h *MatchHandler) ListMatches(c *gin.Context) {
	page, limit := parsePagination(c)
	matches, err := h.matchSvc.ListMatches(c.Request.Context(), c.Query("status"), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch matches")
		return
	}
	respondList(c, matches, len(matches), page, limit)
}

// GetMatch godoc
// GET /api/matches/:id
func (h *MatchHandler) GetMatch(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	view, err := h.matchSvc.GetMatch(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch match")
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// Pool godoc
// GET /api/matches/:id/pool
// Live buckets while betting is open, the frozen snapshot afterwards.
func (h *MatchHandler) Pool(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	snap, err := h.pools.Snapshot(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch pool")
		return
	}
	respondSuccess(c, http.StatusOK, snap)
}

// Odds godoc
// GET /api/matches/:id/odds
func (h *MatchHandler) Odds(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	view, err := h.pools.MatchView(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch odds")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"match_id": id,
		"status":   view.Match.Status,
		"odds":     view.Odds,
	})
}
