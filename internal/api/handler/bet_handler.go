package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/api/middleware"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
)

// BetHandler serves sabong bet placement and history endpoints.
type BetHandler struct {
	betSvc *service.BetService
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(betSvc *service.BetService) *BetHandler {
	return &BetHandler{betSvc: betSvc}
}

// PlaceBet godoc
// POST /api/bets [JWT]
// Body: {"match_id":"uuid","selection":"meron","amount":"500.00"}
func (h *BetHandler) PlaceBet(c *gin.Context) {
	var body struct {
		MatchID   string `json:"match_id"  binding:"required"`
		Selection string `json:"selection" binding:"required"`
		Amount    string `json:"amount"    binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	matchID, err := uuid.Parse(body.MatchID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MATCH_ID", "invalid match_id format")
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	bet, err := h.betSvc.PlaceBet(c.Request.Context(), domain.PlaceBetRequest{
		UserID:    middleware.GetUserID(c),
		MatchID:   matchID,
		Selection: domain.Selection(body.Selection),
		Amount:    amount,
		Source:    domain.SourceUser,
	})
	if err != nil {
		respondDomainError(c, err, "could not place bet")
		return
	}
	respondSuccess(c, http.StatusCreated, bet.ToResponse())
}

// GetMyBets godoc
// GET /api/bets/my?page=1&limit=20 [JWT]
func (h *BetHandler) GetMyBets(c *gin.Context) {
	page, limit := parsePagination(c)
	bets, err := h.betSvc.GetMyBets(c.Request.Context(), middleware.GetUserID(c), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch bets")
		return
	}
	out := make([]domain.BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, b.ToResponse())
	}
	respondList(c, out, len(out), page, limit)
}

// GetBetByID godoc
// GET /api/bets/:id [JWT]
func (h *BetHandler) GetBetByID(c *gin.Context) {
	betID, ok := paramID(c)
	if !ok {
		return
	}
	bet, err := h.betSvc.GetBetByID(c.Request.Context(), betID, middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch bet")
		return
	}
	respondSuccess(c, http.StatusOK, bet.ToResponse())
}
