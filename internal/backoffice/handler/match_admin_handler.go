package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
)

// MatchAdminHandler serves /admin/matches endpoints: the fight lifecycle,
// settlement, cancellation and house-side staking.
type MatchAdminHandler struct {
	matchSvc  *service.MatchService
	settleSvc *service.SettlementService
	injectSvc *service.InjectionService
	betSvc    *service.BetService
}

// NewMatchAdminHandler creates a MatchAdminHandler.
func NewMatchAdminHandler(
	matchSvc *service.MatchService,
	settleSvc *service.SettlementService,
	injectSvc *service.InjectionService,
	betSvc *service.BetService,
) *MatchAdminHandler {
	return &MatchAdminHandler{matchSvc: matchSvc, settleSvc: settleSvc, injectSvc: injectSvc, betSvc: betSvc}
}

// List godoc
// GET /admin/matches?status=open,last_call&page=1&limit=50
func (h *MatchAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	matches, err := h.matchSvc.ListMatches(c.Request.Context(), c.Query("status"), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch matches")
		return
	}
	respondList(c, matches, len(matches), page, limit)
}

// Detail godoc
// GET /admin/matches/:id
func (h *MatchAdminHandler) Detail(c *gin.Context) {
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

// Create godoc
// POST /admin/matches
// Body: {"meron":"Red Lightning","wala":"Black Pearl"}
func (h *MatchAdminHandler) Create(c *gin.Context) {
	var body struct {
		Meron string `json:"meron" binding:"required,max=100"`
		Wala  string `json:"wala"  binding:"required,max=100"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	m, err := h.matchSvc.CreateMatch(c.Request.Context(), body.Meron, body.Wala, actor(c).ID)
	if err != nil {
		respondDomainError(c, err, "could not create match")
		return
	}
	respondSuccess(c, http.StatusCreated, m)
}

// LastCall godoc
// POST /admin/matches/:id/last-call
func (h *MatchAdminHandler) LastCall(c *gin.Context) {
	h.transition(c, h.matchSvc.LastCall)
}

// Close godoc
// POST /admin/matches/:id/close
// Freezes the pool and derives the settlement odds.
func (h *MatchAdminHandler) Close(c *gin.Context) {
	h.transition(c, h.matchSvc.Close)
}

// Start godoc
// POST /admin/matches/:id/start
func (h *MatchAdminHandler) Start(c *gin.Context) {
	h.transition(c, h.matchSvc.Start)
}

// SetStatus godoc
// POST /admin/matches/:id/status
// Body: {"status":"closed"}
func (h *MatchAdminHandler) SetStatus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required,oneof=last_call closed ongoing"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	m, err := h.matchSvc.SetStatus(c.Request.Context(), id, domain.EventStatus(body.Status))
	if err != nil {
		respondDomainError(c, err, "status change failed")
		return
	}
	respondSuccess(c, http.StatusOK, m)
}

func (h *MatchAdminHandler) transition(c *gin.Context, fn func(context.Context, uuid.UUID) (*domain.Match, error)) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	m, err := fn(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "status change failed")
		return
	}
	respondSuccess(c, http.StatusOK, m)
}

// Winner godoc
// POST /admin/matches/:id/winner
// Body: {"winner":"meron"}
// Repeating the call for a settled match returns already_settled=true.
func (h *MatchAdminHandler) Winner(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Winner string `json:"winner" binding:"required,oneof=meron wala draw"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	res, err := h.settleSvc.AnnounceWinner(c.Request.Context(), id, domain.Selection(body.Winner))
	if err != nil {
		respondDomainError(c, err, "settlement failed")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Cancel godoc
// POST /admin/matches/:id/cancel
// Refunds every pending bet its stake.
func (h *MatchAdminHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	res, err := h.settleSvc.CancelMatch(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "cancellation failed")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Inject godoc
// POST /admin/matches/:id/inject
// Body: {"selection":"wala","amount":"5000","reason":"balance the board"}
func (h *MatchAdminHandler) Inject(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Selection string `json:"selection" binding:"required,oneof=meron wala draw"`
		Amount    string `json:"amount"    binding:"required"`
		Reason    string `json:"reason"    binding:"max=255"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	bet, err := h.injectSvc.Inject(c.Request.Context(), service.InjectRequest{
		MatchID:    id,
		Selection:  domain.Selection(body.Selection),
		Amount:     amount,
		InjectedBy: actor(c).ID,
		Reason:     body.Reason,
	})
	if err != nil {
		respondDomainError(c, err, "injection failed")
		return
	}
	respondSuccess(c, http.StatusCreated, bet.ToResponse())
}

// BotBet godoc
// POST /admin/matches/:id/bot-bet
// Body: {"user_id":"uuid","selection":"meron","amount":"200"}
func (h *MatchAdminHandler) BotBet(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		UserID    uuid.UUID `json:"user_id"   binding:"required"`
		Selection string    `json:"selection" binding:"required,oneof=meron wala draw"`
		Amount    string    `json:"amount"    binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	bet, err := h.betSvc.PlaceBotBet(c.Request.Context(), domain.PlaceBetRequest{
		UserID:    body.UserID,
		MatchID:   id,
		Selection: domain.Selection(body.Selection),
		Amount:    amount,
	})
	if err != nil {
		respondDomainError(c, err, "bot bet failed")
		return
	}
	respondSuccess(c, http.StatusCreated, bet.ToResponse())
}
