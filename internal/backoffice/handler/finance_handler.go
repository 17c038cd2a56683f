package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tayaan/arena/internal/service"
)

// FinanceHandler serves /admin/finance endpoints: the house ledger, wallet
// history and operator balance changes.
type FinanceHandler struct {
	walletSvc *service.WalletService
}

// NewFinanceHandler creates a FinanceHandler.
func NewFinanceHandler(walletSvc *service.WalletService) *FinanceHandler {
	return &FinanceHandler{walletSvc: walletSvc}
}

// Report godoc
// GET /admin/finance/report?window=24h
// Sums commission, payouts and refunds booked to the house ledger.
func (h *FinanceHandler) Report(c *gin.Context) {
	window, err := time.ParseDuration(c.DefaultQuery("window", "24h"))
	if err != nil || window <= 0 {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "window must be a positive duration like 24h")
		return
	}
	sum, err := h.walletSvc.HouseSummary(c.Request.Context(), window)
	if err != nil {
		respondDomainError(c, err, "could not build report")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"window":  window.String(),
		"summary": sum,
	})
}

// Ledger godoc
// GET /admin/finance/ledger?page=1&limit=50
func (h *FinanceHandler) Ledger(c *gin.Context) {
	page, limit := adminPagination(c)
	entries, err := h.walletSvc.HouseEntries(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch house ledger")
		return
	}
	respondList(c, entries, len(entries), page, limit)
}

// Transactions godoc
// GET /admin/finance/transactions?user_id=uuid&page=1&limit=50
func (h *FinanceHandler) Transactions(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "user_id query parameter is required")
		return
	}
	page, limit := adminPagination(c)
	txns, err := h.walletSvc.Transactions(c.Request.Context(), userID, limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch transactions")
		return
	}
	respondList(c, txns, len(txns), page, limit)
}

// Balance godoc
// POST /admin/finance/balance
// Body: {"action":"add","user_id":"uuid","amount":"1000","note":"cash in"}
func (h *FinanceHandler) Balance(c *gin.Context) {
	var req service.BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be positive")
		return
	}
	res, err := h.walletSvc.AdminBalance(c.Request.Context(), actor(c), req)
	if err != nil {
		respondDomainError(c, err, "balance change failed")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}
