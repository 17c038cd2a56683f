package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tayaan/arena/internal/api/middleware"
	"github.com/tayaan/arena/internal/service"
)

// WalletHandler serves balance and transaction history endpoints.
type WalletHandler struct {
	walletSvc *service.WalletService
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(walletSvc *service.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetBalance godoc
// GET /api/wallet/balance [JWT]
func (h *WalletHandler) GetBalance(c *gin.Context) {
	balance, err := h.walletSvc.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch balance")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"balance": balance})
}

// GetTransactions godoc
// GET /api/wallet/transactions?page=1&limit=20 [JWT]
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	page, limit := parsePagination(c)
	txns, err := h.walletSvc.Transactions(c.Request.Context(), middleware.GetUserID(c), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch transactions")
		return
	}
	respondList(c, txns, len(txns), page, limit)
}
