package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tayaan/arena/internal/api/middleware"
	"github.com/tayaan/arena/internal/service"
)

// AdminHandler serves the agent/admin account endpoints mounted on the public
// API. Every route sits behind BackofficeMiddleware; finer checks against the
// caller's downline happen in the services.
type AdminHandler struct {
	walletSvc *service.WalletService
	usersSvc  *service.UserAdminService
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(walletSvc *service.WalletService, usersSvc *service.UserAdminService) *AdminHandler {
	return &AdminHandler{walletSvc: walletSvc, usersSvc: usersSvc}
}

// Balance godoc
// POST /api/admin/balance [JWT, agent+]
// Body: {"action":"transfer","user_id":"uuid","receiver_id":"uuid","amount":"250.00","note":"load"}
func (h *AdminHandler) Balance(c *gin.Context) {
	var req service.BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be positive")
		return
	}

	res, err := h.walletSvc.AdminBalance(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondDomainError(c, err, "balance change failed")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// CreateUser godoc
// POST /api/admin/create-user [JWT, agent+]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	p, err := h.usersSvc.CreateUser(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondDomainError(c, err, "could not create user")
		return
	}
	respondSuccess(c, http.StatusCreated, p.ToPublicProfile())
}

// UpdateUser godoc
// POST /api/admin/update-user [JWT, agent+]
// Body: {"user_id":"uuid","action":"ban"}
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	p, err := h.usersSvc.UpdateUser(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondDomainError(c, err, "could not update user")
		return
	}
	respondSuccess(c, http.StatusOK, p.ToPublicProfile())
}

// ListUsers godoc
// GET /api/admin/users?page=1&limit=20 [JWT, agent+]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, limit := parsePagination(c)
	res, err := h.usersSvc.ListUsers(c.Request.Context(), middleware.GetActor(c), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch users")
		return
	}
	respondList(c, res.Users, res.Total, page, limit)
}
