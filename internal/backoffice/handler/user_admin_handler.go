package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
)

// UserAdminHandler serves /admin/users endpoints.
type UserAdminHandler struct {
	usersSvc *service.UserAdminService
}

// NewUserAdminHandler creates a UserAdminHandler.
func NewUserAdminHandler(usersSvc *service.UserAdminService) *UserAdminHandler {
	return &UserAdminHandler{usersSvc: usersSvc}
}

// List godoc
// GET /admin/users?page=1&limit=50
// Admins see every account; agents see their downline.
func (h *UserAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	res, err := h.usersSvc.ListUsers(c.Request.Context(), actor(c), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch users")
		return
	}
	respondList(c, res.Users, res.Total, page, limit)
}

// Bots godoc
// GET /admin/bots
func (h *UserAdminHandler) Bots(c *gin.Context) {
	bots, err := h.usersSvc.ListBots(c.Request.Context(), actor(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch bots")
		return
	}
	respondSuccess(c, http.StatusOK, bots)
}

// Detail godoc
// GET /admin/users/:id
func (h *UserAdminHandler) Detail(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	p, err := h.usersSvc.GetUser(c.Request.Context(), actor(c), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch user")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// Create godoc
// POST /admin/users
func (h *UserAdminHandler) Create(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	p, err := h.usersSvc.CreateUser(c.Request.Context(), actor(c), req)
	if err != nil {
		respondDomainError(c, err, "could not create user")
		return
	}
	respondSuccess(c, http.StatusCreated, p.ToPublicProfile())
}

// Update godoc
// POST /admin/users/:id/:action
// action is one of ban, unban, role, password.
func (h *UserAdminHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Role     string `json:"role"`
		Password string `json:"password"`
	}
	// ban and unban carry no body.
	_ = c.ShouldBindJSON(&body)

	req := service.UpdateUserRequest{
		UserID:   id,
		Action:   c.Param("action"),
		Role:     domain.UserRole(body.Role),
		Password: body.Password,
	}
	switch req.Action {
	case service.UserBan, service.UserUnban, service.UserRole, service.UserPassword:
	default:
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "unknown action")
		return
	}

	p, err := h.usersSvc.UpdateUser(c.Request.Context(), actor(c), req)
	if err != nil {
		respondDomainError(c, err, "could not update user")
		return
	}
	respondSuccess(c, http.StatusOK, p.ToPublicProfile())
}
