package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tayaan/arena/internal/api/middleware"
	"github.com/tayaan/arena/internal/service"
)

// UserHandler handles authentication and profile endpoints.
type UserHandler struct {
	authSvc *service.AuthService
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(authSvc *service.AuthService) *UserHandler {
	return &UserHandler{authSvc: authSvc}
}

// Register godoc
// POST /api/auth/register
// Body: {"username":"juan","password":"secret123","referrer":"agent01"}
func (h *UserHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		respondDomainError(c, err, "registration failed")
		return
	}
	respondSuccess(c, http.StatusCreated, resp)
}

// Login godoc
// POST /api/auth/login
func (h *UserHandler) Login(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		respondDomainError(c, err, "login failed")
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// Refresh godoc
// POST /api/auth/refresh
func (h *UserHandler) Refresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	access, refresh, err := h.authSvc.RefreshToken(c.Request.Context(), body.RefreshToken)
	if err != nil {
		respondDomainError(c, err, "could not refresh token")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Me godoc
// GET /api/me [JWT]
func (h *UserHandler) Me(c *gin.Context) {
	p, err := h.authSvc.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch profile")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}
