package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tayaan/arena/internal/service"
)

// SettingsHandler serves /admin/settings endpoints.
type SettingsHandler struct {
	settingsSvc *service.SettingsService
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(settingsSvc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsSvc: settingsSvc}
}

// List godoc
// GET /admin/settings
func (h *SettingsHandler) List(c *gin.Context) {
	out, err := h.settingsSvc.List(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "could not fetch settings")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"settings":     out,
		"payout_basis": h.settingsSvc.PayoutBasis(),
	})
}

// Set godoc
// PUT /admin/settings/:key
// Body: {"value":"0.05"}
// A new plasada rate only applies to events frozen after the change.
func (h *SettingsHandler) Set(c *gin.Context) {
	var body struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	key := c.Param("key")
	if err := h.settingsSvc.Set(c.Request.Context(), key, body.Value, actor(c).ID); err != nil {
		respondDomainError(c, err, "could not store setting")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"key": key, "value": body.Value})
}
