package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tayaan/arena/internal/api/middleware"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard admin response helpers (mirrors internal/api/handler/response.go)
// ──────────────────────────────────────────────────────────────────────────────

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// respondDomainError maps service errors onto status codes. Operators see the
// wrapped message for client errors; internal errors stay generic.
func respondDomainError(c *gin.Context, err error, fallback string) {
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		respondError(c, http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE", err.Error())
	case domain.IsAuthError(err):
		respondError(c, http.StatusForbidden, "ERR_FORBIDDEN", err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "ERR_INVALID_STATE", err.Error())
	case errors.Is(err, domain.ErrLedgerInconsistency):
		respondError(c, http.StatusInternalServerError, "ERR_LEDGER_INCONSISTENCY", "ledger inconsistency; event left unsettled")
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallback)
	}
}

// adminPagination reads page/limit query params with sane defaults for admin views.
func adminPagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return
}

func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func actor(c *gin.Context) service.Actor {
	return middleware.GetActor(c)
}
