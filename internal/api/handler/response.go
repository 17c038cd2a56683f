package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tayaan/arena/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondList writes {"success": true, "data": items, "meta": {...}}.
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

// respondDomainError maps a service error onto the envelope. Unknown errors
// become a 500 with fallback as the message so internals never leak.
func respondDomainError(c *gin.Context, err error, fallback string) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = fallback
	}
	respondError(c, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrBetTooSmall):
		return http.StatusBadRequest, "ERR_BET_TOO_SMALL"
	case domain.IsValidation(err):
		return http.StatusBadRequest, "ERR_VALIDATION"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "ERR_INVALID_CREDENTIALS"
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnauthorized, "ERR_UNAUTHORIZED"
	case errors.Is(err, domain.ErrUserBanned):
		return http.StatusForbidden, "ERR_USER_BANNED"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "ERR_FORBIDDEN"
	case domain.IsNotFound(err):
		return http.StatusNotFound, "ERR_NOT_FOUND"
	case errors.Is(err, domain.ErrUsernameTaken):
		return http.StatusConflict, "ERR_USERNAME_TAKEN"
	case domain.IsConflict(err):
		return http.StatusConflict, "ERR_INVALID_STATE"
	case errors.Is(err, domain.ErrLedgerInconsistency):
		return http.StatusInternalServerError, "ERR_LEDGER_INCONSISTENCY"
	default:
		return http.StatusInternalServerError, "ERR_INTERNAL"
	}
}

// parsePagination reads ?page=&limit= with defaults 1 and 20.
func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return
}

// paramID parses the :id path parameter, answering 400 on failure.
func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
