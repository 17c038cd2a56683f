package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
)

// ContextKey constants for gin.Context values set by middleware.
const (
	CtxUserID = "userID"
	CtxRole   = "role"
)

// TokenParser validates access tokens. Implemented by *service.AuthService.
type TokenParser interface {
	ParseAccessToken(token string) (*service.AppClaims, error)
}

func abort(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    code,
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// JWTMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// JWTMiddleware validates the Bearer token in the Authorization header.
// On success it stores userID (uuid.UUID) and role (domain.UserRole) in the
// gin context.
func JWTMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abort(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", domain.ErrUnauthorized)
			return
		}

		claims, err := tokens.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			abort(c, http.StatusUnauthorized, "ERR_TOKEN_INVALID", domain.ErrTokenInvalid)
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil || !claims.Role.IsValid() {
			abort(c, http.StatusUnauthorized, "ERR_TOKEN_INVALID", domain.ErrTokenInvalid)
			return
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Role gates
// ──────────────────────────────────────────────────────────────────────────────

// RequireRole lets the request through when allow accepts the caller's role.
// Must be placed after JWTMiddleware in the chain.
func RequireRole(allow func(domain.UserRole) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allow(GetRole(c)) {
			abort(c, http.StatusForbidden, "ERR_FORBIDDEN", domain.ErrForbidden)
			return
		}
		c.Next()
	}
}

// BackofficeMiddleware admits loaders, agents, master agents and admins.
func BackofficeMiddleware() gin.HandlerFunc {
	return RequireRole(domain.UserRole.CanAccessBackoffice)
}

// AdminMiddleware admits only admins.
func AdminMiddleware() gin.HandlerFunc {
	return RequireRole(domain.UserRole.IsAdmin)
}

// ──────────────────────────────────────────────────────────────────────────────
// Context helpers
// ──────────────────────────────────────────────────────────────────────────────

// GetUserID retrieves the authenticated user's UUID from the gin context.
// Returns uuid.Nil if the middleware was not applied or the value is missing.
func GetUserID(c *gin.Context) uuid.UUID {
	v, exists := c.Get(CtxUserID)
	if !exists {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// GetRole retrieves the authenticated user's role from the gin context.
func GetRole(c *gin.Context) domain.UserRole {
	v, _ := c.Get(CtxRole)
	r, _ := v.(domain.UserRole)
	return r
}

// GetActor returns the caller as a service.Actor.
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{ID: GetUserID(c), Role: GetRole(c)}
}
