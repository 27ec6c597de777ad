package auth

import (
	"strings"

	"github.com/example/storefront/pkg/apperr"
	"github.com/gin-gonic/gin"
)

const identityKey = "auth.identity"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// ErrorHandler writes an error response and aborts the request.
type ErrorHandler func(c *gin.Context, err error)

// Authenticate requires a valid "Authorization: Bearer <token>" header.
func Authenticate(m *Manager, onError ErrorHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			onError(c, apperr.Unauthorized("missing bearer token"))
			return
		}

		claims, err := m.Parse(strings.TrimSpace(token))
		if err != nil {
			onError(c, err)
			return
		}

		c.Set(identityKey, Identity{UserID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

// RequireRole lets the request through only for the given roles. It must
// run after Authenticate.
func RequireRole(onError ErrorHandler, roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromContext(c)
		if !ok {
			onError(c, apperr.Unauthorized("authentication required"))
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		onError(c, apperr.Forbidden("insufficient permissions"))
	}
}

func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
