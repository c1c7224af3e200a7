package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

const (
	ctxUserIDKey = "userID"
	ctxRoleKey   = "role"
)

// extractAccessToken pulls the bearer credential from the Authorization
// header, falling back to the access-token cookie.
func extractAccessToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	if cookie, err := c.Cookie(AccessTokenCookieName); err == nil {
		return cookie
	}
	return ""
}

// Authenticate validates the access token on the request and attaches
// {userID, role} to the gin context. Missing, malformed, badly signed, and
// expired tokens all collapse to the same unauthenticated response.
func (s *HTTPServer) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractAccessToken(c)
		if token == "" {
			fail(c, common.ErrUnauthenticated)
			return
		}

		userID, role, err := auth.ParseToken(token, s.jwtSecret)
		if err != nil {
			fail(c, common.ErrUnauthenticated)
			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Set(ctxRoleKey, string(role))
		c.Next()
	}
}

// RequireRole permits the request only when the authenticated role is in the
// allowed set. It fails closed: no role, unknown role, and empty set all
// deny. It never touches storage and must run after Authenticate.
func (s *HTTPServer) RequireRole(allowed ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(c.GetString(ctxRoleKey))
		if !role.In(allowed...) {
			fail(c, common.ErrForbidden)
			return
		}
		c.Next()
	}
}
