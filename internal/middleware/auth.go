package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scanform/scanform-api/internal/service"
	appErrors "github.com/scanform/scanform-api/pkg/errors"
	"github.com/scanform/scanform-api/pkg/response"
)

// ContextUserKey is the gin context key storing verified token claims.
const ContextUserKey = "currentUser"

// Session cookie names. The same names are used by the auth handler
// when setting cookies and by this middleware when reading them.
const (
	AuthCookieName    = "auth_token"
	RefreshCookieName = "refresh_token"
)

// ExtractToken pulls the access token from the auth cookie, falling
// back to the Authorization: Bearer header for API clients.
func ExtractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AuthCookieName); err == nil && cookie != "" {
		return cookie
	}

	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// Auth protects routes by requiring a valid, unrevoked access token.
func Auth(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ExtractToken(c)
		if tokenString == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := sessions.VerifyAccess(c.Request.Context(), tokenString)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalAuth attaches claims when present but does not block.
func OptionalAuth(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ExtractToken(c)
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := sessions.VerifyAccess(c.Request.Context(), tokenString)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}
