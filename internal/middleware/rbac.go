package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/scanform/scanform-api/internal/models"
	appErrors "github.com/scanform/scanform-api/pkg/errors"
	"github.com/scanform/scanform-api/pkg/response"
)

// RequireRoles enforces role-based access control for routes. The
// request must already have passed Auth.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.TokenClaims)

		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient role"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentClaims returns the verified claims stored on the context.
func CurrentClaims(c *gin.Context) (*models.TokenClaims, bool) {
	claimsValue, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := claimsValue.(*models.TokenClaims)
	return claims, ok
}
