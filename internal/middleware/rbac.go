package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-tracker-api/internal/models"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
	"github.com/noah-isme/student-tracker-api/pkg/response"
)

// RequireRoles allows the request through only for principals holding one of roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[principal.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient role"))
			c.Abort()
			return
		}
		c.Next()
	}
}
