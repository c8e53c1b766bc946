package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders = "Content-Type, X-Requested-With, X-Request-ID"
	allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	maxAge       = "600"
)

// New returns a CORS middleware for the session-cookie API.
//
// With no configured origins every origin may read public responses but the
// session cookie is never shared. Listed origins are echoed back and allowed
// to send credentials.
func New(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[normalizeOrigin(origin)] = struct{}{}
	}
	allowAll := len(originSet) == 0

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		header := c.Writer.Header()
		header.Add("Vary", "Origin")

		allowed := true
		switch {
		case allowAll:
			header.Set("Access-Control-Allow-Origin", "*")
		case origin == "":
		default:
			if _, ok := originSet[normalizeOrigin(origin)]; ok {
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Credentials", "true")
			} else {
				allowed = false
			}
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		header.Set("Access-Control-Allow-Headers", allowHeaders)
		header.Set("Access-Control-Allow-Methods", allowMethods)
		header.Set("Access-Control-Max-Age", maxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
