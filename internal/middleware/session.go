package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/service"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
	"github.com/noah-isme/student-tracker-api/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing the request principal.
	ContextUserKey = "currentUser"
	// ContextSessionKey is the gin context key storing the session id.
	ContextSessionKey = "sessionID"
)

// SessionAuthenticator validates session cookie tokens.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*service.AuthenticatedSession, error)
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

// SetSessionCookie writes the session cookie. Persistent sessions survive a
// browser restart; others live for the browser session only.
func SetSessionCookie(c *gin.Context, cfg CookieConfig, token string, expiresAt time.Time, persistent bool) {
	maxAge := 0
	if persistent {
		maxAge = int(time.Until(expiresAt).Seconds())
		if maxAge <= 0 {
			maxAge = -1
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Name, token, maxAge, "/", cfg.Domain, cfg.Secure, true)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c *gin.Context, cfg CookieConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Name, "", -1, "/", cfg.Domain, cfg.Secure, true)
}

// Session requires a valid session cookie and attaches the principal to the context.
func Session(auth SessionAuthenticator, cfg CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cfg.Name)
		if err != nil || token == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "login required"))
			c.Abort()
			return
		}

		session, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if appErrors.IsCode(err, appErrors.ErrUnauthorized.Code) {
				ClearSessionCookie(c, cfg)
			}
			response.Error(c, err)
			c.Abort()
			return
		}
		if session.Token != "" {
			SetSessionCookie(c, cfg, session.Token, session.ExpiresAt, session.Persistent)
		}

		c.Set(ContextUserKey, session.Principal)
		c.Set(ContextSessionKey, session.SessionID)
		c.Next()
	}
}

// PrincipalFrom returns the principal attached by Session.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := value.(models.Principal)
	return principal, ok
}
