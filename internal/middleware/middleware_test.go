package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/service"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

type stubAuthenticator struct {
	sessions map[string]*service.AuthenticatedSession
}

func (s *stubAuthenticator) Authenticate(ctx context.Context, token string) (*service.AuthenticatedSession, error) {
	session, ok := s.sessions[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session")
	}
	return session, nil
}

var testCookie = CookieConfig{Name: "spt_session"}

func newProtectedRouter(auth SessionAuthenticator, roles ...models.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Session(auth, testCookie))
	r.GET("/whoami", RequireRoles(roles...), func(c *gin.Context) {
		principal, _ := PrincipalFrom(c)
		sessionID, _ := c.Get(ContextSessionKey)
		c.JSON(http.StatusOK, gin.H{"username": principal.Username, "session": sessionID})
	})
	return r
}

func performWithCookie(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: testCookie.Name, Value: token})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionRequiresCookie(t *testing.T) {
	r := newProtectedRouter(&stubAuthenticator{}, models.RoleAdmin)

	w := performWithCookie(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "login required")
}

func TestSessionRejectsUnknownTokenAndClearsCookie(t *testing.T) {
	r := newProtectedRouter(&stubAuthenticator{}, models.RoleAdmin)

	w := performWithCookie(r, "stale")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "spt_session=;")
}

func TestSessionAttachesPrincipal(t *testing.T) {
	auth := &stubAuthenticator{sessions: map[string]*service.AuthenticatedSession{
		"admin-token": {SessionID: "s-1", Principal: models.Principal{SubjectID: 1, Username: "admin", Role: models.RoleAdmin}},
	}}
	r := newProtectedRouter(auth, models.RoleAdmin)

	w := performWithCookie(r, "admin-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"admin","session":"s-1"}`, w.Body.String())
	assert.Empty(t, w.Header().Get("Set-Cookie"), "cookie is only re-issued when refreshed")
}

func TestSessionReissuesRefreshedCookie(t *testing.T) {
	auth := &stubAuthenticator{sessions: map[string]*service.AuthenticatedSession{
		"old": {
			SessionID:  "s-2",
			Principal:  models.Principal{SubjectID: 5, Username: "msantos", Role: models.RoleTeacher},
			Persistent: true,
			Token:      "new",
			ExpiresAt:  time.Now().Add(30 * 24 * time.Hour),
		},
	}}
	r := newProtectedRouter(auth, models.RoleTeacher)

	w := performWithCookie(r, "old")
	require.Equal(t, http.StatusOK, w.Code)
	cookie := w.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(cookie, "spt_session=new"))
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "Max-Age=")
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	auth := &stubAuthenticator{sessions: map[string]*service.AuthenticatedSession{
		"teacher-token": {SessionID: "s-3", Principal: models.Principal{SubjectID: 5, Username: "msantos", Role: models.RoleTeacher}},
	}}
	r := newProtectedRouter(auth, models.RoleAdmin)

	w := performWithCookie(r, "teacher-token")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/open", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsLabelsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/ping", "/nowhere"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `path="unmatched"`)
	assert.Contains(t, w.Body.String(), `path="/ping"`)
}
