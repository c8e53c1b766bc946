package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/noah-isme/student-tracker-api/internal/handler"
	"github.com/noah-isme/student-tracker-api/internal/middleware"
	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/service"
	"github.com/noah-isme/student-tracker-api/pkg/config"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

type tokenAuthenticator map[string]models.Principal

func (a tokenAuthenticator) Authenticate(ctx context.Context, token string) (*service.AuthenticatedSession, error) {
	principal, ok := a[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session")
	}
	return &service.AuthenticatedSession{SessionID: token, Principal: principal}, nil
}

func newTestRouter() http.Handler {
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	metrics := service.NewMetricsService()
	cookie := middleware.CookieConfig{Name: "spt_session"}
	return newRouter(cfg, zap.NewNop(), routerDeps{
		auth: tokenAuthenticator{
			"admin":   {SubjectID: 1, Username: "admin", Role: models.RoleAdmin},
			"teacher": {SubjectID: 5, Username: "msantos", Role: models.RoleTeacher},
		},
		metrics:     metrics,
		cookie:      cookie,
		authHandler: handler.NewAuthHandler(nil, cookie),
		teachers:    handler.NewTeacherHandler(nil),
		subjects:    handler.NewSubjectHandler(nil),
		students:    handler.NewStudentHandler(nil),
		curricula:   handler.NewCurriculumHandler(nil, nil),
		media:       handler.NewMediaHandler(nil, nil),
		audit:       handler.NewAuditHandler(nil),
		observe:     handler.NewMetricsHandler(metrics, nil),
	})
}

func TestRouterRoleGates(t *testing.T) {
	router := newTestRouter()

	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{name: "health is public", path: "/health", status: http.StatusOK},
		{name: "admin routes need a session", path: "/api/v1/admin/teachers", status: http.StatusUnauthorized},
		{name: "teacher cannot reach admin routes", path: "/api/v1/admin/curricula", token: "teacher", status: http.StatusForbidden},
		{name: "admin cannot reach teacher portal", path: "/api/v1/teacher/curricula", token: "admin", status: http.StatusForbidden},
		{name: "unknown session", path: "/api/v1/auth/me", token: "stale", status: http.StatusUnauthorized},
		{name: "admin reads own principal", path: "/api/v1/auth/me", token: "admin", status: http.StatusOK},
		{name: "admin reads system metrics", path: "/api/v1/admin/system/metrics", token: "admin", status: http.StatusOK},
		{name: "docs hidden in production", path: "/docs/index.html", status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.token != "" {
				req.AddCookie(&http.Cookie{Name: "spt_session", Value: tc.token})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}
