package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-tracker-api/internal/middleware"
	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/pkg/response"
)

type authService interface {
	AdminLogin(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
	TeacherLogin(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
	Logout(ctx context.Context, sessionID string, principal models.Principal) error
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
	cookie  middleware.CookieConfig
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, cookie middleware.CookieConfig) *AuthHandler {
	return &AuthHandler{service: svc, cookie: cookie}
}

// AdminLogin godoc
// @Summary Administrator login
// @Description Authenticates an administrator and sets the session cookie
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/admin/login [post]
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	h.login(c, h.service.AdminLogin)
}

// TeacherLogin godoc
// @Summary Teacher login
// @Description Authenticates a teacher and sets the session cookie
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/teacher/login [post]
func (h *AuthHandler) TeacherLogin(c *gin.Context) {
	h.login(c, h.service.TeacherLogin)
}

func (h *AuthHandler) login(c *gin.Context, fn func(context.Context, models.LoginRequest) (*models.LoginResult, error)) {
	var req models.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := fn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetSessionCookie(c, h.cookie, res.Token, res.ExpiresAt, req.RememberMe)
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Tags Authentication
// @Produce json
// @Success 204
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	sessionID := c.GetString(middleware.ContextSessionKey)
	if err := h.service.Logout(c.Request.Context(), sessionID, principal); err != nil {
		response.Error(c, err)
		return
	}
	middleware.ClearSessionCookie(c, h.cookie)
	response.NoContent(c)
}

// Me godoc
// @Summary Get current principal
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, principal, nil)
}
