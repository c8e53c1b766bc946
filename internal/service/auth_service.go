package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/repository"
	"github.com/noah-isme/student-tracker-api/internal/validation"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

const invalidCredentialsMessage = "invalid username or password"

type adminAccountRepository interface {
	FindActiveByUsername(ctx context.Context, username string) (*models.Admin, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, admin *models.Admin) error
	UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error
}

type teacherAccountRepository interface {
	FindActiveByUsername(ctx context.Context, username string) (*models.Teacher, error)
	UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error
}

type sessionStore interface {
	Save(ctx context.Context, session *models.Session, ttl time.Duration) error
	Find(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// AuthConfig defines configuration for session issuance.
type AuthConfig struct {
	Secret               string
	Issuer               string
	Expiration           time.Duration
	PersistentExpiration time.Duration
}

// AuthServiceParams groups constructor dependencies.
type AuthServiceParams struct {
	Admins    adminAccountRepository
	Teachers  teacherAccountRepository
	Sessions  sessionStore
	Hasher    passwordHasher
	Audit     auditRecorder
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    AuthConfig
}

// AuthenticatedSession is the outcome of validating a session cookie.
// Token is set only when the cookie must be re-issued.
type AuthenticatedSession struct {
	SessionID  string
	Principal  models.Principal
	Persistent bool
	Token      string
	ExpiresAt  time.Time
}

// AuthService provides the admin and teacher login schemes and session checks.
type AuthService struct {
	admins    adminAccountRepository
	teachers  teacherAccountRepository
	sessions  sessionStore
	hasher    passwordHasher
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(params AuthServiceParams) *AuthService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.Expiration <= 0 {
		cfg.Expiration = 2 * time.Hour
	}
	if cfg.PersistentExpiration <= 0 {
		cfg.PersistentExpiration = 30 * 24 * time.Hour
	}
	return &AuthService{
		admins:    params.Admins,
		teachers:  params.Teachers,
		sessions:  params.Sessions,
		hasher:    params.Hasher,
		audit:     params.Audit,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AdminLogin authenticates an administrator and opens a session.
func (s *AuthService) AdminLogin(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validateLogin(req); err != nil {
		return nil, err
	}

	admin, err := s.admins.FindActiveByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to fetch admin")
	}
	if admin == nil {
		s.burnPasswordCheck(req.Password)
		return nil, s.loginFailed(models.RoleAdmin, req.Username)
	}
	if !s.hasher.Verify(req.Password, admin.PasswordHash) {
		return nil, s.loginFailed(models.RoleAdmin, req.Username)
	}

	principal := models.Principal{
		SubjectID:   admin.ID,
		Username:    admin.Username,
		DisplayName: admin.FullName,
		Role:        models.RoleAdmin,
	}
	result, err := s.openSession(ctx, principal, req.RememberMe)
	if err != nil {
		return nil, err
	}

	if err := s.admins.UpdateLastLogin(ctx, admin.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", zap.Int64("admin_id", admin.ID), zap.Error(err))
	}
	s.metrics.RecordLogin(models.RoleAdmin, true)
	s.recordAuth(ctx, models.AuditActionLogin, principal, "Admin logged in")
	return result, nil
}

// TeacherLogin authenticates a teacher and opens a session.
func (s *AuthService) TeacherLogin(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validateLogin(req); err != nil {
		return nil, err
	}

	teacher, err := s.teachers.FindActiveByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to fetch teacher")
	}
	if teacher == nil {
		s.burnPasswordCheck(req.Password)
		return nil, s.loginFailed(models.RoleTeacher, req.Username)
	}
	if !s.hasher.Verify(req.Password, teacher.PasswordHash) {
		return nil, s.loginFailed(models.RoleTeacher, req.Username)
	}

	principal := models.Principal{
		SubjectID:   teacher.ID,
		Username:    teacher.Username,
		DisplayName: teacher.FullName(),
		Role:        models.RoleTeacher,
	}
	result, err := s.openSession(ctx, principal, req.RememberMe)
	if err != nil {
		return nil, err
	}

	if err := s.teachers.UpdateLastLogin(ctx, teacher.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", zap.Int64("teacher_id", teacher.ID), zap.Error(err))
	}
	s.metrics.RecordLogin(models.RoleTeacher, true)
	s.recordAuth(ctx, models.AuditActionLogin, principal, "Teacher logged in")
	return result, nil
}

// Authenticate validates a session cookie token, slides the session window
// and re-issues the token once more than half of the window has elapsed.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*AuthenticatedSession, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Find(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}
	if session.Principal.Role != claims.Role || session.Principal.Username != claims.Username {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session does not match token")
	}

	now := s.now()
	window := s.window(session.Persistent)
	session.ExpiresAt = now.Add(window)
	if err := s.sessions.Touch(ctx, session, window); err != nil {
		s.logger.Warn("failed to extend session", zap.String("session_id", session.ID), zap.Error(err))
	}

	out := &AuthenticatedSession{
		SessionID:  session.ID,
		Principal:  session.Principal,
		Persistent: session.Persistent,
	}
	if claims.IssuedAt != nil && now.Sub(claims.IssuedAt.Time) > window/2 {
		signed, expiresAt, err := s.signToken(session, now)
		if err != nil {
			s.logger.Warn("failed to re-issue session token", zap.String("session_id", session.ID), zap.Error(err))
		} else {
			out.Token = signed
			out.ExpiresAt = expiresAt
		}
	}
	return out, nil
}

// Logout closes the session. Unknown sessions are ignored.
func (s *AuthService) Logout(ctx context.Context, sessionID string, principal models.Principal) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return appErrors.Internal(err, "failed to end session")
	}
	s.recordAuth(ctx, models.AuditActionLogout, principal, fmt.Sprintf("%s logged out", principal.Role))
	return nil
}

// SessionTTL returns the cookie lifetime for a session kind.
func (s *AuthService) SessionTTL(persistent bool) time.Duration {
	return s.window(persistent)
}

// EnsureBootstrapAdmin creates the configured administrator when no admin
// with that username exists yet. Empty credentials disable bootstrapping.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, username, password, email, fullName string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, nil
	}
	exists, err := s.admins.ExistsByUsername(ctx, username)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check bootstrap admin")
	}
	if exists {
		return false, nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, appErrors.Internal(err, "failed to hash bootstrap admin password")
	}
	if strings.TrimSpace(fullName) == "" {
		fullName = "System Administrator"
	}
	admin := &models.Admin{
		Username:     username,
		PasswordHash: hash,
		Email:        strings.TrimSpace(email),
		FullName:     strings.TrimSpace(fullName),
		Active:       true,
		CreatedAt:    s.now(),
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return false, appErrors.Internal(err, "failed to create bootstrap admin")
	}

	s.logger.Info("bootstrap admin created", zap.String("username", username))
	if s.audit != nil {
		s.audit.Record(ctx, AuditEntry{
			Action:     models.AuditActionCreate,
			EntityType: models.EntityAdmin,
			EntityID:   admin.ID,
			Actor:      "system",
			Details:    fmt.Sprintf("Bootstrapped admin %s", username),
		})
	}
	return true, nil
}

func (s *AuthService) validateLogin(req models.LoginRequest) error {
	c := validation.NewCollector(s.validator)
	c.Var("username", req.Username, "required", "username is required")
	c.Var("password", req.Password, "required", "password is required")
	return c.Err("invalid login payload")
}

func (s *AuthService) loginFailed(role models.Role, username string) error {
	s.metrics.RecordLogin(role, false)
	s.logger.Info("login rejected", zap.String("role", string(role)), zap.String("username", username))
	return appErrors.Clone(appErrors.ErrInvalidCredentials, invalidCredentialsMessage)
}

// burnPasswordCheck spends the same bcrypt work as a real comparison so
// unknown usernames take as long as wrong passwords.
func (s *AuthService) burnPasswordCheck(plaintext string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn("failed to prepare dummy password hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		s.hasher.Verify(plaintext, s.dummyHash)
	}
}

func (s *AuthService) openSession(ctx context.Context, principal models.Principal, persistent bool) (*models.LoginResult, error) {
	now := s.now()
	window := s.window(persistent)
	session := &models.Session{
		ID:         uuid.NewString(),
		Principal:  principal,
		Persistent: persistent,
		IssuedAt:   now,
		ExpiresAt:  now.Add(window),
	}
	if err := s.sessions.Save(ctx, session, window); err != nil {
		return nil, appErrors.Internal(err, "failed to create session")
	}

	token, expiresAt, err := s.signToken(session, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign session token")
	}
	return &models.LoginResult{Principal: principal, ExpiresAt: expiresAt, Token: token}, nil
}

func (s *AuthService) signToken(session *models.Session, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(s.window(session.Persistent))
	claims := &models.SessionClaims{
		SessionID:  session.ID,
		Username:   session.Principal.Username,
		Name:       session.Principal.DisplayName,
		Role:       session.Principal.Role,
		Persistent: session.Persistent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   fmt.Sprintf("%d", session.Principal.SubjectID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *AuthService) parseToken(tokenString string) (*models.SessionClaims, error) {
	if tokenString == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing session")
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.config.Issuer))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid session")
	}

	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session claims")
	}
	return claims, nil
}

func (s *AuthService) window(persistent bool) time.Duration {
	if persistent {
		return s.config.PersistentExpiration
	}
	return s.config.Expiration
}

func (s *AuthService) recordAuth(ctx context.Context, action string, principal models.Principal, details string) {
	if s.audit == nil {
		return
	}
	entityType := models.EntityAdmin
	if principal.IsTeacher() {
		entityType = models.EntityTeacher
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   principal.SubjectID,
		Actor:      principal.Username,
		Details:    details,
	})
}
