package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/validation"
	"github.com/noah-isme/student-tracker-api/pkg/database"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error)
	FindByID(ctx context.Context, id int64) (*models.Subject, error)
	ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error)
	CountCurriculumAssignments(ctx context.Context, subjectID int64) (int, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id int64) (bool, error)
}

// SubjectRequest is the payload for creating or updating a subject.
type SubjectRequest struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

// SubjectService handles subject business logic.
type SubjectService struct {
	repo      subjectRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSubjectService creates a SubjectService.
func NewSubjectService(repo subjectRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{
		repo:      repo,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns subjects ordered by code.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error) {
	subjects, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list subjects")
	}
	if subjects == nil {
		subjects = []models.Subject{}
	}
	return subjects, nil
}

// Get returns subject detail.
func (s *SubjectService) Get(ctx context.Context, id int64) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Internal(err, "failed to load subject")
	}
	return subject, nil
}

// Create inserts a new subject.
func (s *SubjectService) Create(ctx context.Context, actor models.Principal, req SubjectRequest) (*models.Subject, error) {
	req = normalizeSubjectRequest(req)
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueCode(ctx, req.Code, 0); err != nil {
		return nil, err
	}

	subject := &models.Subject{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Active:      true,
		CreatedAt:   s.now(),
	}
	if req.Active != nil {
		subject.Active = *req.Active
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, mapSubjectWriteError(err, "failed to create subject")
	}

	s.record(ctx, actor, models.AuditActionCreate, subject.ID, fmt.Sprintf("Created subject %s (%s)", subject.Name, subject.Code))
	return subject, nil
}

// Update modifies an existing subject.
func (s *SubjectService) Update(ctx context.Context, actor models.Principal, id int64, req SubjectRequest) (*models.Subject, error) {
	req = normalizeSubjectRequest(req)
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueCode(ctx, req.Code, id); err != nil {
		return nil, err
	}

	subject.Code = req.Code
	subject.Name = req.Name
	subject.Description = req.Description
	if req.Active != nil {
		subject.Active = *req.Active
	}
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, mapSubjectWriteError(err, "failed to update subject")
	}

	s.record(ctx, actor, models.AuditActionUpdate, subject.ID, fmt.Sprintf("Updated subject %s (%s)", subject.Name, subject.Code))
	return subject, nil
}

// Delete removes a subject unless a curriculum still uses it.
func (s *SubjectService) Delete(ctx context.Context, actor models.Principal, id int64) (bool, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to load subject")
	}

	count, err := s.repo.CountCurriculumAssignments(ctx, id)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check subject usage")
	}
	if count > 0 {
		return false, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("subject is used in %d curriculum(s) and cannot be deleted", count))
	}

	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return false, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "subject is still referenced by a curriculum")
		}
		return false, appErrors.Internal(err, "failed to delete subject")
	}
	if found {
		s.record(ctx, actor, models.AuditActionDelete, id, fmt.Sprintf("Deleted subject %s (%s)", subject.Name, subject.Code))
	}
	return found, nil
}

func (s *SubjectService) validateRequest(req SubjectRequest) error {
	c := validation.NewCollector(s.validator)
	if c.Var("code", req.Code, "required", "subject code is required") {
		c.Var("code", req.Code, "max=20", "subject code cannot exceed 20 characters")
	}
	if c.Var("name", req.Name, "required", "subject name is required") {
		c.Var("name", req.Name, "max=100", "subject name cannot exceed 100 characters")
	}
	if req.Description != nil {
		c.Var("description", *req.Description, "max=500", "description cannot exceed 500 characters")
	}
	return c.Err("invalid subject payload")
}

func (s *SubjectService) ensureUniqueCode(ctx context.Context, code string, excludeID int64) error {
	exists, err := s.repo.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check subject code")
	}
	if exists {
		return subjectCodeConflict()
	}
	return nil
}

func (s *SubjectService) record(ctx context.Context, actor models.Principal, action string, id int64, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     action,
		EntityType: models.EntitySubject,
		EntityID:   id,
		Actor:      actor.Username,
		Details:    details,
	})
}

func mapSubjectWriteError(err error, message string) error {
	if database.IsUniqueViolation(err) {
		return subjectCodeConflict()
	}
	return appErrors.Internal(err, message)
}

func subjectCodeConflict() *appErrors.Error {
	err := appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
	err.Details = []appErrors.FieldError{{Field: "code", Message: "subject code already exists"}}
	return err
}

func normalizeSubjectRequest(req SubjectRequest) SubjectRequest {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	req.Description = normalizeOptional(req.Description)
	return req
}
