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

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
	ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error)
	ListSubjectIDs(ctx context.Context, teacherID int64) ([]int64, error)
	CountCurriculumAssignments(ctx context.Context, teacherID int64) (int, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	UpdateProfilePicture(ctx context.Context, id int64, path *string) error
	Delete(ctx context.Context, id int64) (bool, error)
}

type pictureManager interface {
	Store(kind, filename string, data []byte) (string, error)
	Discard(relPath *string)
	SignedURL(relPath *string) string
}

// TeacherRequest represents the payload for creating or updating teachers.
// Password is required on create and optional on update.
type TeacherRequest struct {
	Username    string  `json:"username"`
	Password    *string `json:"password,omitempty"`
	LastName    string  `json:"last_name"`
	FirstName   string  `json:"first_name"`
	MiddleName  *string `json:"middle_name"`
	DateOfBirth string  `json:"date_of_birth"`
	Address     string  `json:"address"`
	Active      *bool   `json:"active"`
	SubjectIDs  []int64 `json:"subject_ids"`
}

// TeacherServiceParams groups constructor dependencies.
type TeacherServiceParams struct {
	Repo      teacherRepository
	Subjects  activeIDLookup
	Hasher    passwordHasher
	Pictures  pictureManager
	Audit     auditRecorder
	Validator *validator.Validate
	Logger    *zap.Logger
}

// TeacherService orchestrates teacher operations.
type TeacherService struct {
	repo      teacherRepository
	subjects  activeIDLookup
	hasher    passwordHasher
	pictures  pictureManager
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(params TeacherServiceParams) *TeacherService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{
		repo:      params.Repo,
		subjects:  params.Subjects,
		hasher:    params.Hasher,
		pictures:  params.Pictures,
		audit:     params.Audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns teachers plus pagination data.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list teachers")
	}
	for i := range teachers {
		s.decorate(&teachers[i])
	}
	page, size := pageOf(filter.Page, filter.PageSize)
	return teachers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a teacher by id with the qualified subject ids.
func (s *TeacherService) Get(ctx context.Context, id int64) (*models.Teacher, error) {
	teacher, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	subjectIDs, err := s.repo.ListSubjectIDs(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teacher subjects")
	}
	teacher.SubjectIDs = subjectIDs
	s.decorate(teacher)
	return teacher, nil
}

// Create registers a new teacher account.
func (s *TeacherService) Create(ctx context.Context, actor models.Principal, req TeacherRequest) (*models.Teacher, error) {
	req = normalizeTeacherRequest(req)
	dob, err := s.validateRequest(req, true)
	if err != nil {
		return nil, err
	}
	subjectIDs, err := s.ensureSubjects(ctx, req.SubjectIDs)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueUsername(ctx, req.Username, 0); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(*req.Password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	now := s.now()
	teacher := &models.Teacher{
		Username:     req.Username,
		PasswordHash: hash,
		LastName:     req.LastName,
		FirstName:    req.FirstName,
		MiddleName:   req.MiddleName,
		DateOfBirth:  dob,
		Age:          validation.AgeAt(dob, now),
		Address:      req.Address,
		Active:       true,
		CreatedAt:    now,
		SubjectIDs:   subjectIDs,
	}
	if req.Active != nil {
		teacher.Active = *req.Active
	}

	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, mapTeacherWriteError(err, "failed to create teacher")
	}

	s.record(ctx, actor, models.AuditActionCreate, teacher.ID, fmt.Sprintf("Created teacher %s (%s)", teacher.FullName(), teacher.Username))
	s.decorate(teacher)
	return teacher, nil
}

// Update modifies an existing teacher and replaces its subject links.
func (s *TeacherService) Update(ctx context.Context, actor models.Principal, id int64, req TeacherRequest) (*models.Teacher, error) {
	req = normalizeTeacherRequest(req)
	dob, err := s.validateRequest(req, false)
	if err != nil {
		return nil, err
	}

	teacher, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	subjectIDs, err := s.ensureSubjects(ctx, req.SubjectIDs)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueUsername(ctx, req.Username, id); err != nil {
		return nil, err
	}

	if req.Password != nil {
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to hash password")
		}
		teacher.PasswordHash = hash
	}
	teacher.Username = req.Username
	teacher.LastName = req.LastName
	teacher.FirstName = req.FirstName
	teacher.MiddleName = req.MiddleName
	teacher.DateOfBirth = dob
	teacher.Age = validation.AgeAt(dob, s.now())
	teacher.Address = req.Address
	teacher.SubjectIDs = subjectIDs
	if req.Active != nil {
		teacher.Active = *req.Active
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, mapTeacherWriteError(err, "failed to update teacher")
	}

	s.record(ctx, actor, models.AuditActionUpdate, teacher.ID, fmt.Sprintf("Updated teacher %s (%s)", teacher.FullName(), teacher.Username))
	s.decorate(teacher)
	return teacher, nil
}

// Delete removes a teacher. Teachers still assigned in a curriculum cannot be
// deleted; their qualified-subject links are removed with them.
func (s *TeacherService) Delete(ctx context.Context, actor models.Principal, id int64) (bool, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to load teacher")
	}

	count, err := s.repo.CountCurriculumAssignments(ctx, id)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check teacher assignments")
	}
	if count > 0 {
		return false, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("teacher is assigned to %d curriculum subject(s) and cannot be deleted", count))
	}

	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return false, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "teacher is still referenced by a curriculum")
		}
		return false, appErrors.Internal(err, "failed to delete teacher")
	}
	if found {
		s.discardPicture(teacher.ProfilePicture)
		s.record(ctx, actor, models.AuditActionDelete, id, fmt.Sprintf("Deleted teacher %s (%s)", teacher.FullName(), teacher.Username))
	}
	return found, nil
}

// UpdatePicture replaces the teacher's profile picture.
func (s *TeacherService) UpdatePicture(ctx context.Context, actor models.Principal, id int64, filename string, data []byte) (*models.Teacher, error) {
	teacher, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.pictures == nil {
		return nil, appErrors.Internal(errors.New("picture storage not configured"), "failed to store picture")
	}
	stored, err := s.pictures.Store(PictureKindTeacher, filename, data)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfilePicture(ctx, id, &stored); err != nil {
		s.pictures.Discard(&stored)
		return nil, appErrors.Internal(err, "failed to update teacher picture")
	}

	s.discardPicture(teacher.ProfilePicture)
	teacher.ProfilePicture = &stored
	s.record(ctx, actor, models.AuditActionUpdate, id, fmt.Sprintf("Updated profile picture of teacher %s", teacher.Username))
	s.decorate(teacher)
	return teacher, nil
}

// RemovePicture clears the teacher's profile picture.
func (s *TeacherService) RemovePicture(ctx context.Context, actor models.Principal, id int64) (*models.Teacher, error) {
	teacher, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if teacher.ProfilePicture == nil {
		return teacher, nil
	}
	if err := s.repo.UpdateProfilePicture(ctx, id, nil); err != nil {
		return nil, appErrors.Internal(err, "failed to clear teacher picture")
	}
	s.discardPicture(teacher.ProfilePicture)
	teacher.ProfilePicture = nil
	s.record(ctx, actor, models.AuditActionUpdate, id, fmt.Sprintf("Removed profile picture of teacher %s", teacher.Username))
	return teacher, nil
}

func (s *TeacherService) load(ctx context.Context, id int64) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Internal(err, "failed to load teacher")
	}
	return teacher, nil
}

func (s *TeacherService) validateRequest(req TeacherRequest, creating bool) (time.Time, error) {
	c := validation.NewCollector(s.validator)
	if c.Var("username", req.Username, "required", "username is required") {
		c.Var("username", req.Username, "min=3,max=50", "username must be between 3 and 50 characters")
	}
	switch {
	case req.Password == nil && creating:
		c.Add("password", "password is required")
	case req.Password != nil:
		c.Var("password", *req.Password, "min=8,max=100", "password must be between 8 and 100 characters")
	}
	if c.Var("last_name", req.LastName, "required", "last name is required") {
		c.Var("last_name", req.LastName, "max=100", "last name cannot exceed 100 characters")
	}
	if c.Var("first_name", req.FirstName, "required", "first name is required") {
		c.Var("first_name", req.FirstName, "max=100", "first name cannot exceed 100 characters")
	}
	if req.MiddleName != nil {
		c.Var("middle_name", *req.MiddleName, "max=100", "middle name cannot exceed 100 characters")
	}
	if c.Var("address", req.Address, "required", "address is required") {
		c.Var("address", req.Address, "max=500", "address cannot exceed 500 characters")
	}

	var dob time.Time
	if c.Var("date_of_birth", req.DateOfBirth, "required", "date of birth is required") {
		parsed, err := validation.ParseDate(req.DateOfBirth)
		switch {
		case err != nil:
			c.Add("date_of_birth", "date of birth must be in format YYYY-MM-DD")
		case !validation.NotInFuture(parsed, s.now()):
			c.Add("date_of_birth", "date of birth cannot be in the future")
		case validation.AgeAt(parsed, s.now()) < validation.MinTeacherAge:
			c.Add("date_of_birth", fmt.Sprintf("teacher must be at least %d years old", validation.MinTeacherAge))
		default:
			dob = parsed
		}
	}
	return dob, c.Err("invalid teacher payload")
}

func (s *TeacherService) ensureSubjects(ctx context.Context, ids []int64) ([]int64, error) {
	unique := uniqueIDs(ids)
	if len(unique) == 0 || s.subjects == nil {
		return unique, nil
	}
	active, err := s.subjects.ActiveIDs(ctx, unique)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check subjects")
	}
	missing := missingIDs(unique, active)
	if len(missing) == 0 {
		return unique, nil
	}
	details := make([]appErrors.FieldError, 0, len(missing))
	for _, id := range missing {
		details = append(details, appErrors.FieldError{
			Field:   "subject_ids",
			Message: fmt.Sprintf("subject %d does not exist or is inactive", id),
		})
	}
	return nil, appErrors.Validation("invalid teacher subjects", details...)
}

func (s *TeacherService) ensureUniqueUsername(ctx context.Context, username string, excludeID int64) error {
	exists, err := s.repo.ExistsByUsername(ctx, username, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check username uniqueness")
	}
	if exists {
		return usernameConflict()
	}
	return nil
}

func (s *TeacherService) decorate(teacher *models.Teacher) {
	if s.pictures != nil {
		teacher.ProfilePictureURL = s.pictures.SignedURL(teacher.ProfilePicture)
	}
}

func (s *TeacherService) discardPicture(relPath *string) {
	if s.pictures != nil {
		s.pictures.Discard(relPath)
	}
}

func (s *TeacherService) record(ctx context.Context, actor models.Principal, action string, id int64, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     action,
		EntityType: models.EntityTeacher,
		EntityID:   id,
		Actor:      actor.Username,
		Details:    details,
	})
}

func mapTeacherWriteError(err error, message string) error {
	if database.IsUniqueViolation(err) {
		return usernameConflict()
	}
	if database.IsForeignKeyViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a referenced subject no longer exists")
	}
	return appErrors.Internal(err, message)
}

func usernameConflict() *appErrors.Error {
	err := appErrors.Clone(appErrors.ErrConflict, "username already exists")
	err.Details = []appErrors.FieldError{{Field: "username", Message: "username already exists"}}
	return err
}

func normalizeTeacherRequest(req TeacherRequest) TeacherRequest {
	req.Username = strings.TrimSpace(req.Username)
	req.LastName = strings.TrimSpace(req.LastName)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.MiddleName = normalizeOptional(req.MiddleName)
	req.DateOfBirth = strings.TrimSpace(req.DateOfBirth)
	req.Address = strings.TrimSpace(req.Address)
	if req.Password != nil && *req.Password == "" {
		req.Password = nil
	}
	return req
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func pageOf(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
