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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	CountEnrollments(ctx context.Context, studentID int64) (int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	UpdateProfilePicture(ctx context.Context, id int64, path *string) error
	Delete(ctx context.Context, id int64) (bool, error)
}

// StudentRequest is the payload for creating or updating a student.
type StudentRequest struct {
	LastName    string  `json:"last_name"`
	FirstName   string  `json:"first_name"`
	MiddleName  *string `json:"middle_name"`
	DateOfBirth string  `json:"date_of_birth"`
	GradeLevel  int     `json:"grade_level"`
	Address     string  `json:"address"`
	Active      *bool   `json:"active"`
}

// StudentService handles student operations.
type StudentService struct {
	repo      studentRepository
	pictures  pictureManager
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService creates a StudentService.
func NewStudentService(repo studentRepository, pictures pictureManager, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		pictures:  pictures,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.GradeLevel != nil && !validation.GradeLevel(*filter.GradeLevel) {
		return nil, nil, appErrors.Validation("invalid student filter",
			appErrors.FieldError{Field: "grade_level", Message: "grade level must be between 7 and 12"})
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list students")
	}
	for i := range students {
		s.decorate(&students[i])
	}
	page, size := pageOf(filter.Page, filter.PageSize)
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.decorate(student)
	return student, nil
}

// Create inserts a student with its age derived from the date of birth.
func (s *StudentService) Create(ctx context.Context, actor models.Principal, req StudentRequest) (*models.Student, error) {
	req = normalizeStudentRequest(req)
	dob, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	student := &models.Student{
		LastName:    req.LastName,
		FirstName:   req.FirstName,
		MiddleName:  req.MiddleName,
		DateOfBirth: dob,
		Age:         validation.AgeAt(dob, now),
		GradeLevel:  req.GradeLevel,
		Address:     req.Address,
		Active:      true,
		CreatedAt:   now,
	}
	if req.Active != nil {
		student.Active = *req.Active
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Internal(err, "failed to create student")
	}

	s.record(ctx, actor, models.AuditActionCreate, student.ID, fmt.Sprintf("Created student %s", student.FullName()))
	return student, nil
}

// Update modifies a student and recomputes its age.
func (s *StudentService) Update(ctx context.Context, actor models.Principal, id int64, req StudentRequest) (*models.Student, error) {
	req = normalizeStudentRequest(req)
	dob, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	student.LastName = req.LastName
	student.FirstName = req.FirstName
	student.MiddleName = req.MiddleName
	student.DateOfBirth = dob
	student.Age = validation.AgeAt(dob, s.now())
	student.GradeLevel = req.GradeLevel
	student.Address = req.Address
	if req.Active != nil {
		student.Active = *req.Active
	}
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Internal(err, "failed to update student")
	}

	s.record(ctx, actor, models.AuditActionUpdate, student.ID, fmt.Sprintf("Updated student %s", student.FullName()))
	s.decorate(student)
	return student, nil
}

// Delete removes a student unless it is enrolled in a curriculum.
func (s *StudentService) Delete(ctx context.Context, actor models.Principal, id int64) (bool, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to load student")
	}

	count, err := s.repo.CountEnrollments(ctx, id)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check student enrollments")
	}
	if count > 0 {
		return false, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("student is enrolled in %d curriculum(s) and cannot be deleted", count))
	}

	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return false, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "student is still enrolled in a curriculum")
		}
		return false, appErrors.Internal(err, "failed to delete student")
	}
	if found {
		if s.pictures != nil {
			s.pictures.Discard(student.ProfilePicture)
		}
		s.record(ctx, actor, models.AuditActionDelete, id, fmt.Sprintf("Deleted student %s", student.FullName()))
	}
	return found, nil
}

// UpdatePicture replaces the student's profile picture.
func (s *StudentService) UpdatePicture(ctx context.Context, actor models.Principal, id int64, filename string, data []byte) (*models.Student, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.pictures == nil {
		return nil, appErrors.Internal(errors.New("picture storage not configured"), "failed to store picture")
	}
	stored, err := s.pictures.Store(PictureKindStudent, filename, data)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfilePicture(ctx, id, &stored); err != nil {
		s.pictures.Discard(&stored)
		return nil, appErrors.Internal(err, "failed to update student picture")
	}

	s.pictures.Discard(student.ProfilePicture)
	student.ProfilePicture = &stored
	s.record(ctx, actor, models.AuditActionUpdate, id, fmt.Sprintf("Updated profile picture of student %s", student.FullName()))
	s.decorate(student)
	return student, nil
}

// RemovePicture clears the student's profile picture.
func (s *StudentService) RemovePicture(ctx context.Context, actor models.Principal, id int64) (*models.Student, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if student.ProfilePicture == nil {
		return student, nil
	}
	if err := s.repo.UpdateProfilePicture(ctx, id, nil); err != nil {
		return nil, appErrors.Internal(err, "failed to clear student picture")
	}
	if s.pictures != nil {
		s.pictures.Discard(student.ProfilePicture)
	}
	student.ProfilePicture = nil
	s.record(ctx, actor, models.AuditActionUpdate, id, fmt.Sprintf("Removed profile picture of student %s", student.FullName()))
	return student, nil
}

func (s *StudentService) load(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) validateRequest(req StudentRequest) (time.Time, error) {
	c := validation.NewCollector(s.validator)
	if c.Var("last_name", req.LastName, "required", "last name is required") {
		c.Var("last_name", req.LastName, "max=100", "last name cannot exceed 100 characters")
	}
	if c.Var("first_name", req.FirstName, "required", "first name is required") {
		c.Var("first_name", req.FirstName, "max=100", "first name cannot exceed 100 characters")
	}
	if req.MiddleName != nil {
		c.Var("middle_name", *req.MiddleName, "max=100", "middle name cannot exceed 100 characters")
	}
	c.Check(validation.GradeLevel(req.GradeLevel), "grade_level", "grade level must be between 7 and 12")
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
		default:
			dob = parsed
		}
	}
	return dob, c.Err("invalid student payload")
}

func (s *StudentService) decorate(student *models.Student) {
	if s.pictures != nil {
		student.ProfilePictureURL = s.pictures.SignedURL(student.ProfilePicture)
	}
}

func (s *StudentService) record(ctx context.Context, actor models.Principal, action string, id int64, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     action,
		EntityType: models.EntityStudent,
		EntityID:   id,
		Actor:      actor.Username,
		Details:    details,
	})
}

func normalizeStudentRequest(req StudentRequest) StudentRequest {
	req.LastName = strings.TrimSpace(req.LastName)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.MiddleName = normalizeOptional(req.MiddleName)
	req.DateOfBirth = strings.TrimSpace(req.DateOfBirth)
	req.Address = strings.TrimSpace(req.Address)
	return req
}
