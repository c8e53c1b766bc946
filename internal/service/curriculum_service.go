package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/repository"
	"github.com/noah-isme/student-tracker-api/internal/validation"
	"github.com/noah-isme/student-tracker-api/pkg/database"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

const curriculumCodeConstraint = "curricula_code_key"

type curriculumRepository interface {
	List(ctx context.Context) ([]models.Curriculum, error)
	ListByTeacher(ctx context.Context, teacherID int64) ([]models.Curriculum, error)
	FindByID(ctx context.Context, id int64) (*models.Curriculum, error)
	ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error)
	IsTeacherAssigned(ctx context.Context, curriculumID, teacherID int64) (bool, error)
	ListSubjects(ctx context.Context, curriculumIDs []int64) ([]models.CurriculumSubjectDetail, error)
	ListStudents(ctx context.Context, curriculumIDs []int64) ([]models.CurriculumStudentDetail, error)
	WithinTx(ctx context.Context, fn func(repository.CurriculumWriter) error) error
}

type activeIDLookup interface {
	ActiveIDs(ctx context.Context, ids []int64) ([]int64, error)
}

// CurriculumRequest is the payload for creating or updating a curriculum.
type CurriculumRequest struct {
	Name         string                      `json:"name"`
	Code         string                      `json:"code"`
	Description  *string                     `json:"description"`
	AcademicYear string                      `json:"academic_year"`
	Semester     string                      `json:"semester"`
	GradeLevel   int                         `json:"grade_level"`
	Active       *bool                       `json:"active"`
	Subjects     []models.SubjectTeacherPair `json:"subjects"`
	StudentIDs   []int64                     `json:"student_ids"`
}

// CurriculumServiceParams groups constructor dependencies.
type CurriculumServiceParams struct {
	Repo       curriculumRepository
	Subjects   activeIDLookup
	Teachers   activeIDLookup
	Students   activeIDLookup
	Reconciler *AssignmentReconciler
	Audit      auditRecorder
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// CurriculumService orchestrates curricula and their subject/teacher and student assignments.
type CurriculumService struct {
	repo       curriculumRepository
	subjects   activeIDLookup
	teachers   activeIDLookup
	students   activeIDLookup
	reconciler *AssignmentReconciler
	audit      auditRecorder
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewCurriculumService constructs a CurriculumService.
func NewCurriculumService(params CurriculumServiceParams) *CurriculumService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reconciler := params.Reconciler
	if reconciler == nil {
		reconciler = NewAssignmentReconciler(params.Metrics)
	}
	return &CurriculumService{
		repo:       params.Repo,
		subjects:   params.Subjects,
		teachers:   params.Teachers,
		students:   params.Students,
		reconciler: reconciler,
		audit:      params.Audit,
		metrics:    params.Metrics,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns every curriculum ordered by name with assignments populated.
func (s *CurriculumService) List(ctx context.Context) ([]models.Curriculum, error) {
	curricula, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list curricula")
	}
	if err := s.attachAssignments(ctx, curricula); err != nil {
		return nil, err
	}
	return curricula, nil
}

// ListByTeacher returns the curricula where the teacher is assigned to at least one subject.
func (s *CurriculumService) ListByTeacher(ctx context.Context, teacherID int64) ([]models.Curriculum, error) {
	curricula, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list teacher curricula")
	}
	if err := s.attachAssignments(ctx, curricula); err != nil {
		return nil, err
	}
	return curricula, nil
}

// Get returns a curriculum with subjects, teachers and students populated.
func (s *CurriculumService) Get(ctx context.Context, id int64) (*models.Curriculum, error) {
	curriculum, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Internal(err, "failed to load curriculum")
	}
	list := []models.Curriculum{*curriculum}
	if err := s.attachAssignments(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// GetForTeacher returns a curriculum only when the principal may see it.
// Teachers see curricula in which they teach; anything else reads as not found.
func (s *CurriculumService) GetForTeacher(ctx context.Context, principal models.Principal, id int64) (*models.Curriculum, error) {
	if principal.IsAdmin() {
		return s.Get(ctx, id)
	}
	if !principal.IsTeacher() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teacher access required")
	}
	assigned, err := s.repo.IsTeacherAssigned(ctx, id, principal.SubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check curriculum access")
	}
	if !assigned {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
	}
	return s.Get(ctx, id)
}

// CodeExists reports whether a curriculum other than excludeID uses code.
func (s *CurriculumService) CodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	exists, err := s.repo.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check curriculum code")
	}
	return exists, nil
}

// Create persists a curriculum and its assignments in one transaction.
func (s *CurriculumService) Create(ctx context.Context, actor models.Principal, req CurriculumRequest) (*models.Curriculum, error) {
	req = normalizeCurriculumRequest(req)
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	pairs, studentIDs, err := normalizeAssignments(req)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueCode(ctx, req.Code, 0); err != nil {
		return nil, err
	}
	if err := s.ensureReferences(ctx, pairs, studentIDs); err != nil {
		return nil, err
	}

	curriculum := &models.Curriculum{
		Name:         req.Name,
		Code:         req.Code,
		Description:  req.Description,
		AcademicYear: req.AcademicYear,
		Semester:     req.Semester,
		GradeLevel:   req.GradeLevel,
		Active:       true,
		CreatedAt:    s.now(),
	}
	if req.Active != nil {
		curriculum.Active = *req.Active
	}

	start := time.Now()
	err = s.repo.WithinTx(ctx, func(w repository.CurriculumWriter) error {
		if err := w.Insert(ctx, curriculum); err != nil {
			return err
		}
		if err := s.reconciler.ReconcileSubjectTeachers(ctx, w, curriculum.ID, pairs); err != nil {
			return err
		}
		return s.reconciler.ReconcileStudents(ctx, w, curriculum.ID, studentIDs)
	})
	s.metrics.ObserveTransaction("curriculum_create", time.Since(start))
	if err != nil {
		return nil, s.mapWriteError(err, "failed to create curriculum")
	}

	s.record(ctx, actor, models.AuditActionCreate, curriculum.ID,
		fmt.Sprintf("Created curriculum %s (%s) with %d subjects and %d students", curriculum.Name, curriculum.Code, len(pairs), len(studentIDs)))

	return s.Get(ctx, curriculum.ID)
}

// Update rewrites a curriculum and fully replaces its assignments in one transaction.
func (s *CurriculumService) Update(ctx context.Context, actor models.Principal, id int64, req CurriculumRequest) (*models.Curriculum, error) {
	req = normalizeCurriculumRequest(req)
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	pairs, studentIDs, err := normalizeAssignments(req)
	if err != nil {
		return nil, err
	}

	curriculum, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Internal(err, "failed to load curriculum")
	}
	if err := s.ensureUniqueCode(ctx, req.Code, id); err != nil {
		return nil, err
	}
	if err := s.ensureReferences(ctx, pairs, studentIDs); err != nil {
		return nil, err
	}

	now := s.now()
	curriculum.Name = req.Name
	curriculum.Code = req.Code
	curriculum.Description = req.Description
	curriculum.AcademicYear = req.AcademicYear
	curriculum.Semester = req.Semester
	curriculum.GradeLevel = req.GradeLevel
	curriculum.UpdatedAt = &now
	if req.Active != nil {
		curriculum.Active = *req.Active
	}

	start := time.Now()
	err = s.repo.WithinTx(ctx, func(w repository.CurriculumWriter) error {
		if err := w.Update(ctx, curriculum); err != nil {
			return err
		}
		if err := s.reconciler.ReconcileSubjectTeachers(ctx, w, curriculum.ID, pairs); err != nil {
			return err
		}
		return s.reconciler.ReconcileStudents(ctx, w, curriculum.ID, studentIDs)
	})
	s.metrics.ObserveTransaction("curriculum_update", time.Since(start))
	if err != nil {
		return nil, s.mapWriteError(err, "failed to update curriculum")
	}

	s.record(ctx, actor, models.AuditActionUpdate, curriculum.ID,
		fmt.Sprintf("Updated curriculum %s (%s) with %d subjects and %d students", curriculum.Name, curriculum.Code, len(pairs), len(studentIDs)))

	return s.Get(ctx, curriculum.ID)
}

// Delete removes a curriculum and its assignments. A missing id reports
// found=false without an error.
func (s *CurriculumService) Delete(ctx context.Context, actor models.Principal, id int64) (bool, error) {
	curriculum, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to load curriculum")
	}

	var found bool
	start := time.Now()
	err = s.repo.WithinTx(ctx, func(w repository.CurriculumWriter) error {
		if err := w.DeleteSubjects(ctx, id); err != nil {
			return err
		}
		if err := w.DeleteStudents(ctx, id); err != nil {
			return err
		}
		var err error
		found, err = w.Delete(ctx, id)
		return err
	})
	s.metrics.ObserveTransaction("curriculum_delete", time.Since(start))
	if err != nil {
		return false, appErrors.Internal(err, "failed to delete curriculum")
	}

	if found {
		s.record(ctx, actor, models.AuditActionDelete, id, fmt.Sprintf("Deleted curriculum %s (%s)", curriculum.Name, curriculum.Code))
	}
	return found, nil
}

func (s *CurriculumService) attachAssignments(ctx context.Context, curricula []models.Curriculum) error {
	if len(curricula) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(curricula))
	for _, c := range curricula {
		ids = append(ids, c.ID)
	}
	subjects, err := s.repo.ListSubjects(ctx, ids)
	if err != nil {
		return appErrors.Internal(err, "failed to load curriculum subjects")
	}
	students, err := s.repo.ListStudents(ctx, ids)
	if err != nil {
		return appErrors.Internal(err, "failed to load curriculum students")
	}

	subjectsByCurriculum := make(map[int64][]models.CurriculumSubjectDetail, len(curricula))
	for _, row := range subjects {
		subjectsByCurriculum[row.CurriculumID] = append(subjectsByCurriculum[row.CurriculumID], row)
	}
	studentsByCurriculum := make(map[int64][]models.CurriculumStudentDetail, len(curricula))
	for _, row := range students {
		studentsByCurriculum[row.CurriculumID] = append(studentsByCurriculum[row.CurriculumID], row)
	}

	for i := range curricula {
		curricula[i].Subjects = subjectsByCurriculum[curricula[i].ID]
		if curricula[i].Subjects == nil {
			curricula[i].Subjects = []models.CurriculumSubjectDetail{}
		}
		curricula[i].Students = studentsByCurriculum[curricula[i].ID]
		if curricula[i].Students == nil {
			curricula[i].Students = []models.CurriculumStudentDetail{}
		}
	}
	return nil
}

func (s *CurriculumService) validateRequest(req CurriculumRequest) error {
	c := validation.NewCollector(s.validator)
	if c.Var("name", req.Name, "required", "curriculum name is required") {
		c.Var("name", req.Name, "max=200", "curriculum name cannot exceed 200 characters")
	}
	if c.Var("code", req.Code, "required", "curriculum code is required") {
		c.Var("code", req.Code, "max=50", "curriculum code cannot exceed 50 characters")
	}
	if req.Description != nil {
		c.Var("description", *req.Description, "max=1000", "description cannot exceed 1000 characters")
	}
	if c.Var("academic_year", req.AcademicYear, "required", "academic year is required") {
		if c.Var("academic_year", req.AcademicYear, "max=20", "academic year cannot exceed 20 characters") {
			if err := validation.AcademicYear(req.AcademicYear, s.now()); err != nil {
				c.Add("academic_year", err.Error())
			}
		}
	}
	if c.Var("semester", req.Semester, "required", "semester is required") {
		c.Var("semester", req.Semester, "max=50", "semester cannot exceed 50 characters")
	}
	c.Check(validation.GradeLevel(req.GradeLevel), "grade_level", "grade level must be between 7 and 12")
	return c.Err("invalid curriculum payload")
}

func (s *CurriculumService) ensureUniqueCode(ctx context.Context, code string, excludeID int64) error {
	exists, err := s.repo.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check curriculum code")
	}
	if exists {
		return curriculumCodeConflict()
	}
	return nil
}

// ensureReferences checks that every referenced subject, teacher and student exists and is active.
func (s *CurriculumService) ensureReferences(ctx context.Context, pairs []models.SubjectTeacherPair, studentIDs []int64) error {
	subjectIDs := make([]int64, 0, len(pairs))
	teacherIDs := make([]int64, 0, len(pairs))
	for _, p := range pairs {
		subjectIDs = append(subjectIDs, p.SubjectID)
		teacherIDs = append(teacherIDs, p.TeacherID)
	}

	var details []appErrors.FieldError
	checks := []struct {
		field  string
		label  string
		lookup activeIDLookup
		ids    []int64
	}{
		{"subjects", "subject", s.subjects, subjectIDs},
		{"subjects", "teacher", s.teachers, uniqueIDs(teacherIDs)},
		{"student_ids", "student", s.students, studentIDs},
	}
	for _, check := range checks {
		if check.lookup == nil || len(check.ids) == 0 {
			continue
		}
		active, err := check.lookup.ActiveIDs(ctx, check.ids)
		if err != nil {
			return appErrors.Internal(err, fmt.Sprintf("failed to check %ss", check.label))
		}
		for _, id := range missingIDs(check.ids, active) {
			details = append(details, appErrors.FieldError{
				Field:   check.field,
				Message: fmt.Sprintf("%s %d does not exist or is inactive", check.label, id),
			})
		}
	}
	if len(details) > 0 {
		return appErrors.Validation("invalid curriculum assignments", details...)
	}
	return nil
}

func (s *CurriculumService) mapWriteError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if database.IsUniqueViolation(err) {
		if database.ConstraintName(err) == curriculumCodeConstraint {
			return curriculumCodeConflict()
		}
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "duplicate curriculum assignment")
	}
	if database.IsForeignKeyViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a referenced subject, teacher or student no longer exists")
	}
	return appErrors.Internal(err, message)
}

func (s *CurriculumService) record(ctx context.Context, actor models.Principal, action string, id int64, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     action,
		EntityType: models.EntityCurriculum,
		EntityID:   id,
		Actor:      actor.Username,
		Details:    details,
	})
}

func curriculumCodeConflict() *appErrors.Error {
	err := appErrors.Clone(appErrors.ErrConflict, "curriculum code already exists")
	err.Details = []appErrors.FieldError{{Field: "code", Message: "curriculum code already exists"}}
	return err
}

func normalizeCurriculumRequest(req CurriculumRequest) CurriculumRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	req.AcademicYear = strings.TrimSpace(req.AcademicYear)
	req.Semester = strings.TrimSpace(req.Semester)
	req.Description = normalizeOptional(req.Description)
	return req
}

// normalizeAssignments collapses repeated entries. The same subject listed
// with two different teachers cannot be collapsed and is rejected.
func normalizeAssignments(req CurriculumRequest) ([]models.SubjectTeacherPair, []int64, error) {
	pairs := make([]models.SubjectTeacherPair, 0, len(req.Subjects))
	teacherBySubject := make(map[int64]int64, len(req.Subjects))
	var details []appErrors.FieldError
	for i, pair := range req.Subjects {
		if pair.SubjectID <= 0 || pair.TeacherID <= 0 {
			details = append(details, appErrors.FieldError{
				Field:   fmt.Sprintf("subjects[%d]", i),
				Message: "subject_id and teacher_id are required",
			})
			continue
		}
		if existing, ok := teacherBySubject[pair.SubjectID]; ok {
			if existing != pair.TeacherID {
				details = append(details, appErrors.FieldError{
					Field:   fmt.Sprintf("subjects[%d]", i),
					Message: fmt.Sprintf("subject %d is assigned to more than one teacher", pair.SubjectID),
				})
			}
			continue
		}
		teacherBySubject[pair.SubjectID] = pair.TeacherID
		pairs = append(pairs, pair)
	}

	studentIDs := make([]int64, 0, len(req.StudentIDs))
	seen := make(map[int64]struct{}, len(req.StudentIDs))
	for i, id := range req.StudentIDs {
		if id <= 0 {
			details = append(details, appErrors.FieldError{
				Field:   fmt.Sprintf("student_ids[%d]", i),
				Message: "student id must be positive",
			})
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		studentIDs = append(studentIDs, id)
	}

	if len(details) > 0 {
		return nil, nil, appErrors.Validation("invalid curriculum assignments", details...)
	}
	return pairs, studentIDs, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(requested, found []int64) []int64 {
	present := make(map[int64]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	var missing []int64
	for _, id := range uniqueIDs(requested) {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
