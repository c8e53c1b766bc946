package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

// AssignmentReconciler rewrites a curriculum's junction rows so they match the
// desired state exactly. Every call is a full replace: existing rows are
// removed and one row per desired entry is inserted with a fresh timestamp.
// Callers run it inside the curriculum transaction and validate existence
// beforehand; only the shape of the input is checked here.
type AssignmentReconciler struct {
	metrics *MetricsService
	now     func() time.Time
}

// NewAssignmentReconciler constructs an AssignmentReconciler.
func NewAssignmentReconciler(metrics *MetricsService) *AssignmentReconciler {
	return &AssignmentReconciler{metrics: metrics, now: func() time.Time { return time.Now().UTC() }}
}

// ReconcileSubjectTeachers replaces the curriculum's subject/teacher assignments with pairs.
func (r *AssignmentReconciler) ReconcileSubjectTeachers(ctx context.Context, w repository.CurriculumWriter, curriculumID int64, pairs []models.SubjectTeacherPair) error {
	if curriculumID <= 0 {
		return appErrors.Validation("invalid curriculum id")
	}
	for i, pair := range pairs {
		if pair.SubjectID <= 0 || pair.TeacherID <= 0 {
			return appErrors.Validation("invalid subject assignment", appErrors.FieldError{
				Field:   fmt.Sprintf("subjects[%d]", i),
				Message: "subject_id and teacher_id must be positive",
			})
		}
	}

	if err := w.DeleteSubjects(ctx, curriculumID); err != nil {
		return err
	}
	at := r.now()
	for _, pair := range pairs {
		row := models.CurriculumSubject{CurriculumID: curriculumID, SubjectID: pair.SubjectID, TeacherID: pair.TeacherID, AssignedAt: at}
		if err := w.InsertSubject(ctx, row); err != nil {
			return err
		}
	}
	r.metrics.RecordReconciled("subjects", len(pairs))
	return nil
}

// ReconcileStudents replaces the curriculum's enrollments with studentIDs.
func (r *AssignmentReconciler) ReconcileStudents(ctx context.Context, w repository.CurriculumWriter, curriculumID int64, studentIDs []int64) error {
	if curriculumID <= 0 {
		return appErrors.Validation("invalid curriculum id")
	}
	for i, id := range studentIDs {
		if id <= 0 {
			return appErrors.Validation("invalid enrollment", appErrors.FieldError{
				Field:   fmt.Sprintf("student_ids[%d]", i),
				Message: "student id must be positive",
			})
		}
	}

	if err := w.DeleteStudents(ctx, curriculumID); err != nil {
		return err
	}
	at := r.now()
	for _, id := range studentIDs {
		row := models.CurriculumStudent{CurriculumID: curriculumID, StudentID: id, EnrolledAt: at}
		if err := w.InsertStudent(ctx, row); err != nil {
			return err
		}
	}
	r.metrics.RecordReconciled("students", len(studentIDs))
	return nil
}
