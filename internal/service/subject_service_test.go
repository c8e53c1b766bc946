package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-tracker-api/internal/models"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

type mockSubjectRepo struct {
	subjects    map[int64]models.Subject
	assignments map[int64]int
	nextID      int64
	listErr     error
}

func newMockSubjectRepo() *mockSubjectRepo {
	return &mockSubjectRepo{subjects: map[int64]models.Subject{}, assignments: map[int64]int{}}
}

func (m *mockSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Subject
	for _, s := range m.subjects {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockSubjectRepo) FindByID(ctx context.Context, id int64) (*models.Subject, error) {
	s, ok := m.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *mockSubjectRepo) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	for id, s := range m.subjects {
		if s.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSubjectRepo) CountCurriculumAssignments(ctx context.Context, subjectID int64) (int, error) {
	return m.assignments[subjectID], nil
}

func (m *mockSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	m.nextID++
	subject.ID = m.nextID
	m.subjects[subject.ID] = *subject
	return nil
}

func (m *mockSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	m.subjects[subject.ID] = *subject
	return nil
}

func (m *mockSubjectRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := m.subjects[id]; !ok {
		return false, nil
	}
	delete(m.subjects, id)
	return true, nil
}

func TestSubjectServiceCreateAndUpdate(t *testing.T) {
	repo := newMockSubjectRepo()
	audit := &recordingAudit{}
	svc := NewSubjectService(repo, audit, nil, nil)

	desc := "  Algebra and geometry  "
	created, err := svc.Create(context.Background(), adminActor, SubjectRequest{Code: " MATH7 ", Name: "Mathematics", Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "MATH7", created.Code)
	assert.Equal(t, "Algebra and geometry", *created.Description)
	assert.True(t, created.Active)

	inactive := false
	updated, err := svc.Update(context.Background(), adminActor, created.ID, SubjectRequest{Code: "MATH7", Name: "Math 7", Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Math 7", updated.Name)
	assert.False(t, updated.Active)
	assert.Nil(t, updated.Description)
	assert.Equal(t, []string{"Create Subject", "Update Subject"}, audit.actions())
}

func TestSubjectServiceRejectsDuplicateCode(t *testing.T) {
	repo := newMockSubjectRepo()
	svc := NewSubjectService(repo, nil, nil, nil)
	_, err := svc.Create(context.Background(), adminActor, SubjectRequest{Code: "ENG7", Name: "English"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), adminActor, SubjectRequest{Code: "ENG7", Name: "English again"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "code", appErr.Details[0].Field)
	assert.Len(t, repo.subjects, 1)
}

func TestSubjectServiceValidation(t *testing.T) {
	svc := NewSubjectService(newMockSubjectRepo(), nil, nil, nil)

	_, err := svc.Create(context.Background(), adminActor, SubjectRequest{Code: "", Name: ""})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, []appErrors.FieldError{
		{Field: "code", Message: "subject code is required"},
		{Field: "name", Message: "subject name is required"},
	}, appErr.Details)
}

func TestSubjectServiceDeleteRestrictsUsedSubjects(t *testing.T) {
	repo := newMockSubjectRepo()
	svc := NewSubjectService(repo, &recordingAudit{}, nil, nil)
	created, err := svc.Create(context.Background(), adminActor, SubjectRequest{Code: "SCI7", Name: "Science"})
	require.NoError(t, err)

	repo.assignments[created.ID] = 1
	found, err := svc.Delete(context.Background(), adminActor, created.ID)
	assert.False(t, found)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))

	repo.assignments[created.ID] = 0
	found, err = svc.Delete(context.Background(), adminActor, created.ID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = svc.Delete(context.Background(), adminActor, created.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSubjectServiceListWrapsErrors(t *testing.T) {
	repo := newMockSubjectRepo()
	svc := NewSubjectService(repo, nil, nil, nil)

	list, err := svc.List(context.Background(), models.SubjectFilter{})
	require.NoError(t, err)
	assert.NotNil(t, list)

	repo.listErr = errors.New("db down")
	_, err = svc.List(context.Background(), models.SubjectFilter{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))

	_, err = svc.Get(context.Background(), 42)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}
