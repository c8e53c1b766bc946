package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/student-tracker-api/internal/models"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
	"github.com/noah-isme/student-tracker-api/pkg/password"
)

type mockTeacherRepo struct {
	teachers    map[int64]*models.Teacher
	subjects    map[int64][]int64
	assignments map[int64]int
	nextID      int64
	createErr   error
	pictures    map[int64]*string
}

func newMockTeacherRepo() *mockTeacherRepo {
	return &mockTeacherRepo{
		teachers:    map[int64]*models.Teacher{},
		subjects:    map[int64][]int64{},
		assignments: map[int64]int{},
		pictures:    map[int64]*string{},
	}
}

func (m *mockTeacherRepo) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	var out []models.Teacher
	for _, t := range m.teachers {
		if filter.Active != nil && t.Active != *filter.Active {
			continue
		}
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (m *mockTeacherRepo) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	t, ok := m.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *mockTeacherRepo) ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error) {
	for id, t := range m.teachers {
		if strings.EqualFold(t.Username, username) && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTeacherRepo) ListSubjectIDs(ctx context.Context, teacherID int64) ([]int64, error) {
	return append([]int64{}, m.subjects[teacherID]...), nil
}

func (m *mockTeacherRepo) CountCurriculumAssignments(ctx context.Context, teacherID int64) (int, error) {
	return m.assignments[teacherID], nil
}

func (m *mockTeacherRepo) Create(ctx context.Context, teacher *models.Teacher) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	teacher.ID = m.nextID
	cp := *teacher
	m.teachers[teacher.ID] = &cp
	m.subjects[teacher.ID] = teacher.SubjectIDs
	return nil
}

func (m *mockTeacherRepo) Update(ctx context.Context, teacher *models.Teacher) error {
	cp := *teacher
	m.teachers[teacher.ID] = &cp
	m.subjects[teacher.ID] = teacher.SubjectIDs
	return nil
}

func (m *mockTeacherRepo) UpdateProfilePicture(ctx context.Context, id int64, path *string) error {
	m.pictures[id] = path
	m.teachers[id].ProfilePicture = path
	return nil
}

func (m *mockTeacherRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := m.teachers[id]; !ok {
		return false, nil
	}
	delete(m.teachers, id)
	delete(m.subjects, id)
	return true, nil
}

type recordingPictures struct {
	stored    []string
	discarded []string
}

func (r *recordingPictures) Store(kind, filename string, data []byte) (string, error) {
	path := fmt.Sprintf("%s/%d.jpg", kind, len(r.stored)+1)
	r.stored = append(r.stored, path)
	return path, nil
}

func (r *recordingPictures) Discard(relPath *string) {
	if relPath != nil {
		r.discarded = append(r.discarded, *relPath)
	}
}

func (r *recordingPictures) SignedURL(relPath *string) string {
	if relPath == nil {
		return ""
	}
	return "/media/signed-" + *relPath
}

func strPtr(v string) *string { return &v }

func newTeacherServiceForTest(repo *mockTeacherRepo, pictures *recordingPictures, audit *recordingAudit) *TeacherService {
	svc := NewTeacherService(TeacherServiceParams{
		Repo:     repo,
		Subjects: activeSet{1: true, 2: true},
		Hasher:   password.NewBcryptHasher(bcrypt.MinCost),
		Pictures: pictures,
		Audit:    audit,
	})
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func validTeacherRequest() TeacherRequest {
	return TeacherRequest{
		Username:    "msantos",
		Password:    strPtr("changeme123"),
		LastName:    "Santos",
		FirstName:   "Maria",
		DateOfBirth: "1990-03-02",
		Address:     "12 Mabini St",
		SubjectIDs:  []int64{1, 2, 1},
	}
}

func TestTeacherServiceCreate(t *testing.T) {
	repo := newMockTeacherRepo()
	audit := &recordingAudit{}
	svc := newTeacherServiceForTest(repo, &recordingPictures{}, audit)

	teacher, err := svc.Create(context.Background(), adminActor, validTeacherRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), teacher.ID)
	assert.Equal(t, 34, teacher.Age, "birthday is tomorrow")
	assert.True(t, teacher.Active)
	assert.Equal(t, []int64{1, 2}, repo.subjects[1])
	assert.NotEqual(t, "changeme123", teacher.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(teacher.PasswordHash), []byte("changeme123")))
	assert.Equal(t, []string{"Create Teacher"}, audit.actions())
}

func TestTeacherServiceCreateValidation(t *testing.T) {
	svc := newTeacherServiceForTest(newMockTeacherRepo(), &recordingPictures{}, &recordingAudit{})

	cases := map[string]struct {
		mutate  func(*TeacherRequest)
		field   string
		message string
	}{
		"missing password": {func(r *TeacherRequest) { r.Password = nil }, "password", "password is required"},
		"short password":   {func(r *TeacherRequest) { r.Password = strPtr("short") }, "password", "password must be between 8 and 100 characters"},
		"too young":        {func(r *TeacherRequest) { r.DateOfBirth = "2007-03-02" }, "date_of_birth", "teacher must be at least 18 years old"},
		"future birth":     {func(r *TeacherRequest) { r.DateOfBirth = "2026-01-01" }, "date_of_birth", "date of birth cannot be in the future"},
		"bad date":         {func(r *TeacherRequest) { r.DateOfBirth = "02/03/1990" }, "date_of_birth", "date of birth must be in format YYYY-MM-DD"},
		"missing address":  {func(r *TeacherRequest) { r.Address = " " }, "address", "address is required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := validTeacherRequest()
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), adminActor, req)
			appErr := appErrors.FromError(err)
			require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Contains(t, appErr.Details, appErrors.FieldError{Field: tc.field, Message: tc.message})
		})
	}
}

func TestTeacherServiceRejectsInactiveSubjects(t *testing.T) {
	svc := newTeacherServiceForTest(newMockTeacherRepo(), &recordingPictures{}, &recordingAudit{})
	req := validTeacherRequest()
	req.SubjectIDs = []int64{1, 9}

	_, err := svc.Create(context.Background(), adminActor, req)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "subject 9 does not exist or is inactive", appErr.Details[0].Message)
}

func TestTeacherServiceUsernameConflict(t *testing.T) {
	repo := newMockTeacherRepo()
	svc := newTeacherServiceForTest(repo, &recordingPictures{}, &recordingAudit{})
	_, err := svc.Create(context.Background(), adminActor, validTeacherRequest())
	require.NoError(t, err)

	req := validTeacherRequest()
	req.Username = "MSANTOS"
	_, err = svc.Create(context.Background(), adminActor, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))

	repo.createErr = fmt.Errorf("create teacher: %w", &pq.Error{Code: "23505", Constraint: "teachers_username_lower_key"})
	req.Username = "jrizal"
	_, err = svc.Create(context.Background(), adminActor, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code), "unique race surfaces as conflict")
}

func TestTeacherServiceUpdateKeepsPasswordWhenOmitted(t *testing.T) {
	repo := newMockTeacherRepo()
	svc := newTeacherServiceForTest(repo, &recordingPictures{}, &recordingAudit{})
	created, err := svc.Create(context.Background(), adminActor, validTeacherRequest())
	require.NoError(t, err)

	req := validTeacherRequest()
	req.Password = strPtr("")
	req.FirstName = "Ana"
	req.SubjectIDs = nil
	updated, err := svc.Update(context.Background(), adminActor, created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, created.PasswordHash, updated.PasswordHash)
	assert.Equal(t, "Ana Santos", updated.FullName())
	assert.Empty(t, repo.subjects[created.ID])

	_, err = svc.Update(context.Background(), adminActor, 404, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestTeacherServiceGetIncludesSubjects(t *testing.T) {
	repo := newMockTeacherRepo()
	svc := newTeacherServiceForTest(repo, &recordingPictures{}, &recordingAudit{})
	created, err := svc.Create(context.Background(), adminActor, validTeacherRequest())
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.SubjectIDs)

	_, err = svc.Get(context.Background(), 99)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestTeacherServiceDeleteRestrictsAssignedTeachers(t *testing.T) {
	repo := newMockTeacherRepo()
	pictures := &recordingPictures{}
	svc := newTeacherServiceForTest(repo, pictures, &recordingAudit{})
	created, err := svc.Create(context.Background(), adminActor, validTeacherRequest())
	require.NoError(t, err)
	repo.teachers[created.ID].ProfilePicture = strPtr("teachers/old.jpg")

	repo.assignments[created.ID] = 2
	found, err := svc.Delete(context.Background(), adminActor, created.ID)
	assert.False(t, found)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
	assert.Contains(t, repo.teachers, created.ID)

	repo.assignments[created.ID] = 0
	found, err = svc.Delete(context.Background(), adminActor, created.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"teachers/old.jpg"}, pictures.discarded)

	found, err = svc.Delete(context.Background(), adminActor, created.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTeacherServicePictureLifecycle(t *testing.T) {
	repo := newMockTeacherRepo()
	pictures := &recordingPictures{}
	svc := newTeacherServiceForTest(repo, pictures, &recordingAudit{})
	created, err := svc.Create(context.Background(), adminActor, validTeacherRequest())
	require.NoError(t, err)

	updated, err := svc.UpdatePicture(context.Background(), adminActor, created.ID, "me.png", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "/media/signed-teachers/1.jpg", updated.ProfilePictureURL)
	assert.Empty(t, pictures.discarded)

	_, err = svc.UpdatePicture(context.Background(), adminActor, created.ID, "me.png", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, []string{"teachers/1.jpg"}, pictures.discarded)

	cleared, err := svc.RemovePicture(context.Background(), adminActor, created.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.ProfilePicture)
	assert.Equal(t, []string{"teachers/1.jpg", "teachers/2.jpg"}, pictures.discarded)
	assert.Nil(t, repo.pictures[created.ID])
}
