package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/service"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

type teacherServiceMock struct {
	teacher      *models.Teacher
	err          error
	lastFilter   models.TeacherFilter
	lastRequest  service.TeacherRequest
	lastFilename string
	lastUpload   []byte
	removed      bool
}

func (m *teacherServiceMock) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.Teacher{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, m.err
}

func (m *teacherServiceMock) Get(ctx context.Context, id int64) (*models.Teacher, error) {
	return m.teacher, m.err
}

func (m *teacherServiceMock) Create(ctx context.Context, actor models.Principal, req service.TeacherRequest) (*models.Teacher, error) {
	m.lastRequest = req
	return m.teacher, m.err
}

func (m *teacherServiceMock) Update(ctx context.Context, actor models.Principal, id int64, req service.TeacherRequest) (*models.Teacher, error) {
	m.lastRequest = req
	return m.teacher, m.err
}

func (m *teacherServiceMock) Delete(ctx context.Context, actor models.Principal, id int64) (bool, error) {
	return true, m.err
}

func (m *teacherServiceMock) UpdatePicture(ctx context.Context, actor models.Principal, id int64, filename string, data []byte) (*models.Teacher, error) {
	m.lastFilename = filename
	m.lastUpload = data
	return m.teacher, m.err
}

func (m *teacherServiceMock) RemovePicture(ctx context.Context, actor models.Principal, id int64) (*models.Teacher, error) {
	m.removed = true
	return m.teacher, m.err
}

func multipartPicture(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

func TestTeacherHandlerListParsesQuery(t *testing.T) {
	svc := &teacherServiceMock{}
	h := NewTeacherHandler(svc)

	c, w := newTestContext(http.MethodGet, "/admin/teachers?search=%20santos%20&active=true&page=2&limit=10", nil, &testAdmin)
	h.List(c)

	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "santos", svc.lastFilter.Search)
	require.NotNil(t, svc.lastFilter.Active)
	assert.True(t, *svc.lastFilter.Active)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.Page)
	assert.Equal(t, 10, env.Pagination.PageSize)
}

func TestTeacherHandlerCreateHidesPasswordHash(t *testing.T) {
	svc := &teacherServiceMock{teacher: &models.Teacher{ID: 5, Username: "msantos", PasswordHash: "$2a$hash", SubjectIDs: []int64{1}}}
	h := NewTeacherHandler(svc)

	body := jsonBody(t, map[string]interface{}{
		"username":      "msantos",
		"password":      "s3cretpass",
		"last_name":     "Santos",
		"first_name":    "Maria",
		"date_of_birth": "1985-04-12",
		"address":       "12 Mabini St",
		"subject_ids":   []int64{1},
	})
	c, w := newTestContext(http.MethodPost, "/admin/teachers", body, &testAdmin)
	h.Create(c)

	requireStatus(t, w, http.StatusCreated)
	require.NotNil(t, svc.lastRequest.Password)
	assert.Equal(t, "s3cretpass", *svc.lastRequest.Password)
	assert.NotContains(t, w.Body.String(), "$2a$hash")
}

func TestTeacherHandlerCreateConflict(t *testing.T) {
	conflict := appErrors.Clone(appErrors.ErrConflict, "username already exists")
	conflict.Details = []appErrors.FieldError{{Field: "username", Message: "username already exists"}}
	h := NewTeacherHandler(&teacherServiceMock{err: conflict})

	c, w := newTestContext(http.MethodPost, "/admin/teachers", jsonBody(t, map[string]string{"username": "msantos"}), &testAdmin)
	h.Create(c)

	requireStatus(t, w, http.StatusConflict)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "CONFLICT", env.Error.Code)
	assert.Equal(t, "username", env.Error.Details[0].Field)
}

func TestTeacherHandlerUploadPicture(t *testing.T) {
	svc := &teacherServiceMock{teacher: &models.Teacher{ID: 5, ProfilePictureURL: "/media/token"}}
	h := NewTeacherHandler(svc)

	body, contentType := multipartPicture(t, "picture", "maria.png", []byte("png-bytes"))
	c, w := newTestContext(http.MethodPut, "/admin/teachers/5/picture", body, &testAdmin)
	c.Request.Header.Set("Content-Type", contentType)
	c.AddParam("id", "5")
	h.UploadPicture(c)

	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "maria.png", svc.lastFilename)
	assert.Equal(t, []byte("png-bytes"), svc.lastUpload)
	assert.Contains(t, w.Body.String(), "/media/token")
}

func TestTeacherHandlerUploadPictureRequiresFile(t *testing.T) {
	svc := &teacherServiceMock{}
	h := NewTeacherHandler(svc)

	body, contentType := multipartPicture(t, "avatar", "maria.png", []byte("png-bytes"))
	c, w := newTestContext(http.MethodPut, "/admin/teachers/5/picture", body, &testAdmin)
	c.Request.Header.Set("Content-Type", contentType)
	c.AddParam("id", "5")
	h.UploadPicture(c)

	requireStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "picture", decodeEnvelope(t, w).Error.Details[0].Field)
	assert.Nil(t, svc.lastUpload)
}

func TestTeacherHandlerRemovePicture(t *testing.T) {
	svc := &teacherServiceMock{teacher: &models.Teacher{ID: 5}}
	h := NewTeacherHandler(svc)

	c, w := newTestContext(http.MethodDelete, "/admin/teachers/5/picture", nil, &testAdmin)
	c.AddParam("id", "5")
	h.RemovePicture(c)

	requireStatus(t, w, http.StatusOK)
	assert.True(t, svc.removed)
}
