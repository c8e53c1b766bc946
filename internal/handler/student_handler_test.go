package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/service"
)

type studentServiceMock struct {
	lastFilter  models.StudentFilter
	lastRequest service.StudentRequest
	lastID      int64
}

func (m *studentServiceMock) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.Student{{ID: 10, FirstName: "Ana", LastName: "Cruz", GradeLevel: 7}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *studentServiceMock) Get(ctx context.Context, id int64) (*models.Student, error) {
	m.lastID = id
	return &models.Student{ID: id}, nil
}

func (m *studentServiceMock) Create(ctx context.Context, actor models.Principal, req service.StudentRequest) (*models.Student, error) {
	m.lastRequest = req
	return &models.Student{ID: 10, GradeLevel: req.GradeLevel}, nil
}

func (m *studentServiceMock) Update(ctx context.Context, actor models.Principal, id int64, req service.StudentRequest) (*models.Student, error) {
	m.lastID = id
	m.lastRequest = req
	return &models.Student{ID: id, GradeLevel: req.GradeLevel}, nil
}

func (m *studentServiceMock) Delete(ctx context.Context, actor models.Principal, id int64) (bool, error) {
	m.lastID = id
	return true, nil
}

func (m *studentServiceMock) UpdatePicture(ctx context.Context, actor models.Principal, id int64, filename string, data []byte) (*models.Student, error) {
	return &models.Student{ID: id}, nil
}

func (m *studentServiceMock) RemovePicture(ctx context.Context, actor models.Principal, id int64) (*models.Student, error) {
	return &models.Student{ID: id}, nil
}

func TestStudentHandlerListGradeFilter(t *testing.T) {
	svc := &studentServiceMock{}
	h := NewStudentHandler(svc)

	c, w := newTestContext(http.MethodGet, "/admin/students?grade_level=8", nil, &testAdmin)
	h.List(c)

	requireStatus(t, w, http.StatusOK)
	require.NotNil(t, svc.lastFilter.GradeLevel)
	assert.Equal(t, 8, *svc.lastFilter.GradeLevel)
	assert.Equal(t, 1, svc.lastFilter.Page)
	assert.Equal(t, 20, svc.lastFilter.PageSize)

	c, _ = newTestContext(http.MethodGet, "/admin/students", nil, &testAdmin)
	h.List(c)
	assert.Nil(t, svc.lastFilter.GradeLevel)
}

func TestStudentHandlerUpdate(t *testing.T) {
	svc := &studentServiceMock{}
	h := NewStudentHandler(svc)

	body := jsonBody(t, map[string]interface{}{"first_name": "Ana", "last_name": "Cruz", "grade_level": 8, "date_of_birth": "2011-12-01"})
	c, w := newTestContext(http.MethodPut, "/admin/students/10", body, &testAdmin)
	c.AddParam("id", "10")
	h.Update(c)

	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, int64(10), svc.lastID)
	assert.Equal(t, 8, svc.lastRequest.GradeLevel)
	assert.Equal(t, "2011-12-01", svc.lastRequest.DateOfBirth)
}

func TestStudentHandlerDelete(t *testing.T) {
	svc := &studentServiceMock{}
	h := NewStudentHandler(svc)

	c, w := newTestContext(http.MethodDelete, "/admin/students/10", nil, &testAdmin)
	c.AddParam("id", "10")
	h.Delete(c)

	requireStatus(t, w, http.StatusOK)
	var result deleteResult
	decodeData(t, w, &result)
	assert.Equal(t, deleteResult{ID: 10, Deleted: true}, result)
}
