package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/service"
	"github.com/noah-isme/student-tracker-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.Student, error)
	Create(ctx context.Context, actor models.Principal, req service.StudentRequest) (*models.Student, error)
	Update(ctx context.Context, actor models.Principal, id int64, req service.StudentRequest) (*models.Student, error)
	Delete(ctx context.Context, actor models.Principal, id int64) (bool, error)
	UpdatePicture(ctx context.Context, actor models.Principal, id int64, filename string, data []byte) (*models.Student, error)
	RemovePicture(ctx context.Context, actor models.Principal, id int64) (*models.Student, error)
}

// StudentHandler exposes student management endpoints.
type StudentHandler struct {
	service studentService
}

// NewStudentHandler constructs a student handler.
func NewStudentHandler(svc studentService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name"
// @Param grade_level query int false "Filter by grade level"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		Active:   parseQueryBool(c, "active"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "limit", 20),
	}
	if grade := parseQueryInt(c, "grade_level", 0); grade != 0 {
		filter.GradeLevel = &grade
	}
	students, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student by id
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	student, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Create student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.StudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req service.StudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body service.StudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req service.StudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.service.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	found, err := h.service.Delete(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deleteResult{ID: id, Deleted: found}, nil)
}

// UploadPicture godoc
// @Summary Replace student profile picture
// @Tags Students
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Student ID"
// @Param picture formData file true "Picture"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id}/picture [put]
func (h *StudentHandler) UploadPicture(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	filename, data, ok := readPicture(c)
	if !ok {
		return
	}
	student, err := h.service.UpdatePicture(c.Request.Context(), actor, id, filename, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// RemovePicture godoc
// @Summary Remove student profile picture
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id}/picture [delete]
func (h *StudentHandler) RemovePicture(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	student, err := h.service.RemovePicture(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
