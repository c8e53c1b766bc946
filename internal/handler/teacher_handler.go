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

type teacherService interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.Teacher, error)
	Create(ctx context.Context, actor models.Principal, req service.TeacherRequest) (*models.Teacher, error)
	Update(ctx context.Context, actor models.Principal, id int64, req service.TeacherRequest) (*models.Teacher, error)
	Delete(ctx context.Context, actor models.Principal, id int64) (bool, error)
	UpdatePicture(ctx context.Context, actor models.Principal, id int64, filename string, data []byte) (*models.Teacher, error)
	RemovePicture(ctx context.Context, actor models.Principal, id int64) (*models.Teacher, error)
}

// TeacherHandler exposes teacher management endpoints.
type TeacherHandler struct {
	service teacherService
}

// NewTeacherHandler constructs a teacher handler.
func NewTeacherHandler(svc teacherService) *TeacherHandler {
	return &TeacherHandler{service: svc}
}

// List godoc
// @Summary List teachers
// @Tags Teachers
// @Produce json
// @Param search query string false "Search by name or username"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers [get]
func (h *TeacherHandler) List(c *gin.Context) {
	filter := models.TeacherFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		Active:   parseQueryBool(c, "active"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "limit", 20),
	}
	teachers, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, pagination)
}

// Get godoc
// @Summary Get teacher by id
// @Tags Teachers
// @Produce json
// @Param id path int true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	teacher, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// Create godoc
// @Summary Create teacher
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body service.TeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/teachers [post]
func (h *TeacherHandler) Create(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req service.TeacherRequest
	if !bindJSON(c, &req) {
		return
	}
	teacher, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teacher)
}

// Update godoc
// @Summary Update teacher
// @Description An empty password keeps the current one
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path int true "Teacher ID"
// @Param payload body service.TeacherRequest true "Teacher payload"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id} [put]
func (h *TeacherHandler) Update(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req service.TeacherRequest
	if !bindJSON(c, &req) {
		return
	}
	teacher, err := h.service.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// Delete godoc
// @Summary Delete teacher
// @Tags Teachers
// @Produce json
// @Param id path int true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/teachers/{id} [delete]
func (h *TeacherHandler) Delete(c *gin.Context) {
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
// @Summary Replace teacher profile picture
// @Tags Teachers
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Teacher ID"
// @Param picture formData file true "Picture"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id}/picture [put]
func (h *TeacherHandler) UploadPicture(c *gin.Context) {
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
	teacher, err := h.service.UpdatePicture(c.Request.Context(), actor, id, filename, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// RemovePicture godoc
// @Summary Remove teacher profile picture
// @Tags Teachers
// @Produce json
// @Param id path int true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id}/picture [delete]
func (h *TeacherHandler) RemovePicture(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	teacher, err := h.service.RemovePicture(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}
