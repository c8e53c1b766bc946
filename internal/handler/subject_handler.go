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

type subjectService interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error)
	Get(ctx context.Context, id int64) (*models.Subject, error)
	Create(ctx context.Context, actor models.Principal, req service.SubjectRequest) (*models.Subject, error)
	Update(ctx context.Context, actor models.Principal, id int64, req service.SubjectRequest) (*models.Subject, error)
	Delete(ctx context.Context, actor models.Principal, id int64) (bool, error)
}

// SubjectHandler handles subject endpoints.
type SubjectHandler struct {
	service subjectService
}

// NewSubjectHandler constructs a subject handler.
func NewSubjectHandler(svc subjectService) *SubjectHandler {
	return &SubjectHandler{service: svc}
}

// List godoc
// @Summary List subjects
// @Tags Subjects
// @Produce json
// @Param search query string false "Search keyword"
// @Param active query bool false "Filter by active flag"
// @Success 200 {object} response.Envelope
// @Router /admin/subjects [get]
func (h *SubjectHandler) List(c *gin.Context) {
	filter := models.SubjectFilter{
		Search: strings.TrimSpace(c.Query("search")),
		Active: parseQueryBool(c, "active"),
	}
	subjects, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// Get godoc
// @Summary Get subject by id
// @Tags Subjects
// @Produce json
// @Param id path int true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /admin/subjects/{id} [get]
func (h *SubjectHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	subject, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// Create godoc
// @Summary Create subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param payload body service.SubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Router /admin/subjects [post]
func (h *SubjectHandler) Create(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req service.SubjectRequest
	if !bindJSON(c, &req) {
		return
	}
	subject, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// Update godoc
// @Summary Update subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param id path int true "Subject ID"
// @Param payload body service.SubjectRequest true "Subject payload"
// @Success 200 {object} response.Envelope
// @Router /admin/subjects/{id} [put]
func (h *SubjectHandler) Update(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req service.SubjectRequest
	if !bindJSON(c, &req) {
		return
	}
	subject, err := h.service.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// Delete godoc
// @Summary Delete subject
// @Tags Subjects
// @Produce json
// @Param id path int true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/subjects/{id} [delete]
func (h *SubjectHandler) Delete(c *gin.Context) {
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
