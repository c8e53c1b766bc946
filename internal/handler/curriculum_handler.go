package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/service"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
	"github.com/noah-isme/student-tracker-api/pkg/response"
)

type curriculumService interface {
	List(ctx context.Context) ([]models.Curriculum, error)
	ListByTeacher(ctx context.Context, teacherID int64) ([]models.Curriculum, error)
	Get(ctx context.Context, id int64) (*models.Curriculum, error)
	GetForTeacher(ctx context.Context, principal models.Principal, id int64) (*models.Curriculum, error)
	CodeExists(ctx context.Context, code string, excludeID int64) (bool, error)
	Create(ctx context.Context, actor models.Principal, req service.CurriculumRequest) (*models.Curriculum, error)
	Update(ctx context.Context, actor models.Principal, id int64, req service.CurriculumRequest) (*models.Curriculum, error)
	Delete(ctx context.Context, actor models.Principal, id int64) (bool, error)
}

type rosterExporter interface {
	Export(ctx context.Context, principal models.Principal, id int64, format string) (*service.Roster, error)
}

// CurriculumHandler exposes curriculum endpoints for administrators and teachers.
type CurriculumHandler struct {
	service curriculumService
	rosters rosterExporter
}

// NewCurriculumHandler constructs a curriculum handler.
func NewCurriculumHandler(svc curriculumService, rosters rosterExporter) *CurriculumHandler {
	return &CurriculumHandler{service: svc, rosters: rosters}
}

// List godoc
// @Summary List curricula
// @Tags Curricula
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/curricula [get]
func (h *CurriculumHandler) List(c *gin.Context) {
	curricula, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, curricula, nil)
}

// Get godoc
// @Summary Get curriculum with its subject teachers and students
// @Tags Curricula
// @Produce json
// @Param id path int true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/curricula/{id} [get]
func (h *CurriculumHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	curriculum, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, curriculum, nil)
}

// CodeExists godoc
// @Summary Check whether a curriculum code is taken
// @Tags Curricula
// @Produce json
// @Param code query string true "Curriculum code"
// @Param exclude_id query int false "Curriculum being edited"
// @Success 200 {object} response.Envelope
// @Router /admin/curricula/code-exists [get]
func (h *CurriculumHandler) CodeExists(c *gin.Context) {
	var excludeID int64
	if raw := c.Query("exclude_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, appErrors.Validation("invalid query",
				appErrors.FieldError{Field: "exclude_id", Message: "must be an integer"}))
			return
		}
		excludeID = parsed
	}
	exists, err := h.service.CodeExists(c.Request.Context(), c.Query("code"), excludeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"exists": exists}, nil)
}

// Create godoc
// @Summary Create curriculum
// @Tags Curricula
// @Accept json
// @Produce json
// @Param payload body service.CurriculumRequest true "Curriculum payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/curricula [post]
func (h *CurriculumHandler) Create(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req service.CurriculumRequest
	if !bindJSON(c, &req) {
		return
	}
	curriculum, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, curriculum)
}

// Update godoc
// @Summary Update curriculum
// @Description Replaces the subject teacher and student sets with the submitted ones
// @Tags Curricula
// @Accept json
// @Produce json
// @Param id path int true "Curriculum ID"
// @Param payload body service.CurriculumRequest true "Curriculum payload"
// @Success 200 {object} response.Envelope
// @Router /admin/curricula/{id} [put]
func (h *CurriculumHandler) Update(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req service.CurriculumRequest
	if !bindJSON(c, &req) {
		return
	}
	curriculum, err := h.service.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, curriculum, nil)
}

// Delete godoc
// @Summary Delete curriculum
// @Tags Curricula
// @Produce json
// @Param id path int true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Router /admin/curricula/{id} [delete]
func (h *CurriculumHandler) Delete(c *gin.Context) {
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

// Roster godoc
// @Summary Download curriculum roster
// @Tags Curricula
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Curriculum ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /admin/curricula/{id}/roster [get]
// @Router /teacher/curricula/{id}/roster [get]
func (h *CurriculumHandler) Roster(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	roster, err := h.rosters.Export(c.Request.Context(), principal, id, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", roster.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, roster.ContentType, roster.Body)
}

// TeacherList godoc
// @Summary List curricula where the signed-in teacher teaches a subject
// @Tags Teacher Portal
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/curricula [get]
func (h *CurriculumHandler) TeacherList(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	curricula, err := h.service.ListByTeacher(c.Request.Context(), principal.SubjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, curricula, nil)
}

// TeacherGet godoc
// @Summary Get a curriculum the signed-in teacher is assigned to
// @Tags Teacher Portal
// @Produce json
// @Param id path int true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teacher/curricula/{id} [get]
func (h *CurriculumHandler) TeacherGet(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	curriculum, err := h.service.GetForTeacher(c.Request.Context(), principal, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, curriculum, nil)
}
