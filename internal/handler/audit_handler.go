package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-tracker-api/internal/models"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
	"github.com/noah-isme/student-tracker-api/pkg/response"
)

type auditLister interface {
	ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]models.AuditLog, error)
}

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	service auditLister
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(svc auditLister) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit entries of an entity
// @Tags Admin
// @Produce json
// @Param entity_type query string true "Admin, Teacher, Subject, Student or Curriculum"
// @Param entity_id query int true "Entity ID"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /admin/audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	entityID, err := strconv.ParseInt(c.Query("entity_id"), 10, 64)
	if err != nil || entityID <= 0 {
		response.Error(c, appErrors.Validation("invalid audit query",
			appErrors.FieldError{Field: "entity_id", Message: "must be a positive integer"}))
		return
	}
	logs, err := h.service.ListByEntity(c.Request.Context(), c.Query("entity_type"), entityID, parseQueryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
