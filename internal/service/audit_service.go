package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-tracker-api/internal/models"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

const (
	maxAuditDetails = 1000
	auditTimeout    = 5 * time.Second
)

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]models.AuditLog, error)
}

type auditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry describes one audited action.
type AuditEntry struct {
	Action     string
	EntityType string
	EntityID   int64
	Actor      string
	Details    string
}

// AuditService appends audit entries on a best-effort basis.
type AuditService struct {
	repo    auditRepository
	logger  *zap.Logger
	metrics *MetricsService
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditRepository, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger, metrics: metrics}
}

// Record stores the entry. Failures are logged and counted, never returned.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if s == nil || s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	log := &models.AuditLog{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Username:   entry.Actor,
	}
	if details := strings.TrimSpace(entry.Details); details != "" {
		if len(details) > maxAuditDetails {
			details = details[:maxAuditDetails]
		}
		log.Details = &details
	}

	if err := s.repo.Create(ctx, log); err != nil {
		s.metrics.RecordAuditFailure()
		s.logger.Warn("failed to record audit log",
			zap.String("action", entry.Action),
			zap.String("entity_type", entry.EntityType),
			zap.Int64("entity_id", entry.EntityID),
			zap.Error(err),
		)
	}
}

// ListByEntity returns the audit trail of an entity, newest first.
func (s *AuditService) ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]models.AuditLog, error) {
	switch entityType {
	case models.EntityAdmin, models.EntityTeacher, models.EntitySubject, models.EntityStudent, models.EntityCurriculum:
	default:
		return nil, appErrors.Validation("invalid audit query", appErrors.FieldError{Field: "entity_type", Message: "unknown entity type"})
	}
	logs, err := s.repo.ListByEntity(ctx, entityType, entityID, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list audit logs")
	}
	return logs, nil
}
