package service

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
	"github.com/noah-isme/student-tracker-api/pkg/media"
)

// Picture kinds double as the storage sub-directory.
const (
	PictureKindTeacher = "teachers"
	PictureKindStudent = "students"
)

type fileStore interface {
	Save(filename string, data []byte) (string, error)
	Delete(filename string) error
}

type mediaSigner interface {
	Generate(relPath string) (string, time.Time, error)
	Parse(token string) (string, time.Time, error)
}

// ProfilePictureConfig bounds uploads and shapes download links.
type ProfilePictureConfig struct {
	MaxFileSize  int64
	MaxDimension int
	URLPrefix    string
}

// ProfilePictureService validates, normalises and stores profile pictures.
type ProfilePictureService struct {
	store  fileStore
	signer mediaSigner
	logger *zap.Logger
	config ProfilePictureConfig
}

// NewProfilePictureService constructs a ProfilePictureService.
func NewProfilePictureService(store fileStore, signer mediaSigner, logger *zap.Logger, cfg ProfilePictureConfig) *ProfilePictureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/media/"
	}
	return &ProfilePictureService{store: store, signer: signer, logger: logger, config: cfg}
}

// Store checks an upload and writes it as <kind>/<uuid>.jpg, returning the relative path.
func (s *ProfilePictureService) Store(kind, filename string, data []byte) (string, error) {
	if err := media.CheckPicture(filename, data, s.config.MaxFileSize); err != nil {
		return "", pictureValidation(err, s.config.MaxFileSize)
	}
	normalized, err := media.NormalizePicture(data, s.config.MaxDimension)
	if err != nil {
		if errors.Is(err, media.ErrUndecodableImage) {
			return "", pictureValidation(err, s.config.MaxFileSize)
		}
		return "", appErrors.Internal(err, "failed to process picture")
	}
	name := path.Join(kind, uuid.NewString()+".jpg")
	stored, err := s.store.Save(name, normalized)
	if err != nil {
		return "", appErrors.Internal(err, "failed to store picture")
	}
	return stored, nil
}

// Discard removes a stored picture. Failures are logged and ignored.
func (s *ProfilePictureService) Discard(relPath *string) {
	if relPath == nil || *relPath == "" {
		return
	}
	if err := s.store.Delete(*relPath); err != nil {
		s.logger.Warn("failed to delete picture", zap.String("path", *relPath), zap.Error(err))
	}
}

// SignedURL returns an expiring download link, or "" when there is no picture.
func (s *ProfilePictureService) SignedURL(relPath *string) string {
	if relPath == nil || *relPath == "" || s.signer == nil {
		return ""
	}
	token, _, err := s.signer.Generate(*relPath)
	if err != nil {
		s.logger.Warn("failed to sign picture url", zap.String("path", *relPath), zap.Error(err))
		return ""
	}
	return strings.TrimSuffix(s.config.URLPrefix, "/") + "/" + token
}

// Resolve validates a media token and returns the stored path.
func (s *ProfilePictureService) Resolve(token string) (string, error) {
	relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "media not found")
	}
	return relPath, nil
}

func pictureValidation(err error, maxBytes int64) error {
	message := err.Error()
	if errors.Is(err, media.ErrFileTooLarge) {
		message = fmt.Sprintf("file size must not exceed %d MB", maxBytes/(1024*1024))
	}
	if errors.Is(err, media.ErrUndecodableImage) {
		message = media.ErrUndecodableImage.Error()
	}
	return appErrors.Validation("invalid picture", appErrors.FieldError{Field: "picture", Message: message})
}
