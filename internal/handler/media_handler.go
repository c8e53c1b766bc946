package handler

import (
	"errors"
	"os"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
	"github.com/noah-isme/student-tracker-api/pkg/response"
)

type mediaResolver interface {
	Resolve(token string) (string, error)
}

type mediaFiles interface {
	Path(filename string) (string, error)
}

// MediaHandler serves profile pictures behind signed, expiring tokens.
type MediaHandler struct {
	resolver mediaResolver
	files    mediaFiles
}

// NewMediaHandler constructs a media handler.
func NewMediaHandler(resolver mediaResolver, files mediaFiles) *MediaHandler {
	return &MediaHandler{resolver: resolver, files: files}
}

// Serve godoc
// @Summary Serve a signed media file
// @Tags Media
// @Produce image/jpeg
// @Param token path string true "Signed media token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /media/{token} [get]
func (h *MediaHandler) Serve(c *gin.Context) {
	relPath, err := h.resolver.Resolve(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	fullPath, err := h.files.Path(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "media not found"))
		return
	}
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "media not found"))
			return
		}
		response.Error(c, appErrors.Internal(err, "failed to read media"))
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.File(fullPath)
}
