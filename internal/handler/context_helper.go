package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-tracker-api/internal/middleware"
	"github.com/noah-isme/student-tracker-api/internal/models"
	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
	"github.com/noah-isme/student-tracker-api/pkg/response"
)

// maxUploadBytes caps multipart bodies before the picture service applies its own limit.
const maxUploadBytes = 16 << 20

// deleteResult is the payload returned by delete endpoints.
type deleteResult struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

func principalFromContext(c *gin.Context) (models.Principal, bool) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "login required"))
		return models.Principal{}, false
	}
	return principal, true
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Validation("invalid id",
			appErrors.FieldError{Field: name, Message: "must be a positive integer"}))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func parseQueryBool(c *gin.Context, key string) *bool {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &val
}

// readPicture reads the "picture" multipart field.
func readPicture(c *gin.Context) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	header, err := c.FormFile("picture")
	if err != nil {
		response.Error(c, appErrors.Validation("invalid upload",
			appErrors.FieldError{Field: "picture", Message: "picture file is required"}))
		return "", nil, false
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return "", nil, false
	}
	return header.Filename, data, true
}
