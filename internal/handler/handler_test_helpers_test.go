package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-tracker-api/internal/middleware"
	"github.com/noah-isme/student-tracker-api/internal/models"
)

var (
	testAdmin   = models.Principal{SubjectID: 1, Username: "admin", DisplayName: "System Administrator", Role: models.RoleAdmin}
	testTeacher = models.Principal{SubjectID: 5, Username: "msantos", DisplayName: "Maria Santos", Role: models.RoleTeacher}
)

type envelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *errorBody         `json:"error"`
	Pagination *models.Pagination `json:"pagination"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

// newTestContext builds a gin context; a non-nil principal is attached as the session user.
func newTestContext(method, target string, body io.Reader, principal *models.Principal) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if principal != nil {
		c.Set(middleware.ContextUserKey, *principal)
		c.Set(middleware.ContextSessionKey, "session-1")
	}
	return c, w
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	env := decodeEnvelope(t, w)
	require.Nil(t, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}

