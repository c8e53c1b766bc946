package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithID(t *testing.T, incoming string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if incoming != "" {
		req.Header.Set(Header, incoming)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return seen, rec.Header().Get(Header)
}

func TestMiddlewareKeepsIncomingID(t *testing.T) {
	seen, echoed := serveWithID(t, "req-42")
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", echoed)
}

func TestMiddlewareGeneratesID(t *testing.T) {
	cases := map[string]string{
		"missing":       "",
		"whitespace":    "bad id",
		"control chars": "line\nbreak",
		"too long":      strings.Repeat("a", maxLength+1),
	}
	for name, incoming := range cases {
		t.Run(name, func(t *testing.T) {
			seen, echoed := serveWithID(t, incoming)
			_, err := uuid.Parse(seen)
			require.NoError(t, err)
			assert.Equal(t, seen, echoed)
		})
	}
}

func TestValueWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, Value(c))
}
