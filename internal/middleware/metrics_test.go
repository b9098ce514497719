package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"peerbridge/internal/setup"
	"peerbridge/internal/shared"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newServer(handler echo.HandlerFunc) *echo.Echo {
	log := zap.NewNop().Sugar()
	e := echo.New()
	base := e.Group("")
	base.Use(NewRecoverMiddleware(log))
	base.Use(NewTrackMiddleware(log))
	base.GET("/test", handler)
	return e
}

func TestRecoverMiddlewareReturnsErrorEnvelope(t *testing.T) {
	e := newServer(func(echo.Context) error {
		panic("adapter exploded")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/json")
	assert.JSONEq(t, `{"error":{"message":"internal server error","type":"server_error","code":500}}`, rec.Body.String())
}

func TestTrackMiddlewareRequestID(t *testing.T) {
	var seen string
	e := newServer(func(c echo.Context) error {
		cc, ok := c.(*setup.Context)
		require.True(t, ok)
		seen = cc.Reqid
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(shared.RequestIDHeader, "from-transport")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "from-transport", seen)
	assert.Equal(t, "from-transport", rec.Header().Get(shared.RequestIDHeader))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Len(t, seen, 28)
	assert.Equal(t, seen, rec.Header().Get(shared.RequestIDHeader))
}
