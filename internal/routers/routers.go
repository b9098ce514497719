// Package routers mounts the gateway on an echo server
package routers

import (
	"io"

	"peerbridge/internal/setup"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func readRequestBody(c *setup.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Log.Errorw("Failed to read request body", "error", err.Error())
		return nil, err
	}
	return body, nil
}

// asContext returns the per request context installed by the track
// middleware, building a bare one if the route is mounted without it
func asContext(cc echo.Context, log *zap.SugaredLogger) *setup.Context {
	if c, ok := cc.(*setup.Context); ok {
		return c
	}
	return &setup.Context{Context: cc, Log: log}
}
