// Package middleware holds the echo middleware shared by every route
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"peerbridge/internal/gateway"
	"peerbridge/internal/metrics"
	"peerbridge/internal/setup"
	"peerbridge/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const requestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewTrackMiddleware installs the per request context. The request id is
// taken from the transport when it sends one and echoed back to the caller.
func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			reqID := req.Header.Get(shared.RequestIDHeader)
			if reqID == "" {
				reqID, _ = nanoid.Generate(requestIDAlphabet, 28)
			}
			c.Response().Header().Set(shared.RequestIDHeader, reqID)

			cc := &setup.Context{
				Context: c,
				Log: log.With(
					"request_id", reqID,
					"buyer_peer_id", req.Header.Get(shared.BuyerPeerIDHeader),
				),
				Reqid: reqID,
			}

			start := time.Now()
			err := next(cc)
			status := strconv.Itoa(cc.Response().Status)
			cc.Log.Infow("end_of_request",
				"method", req.Method,
				"path", cc.Path(),
				"status_code", status,
				"duration", time.Since(start).String(),
			)
			metrics.ResponseCodes.WithLabelValues(cc.Path(), status).Inc()
			return err
		}
	}
}

// NewRecoverMiddleware turns a panic in the adapter into the same JSON error
// envelope the gateway returns
func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger := log
			if cc, ok := c.(*setup.Context); ok {
				logger = cc.Log
			}
			logger.Errorw("Adapter panic", "error", err.Error(), "stack", string(stack))
			metrics.ErrorCount.WithLabelValues("adapter_panic").Inc()

			resp := gateway.ErrorResponse(http.StatusInternalServerError, shared.ErrInternalServerError.Message())
			return c.Blob(resp.StatusCode, resp.Headers["Content-Type"], resp.Body)
		},
	})
}
