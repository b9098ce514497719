package routers

import (
	"peerbridge/internal/gateway"
	"peerbridge/internal/setup"
	"peerbridge/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// EchoRegistrar lets the gateway register itself on an echo group the same
// way it would on a peer transport
type EchoRegistrar struct {
	group *echo.Group
	log   *zap.SugaredLogger
}

func NewEchoRegistrar(group *echo.Group, log *zap.SugaredLogger) *EchoRegistrar {
	return &EchoRegistrar{group: group, log: log}
}

func (r *EchoRegistrar) RegisterHandler(method, path string, h gateway.Handler) {
	r.group.Add(method, path, func(cc echo.Context) error {
		c := asContext(cc, r.log)
		body, err := readRequestBody(c)
		if err != nil {
			return writeResponse(c, gateway.ErrorResponse(shared.ErrFailedReadingBody.StatusCode, shared.ErrFailedReadingBody.Message()))
		}
		resp := h(c.Request().Context(), toInbound(c, body))
		return writeResponse(c, resp)
	})
}

func toInbound(c *setup.Context, body []byte) *gateway.InboundRequest {
	req := c.Request()
	headers := make(map[string]string, len(req.Header))
	for k, vs := range req.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}
	reqID := c.Reqid
	if reqID == "" {
		reqID = req.Header.Get(shared.RequestIDHeader)
	}
	if reqID == "" {
		reqID, _ = nanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 28)
	}
	return &gateway.InboundRequest{
		RequestID: reqID,
		Method:    req.Method,
		Path:      req.URL.Path,
		Headers:   headers,
		Body:      body,
	}
}

func writeResponse(c echo.Context, resp *gateway.Response) error {
	for k, v := range resp.Headers {
		c.Response().Header().Set(k, v)
	}
	c.Response().WriteHeader(resp.StatusCode)
	_, err := c.Response().Write(resp.Body)
	return err
}

// RegisterGatewayRoutes mounts the chat completion route and a model listing
// that advertises the configured agent
func RegisterGatewayRoutes(e *echo.Group, g *gateway.Gateway, agentID string, log *zap.SugaredLogger) {
	g.Register(NewEchoRegistrar(e, log))

	e.GET("/v1/models", func(c echo.Context) error {
		return c.JSON(200, shared.ModelList{
			Object: "list",
			Data: []shared.Model{{
				ID:      agentID,
				Object:  "model",
				OwnedBy: shared.ChannelTag,
			}},
		})
	})
}
