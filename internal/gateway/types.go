package gateway

import (
	"context"
	"strings"
	"time"
)

// InboundRequest is the serialized request handed over by the transport
type InboundRequest struct {
	RequestID string
	Method    string
	Path      string
	Headers   map[string]string
	Body      []byte
}

// Header looks up a header by name. Transports may lowercase or canonicalize
// keys, so an exact match is tried first and then a case-insensitive one.
func (r *InboundRequest) Header(name string) (string, bool) {
	if v, ok := r.Headers[name]; ok {
		return v, true
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

type Handler func(ctx context.Context, req *InboundRequest) *Response

// Registrar is implemented by transports that route requests to a handler
type Registrar interface {
	RegisterHandler(method, path string, h Handler)
}

// PipelineInvocation is owned by a single request for its whole lifecycle
type PipelineInvocation struct {
	RequestID string
	Content   string
	AccountID string
}

type UsageRecorder interface {
	AddInFlight(buyer string)
	RemoveInFlight(buyer string)
	RecordRequest(buyer string, statusCode int, duration time.Duration)
}
