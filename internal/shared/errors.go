package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode.
// The gateway renders Err.Error() verbatim as the response message, so the
// wrapped error should be the text the caller is meant to see.
//
// Error codes should be bubbled where the RequestError msg is expected to be
// returned to the caller. If the caller should see a generic error message but
// the error chain should include more detail for logging purposes, then a
// generic error should be joined that provides context
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

func (r *RequestError) Unwrap() error {
	return r.Err
}

// Message is the text sent back to the caller
func (r *RequestError) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}
	ErrInvalidKeyLen = &RequestError{Err: errors.New("invalid API key length"), StatusCode: 401}

	ErrBuyerNotAllowed     = &RequestError{Err: errors.New("Buyer not allowed"), StatusCode: 403}
	ErrMaxConcurrency      = &RequestError{Err: errors.New("Max concurrency reached"), StatusCode: 429}
	ErrNoUserMessage       = &RequestError{Err: errors.New("No user message found"), StatusCode: 400}
	ErrFailedReadingBody   = &RequestError{Err: errors.New("failed to read request body"), StatusCode: 400}
	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}

	ErrAgentReq            = &MetricsError{Msg: "failed to send http request to agent", Code: "agent_http_err"}
	ErrAgentReqFromCode    = &MetricsError{Msg: "agent responded with non-200", Code: "agent_http_status_err"}
	ErrFailedReadingStream = &MetricsError{Msg: "failed to read agent stream", Code: "agent_stream_err"}
	ErrMissingDoneToken    = &MetricsError{Msg: "missing [DONE] token", Code: "missing_done_token"}
	ErrAgentContext        = &MetricsError{Msg: "agent context canceled", Code: "agent_context_err"}
	ErrDeliveryFailed      = &MetricsError{Msg: "fragment delivery failed", Code: "delivery_err"}
)

type MetricsError struct {
	Msg  string
	Code string
}

func (m *MetricsError) Error() string {
	return m.String()
}

func (m *MetricsError) String() string {
	return m.Msg
}
