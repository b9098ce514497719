package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"peerbridge/internal/shared"
)

const (
	contentTypeJSON = "application/json"
	errorType       = "server_error"
)

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": contentTypeJSON}
}

// SuccessResponse renders the chat.completion envelope for the joined reply
func SuccessResponse(requestID, text string, now time.Time) *Response {
	body, err := json.Marshal(shared.ChatCompletionResponse{
		ID:      "chatcmpl-" + requestID,
		Object:  "chat.completion",
		Created: now.Unix(),
		Choices: []shared.Choice{{
			Index:        0,
			Message:      shared.ChatMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
	})
	if err != nil {
		return ErrorResponse(500, fmt.Sprintf("failed to encode response: %s", err))
	}
	return &Response{StatusCode: 200, Headers: jsonHeaders(), Body: body}
}

// ErrorResponse renders the error envelope. The type tag never changes, only
// code and message do.
func ErrorResponse(code int, message string) *Response {
	body, err := json.Marshal(shared.ErrorResponse{
		Error: shared.ErrorDetail{
			Message: message,
			Type:    errorType,
			Code:    code,
		},
	})
	if err != nil {
		body = []byte(`{"error":{"message":"internal server error","type":"server_error","code":500}}`)
		code = 500
	}
	return &Response{StatusCode: code, Headers: jsonHeaders(), Body: body}
}

func errorFromRequestError(rerr *shared.RequestError) *Response {
	return ErrorResponse(rerr.StatusCode, rerr.Message())
}
