package gateway

import (
	"encoding/json"
	"net/http"

	"peerbridge/internal/shared"
)

// ParseRequest decodes the chat completion body. A body that fails to decode
// is reported as an internal error carrying the decoder message.
func ParseRequest(body []byte) (*shared.ChatCompletionRequest, error) {
	var payload shared.ChatCompletionRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &shared.RequestError{StatusCode: http.StatusInternalServerError, Err: err}
	}
	return &payload, nil
}

type ConversationTurn struct {
	Role    string
	Content string
}

// LastUserTurn scans from the end for the newest user turn with content
func LastUserTurn(messages []shared.ChatMessage) (ConversationTurn, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == "user" && m.Content != "" {
			return ConversationTurn{Role: m.Role, Content: m.Content}, true
		}
	}
	return ConversationTurn{}, false
}

// modelFromBody is a best-effort lookup used by the audit log, it never fails
func modelFromBody(body []byte) *string {
	var payload struct {
		Model *string `json:"model"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	return payload.Model
}
