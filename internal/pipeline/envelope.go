package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Envelope is the default formatter for inbound turns
type Envelope struct {
	Now func() time.Time
}

func (e Envelope) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// FormatInboundEnvelope prefixes the body with a header naming the channel,
// the sender and the time the turn was received
func (e Envelope) FormatInboundEnvelope(in EnvelopeInput) string {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	header := fmt.Sprintf("[%s direct from %s %s]", in.Channel, in.From, ts.UTC().Format(time.RFC3339))
	return header + " " + in.Body
}

func (e Envelope) FinalizeInboundContext(fields ContextFields) InboundContext {
	ts := fields.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	chatType := strings.ToLower(strings.TrimSpace(fields.ChatType))
	if chatType == "" {
		chatType = "direct"
	}
	rawBody := fields.RawBody
	if rawBody == "" {
		rawBody = fields.Body
	}
	commandBody := fields.CommandBody
	if commandBody == "" {
		commandBody = rawBody
	}
	label := fields.ConversationLabel
	if label == "" {
		label = fields.SenderName
	}
	return InboundContext{
		Body:              fields.Body,
		RawBody:           rawBody,
		CommandBody:       commandBody,
		From:              fields.From,
		To:                fields.To,
		SessionKey:        fields.SessionKey,
		AccountID:         fields.AccountID,
		ChatType:          chatType,
		ConversationLabel: label,
		SenderName:        fields.SenderName,
		SenderID:          fields.SenderID,
		Provider:          fields.Provider,
		Surface:           fields.Surface,
		MessageSID:        fields.MessageSID,
		OriginatingTo:     fields.OriginatingTo,
		Timestamp:         ts,
		// Remote buyers never get to run agent commands
		CommandAuthorized: false,
	}
}
