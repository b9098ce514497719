// Package pipeline defines the contracts the gateway uses to reach the agent
// pipeline, together with the implementations shipped with peerbridge.
package pipeline

import (
	"context"
	"time"
)

type PeerDescriptor struct {
	Kind string
	ID   string
}

type RouteInput struct {
	Channel   string
	AccountID string
	Peer      PeerDescriptor
}

type Route struct {
	AgentID        string
	SessionKey     string
	MainSessionKey string
}

type RouteResolver interface {
	ResolveAgentRoute(ctx context.Context, in RouteInput) (Route, error)
}

type SessionRecord struct {
	StorePath  string
	SessionKey string
	Context    InboundContext
}

type SessionStore interface {
	ResolveStorePath(agentID string) string
	RecordInboundSession(ctx context.Context, rec SessionRecord) error
}

type EnvelopeInput struct {
	Channel   string
	From      string
	Timestamp time.Time
	Body      string
}

// ContextFields are the raw fields the gateway knows about a turn before the
// pipeline normalizes them into an InboundContext
type ContextFields struct {
	Body              string
	RawBody           string
	CommandBody       string
	From              string
	To                string
	SessionKey        string
	AccountID         string
	ChatType          string
	ConversationLabel string
	SenderName        string
	SenderID          string
	Provider          string
	Surface           string
	MessageSID        string
	OriginatingTo     string
	Timestamp         time.Time
}

// InboundContext is the finalized turn handed to the reply dispatcher
type InboundContext struct {
	Body              string    `json:"body"`
	RawBody           string    `json:"raw_body"`
	CommandBody       string    `json:"command_body"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	SessionKey        string    `json:"session_key"`
	AccountID         string    `json:"account_id"`
	ChatType          string    `json:"chat_type"`
	ConversationLabel string    `json:"conversation_label"`
	SenderName        string    `json:"sender_name"`
	SenderID          string    `json:"sender_id"`
	Provider          string    `json:"provider"`
	Surface           string    `json:"surface"`
	MessageSID        string    `json:"message_sid"`
	OriginatingTo     string    `json:"originating_to"`
	Timestamp         time.Time `json:"timestamp"`
	CommandAuthorized bool      `json:"command_authorized"`
}

type EnvelopeFormatter interface {
	FormatInboundEnvelope(in EnvelopeInput) string
	FinalizeInboundContext(fields ContextFields) InboundContext
}

// Fragment is one block of reply text produced during dispatch
type Fragment struct {
	Text string
}

type DispatchConfig struct {
	AgentID        string
	MainSessionKey string
}

type DispatchInput struct {
	Context InboundContext
	Config  DispatchConfig
	// Deliver is called zero or more times, in order, before DispatchReply
	// returns. A delivery error aborts the dispatch.
	Deliver func(Fragment) error
}

type DispatchSummary struct {
	Fragments int
	Completed bool
	TotalTime time.Duration
}

type ReplyDispatcher interface {
	DispatchReply(ctx context.Context, in DispatchInput) (DispatchSummary, error)
}
