package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRouter(t *testing.T) {
	r := NewStaticRouter("Main")

	route, err := r.ResolveAgentRoute(context.Background(), RouteInput{
		Channel:   "peerbridge",
		AccountID: "default",
		Peer:      PeerDescriptor{Kind: "direct", ID: "req-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "main", route.AgentID)
	assert.Equal(t, "agent:main:peerbridge:direct:req-1", route.SessionKey)
	assert.Equal(t, "agent:main:main", route.MainSessionKey)

	_, err = r.ResolveAgentRoute(context.Background(), RouteInput{Channel: "peerbridge"})
	assert.Error(t, err)

	_, err = NewStaticRouter("").ResolveAgentRoute(context.Background(), RouteInput{Peer: PeerDescriptor{ID: "x"}})
	assert.Error(t, err)
}

func TestEnvelope(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := Envelope{Now: func() time.Time { return now }}

	body := e.FormatInboundEnvelope(EnvelopeInput{Channel: "peerbridge", From: "peerbridge:req-1", Body: "hello"})
	assert.Equal(t, "[peerbridge direct from peerbridge:req-1 2026-01-02T03:04:05Z] hello", body)

	ctx := e.FinalizeInboundContext(ContextFields{
		Body:       body,
		RawBody:    "hello",
		From:       "peerbridge:req-1",
		SenderName: "req-1",
		ChatType:   " Direct ",
	})
	assert.Equal(t, "direct", ctx.ChatType)
	assert.Equal(t, "hello", ctx.CommandBody)
	assert.Equal(t, "req-1", ctx.ConversationLabel)
	assert.Equal(t, now, ctx.Timestamp)
	assert.False(t, ctx.CommandAuthorized)
}

func TestRedisSessionStorePath(t *testing.T) {
	s := NewRedisSessionStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	assert.Equal(t, "peerbridge:sessions:main", s.ResolveStorePath("main"))
}

func TestRedisSessionStoreReportsFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()
	s := NewRedisSessionStore(client)

	err := s.RecordInboundSession(context.Background(), SessionRecord{
		StorePath:  s.ResolveStorePath("main"),
		SessionKey: "agent:main:peerbridge:direct:req-1",
		Context:    InboundContext{Body: "hi", Timestamp: time.Now()},
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "agent:main:peerbridge:direct:req-1"))

	err = s.RecordInboundSession(context.Background(), SessionRecord{})
	assert.Error(t, err)
}
