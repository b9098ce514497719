package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"peerbridge/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sseChunk(content string) string {
	b, _ := json.Marshal(shared.StreamChunk{
		Object:  "chat.completion.chunk",
		Choices: []shared.StreamDelta{{Delta: shared.Delta{Content: content}}},
	})
	return "data: " + string(b) + "\n\n"
}

type captured struct {
	body    shared.AgentRequest
	headers http.Header
}

func agentServer(t *testing.T, status int, lines ...string) (*httptest.Server, chan captured) {
	t.Helper()
	reqs := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{headers: r.Header.Clone()}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		select {
		case reqs <- c:
		default:
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprint(w, l)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func collect(t *testing.T, d *HTTPDispatcher) ([]string, DispatchSummary, error) {
	t.Helper()
	var fragments []string
	summary, err := d.DispatchReply(context.Background(), DispatchInput{
		Context: InboundContext{Body: "[peerbridge direct from x] hi", SessionKey: "agent:main:peerbridge:direct:req-1", MessageSID: "req-1"},
		Config:  DispatchConfig{AgentID: "main"},
		Deliver: func(f Fragment) error {
			fragments = append(fragments, f.Text)
			return nil
		},
	})
	return fragments, summary, err
}

func TestHTTPDispatcherSplitsParagraphs(t *testing.T) {
	srv, reqs := agentServer(t, http.StatusOK,
		sseChunk("Fir"),
		sseChunk("st\n"),
		sseChunk("\nSec"),
		sseChunk("ond\n\nThird"),
		"data: [DONE]\n\n",
	)
	d := NewHTTPDispatcher(srv.URL, "secret", "agent-model", zap.NewNop().Sugar())

	fragments, summary, err := collect(t, d)

	require.NoError(t, err)
	assert.Equal(t, []string{"First", "Second", "Third"}, fragments)
	assert.Equal(t, 3, summary.Fragments)
	assert.True(t, summary.Completed)

	got := <-reqs
	assert.Equal(t, "agent-model", got.body.Model)
	assert.True(t, got.body.Stream)
	assert.Equal(t, "agent:main:peerbridge:direct:req-1", got.body.User)
	require.Len(t, got.body.Messages, 1)
	assert.Equal(t, "user", got.body.Messages[0].Role)
	assert.Equal(t, "Bearer secret", got.headers.Get("Authorization"))
	assert.Equal(t, "req-1", got.headers.Get("X-Request-ID"))
}

func TestHTTPDispatcherNoContent(t *testing.T) {
	srv, _ := agentServer(t, http.StatusOK, "data: [DONE]\n\n")
	d := NewHTTPDispatcher(srv.URL, "", "agent-model", zap.NewNop().Sugar())

	fragments, summary, err := collect(t, d)

	require.NoError(t, err)
	assert.Empty(t, fragments)
	assert.Equal(t, 0, summary.Fragments)
}

func TestHTTPDispatcherMissingDoneStillDelivers(t *testing.T) {
	srv, _ := agentServer(t, http.StatusOK, sseChunk("partial"))
	d := NewHTTPDispatcher(srv.URL, "", "agent-model", zap.NewNop().Sugar())

	fragments, summary, err := collect(t, d)

	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, fragments)
	assert.Equal(t, 1, summary.Fragments)
	assert.False(t, summary.Completed)
}

func TestHTTPDispatcherUpstreamStatus(t *testing.T) {
	srv, _ := agentServer(t, http.StatusBadGateway)
	d := NewHTTPDispatcher(srv.URL, "", "agent-model", zap.NewNop().Sugar())

	_, _, err := collect(t, d)

	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAgentReqFromCode))
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPDispatcherDeliveryError(t *testing.T) {
	srv, _ := agentServer(t, http.StatusOK, sseChunk("one\n\ntwo"), "data: [DONE]\n\n")
	d := NewHTTPDispatcher(srv.URL, "", "agent-model", zap.NewNop().Sugar())

	_, err := d.DispatchReply(context.Background(), DispatchInput{
		Deliver: func(Fragment) error { return errors.New("sink closed") },
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDeliveryFailed))
}

func TestHTTPDispatcherFirstTokenTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	d := NewHTTPDispatcher(srv.URL, "", "agent-model", zap.NewNop().Sugar())
	d.FirstTokenTimeout = 50 * time.Millisecond

	_, _, err := collect(t, d)

	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAgentContext))
}

func TestHTTPDispatcherReusesClientPerHost(t *testing.T) {
	d := NewHTTPDispatcher("http://agent.local:8080/v1/chat/completions", "", "m", zap.NewNop().Sugar())
	a := d.getHTTPClient("http://agent.local:8080/v1/chat/completions")
	b := d.getHTTPClient("http://agent.local:8080/other")
	assert.Same(t, a, b)
}
