package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"peerbridge/internal/shared"

	"go.uber.org/zap"
)

// HTTPDispatcher runs a turn against an OpenAI compatible agent endpoint and
// delivers the streamed reply one paragraph block at a time
type HTTPDispatcher struct {
	URL               string
	APIKey            string
	Model             string
	Log               *zap.SugaredLogger
	DispatchTimeout   time.Duration
	FirstTokenTimeout time.Duration

	httpClients  map[string]*http.Client
	clientsMutex sync.RWMutex
}

func NewHTTPDispatcher(agentURL, apiKey, model string, log *zap.SugaredLogger) *HTTPDispatcher {
	return &HTTPDispatcher{
		URL:               agentURL,
		APIKey:            apiKey,
		Model:             model,
		Log:               log,
		DispatchTimeout:   shared.DefaultDispatchTimeout,
		FirstTokenTimeout: shared.DefaultFirstTokenTimeout,
		httpClients:       make(map[string]*http.Client),
	}
}

func (d *HTTPDispatcher) getHTTPClient(agentURL string) *http.Client {
	parsedURL, err := url.Parse(agentURL)
	if err != nil {
		d.Log.Warnw("Failed to parse agent URL, using full URL as key", "url", agentURL, "error", err)
		parsedURL = &url.URL{Host: agentURL}
	}
	host := parsedURL.Host

	d.clientsMutex.RLock()
	if client, exists := d.httpClients[host]; exists {
		d.clientsMutex.RUnlock()
		return client
	}
	d.clientsMutex.RUnlock()

	d.clientsMutex.Lock()
	defer d.clientsMutex.Unlock()

	if client, exists := d.httpClients[host]; exists {
		return client
	}

	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 2 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 2 * time.Second,
		DisableKeepAlives:   false,
	}
	client := &http.Client{Transport: tr, Timeout: d.DispatchTimeout}

	d.httpClients[host] = client
	d.Log.Infow("Created new HTTP client for host", "host", host, "full_url", agentURL)

	return client
}

func (d *HTTPDispatcher) DispatchReply(ctx context.Context, in DispatchInput) (DispatchSummary, error) {
	start := time.Now()
	summary := DispatchSummary{}

	body, err := json.Marshal(shared.AgentRequest{
		Model:    d.Model,
		Messages: []shared.ChatMessage{{Role: "user", Content: in.Context.Body}},
		Stream:   true,
		User:     in.Context.SessionKey,
	})
	if err != nil {
		return summary, fmt.Errorf("failed to marshal agent request: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, d.DispatchTimeout)
	// Agents that never produce a first token are cut off early
	var timeoutOccurred atomic.Bool
	timer := time.AfterFunc(d.FirstTokenTimeout, func() {
		timeoutOccurred.Store(true)
		cancel()
	})
	defer func() {
		timer.Stop()
		cancel()
	}()

	r, err := http.NewRequestWithContext(rctx, http.MethodPost, d.URL, bytes.NewBuffer(body))
	if err != nil {
		return summary, fmt.Errorf("failed building agent request: %w", err)
	}
	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "text/event-stream",
		"Connection":   "keep-alive",
		"X-Request-ID": in.Context.MessageSID,
	}
	if d.APIKey != "" {
		headers["Authorization"] = "Bearer " + d.APIKey
	}
	for key, value := range headers {
		r.Header.Set(key, value)
	}

	res, err := d.getHTTPClient(d.URL).Do(r)
	defer func() {
		if res != nil && res.Body != nil {
			if closeErr := res.Body.Close(); closeErr != nil {
				d.Log.Warnw("Failed to close agent response body", "error", closeErr)
			}
		}
	}()
	if err != nil && timeoutOccurred.Load() {
		return summary, errors.Join(errors.New("agent did not respond in time"), shared.ErrAgentContext)
	}
	if err != nil {
		return summary, errors.Join(shared.ErrAgentReq, err)
	}
	if res.StatusCode != http.StatusOK {
		return summary, errors.Join(fmt.Errorf("agent request failed with status %d", res.StatusCode), shared.ErrAgentReqFromCode)
	}

	var block strings.Builder
	deliver := func(text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		if err := in.Deliver(Fragment{Text: text}); err != nil {
			return errors.Join(shared.ErrDeliveryFailed, err)
		}
		summary.Fragments++
		return nil
	}

	hasDone := false
	firstToken := true
	reader := bufio.NewScanner(res.Body)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for reader.Scan() {
		token := reader.Text()
		if token == "" {
			continue
		}
		jsonData, found := strings.CutPrefix(token, "data: ")
		if !found {
			continue
		}
		if firstToken {
			firstToken = false
			timer.Stop()
		}
		if jsonData == "[DONE]" {
			hasDone = true
			break
		}

		var chunk shared.StreamChunk
		if err := json.Unmarshal([]byte(jsonData), &chunk); err != nil {
			d.Log.Debugw("Skipping malformed agent chunk", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		block.WriteString(chunk.Choices[0].Delta.Content)

		// Emit every complete paragraph, keep the remainder buffered
		buffered := block.String()
		idx := strings.LastIndex(buffered, "\n\n")
		if idx < 0 {
			continue
		}
		for _, para := range strings.Split(buffered[:idx], "\n\n") {
			if err := deliver(para); err != nil {
				return summary, err
			}
		}
		block.Reset()
		block.WriteString(buffered[idx+2:])
	}

	if err := reader.Err(); err != nil {
		if timeoutOccurred.Load() {
			return summary, errors.Join(errors.New("agent did not respond in time"), shared.ErrAgentContext)
		}
		return summary, errors.Join(shared.ErrFailedReadingStream, err)
	}
	if rctx.Err() != nil && !hasDone {
		return summary, errors.Join(shared.ErrAgentContext, rctx.Err())
	}
	if err := deliver(block.String()); err != nil {
		return summary, err
	}
	if !hasDone {
		d.Log.Warnw("Agent stream ended without done token", "error", shared.ErrMissingDoneToken.Error())
	}

	summary.Completed = hasDone
	summary.TotalTime = time.Since(start)
	return summary, nil
}
