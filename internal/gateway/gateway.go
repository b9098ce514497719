package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"peerbridge/internal/metrics"
	"peerbridge/internal/pipeline"
	"peerbridge/internal/shared"

	"go.uber.org/zap"
)

type Config struct {
	MaxConcurrency int64
	AllowedBuyers  []string
	LogRequests    bool
	RequestLogPath string
	AccountID      string
}

type Deps struct {
	Router     pipeline.RouteResolver
	Sessions   pipeline.SessionStore
	Envelope   pipeline.EnvelopeFormatter
	Dispatcher pipeline.ReplyDispatcher
	// Usage is optional
	Usage UsageRecorder
	Log   *zap.SugaredLogger
	Now   func() time.Time
}

type Gateway struct {
	cfg       Config
	admission *Admission
	allowlist *Allowlist
	bridge    *Bridge
	audit     *AuditLog
	usage     UsageRecorder
	log       *zap.SugaredLogger
	now       func() time.Time
}

func New(cfg Config, deps Deps) (*Gateway, error) {
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max concurrency must be at least 1, got %d", cfg.MaxConcurrency)
	}
	if deps.Router == nil || deps.Dispatcher == nil {
		return nil, errors.New("router and dispatcher are required")
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	if deps.Sessions == nil {
		deps.Sessions = pipeline.NoopSessionStore{}
	}
	if deps.Envelope == nil {
		deps.Envelope = pipeline.Envelope{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.AccountID == "" {
		cfg.AccountID = shared.DefaultAccountID
	}
	if cfg.LogRequests && cfg.RequestLogPath == "" {
		cfg.RequestLogPath = shared.DefaultRequestLogPath
	}

	audit := NewAuditLog(cfg.RequestLogPath, cfg.LogRequests, deps.Log)
	audit.now = deps.Now
	admission := NewAdmission(cfg.MaxConcurrency)
	allowlist := NewAllowlist(cfg.AllowedBuyers)
	deps.Log.Infow("Gateway ready",
		"max_concurrency", admission.Max(),
		"allowed_buyers", allowlist.Len(),
		"request_log", audit.Enabled(),
	)

	return &Gateway{
		cfg:       cfg,
		admission: admission,
		allowlist: allowlist,
		bridge: &Bridge{
			Router:     deps.Router,
			Sessions:   deps.Sessions,
			Envelope:   deps.Envelope,
			Dispatcher: deps.Dispatcher,
			Log:        deps.Log,
			Now:        deps.Now,
		},
		audit: audit,
		usage: deps.Usage,
		log:   deps.Log,
		now:   deps.Now,
	}, nil
}

func (g *Gateway) Handler() Handler {
	return g.Handle
}

// Register hands the gateway to a transport on its single route
func (g *Gateway) Register(r Registrar) {
	r.RegisterHandler(http.MethodPost, shared.ChatCompletionsPath, g.Handle)
}

func (g *Gateway) InFlight() int64 {
	return g.admission.InFlight()
}

// requestState is what the audit log needs to know about a request, filled
// in as the request moves through the steps
type requestState struct {
	buyer   *string
	model   *string
	content string
}

// Handle always returns a response. Authorization runs before admission so
// rejected buyers never hold a slot, and the slot is released before the
// audit line is written.
func (g *Gateway) Handle(ctx context.Context, req *InboundRequest) (resp *Response) {
	start := time.Now()
	st := &requestState{}
	log := g.log.With("request_id", req.RequestID)

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Gateway panic", "panic", r)
			metrics.ErrorCount.WithLabelValues("panic").Inc()
			resp = ErrorResponse(http.StatusInternalServerError, fmt.Sprint(r))
		}
		g.finish(req, st, resp, time.Since(start))
	}()

	buyer, hasBuyer := req.Header(shared.BuyerPeerIDHeader)
	if hasBuyer && buyer != "" {
		st.buyer = &buyer
	}

	if !g.allowlist.Allowed(buyer, hasBuyer) {
		metrics.RejectedRequests.WithLabelValues("buyer_not_allowed").Inc()
		log.Infow("Rejected buyer", "buyer_peer_id", buyer)
		return errorFromRequestError(shared.ErrBuyerNotAllowed)
	}

	release, ok := g.admission.Acquire()
	if !ok {
		metrics.RejectedRequests.WithLabelValues("max_concurrency").Inc()
		log.Infow("Rejected request at capacity", "inflight", g.admission.InFlight())
		return errorFromRequestError(shared.ErrMaxConcurrency)
	}
	defer release()

	if g.usage != nil {
		label := buyerLabel(st.buyer)
		g.usage.AddInFlight(label)
		defer g.usage.RemoveInFlight(label)
	}

	payload, err := ParseRequest(req.Body)
	if err != nil {
		log.Warnw("Failed to parse request body", "error", err)
		var rerr *shared.RequestError
		if errors.As(err, &rerr) {
			return errorFromRequestError(rerr)
		}
		return ErrorResponse(http.StatusInternalServerError, err.Error())
	}
	st.model = payload.Model

	turn, ok := LastUserTurn(payload.Messages)
	if !ok {
		return errorFromRequestError(shared.ErrNoUserMessage)
	}
	st.content = turn.Content

	text, err := g.bridge.Run(ctx, PipelineInvocation{
		RequestID: req.RequestID,
		Content:   turn.Content,
		AccountID: g.cfg.AccountID,
	})
	if err != nil {
		log.Warnw("Pipeline dispatch failed", "error", err)
		metrics.ErrorCount.WithLabelValues("pipeline").Inc()
		return ErrorResponse(http.StatusInternalServerError, err.Error())
	}

	return SuccessResponse(req.RequestID, text, g.now())
}

func (g *Gateway) finish(req *InboundRequest, st *requestState, resp *Response, elapsed time.Duration) {
	status := strconv.Itoa(resp.StatusCode)
	metrics.RequestCount.WithLabelValues(status).Inc()
	metrics.RequestDuration.WithLabelValues(status).Observe(elapsed.Seconds())

	if g.usage != nil {
		g.usage.RecordRequest(buyerLabel(st.buyer), resp.StatusCode, elapsed)
	}

	model := st.model
	if model == nil && g.audit.Enabled() {
		model = modelFromBody(req.Body)
	}
	rec := AuditRecord{
		RequestID:      req.RequestID,
		BuyerPeerID:    st.buyer,
		Model:          model,
		MessagePreview: shared.Truncate(st.content, shared.MessagePreviewLength),
		StatusCode:     resp.StatusCode,
		DurationMs:     elapsed.Milliseconds(),
		ResponseBytes:  len(resp.Body),
	}
	g.log.Debugw("request_finished", zap.Object("request", &rec))
	g.audit.Append(rec)
}

func buyerLabel(buyer *string) string {
	if buyer == nil {
		return "anonymous"
	}
	return *buyer
}
