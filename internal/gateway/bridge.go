package gateway

import (
	"context"
	"strings"
	"time"

	"peerbridge/internal/metrics"
	"peerbridge/internal/pipeline"
	"peerbridge/internal/shared"

	"go.uber.org/zap"
)

// Bridge turns one invocation into a pipeline turn and collects the reply
type Bridge struct {
	Router     pipeline.RouteResolver
	Sessions   pipeline.SessionStore
	Envelope   pipeline.EnvelopeFormatter
	Dispatcher pipeline.ReplyDispatcher
	Log        *zap.SugaredLogger
	Now        func() time.Time
}

func senderFor(requestID string) string {
	return shared.ChannelTag + ":" + requestID
}

// Run returns the fragments joined by newlines. Errors from the collaborators
// are returned untouched so their message can be shown to the caller.
func (b *Bridge) Run(ctx context.Context, inv PipelineInvocation) (string, error) {
	log := b.Log.With("request_id", inv.RequestID)
	start := time.Now()

	sender := senderFor(inv.RequestID)
	route, err := b.Router.ResolveAgentRoute(ctx, pipeline.RouteInput{
		Channel:   shared.ChannelTag,
		AccountID: inv.AccountID,
		Peer:      pipeline.PeerDescriptor{Kind: shared.ChatTypeDirect, ID: inv.RequestID},
	})
	if err != nil {
		return "", err
	}
	log = log.With("agent_id", route.AgentID, "session_key", route.SessionKey)

	storePath := b.Sessions.ResolveStorePath(route.AgentID)
	now := b.Now()
	body := b.Envelope.FormatInboundEnvelope(pipeline.EnvelopeInput{
		Channel:   shared.ChannelTag,
		From:      sender,
		Timestamp: now,
		Body:      inv.Content,
	})
	ictx := b.Envelope.FinalizeInboundContext(pipeline.ContextFields{
		Body:              body,
		RawBody:           inv.Content,
		CommandBody:       inv.Content,
		From:              sender,
		To:                shared.ChannelTag + ":" + inv.AccountID,
		SessionKey:        route.SessionKey,
		AccountID:         inv.AccountID,
		ChatType:          shared.ChatTypeDirect,
		ConversationLabel: inv.RequestID,
		SenderName:        inv.RequestID,
		SenderID:          inv.RequestID,
		Provider:          shared.ChannelTag,
		Surface:           shared.ChannelTag,
		MessageSID:        inv.RequestID,
		OriginatingTo:     sender,
		Timestamp:         now,
	})

	if err := b.Sessions.RecordInboundSession(ctx, pipeline.SessionRecord{
		StorePath:  storePath,
		SessionKey: route.SessionKey,
		Context:    ictx,
	}); err != nil {
		metrics.ErrorCount.WithLabelValues("session_record").Inc()
		log.Warnw("Failed to record inbound session", "store_path", storePath, "error", err)
	}

	var fragments []string
	deliver := func(f pipeline.Fragment) error {
		if len(fragments) == 0 {
			metrics.TimeToFirstFragment.WithLabelValues(route.AgentID).Observe(time.Since(start).Seconds())
		}
		fragments = append(fragments, f.Text)
		metrics.FragmentsDelivered.WithLabelValues(route.AgentID).Inc()
		return nil
	}

	summary, err := b.Dispatcher.DispatchReply(ctx, pipeline.DispatchInput{
		Context: ictx,
		Config: pipeline.DispatchConfig{
			AgentID:        route.AgentID,
			MainSessionKey: route.MainSessionKey,
		},
		Deliver: deliver,
	})
	if err != nil {
		return "", err
	}
	log.Debugw("Dispatch finished", "fragments", len(fragments), "completed", summary.Completed, "total_time", time.Since(start).String())

	return strings.Join(fragments, "\n"), nil
}
