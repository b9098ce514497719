package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// StaticRouter sends every peer to a single configured agent, keeping one
// session per peer
type StaticRouter struct {
	AgentID string
}

func NewStaticRouter(agentID string) *StaticRouter {
	return &StaticRouter{AgentID: agentID}
}

func (r *StaticRouter) ResolveAgentRoute(ctx context.Context, in RouteInput) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	if r.AgentID == "" {
		return Route{}, errors.New("no agent configured")
	}
	if in.Peer.ID == "" {
		return Route{}, errors.New("peer id is required for routing")
	}
	kind := in.Peer.Kind
	if kind == "" {
		kind = "direct"
	}
	agentID := strings.ToLower(r.AgentID)
	return Route{
		AgentID:        agentID,
		SessionKey:     fmt.Sprintf("agent:%s:%s:%s:%s", agentID, in.Channel, kind, in.Peer.ID),
		MainSessionKey: fmt.Sprintf("agent:%s:main", agentID),
	}, nil
}
