package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"peerbridge/internal/shared"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps a bounded list of inbound turns per session key
type RedisSessionStore struct {
	client     redis.Cmdable
	prefix     string
	ttl        time.Duration
	maxRecords int64
}

func NewRedisSessionStore(client redis.Cmdable) *RedisSessionStore {
	return &RedisSessionStore{
		client:     client,
		prefix:     shared.SessionKeyPrefix,
		ttl:        shared.SessionRecordTTL,
		maxRecords: shared.SessionMaxRecords,
	}
}

func (s *RedisSessionStore) ResolveStorePath(agentID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, agentID)
}

type sessionEntry struct {
	SessionKey string         `json:"session_key"`
	RecordedAt time.Time      `json:"recorded_at"`
	Context    InboundContext `json:"context"`
}

func (s *RedisSessionStore) RecordInboundSession(ctx context.Context, rec SessionRecord) error {
	if rec.StorePath == "" || rec.SessionKey == "" {
		return errors.New("store path and session key are required")
	}
	entry, err := json.Marshal(sessionEntry{
		SessionKey: rec.SessionKey,
		RecordedAt: time.Now(),
		Context:    rec.Context,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session entry: %w", err)
	}

	listKey := rec.StorePath + ":" + rec.SessionKey
	seenKey := rec.StorePath + ":last_seen"

	ctx, cancel := context.WithTimeout(ctx, shared.SessionRecordTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, listKey, entry)
	pipe.LTrim(ctx, listKey, -s.maxRecords, -1)
	pipe.Expire(ctx, listKey, s.ttl)
	pipe.HSet(ctx, seenKey, rec.SessionKey, rec.Context.Timestamp.Unix())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record session %s: %w", rec.SessionKey, err)
	}
	return nil
}

// NoopSessionStore is used when no redis is configured
type NoopSessionStore struct{}

func (NoopSessionStore) ResolveStorePath(agentID string) string {
	return fmt.Sprintf("%s:%s", shared.SessionKeyPrefix, agentID)
}

func (NoopSessionStore) RecordInboundSession(context.Context, SessionRecord) error {
	return nil
}
