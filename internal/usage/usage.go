// Package usage buckets per buyer request counts and flushes them to storage
package usage

import (
	"context"
	"sync"
	"time"

	"peerbridge/internal/database"
	"peerbridge/internal/metrics"
	"peerbridge/internal/shared"

	"go.uber.org/zap"
)

type Store interface {
	SaveBuyerStats(ctx context.Context, stats []database.BuyerStats) error
}

type UsageCache struct {
	buckets       map[string]*bucket
	killedBuckets map[string]*bucket
	mu            sync.Mutex
	log           *zap.SugaredLogger
	store         Store

	flushInterval time.Duration
	retryDelay    time.Duration
	retryBackoff  time.Duration
	now           func() time.Time
}

type bucket struct {
	buyer     string
	requests  uint64
	success   uint64
	rejected  uint64
	failed    uint64
	totalTime time.Duration
	inflight  uint64
	timer     *time.Timer
}

func NewUsageCache(log *zap.SugaredLogger, store Store) *UsageCache {
	return &UsageCache{
		log:           log,
		store:         store,
		buckets:       map[string]*bucket{},
		killedBuckets: map[string]*bucket{},
		flushInterval: shared.BucketFlushInterval,
		retryDelay:    shared.BucketRetryDelay,
		retryBackoff:  5 * time.Second,
		now:           time.Now,
	}
}

func (c *UsageCache) getBucket(buyer string) *bucket {
	b, ok := c.buckets[buyer]
	if !ok {
		b = &bucket{buyer: buyer}
		c.buckets[buyer] = b
	}
	return b
}

func (c *UsageCache) AddInFlight(buyer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.getBucket(buyer)
	b.inflight++
	metrics.BuyerInflightRequests.WithLabelValues(buyer).Set(float64(b.inflight))
}

func (c *UsageCache) RemoveInFlight(buyer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.getBucket(buyer)
	if b.inflight > 0 {
		b.inflight--
	}
	metrics.BuyerInflightRequests.WithLabelValues(buyer).Set(float64(b.inflight))
}

// RecordRequest adds a finished request to the buyer's bucket. The first
// request in a fresh bucket schedules its flush.
func (c *UsageCache) RecordRequest(buyer string, statusCode int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.getBucket(buyer)
	b.requests++
	b.totalTime += duration
	switch {
	case statusCode < 300:
		b.success++
	case statusCode == 403 || statusCode == 429:
		b.rejected++
	default:
		b.failed++
	}

	if b.timer != nil {
		return
	}
	b.timer = time.AfterFunc(c.flushInterval, func() {
		retry := c.Flush(buyer)
		for retry != 0 {
			c.log.Warn("Flush requested retry, waiting...")
			time.Sleep(retry)
			retry = c.Flush(buyer)
		}
	})
}

// Flush writes the buyer's bucket out. A non zero return asks the caller to
// try again after that long because another flush is running.
func (c *UsageCache) Flush(buyer string) time.Duration {
	c.mu.Lock()
	b, ok := c.buckets[buyer]
	if !ok {
		c.mu.Unlock()
		return 0
	}

	_, ok = c.killedBuckets[buyer]
	if ok {
		c.mu.Unlock()
		return c.retryDelay
	}
	c.killedBuckets[buyer] = b
	delete(c.buckets, buyer)
	if b.timer != nil {
		b.timer.Stop()
	}
	if b.inflight != 0 {
		c.buckets[buyer] = &bucket{
			buyer:    buyer,
			inflight: b.inflight,
		}
	} else {
		metrics.BuyerInflightRequests.DeleteLabelValues(buyer)
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.killedBuckets, buyer)
		c.mu.Unlock()
	}()

	if b.requests == 0 {
		return 0
	}

	stats := []database.BuyerStats{{
		Date:          c.now().Format("2006-01-02"),
		Buyer:         shared.Truncate(buyer, shared.MaxStoredBuyerIDLength),
		RequestCount:  b.requests,
		SuccessCount:  b.success,
		RejectedCount: b.rejected,
		ErrorCount:    b.failed,
		TotalTimeMs:   b.totalTime.Milliseconds(),
	}}

	var err error
	for attempt := range shared.MaxFlushRetries {
		err = c.store.SaveBuyerStats(context.Background(), stats)
		if err == nil {
			c.log.Infow("Flushed bucket", "buyer", buyer, "requests", b.requests)
			return 0
		}
		c.log.Errorw("Failed to save buyer stats", "buyer", buyer, "attempt", attempt+1, "error", err)
		if attempt+1 < shared.MaxFlushRetries {
			time.Sleep(c.retryBackoff)
		}
	}
	c.log.Errorw("Failed 3 times with error", "buyer", buyer, "error", err)
	metrics.ErrorCount.WithLabelValues("save_buyer_stats").Inc()
	return 0
}

// Shutdown waits for in flight requests to drain, or ctx to end, then
// flushes every bucket
func (c *UsageCache) Shutdown(ctx context.Context) {
	c.log.Info("Shutting down usage cache")
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
wait:
	for {
		total := c.totalInflight()
		if total == 0 {
			break
		}
		select {
		case <-ctx.Done():
			c.log.Warnw("Shutting down with requests in flight", "inflight", total)
			break wait
		case <-ticker.C:
		}
	}

	c.mu.Lock()
	buyers := make([]string, 0, len(c.buckets))
	for buyer := range c.buckets {
		buyers = append(buyers, buyer)
	}
	c.mu.Unlock()

	wg := sync.WaitGroup{}
	for _, buyer := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			retry := c.Flush(buyer)
			for retry != 0 {
				time.Sleep(retry)
				retry = c.Flush(buyer)
			}
		}()
	}
	wg.Wait()
}

func (c *UsageCache) totalInflight() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := uint64(0)
	for _, b := range c.buckets {
		total += b.inflight
	}
	return total
}
