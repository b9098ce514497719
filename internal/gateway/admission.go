package gateway

import (
	"sync"
	"sync/atomic"

	"peerbridge/internal/metrics"
)

// Admission caps the number of requests in flight
type Admission struct {
	max      int64
	inflight atomic.Int64
}

func NewAdmission(limit int64) *Admission {
	return &Admission{max: limit}
}

// TryAdmit reserves a slot. The check and the increment happen in a single
// compare-and-swap so two callers can never both observe a free slot.
func (a *Admission) TryAdmit() bool {
	for {
		cur := a.inflight.Load()
		if cur >= a.max {
			return false
		}
		if a.inflight.CompareAndSwap(cur, cur+1) {
			metrics.InflightRequests.Inc()
			return true
		}
	}
}

// Release gives a slot back. Callers should prefer Acquire, which guards
// against double release.
func (a *Admission) Release() {
	for {
		cur := a.inflight.Load()
		if cur <= 0 {
			panic("gateway: admission released more times than admitted")
		}
		if a.inflight.CompareAndSwap(cur, cur-1) {
			metrics.InflightRequests.Dec()
			return
		}
	}
}

// Acquire admits a request and returns the function that releases its slot.
// The release func is safe to call any number of times, only the first call
// has an effect.
func (a *Admission) Acquire() (release func(), ok bool) {
	if !a.TryAdmit() {
		return nil, false
	}
	return sync.OnceFunc(a.Release), true
}

func (a *Admission) InFlight() int64 {
	return a.inflight.Load()
}

func (a *Admission) Max() int64 {
	return a.max
}
