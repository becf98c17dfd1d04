package health

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

// HeartbeatChecker reports unhealthy once a beat is overdue. Each beat states when the next one is expected;
// it's overdue once that time plus the grace period has passed. No beat is expected before the first.
type HeartbeatChecker struct {
	mu       sync.Mutex
	clock    clock.PassiveClock
	grace    time.Duration
	deadline time.Time
}

func NewHeartbeatChecker(clock clock.PassiveClock, grace time.Duration) *HeartbeatChecker {
	return &HeartbeatChecker{clock: clock, grace: grace}
}

// Beat records a heartbeat. The next one is expected within next.
func (h *HeartbeatChecker) Beat(next time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deadline = h.clock.Now().Add(next + h.grace)
}

func (h *HeartbeatChecker) Check() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deadline.IsZero() {
		return nil
	}
	if now := h.clock.Now(); now.After(h.deadline) {
		return errors.Errorf("heartbeat overdue by %s", now.Sub(h.deadline))
	}
	return nil
}
