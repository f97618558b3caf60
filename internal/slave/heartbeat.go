package slave

import (
	"context"
	"sync"
	"time"

	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/metrics"
)

// Heartbeat sends a periodic GET /heartbeat to keep this slave's connection
// alive on the coordinator. Grounded on the original's threading.Timer
// reschedule-on-success pattern (spec.md section 4.5/9): a run of
// retryAttempts consecutive failures stops the heartbeat for good, which
// the cycle controller treats as a reason to exit the job.
type Heartbeat struct {
	client   *Client
	interval time.Duration
	attempts int

	mu            sync.Mutex
	fails         int
	stopped       bool
	stopRequested bool
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// heartbeatRequestTimeout bounds each GET /heartbeat call.
const heartbeatRequestTimeout = time.Second

// NewHeartbeat builds a Heartbeat that calls client.Heartbeat every
// interval, giving up after attempts consecutive failures.
func NewHeartbeat(client *Client, interval time.Duration, attempts int) *Heartbeat {
	return &Heartbeat{
		client:   client,
		interval: interval,
		attempts: attempts,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the heartbeat loop as a daemon goroutine. It stops on its own
// once Dead() becomes true, or immediately when ctx is canceled or Stop is
// called.
func (h *Heartbeat) Start(ctx context.Context) {
	go h.loop(ctx)
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			if h.beat(ctx) {
				return
			}
		}
	}
}

// beat sends one heartbeat and reports whether the heartbeat has now died
// (reached the consecutive-failure limit).
func (h *Heartbeat) beat(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, heartbeatRequestTimeout)
	err := h.client.Heartbeat(reqCtx)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		h.fails++
		metrics.RecordHeartbeat(false)
		logger.Warn().Err(err).Int("fails", h.fails).Msg("heartbeat failed")
	} else {
		h.fails = 0
		metrics.RecordHeartbeat(true)
	}

	if h.fails >= h.attempts {
		h.stopped = true
		logger.Error().Msg("heartbeat: too many consecutive failures, stopping")
		return true
	}
	return false
}

// Dead reports whether the heartbeat has stopped due to exhausted retries.
func (h *Heartbeat) Dead() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Stop halts the heartbeat loop and waits for it to exit.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	alreadyRequested := h.stopRequested
	h.stopRequested = true
	h.mu.Unlock()

	if !alreadyRequested {
		close(h.stopCh)
	}
	<-h.doneCh
}
