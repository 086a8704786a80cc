package worker

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// DefaultReclaimInterval is how often the reclaimer scans for stuck items.
const DefaultReclaimInterval = 2 * time.Minute

// Reclaimer returns items stuck in_flight after a dispatcher crash to
// pending, or fails them once past the attempt ceiling. Without it a crashed
// worker would strand claimed items forever.
type Reclaimer struct {
	queue    Queue
	interval time.Duration
	staleAge time.Duration

	// Stats
	requeued int64
	failed   int64
}

// NewReclaimer creates a reclaimer with default timing.
func NewReclaimer(queue Queue) *Reclaimer {
	return &Reclaimer{
		queue:    queue,
		interval: DefaultReclaimInterval,
		staleAge: StaleClaimAfter,
	}
}

// Start begins the reclaim loop. It blocks until ctx is cancelled.
func (r *Reclaimer) Start(ctx context.Context) {
	log.Printf("[Reclaimer] Starting (interval=%s, stale_age=%s)", r.interval, r.staleAge)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Reclaimer] Stopping")
			return
		case <-ticker.C:
			if err := r.RunPass(ctx); err != nil {
				log.Printf("[Reclaimer] Pass error: %v", err)
			}
		}
	}
}

// RunPass reclaims one round of stale in_flight items.
func (r *Reclaimer) RunPass(ctx context.Context) error {
	requeued, failed, err := r.queue.ReclaimStale(ctx, r.staleAge, MaxEmailAttempts)
	if err != nil {
		return err
	}
	if requeued > 0 || failed > 0 {
		log.Printf("[Reclaimer] Requeued %d, failed %d stuck items", requeued, failed)
	}
	atomic.AddInt64(&r.requeued, requeued)
	atomic.AddInt64(&r.failed, failed)
	return nil
}

// Stats returns reclaim counters.
func (r *Reclaimer) Stats() map[string]int64 {
	return map[string]int64{
		"requeued": atomic.LoadInt64(&r.requeued),
		"failed":   atomic.LoadInt64(&r.failed),
	}
}
