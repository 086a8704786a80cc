package worker

import (
	"context"
	"database/sql"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/pkg/distlock"
	"github.com/pxlchk1/trailnotify/internal/service/suppression"
)

// DefaultResetCheckInterval is how often the reset worker checks for a due
// week boundary. The pass itself is a no-op between boundaries because the
// chunk filter only matches users whose week window has elapsed.
const DefaultResetCheckInterval = time.Hour

// WeeklyResetWorker zeroes the per-user weekly send counters once per week
// boundary. Counters are reset in chunks so a large user base never holds a
// long transaction, and each chunk statement is idempotent.
//
// Only one instance runs the reset at a time: the worker takes a distributed
// lock (Redis when available, PG advisory lock otherwise) before a pass.
type WeeklyResetWorker struct {
	states   CampaignStates
	redis    *redis.Client
	db       *sql.DB
	interval time.Duration

	// Stats
	passes     int64
	usersReset int64
}

// NewWeeklyResetWorker creates a reset worker. redisClient may be nil.
func NewWeeklyResetWorker(states CampaignStates, redisClient *redis.Client, db *sql.DB) *WeeklyResetWorker {
	return &WeeklyResetWorker{
		states:   states,
		redis:    redisClient,
		db:       db,
		interval: DefaultResetCheckInterval,
	}
}

// Start begins the reset loop. It blocks until ctx is cancelled.
func (w *WeeklyResetWorker) Start(ctx context.Context) {
	log.Printf("[WeeklyReset] Starting (interval=%s, chunk=%d)", w.interval, ResetChunkSize)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[WeeklyReset] Stopping")
			return
		case <-ticker.C:
			if err := w.RunPass(ctx, time.Now().UTC()); err != nil {
				log.Printf("[WeeklyReset] Pass error: %v", err)
			}
		}
	}
}

// RunPass resets all nonzero weekly counters, channel by channel, in chunks.
func (w *WeeklyResetWorker) RunPass(ctx context.Context, now time.Time) error {
	lock := distlock.New(w.redis, w.db, "weekly-reset", 5*time.Minute)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		// Another instance owns this pass.
		return nil
	}
	defer lock.Release(ctx)

	atomic.AddInt64(&w.passes, 1)

	for _, ch := range []domain.Channel{domain.ChannelPush, domain.ChannelEmail} {
		for {
			n, err := w.states.ResetWeekChunk(ctx, ch, ResetChunkSize, now)
			if err != nil {
				return err
			}
			atomic.AddInt64(&w.usersReset, n)
			if n < int64(ResetChunkSize) {
				break
			}
		}
	}
	return nil
}

// NextBoundary returns the first week boundary after weekStartedAt relative
// to now. Exposed for callers that want to schedule the pass precisely.
func NextBoundary(weekStartedAt, now time.Time) time.Time {
	boundary := weekStartedAt.Add(suppression.WeekLength)
	for !boundary.After(now) {
		boundary = boundary.Add(suppression.WeekLength)
	}
	return boundary
}

// Stats returns reset counters.
func (w *WeeklyResetWorker) Stats() map[string]int64 {
	return map[string]int64{
		"passes":      atomic.LoadInt64(&w.passes),
		"users_reset": atomic.LoadInt64(&w.usersReset),
	}
}
