package worker

import (
	"context"
	"database/sql"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pxlchk1/trailnotify/internal/catalog"
	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/pkg/distlock"
)

// DefaultSweepInterval is how often the inactivity sweep runs.
const DefaultSweepInterval = 6 * time.Hour

// InactivitySweep finds users idle past InactivityThreshold and enqueues one
// comeback nudge per channel, at most once per ReengagementCooldown.
//
// The sweep enqueues pending items without running the suppression
// evaluator: the dispatchers re-check at send time, which covers opt-outs
// and bounces, and the recent-activity rule is vacuous for a user who has
// been idle for a month.
type InactivitySweep struct {
	states   CampaignStates
	queue    Queue
	interval time.Duration
	redis    *redis.Client
	db       *sql.DB

	// Stats
	nudged int64
}

// NewInactivitySweep creates an inactivity sweep worker.
func NewInactivitySweep(states CampaignStates, queue Queue) *InactivitySweep {
	return &InactivitySweep{
		states:   states,
		queue:    queue,
		interval: DefaultSweepInterval,
	}
}

// SetInterval overrides the sweep interval. Call before Start.
func (s *InactivitySweep) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// UseLock makes each pass take a distributed lock so overlapping instances
// cannot double-run. redisClient may be nil to use PG advisory locks.
func (s *InactivitySweep) UseLock(redisClient *redis.Client, db *sql.DB) {
	s.redis = redisClient
	s.db = db
}

// Start begins the sweep loop. It blocks until ctx is cancelled.
func (s *InactivitySweep) Start(ctx context.Context) {
	log.Printf("[InactivitySweep] Starting (interval=%s, threshold=%s)", s.interval, InactivityThreshold)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[InactivitySweep] Stopping")
			return
		case <-ticker.C:
			if err := s.RunPass(ctx, time.Now().UTC()); err != nil {
				log.Printf("[InactivitySweep] Pass error: %v", err)
			}
		}
	}
}

// RunPass enqueues comeback nudges for users idle past the threshold.
func (s *InactivitySweep) RunPass(ctx context.Context, now time.Time) error {
	if s.redis != nil || s.db != nil {
		lock := distlock.New(s.redis, s.db, "inactivity-sweep", 10*time.Minute)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			// Another instance owns this pass.
			return nil
		}
		defer lock.Release(ctx)
	}

	users, err := s.states.ListInactive(ctx, now.Add(-InactivityThreshold), now.Add(-ReengagementCooldown))
	if err != nil {
		return err
	}

	for i := range users {
		user := &users[i]

		// Cooldown guard on the queue itself, so a sweep restart between
		// enqueue and send cannot double-nudge.
		recent, err := s.queue.HasRecentItem(ctx, user.UserID, catalog.TypeInactiveComeback, now.Add(-ReengagementCooldown))
		if err != nil {
			log.Printf("[InactivitySweep] Recent check %s: %v", user.UserID, err)
			continue
		}
		if recent {
			continue
		}

		pushItem := &domain.QueueItem{
			ID:      uuid.NewString(),
			UserID:  user.UserID,
			Channel: domain.ChannelPush,
			Type:    catalog.TypeInactiveComeback,
			Payload: domain.Payload{
				Title:    "The trail misses you",
				Body:     "Your trips and gear are right where you left them.",
				Deeplink: "app://home",
			},
			ScheduledAt: now,
			Status:      domain.StatusPending,
		}
		if err := s.queue.Enqueue(ctx, pushItem); err != nil {
			log.Printf("[InactivitySweep] Enqueue push for %s: %v", user.UserID, err)
			continue
		}

		emailItem := &domain.QueueItem{
			ID:          uuid.NewString(),
			UserID:      user.UserID,
			Channel:     domain.ChannelEmail,
			Type:        catalog.TypeInactiveComebackEmail,
			Payload:     domain.Payload{TemplateID: "inactive_comeback"},
			ScheduledAt: now,
			Status:      domain.StatusPending,
		}
		if err := s.queue.Enqueue(ctx, emailItem); err != nil {
			log.Printf("[InactivitySweep] Enqueue email for %s: %v", user.UserID, err)
		}

		atomic.AddInt64(&s.nudged, 1)
	}
	return nil
}

// Stats returns sweep counters.
func (s *InactivitySweep) Stats() map[string]int64 {
	return map[string]int64{
		"users_nudged": atomic.LoadInt64(&s.nudged),
	}
}
