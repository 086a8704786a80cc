package worker

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pxlchk1/trailnotify/internal/catalog"
	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/pkg/distlock"
	"github.com/pxlchk1/trailnotify/internal/service/suppression"
)

// DefaultScheduleInterval is how often the enqueue pass runs.
const DefaultScheduleInterval = 15 * time.Minute

// CampaignScheduler walks every enrolled user once per pass, picks the
// campaign message for the user's current day on each track, runs it through
// the suppression evaluator, and enqueues the outcome. Suppressed candidates
// still produce a queue row (terminal suppressed state) so the decision is
// auditable; duplicate-for-day candidates produce nothing.
type CampaignScheduler struct {
	states   CampaignStates
	subs     Subscribers
	queue    Queue
	catalog  *catalog.Catalog
	interval time.Duration
	redis    *redis.Client
	db       *sql.DB

	// Stats
	usersScanned int64
	enqueued     int64
	suppressed   int64
	completed    int64
}

// NewCampaignScheduler creates a scheduler with the default interval.
func NewCampaignScheduler(states CampaignStates, subs Subscribers, queue Queue, cat *catalog.Catalog) *CampaignScheduler {
	return &CampaignScheduler{
		states:   states,
		subs:     subs,
		queue:    queue,
		catalog:  cat,
		interval: DefaultScheduleInterval,
	}
}

// SetInterval overrides the pass interval. Call before Start.
func (s *CampaignScheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// UseLock makes each pass take a distributed lock so overlapping instances
// cannot double-run. redisClient may be nil to use PG advisory locks.
func (s *CampaignScheduler) UseLock(redisClient *redis.Client, db *sql.DB) {
	s.redis = redisClient
	s.db = db
}

// Start begins the scheduling loop. It blocks until ctx is cancelled.
func (s *CampaignScheduler) Start(ctx context.Context) {
	log.Printf("[Scheduler] Starting (interval=%s, push_horizon=%d, email_horizon=%d)",
		s.interval, s.catalog.Horizon(domain.ChannelPush), s.catalog.Horizon(domain.ChannelEmail))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Scheduler] Stopping")
			return
		case <-ticker.C:
			if err := s.RunPass(ctx, time.Now().UTC()); err != nil {
				log.Printf("[Scheduler] Pass error: %v", err)
			}
		}
	}
}

// RunPass executes one enqueue pass over all enrolled users.
func (s *CampaignScheduler) RunPass(ctx context.Context, now time.Time) error {
	if s.redis != nil || s.db != nil {
		lock := distlock.New(s.redis, s.db, "schedule", 10*time.Minute)
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

	users, err := s.states.ListEnrolled(ctx)
	if err != nil {
		return err
	}

	for i := range users {
		user := &users[i]
		atomic.AddInt64(&s.usersScanned, 1)

		day := user.CampaignDay(now)
		if day > s.catalog.MaxHorizon() {
			if err := s.states.MarkCampaignCompleted(ctx, user.UserID, domain.CompletedReasonHorizon); err != nil {
				log.Printf("[Scheduler] Complete %s: %v", user.UserID, err)
			} else {
				atomic.AddInt64(&s.completed, 1)
			}
			continue
		}

		s.scheduleChannel(ctx, user, domain.ChannelPush, day, now)
		s.scheduleChannel(ctx, user, domain.ChannelEmail, day, now)
	}
	return nil
}

func (s *CampaignScheduler) scheduleChannel(ctx context.Context, user *domain.UserCampaignState, ch domain.Channel, day int, now time.Time) {
	if day > s.catalog.Horizon(ch) {
		return
	}
	def := s.catalog.MessageForDay(ch, day, user.CompletedActions)
	if def == nil {
		return
	}

	var sub *domain.SubscriberState
	if ch == domain.ChannelEmail {
		var err error
		sub, err = s.subs.GetByUserID(ctx, user.UserID)
		if err != nil && !errors.Is(err, suppression.ErrUnknownEmail) {
			log.Printf("[Scheduler] Subscriber lookup %s: %v", user.UserID, err)
			return
		}
	}

	decision := suppression.Evaluate(user, sub, suppression.Candidate{Type: def.Type}, ch, now)

	item := &domain.QueueItem{
		ID:          uuid.NewString(),
		UserID:      user.UserID,
		Channel:     ch,
		Type:        def.Type,
		Payload:     def.Payload(ch),
		ScheduledAt: now,
		Status:      domain.StatusPending,
		Metadata:    map[string]string{"campaign_day": strconv.Itoa(day)},
	}

	switch {
	case decision.Allowed:
		// Pending item; the drain pass delivers it.
	case decision.Reason == domain.ReasonDuplicateDay:
		// Already sent this cycle. No row at all.
		return
	default:
		item.Status = domain.StatusSuppressed
		item.SuppressionReason = decision.Reason
		atomic.AddInt64(&s.suppressed, 1)
	}

	if err := s.queue.Enqueue(ctx, item); err != nil {
		log.Printf("[Scheduler] Enqueue %s/%s for %s: %v", ch, def.Type, user.UserID, err)
		return
	}
	if decision.Allowed {
		atomic.AddInt64(&s.enqueued, 1)
	}

	// Goal reached ends the campaign; the suppressed row above records why
	// today's candidate did not go out.
	if decision.Reason == domain.ReasonCampaignCompleted {
		if err := s.states.MarkCampaignCompleted(ctx, user.UserID, domain.CompletedReasonGoal); err != nil {
			log.Printf("[Scheduler] Complete %s: %v", user.UserID, err)
		} else {
			atomic.AddInt64(&s.completed, 1)
		}
	}
}

// Stats returns pass counters.
func (s *CampaignScheduler) Stats() map[string]int64 {
	return map[string]int64{
		"users_scanned": atomic.LoadInt64(&s.usersScanned),
		"enqueued":      atomic.LoadInt64(&s.enqueued),
		"suppressed":    atomic.LoadInt64(&s.suppressed),
		"completed":     atomic.LoadInt64(&s.completed),
	}
}
