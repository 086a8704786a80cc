package worker

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/provider/push"
	"github.com/pxlchk1/trailnotify/internal/service/suppression"
)

// DefaultPushDrainInterval is how often the push drain pass runs.
const DefaultPushDrainInterval = 30 * time.Second

// PushSender is the delivery surface the dispatcher needs from the FCM client.
type PushSender interface {
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (*push.MulticastResult, error)
}

// PushDispatcher drains the push queue: claims due pending items, re-checks
// suppression at send time, resolves device tokens, and delivers via FCM.
//
// Push sends are never retried. A provider failure marks the item failed
// immediately; the next campaign day gets a fresh candidate anyway.
type PushDispatcher struct {
	queue    Queue
	states   CampaignStates
	tokens   Tokens
	sender   PushSender
	workerID string
	interval time.Duration

	// Stats
	sent       int64
	suppressed int64
	failed     int64
	pruned     int64
}

// NewPushDispatcher creates a push dispatcher.
func NewPushDispatcher(queue Queue, states CampaignStates, tokens Tokens, sender PushSender, workerID string) *PushDispatcher {
	return &PushDispatcher{
		queue:    queue,
		states:   states,
		tokens:   tokens,
		sender:   sender,
		workerID: workerID,
		interval: DefaultPushDrainInterval,
	}
}

// SetInterval overrides the drain interval. Call before Start.
func (d *PushDispatcher) SetInterval(dur time.Duration) {
	if dur > 0 {
		d.interval = dur
	}
}

// Start begins the drain loop. It blocks until ctx is cancelled.
func (d *PushDispatcher) Start(ctx context.Context) {
	log.Printf("[PushDispatch] Starting (interval=%s, batch=%d)", d.interval, DrainBatchSize)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PushDispatch] Stopping")
			return
		case <-ticker.C:
			if err := d.RunPass(ctx, time.Now().UTC()); err != nil {
				log.Printf("[PushDispatch] Pass error: %v", err)
			}
		}
	}
}

// RunPass claims and dispatches one batch of due push items.
func (d *PushDispatcher) RunPass(ctx context.Context, now time.Time) error {
	items, err := d.queue.ClaimDue(ctx, domain.ChannelPush, DrainBatchSize, d.workerID)
	if err != nil {
		return err
	}

	for i := range items {
		d.dispatch(ctx, &items[i], now)
	}
	return nil
}

func (d *PushDispatcher) dispatch(ctx context.Context, item *domain.QueueItem, now time.Time) {
	// Send-time re-check: state may have changed since enqueue (user opted
	// out, completed the action, hit the cap). Event-triggered items carry
	// no campaign-day duplicate semantics, so the candidate type is enough.
	user, err := d.states.Get(ctx, item.UserID)
	if err != nil {
		d.fail(ctx, item, "campaign state lookup: "+err.Error())
		return
	}
	decision := suppression.Evaluate(user, nil,
		suppression.Candidate{Type: item.Type, Transactional: item.Transactional},
		domain.ChannelPush, now)
	if !decision.Allowed && decision.Reason != domain.ReasonDuplicateDay {
		d.suppress(ctx, item, decision.Reason)
		return
	}

	tokens, err := d.tokens.TokensForUser(ctx, item.UserID)
	if err != nil {
		d.fail(ctx, item, "token lookup: "+err.Error())
		return
	}
	if len(tokens) == 0 {
		d.suppress(ctx, item, domain.ReasonNoPushToken)
		return
	}

	regIDs := make([]string, 0, len(tokens))
	for _, t := range tokens {
		regIDs = append(regIDs, t.Token)
	}

	data := map[string]string{}
	if item.Payload.Deeplink != "" {
		data["deeplink"] = item.Payload.Deeplink
	}
	for k, v := range item.Metadata {
		data[k] = v
	}

	result, err := d.sender.SendMulticast(ctx, regIDs, item.Payload.Title, item.Payload.Body, data)
	if err != nil {
		d.fail(ctx, item, err.Error())
		return
	}

	// Prune tokens the provider declared dead, regardless of outcome.
	for _, tok := range result.InvalidTokens {
		if err := d.tokens.RemoveToken(ctx, item.UserID, tok); err != nil {
			log.Printf("[PushDispatch] Prune token for %s: %v", item.UserID, err)
		} else {
			atomic.AddInt64(&d.pruned, 1)
		}
	}

	if result.Success == 0 {
		d.fail(ctx, item, "all tokens rejected")
		return
	}

	if err := d.queue.MarkSent(ctx, item.ID); err != nil {
		log.Printf("[PushDispatch] MarkSent %s: %v", item.ID, err)
		return
	}
	if err := d.states.RecordPushSent(ctx, item.UserID, item.Type); err != nil {
		log.Printf("[PushDispatch] RecordPushSent %s: %v", item.UserID, err)
	}
	atomic.AddInt64(&d.sent, 1)
}

func (d *PushDispatcher) suppress(ctx context.Context, item *domain.QueueItem, reason domain.SuppressReason) {
	if err := d.queue.MarkSuppressed(ctx, item.ID, reason); err != nil {
		log.Printf("[PushDispatch] MarkSuppressed %s: %v", item.ID, err)
		return
	}
	atomic.AddInt64(&d.suppressed, 1)
}

func (d *PushDispatcher) fail(ctx context.Context, item *domain.QueueItem, msg string) {
	if err := d.queue.MarkFailed(ctx, item.ID, msg); err != nil {
		log.Printf("[PushDispatch] MarkFailed %s: %v", item.ID, err)
		return
	}
	atomic.AddInt64(&d.failed, 1)
}

// Stats returns dispatch counters.
func (d *PushDispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"sent":          atomic.LoadInt64(&d.sent),
		"suppressed":    atomic.LoadInt64(&d.suppressed),
		"failed":        atomic.LoadInt64(&d.failed),
		"tokens_pruned": atomic.LoadInt64(&d.pruned),
	}
}
