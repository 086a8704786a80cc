package worker

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/pkg/logger"
	"github.com/pxlchk1/trailnotify/internal/provider/email"
	"github.com/pxlchk1/trailnotify/internal/service/suppression"
)

// DefaultEmailDrainInterval is how often the email drain pass runs.
const DefaultEmailDrainInterval = time.Minute

// EmailSender is the delivery surface the dispatcher needs from SES.
type EmailSender interface {
	Send(ctx context.Context, msg *email.Message) (*email.SendResult, error)
}

// TemplateRenderer renders a template id into a sendable email.
type TemplateRenderer interface {
	Render(templateID string, data map[string]any) (subject, html, text string, err error)
}

// EmailDispatcher drains the email queue. Unlike push, email items retry:
// a provider failure under MaxEmailAttempts reschedules the item with a
// linear EmailRetryDelay; at the ceiling it becomes failed.
type EmailDispatcher struct {
	queue    Queue
	states   CampaignStates
	subs     Subscribers
	sender   EmailSender
	renderer TemplateRenderer
	workerID string
	interval time.Duration

	// Stats
	sent        int64
	suppressed  int64
	failed      int64
	rescheduled int64
}

// NewEmailDispatcher creates an email dispatcher.
func NewEmailDispatcher(queue Queue, states CampaignStates, subs Subscribers, sender EmailSender, renderer TemplateRenderer, workerID string) *EmailDispatcher {
	return &EmailDispatcher{
		queue:    queue,
		states:   states,
		subs:     subs,
		sender:   sender,
		renderer: renderer,
		workerID: workerID,
		interval: DefaultEmailDrainInterval,
	}
}

// SetInterval overrides the drain interval. Call before Start.
func (d *EmailDispatcher) SetInterval(dur time.Duration) {
	if dur > 0 {
		d.interval = dur
	}
}

// Start begins the drain loop. It blocks until ctx is cancelled.
func (d *EmailDispatcher) Start(ctx context.Context) {
	log.Printf("[EmailDispatch] Starting (interval=%s, batch=%d, max_attempts=%d)",
		d.interval, DrainBatchSize, MaxEmailAttempts)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[EmailDispatch] Stopping")
			return
		case <-ticker.C:
			if err := d.RunPass(ctx, time.Now().UTC()); err != nil {
				log.Printf("[EmailDispatch] Pass error: %v", err)
			}
		}
	}
}

// RunPass claims and dispatches one batch of due email items.
func (d *EmailDispatcher) RunPass(ctx context.Context, now time.Time) error {
	items, err := d.queue.ClaimDue(ctx, domain.ChannelEmail, DrainBatchSize, d.workerID)
	if err != nil {
		return err
	}

	for i := range items {
		d.dispatch(ctx, &items[i], now)
	}
	return nil
}

func (d *EmailDispatcher) dispatch(ctx context.Context, item *domain.QueueItem, now time.Time) {
	user, err := d.states.Get(ctx, item.UserID)
	if err != nil {
		d.fail(ctx, item, "campaign state lookup: "+err.Error())
		return
	}

	// Webhook events land between enqueue and send; re-check against the
	// freshest subscriber state before touching the provider.
	sub, err := d.subs.GetByUserID(ctx, item.UserID)
	if err != nil && !errors.Is(err, suppression.ErrUnknownEmail) {
		d.fail(ctx, item, "subscriber lookup: "+err.Error())
		return
	}

	decision := suppression.Evaluate(user, sub,
		suppression.Candidate{Type: item.Type, Transactional: item.Transactional},
		domain.ChannelEmail, now)
	if !decision.Allowed && decision.Reason != domain.ReasonDuplicateDay {
		if err := d.queue.MarkSuppressed(ctx, item.ID, decision.Reason); err != nil {
			log.Printf("[EmailDispatch] MarkSuppressed %s: %v", item.ID, err)
			return
		}
		atomic.AddInt64(&d.suppressed, 1)
		return
	}

	subject, html, text, err := d.renderer.Render(item.Payload.TemplateID, item.Payload.TemplateData)
	if err != nil {
		// Render errors are deterministic; retrying cannot help.
		d.fail(ctx, item, "render: "+err.Error())
		return
	}

	result, err := d.sender.Send(ctx, &email.Message{
		To:          user.Email,
		Subject:     subject,
		HTMLContent: html,
		TextContent: text,
		EmailType:   item.Type,
		UserID:      item.UserID,
	})
	if err != nil {
		d.retryOrFail(ctx, item, err.Error(), now)
		return
	}
	if !result.Success {
		msg := "provider rejected"
		if result.Error != nil {
			msg = result.Error.Error()
		}
		d.retryOrFail(ctx, item, msg, now)
		return
	}

	if err := d.queue.MarkSent(ctx, item.ID); err != nil {
		log.Printf("[EmailDispatch] MarkSent %s: %v", item.ID, err)
		return
	}
	if err := d.states.RecordEmailSent(ctx, item.UserID, item.Type); err != nil {
		log.Printf("[EmailDispatch] RecordEmailSent %s: %v", item.UserID, err)
	}
	log.Printf("[EmailDispatch] Sent %s to %s (id: %s)", item.Type, logger.RedactEmail(user.Email), result.MessageID)
	atomic.AddInt64(&d.sent, 1)
}

// retryOrFail reschedules a failed attempt until the ceiling, then fails.
// Attempts counts completed attempts; this attempt is in flight, hence +1.
func (d *EmailDispatcher) retryOrFail(ctx context.Context, item *domain.QueueItem, msg string, now time.Time) {
	if item.Attempts+1 >= MaxEmailAttempts {
		d.fail(ctx, item, msg)
		return
	}
	if err := d.queue.Reschedule(ctx, item.ID, msg, now.Add(EmailRetryDelay)); err != nil {
		log.Printf("[EmailDispatch] Reschedule %s: %v", item.ID, err)
		return
	}
	atomic.AddInt64(&d.rescheduled, 1)
}

func (d *EmailDispatcher) fail(ctx context.Context, item *domain.QueueItem, msg string) {
	if err := d.queue.MarkFailed(ctx, item.ID, msg); err != nil {
		log.Printf("[EmailDispatch] MarkFailed %s: %v", item.ID, err)
		return
	}
	atomic.AddInt64(&d.failed, 1)
}

// Stats returns dispatch counters.
func (d *EmailDispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"sent":        atomic.LoadInt64(&d.sent),
		"suppressed":  atomic.LoadInt64(&d.suppressed),
		"failed":      atomic.LoadInt64(&d.failed),
		"rescheduled": atomic.LoadInt64(&d.rescheduled),
	}
}
