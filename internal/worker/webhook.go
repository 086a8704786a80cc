package worker

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/pkg/logger"
)

// SuppressionSink is the suppression service surface the webhook writes to.
type SuppressionSink interface {
	Unsubscribe(ctx context.Context, email string, at time.Time) error
	RecordBounce(ctx context.Context, email string, bounceType domain.BounceType, at time.Time) error
}

// WebhookReceiver ingests email provider events (unsubscribes, bounces) and
// folds them into subscriber suppression state.
//
// The handler always returns 200 for a well-formed batch, even when some
// events fail to apply: providers retry non-2xx responses and a poison event
// would otherwise wedge the whole batch. Malformed events are counted and
// skipped.
type WebhookReceiver struct {
	sink SuppressionSink

	// Stats
	eventsReceived int64
	eventsApplied  int64
	eventsSkipped  int64
}

// NewWebhookReceiver creates a webhook receiver.
func NewWebhookReceiver(sink SuppressionSink) *WebhookReceiver {
	return &WebhookReceiver{sink: sink}
}

// EmailEvent is one provider event in a webhook batch. The provider posts
// `event` values unsubscribe, group_unsubscribe, bounce, and dropped; other
// engagement events (opens, clicks) are counted and skipped.
type EmailEvent struct {
	Event      string    `json:"event"`
	Email      string    `json:"email"`
	BounceType string    `json:"bounce_type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ServeHTTP handles POST /webhook/email-events.
func (w *WebhookReceiver) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(rw, "Failed to read body", http.StatusBadRequest)
		return
	}

	var events []EmailEvent
	if err := json.Unmarshal(body, &events); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	for _, ev := range events {
		atomic.AddInt64(&w.eventsReceived, 1)
		if ev.Email == "" {
			atomic.AddInt64(&w.eventsSkipped, 1)
			continue
		}

		ts := ev.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}

		var applyErr error
		switch ev.Event {
		case "unsubscribe", "group_unsubscribe":
			applyErr = w.sink.Unsubscribe(r.Context(), ev.Email, ts)
		case "bounce":
			applyErr = w.sink.RecordBounce(r.Context(), ev.Email, domain.BounceType(ev.BounceType), ts)
		case "dropped":
			applyErr = w.sink.RecordBounce(r.Context(), ev.Email, domain.BounceDropped, ts)
		default:
			atomic.AddInt64(&w.eventsSkipped, 1)
			continue
		}

		if applyErr != nil {
			atomic.AddInt64(&w.eventsSkipped, 1)
			log.Printf("[Webhook] Apply %s for %s: %v", ev.Event, logger.RedactEmail(ev.Email), applyErr)
			continue
		}
		atomic.AddInt64(&w.eventsApplied, 1)
	}

	rw.WriteHeader(http.StatusOK)
}

// Stats returns ingestion counters.
func (w *WebhookReceiver) Stats() map[string]int64 {
	return map[string]int64{
		"events_received": atomic.LoadInt64(&w.eventsReceived),
		"events_applied":  atomic.LoadInt64(&w.eventsApplied),
		"events_skipped":  atomic.LoadInt64(&w.eventsSkipped),
	}
}
