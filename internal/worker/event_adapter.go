package worker

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pxlchk1/trailnotify/internal/catalog"
	"github.com/pxlchk1/trailnotify/internal/domain"
)

// Invitations is the invitation surface the adapter needs.
type Invitations interface {
	PendingForEmail(ctx context.Context, email string) ([]domain.TripInvitation, error)
	Accept(ctx context.Context, invitationID, userID string, at time.Time) error
}

// EventAdapter translates application domain events (user created, trip
// created, trip updated) into campaign state changes and event-triggered
// queue items.
//
// Event-triggered items skip the enqueue-time evaluator: the item may be
// scheduled days ahead and the state it would be checked against goes stale.
// The dispatchers run the evaluator at send time instead.
type EventAdapter struct {
	states  CampaignStates
	subs    Subscribers
	queue   Queue
	invites Invitations

	// Stats
	usersEnrolled  int64
	itemsScheduled int64
	itemsCancelled int64
}

// NewEventAdapter creates an event adapter.
func NewEventAdapter(states CampaignStates, subs Subscribers, queue Queue, invites Invitations) *EventAdapter {
	return &EventAdapter{states: states, subs: subs, queue: queue, invites: invites}
}

// HandleUserCreated enrolls the user in the onboarding campaign, seeds
// subscriber state, and auto-accepts any trip invitations addressed to the
// new account's email. Invitation acceptance is best effort: a failure
// there never blocks enrollment.
func (a *EventAdapter) HandleUserCreated(ctx context.Context, ev domain.UserCreatedEvent) error {
	now := ev.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if err := a.states.Enroll(ctx, ev.UserID, ev.Email, now); err != nil {
		return err
	}
	if err := a.subs.Ensure(ctx, ev.UserID, ev.Email); err != nil {
		return err
	}
	atomic.AddInt64(&a.usersEnrolled, 1)

	pending, err := a.invites.PendingForEmail(ctx, ev.Email)
	if err != nil {
		log.Printf("[EventAdapter] Invitation lookup for %s: %v", ev.UserID, err)
		return nil
	}
	for _, inv := range pending {
		if err := a.invites.Accept(ctx, inv.ID, ev.UserID, now); err != nil {
			log.Printf("[EventAdapter] Accept invitation %s: %v", inv.ID, err)
		}
	}
	return nil
}

// HandleTripCreated records the created-trip action and schedules the
// event-triggered items a new trip carries: a packing list nudge 24 hours
// out if the trip has none, and start-date reminders at 3 days and 1 day
// before departure.
func (a *EventAdapter) HandleTripCreated(ctx context.Context, ev domain.TripCreatedEvent) error {
	now := time.Now().UTC()

	if err := a.states.TouchActivity(ctx, ev.UserID, now); err != nil {
		log.Printf("[EventAdapter] TouchActivity %s: %v", ev.UserID, err)
	}
	if err := a.states.MarkActionCompleted(ctx, ev.UserID, domain.ActionCreatedTrip); err != nil {
		return err
	}

	if !ev.HasPackingList {
		a.schedule(ctx, &domain.QueueItem{
			ID:      uuid.NewString(),
			UserID:  ev.UserID,
			Channel: domain.ChannelPush,
			Type:    catalog.TypeTripNoPackingList,
			Payload: domain.Payload{
				Title:    "Pack for " + ev.Name,
				Body:     "Your trip has no packing list yet. Start one now.",
				Deeplink: "app://trips/" + ev.TripID + "/packing",
			},
			ScheduledAt: now.Add(24 * time.Hour),
			Status:      domain.StatusPending,
			Metadata:    map[string]string{"trip_id": ev.TripID},
		})
	}

	if ev.StartDate != nil {
		a.scheduleReminder(ctx, ev.UserID, ev.TripID, ev.Name, *ev.StartDate, now, 3, catalog.TypeTripReminder3d)
		a.scheduleReminder(ctx, ev.UserID, ev.TripID, ev.Name, *ev.StartDate, now, 1, catalog.TypeTripReminder1d)
	}
	return nil
}

// HandleTripUpdated reacts to trip transitions. Adding a packing list
// records the action and cancels the pending packing nudge; cancelling the
// trip cancels everything still queued for it.
func (a *EventAdapter) HandleTripUpdated(ctx context.Context, ev domain.TripUpdatedEvent) error {
	now := time.Now().UTC()

	if err := a.states.TouchActivity(ctx, ev.UserID, now); err != nil {
		log.Printf("[EventAdapter] TouchActivity %s: %v", ev.UserID, err)
	}

	if ev.HasPackingList && !ev.PrevHasPackingList {
		if err := a.states.MarkActionCompleted(ctx, ev.UserID, domain.ActionCompletedPackingList); err != nil {
			return err
		}
		n, err := a.queue.SuppressPendingForTrip(ctx, ev.TripID, catalog.TypeTripNoPackingList, domain.ReasonActionAlreadyCompleted)
		if err != nil {
			return err
		}
		atomic.AddInt64(&a.itemsCancelled, n)
	}

	if ev.Status == domain.TripCancelled && ev.PrevStatus != domain.TripCancelled {
		n, err := a.queue.SuppressPendingForTrip(ctx, ev.TripID, "", domain.ReasonTripCancelled)
		if err != nil {
			return err
		}
		atomic.AddInt64(&a.itemsCancelled, n)
	}
	return nil
}

// RecordGearAdded flips the gear core action. Wired to the gear service's
// item-added event.
func (a *EventAdapter) RecordGearAdded(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	if err := a.states.TouchActivity(ctx, userID, now); err != nil {
		log.Printf("[EventAdapter] TouchActivity %s: %v", userID, err)
	}
	return a.states.MarkActionCompleted(ctx, userID, domain.ActionAddedGearItem)
}

func (a *EventAdapter) scheduleReminder(ctx context.Context, userID, tripID, tripName string, start, now time.Time, daysBefore int, msgType string) {
	at := start.Add(-time.Duration(daysBefore) * 24 * time.Hour)
	if !at.After(now) {
		// Trip starts too soon for this reminder.
		return
	}

	body := "Leaving in 3 days. Run through your packing list."
	if daysBefore == 1 {
		body = "Leaving tomorrow. Run through your packing list."
	}
	a.schedule(ctx, &domain.QueueItem{
		ID:      uuid.NewString(),
		UserID:  userID,
		Channel: domain.ChannelPush,
		Type:    msgType,
		Payload: domain.Payload{
			Title:    tripName + " is coming up",
			Body:     body,
			Deeplink: "app://trips/" + tripID,
		},
		ScheduledAt:   at,
		Status:        domain.StatusPending,
		Transactional: true,
		Metadata:      map[string]string{"trip_id": tripID},
	})
}

func (a *EventAdapter) schedule(ctx context.Context, item *domain.QueueItem) {
	if err := a.queue.Enqueue(ctx, item); err != nil {
		log.Printf("[EventAdapter] Enqueue %s for %s: %v", item.Type, item.UserID, err)
		return
	}
	atomic.AddInt64(&a.itemsScheduled, 1)
}

// Stats returns adapter counters.
func (a *EventAdapter) Stats() map[string]int64 {
	return map[string]int64{
		"users_enrolled":  atomic.LoadInt64(&a.usersEnrolled),
		"items_scheduled": atomic.LoadInt64(&a.itemsScheduled),
		"items_cancelled": atomic.LoadInt64(&a.itemsCancelled),
	}
}
