// Package worker contains the background passes of the notification engine:
// the campaign scheduler, the per-channel queue drains, the weekly counter
// reset, the inactivity sweep, the stale-claim reclaimer, the domain event
// adapter, and the email webhook receiver.
//
// Every periodic worker follows the same shape: a struct holding its
// dependencies behind narrow interfaces, a Start(ctx) ticker loop that runs
// until the context is cancelled, one exported RunOnce-style pass method so
// tests can drive a pass synchronously, and atomic counters exposed via
// Stats().
package worker

import (
	"context"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/store"
)

// Engine-wide pass tunables.
const (
	// DrainBatchSize bounds how many queue items one drain pass claims.
	DrainBatchSize = 200

	// MaxEmailAttempts is the delivery attempt ceiling for email items.
	// Push items are never retried; a failed push send is terminal.
	MaxEmailAttempts = 3

	// EmailRetryDelay is the linear backoff between email attempts.
	EmailRetryDelay = 30 * time.Minute

	// ResetChunkSize bounds each weekly counter reset statement.
	ResetChunkSize = 500

	// StaleClaimAfter is how long an item may sit in_flight before the
	// reclaimer treats its worker as crashed.
	StaleClaimAfter = 10 * time.Minute

	// InactivityThreshold is how long a user must be idle before the
	// re-engagement sweep considers them.
	InactivityThreshold = 30 * 24 * time.Hour

	// ReengagementCooldown is the minimum gap between comeback nudges
	// for the same user.
	ReengagementCooldown = 30 * 24 * time.Hour
)

// CampaignStates is the campaign state surface the workers share.
type CampaignStates interface {
	Enroll(ctx context.Context, userID, email string, now time.Time) error
	Get(ctx context.Context, userID string) (*domain.UserCampaignState, error)
	ListEnrolled(ctx context.Context) ([]domain.UserCampaignState, error)
	ListInactive(ctx context.Context, inactiveBefore, nudgedBefore time.Time) ([]domain.UserCampaignState, error)
	MarkCampaignCompleted(ctx context.Context, userID, reason string) error
	MarkActionCompleted(ctx context.Context, userID, action string) error
	RecordPushSent(ctx context.Context, userID, nudgeKey string) error
	RecordEmailSent(ctx context.Context, userID, emailType string) error
	ResetWeekChunk(ctx context.Context, ch domain.Channel, chunkSize int, now time.Time) (int64, error)
	TouchActivity(ctx context.Context, userID string, at time.Time) error
}

// Queue is the delivery queue surface the workers share.
type Queue interface {
	Enqueue(ctx context.Context, item *domain.QueueItem) error
	ClaimDue(ctx context.Context, ch domain.Channel, limit int, workerID string) ([]domain.QueueItem, error)
	MarkSent(ctx context.Context, id string) error
	MarkSuppressed(ctx context.Context, id string, reason domain.SuppressReason) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Reschedule(ctx context.Context, id, errMsg string, nextAt time.Time) error
	SuppressPendingForTrip(ctx context.Context, tripID, msgType string, reason domain.SuppressReason) (int64, error)
	HasRecentItem(ctx context.Context, userID, msgType string, since time.Time) (bool, error)
	ReclaimStale(ctx context.Context, staleAge time.Duration, maxAttempts int) (int64, int64, error)
}

// Subscribers exposes webhook-derived subscriber state to the dispatchers.
type Subscribers interface {
	GetByUserID(ctx context.Context, userID string) (*domain.SubscriberState, error)
	Ensure(ctx context.Context, userID, email string) error
}

// Tokens is the device token surface the push dispatcher needs.
type Tokens interface {
	TokensForUser(ctx context.Context, userID string) ([]store.DeviceToken, error)
	RemoveToken(ctx context.Context, userID, token string) error
}
