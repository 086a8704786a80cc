package suppression

import (
	"context"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
)

// Repository defines the data access contract for subscriber state.
type Repository interface {
	// GetByEmail returns the subscriber state for an email address, or
	// ErrUnknownEmail when no user is registered under it.
	GetByEmail(ctx context.Context, email string) (*domain.SubscriberState, error)

	// GetByUserID returns the subscriber state for a user id.
	GetByUserID(ctx context.Context, userID string) (*domain.SubscriberState, error)

	// MarkUnsubscribed sets both unsubscribe flags. Idempotent.
	MarkUnsubscribed(ctx context.Context, email string, at time.Time) error

	// MarkBounced records a bounce with its type. Idempotent.
	MarkBounced(ctx context.Context, email string, bounceType domain.BounceType, at time.Time) error
}

// CampaignStateWriter is the slice of the campaign-state store the service
// needs to mirror unsubscribe events onto the user's opt-out flags.
type CampaignStateWriter interface {
	DisableEmailMarketing(ctx context.Context, userID string) error
}
