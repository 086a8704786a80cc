package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
	"github.com/pxlchk1/trailnotify/internal/service/suppression"
)

// SubscriberRepo persists webhook-derived subscriber suppression state.
// It implements suppression.Repository.
type SubscriberRepo struct {
	db *sql.DB
}

// NewSubscriberRepo creates a subscriber state repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo {
	return &SubscriberRepo{db: db}
}

const subscriberColumns = `
	user_id, email, unsubscribed, marketing_unsubscribed,
	bounced, COALESCE(bounce_type, ''), unsubscribed_at, bounced_at, updated_at`

// Ensure creates an empty subscriber state row for a new user. Idempotent.
func (r *SubscriberRepo) Ensure(ctx context.Context, userID, email string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notify_subscriber_state (user_id, email, updated_at)
		VALUES ($1, LOWER($2), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID, email)
	if err != nil {
		return fmt.Errorf("ensure subscriber state: %w", err)
	}
	return nil
}

// GetByEmail returns subscriber state for an address, or
// suppression.ErrUnknownEmail when no user is registered under it.
func (r *SubscriberRepo) GetByEmail(ctx context.Context, email string) (*domain.SubscriberState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+subscriberColumns+`
		FROM notify_subscriber_state WHERE email = LOWER($1)
	`, strings.TrimSpace(email))
	return scanSubscriber(row)
}

// GetByUserID returns subscriber state for a user id.
func (r *SubscriberRepo) GetByUserID(ctx context.Context, userID string) (*domain.SubscriberState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+subscriberColumns+`
		FROM notify_subscriber_state WHERE user_id = $1
	`, userID)
	return scanSubscriber(row)
}

// MarkUnsubscribed sets both unsubscribe flags, preserving the original
// timestamp on repeat events.
func (r *SubscriberRepo) MarkUnsubscribed(ctx context.Context, email string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_subscriber_state
		SET unsubscribed = TRUE,
		    marketing_unsubscribed = TRUE,
		    unsubscribed_at = COALESCE(unsubscribed_at, $2),
		    updated_at = NOW()
		WHERE email = LOWER($1)
	`, email, at)
	if err != nil {
		return fmt.Errorf("mark unsubscribed: %w", err)
	}
	return nil
}

// MarkBounced records a bounce, preserving the original timestamp.
func (r *SubscriberRepo) MarkBounced(ctx context.Context, email string, bounceType domain.BounceType, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_subscriber_state
		SET bounced = TRUE,
		    bounce_type = $2,
		    bounced_at = COALESCE(bounced_at, $3),
		    updated_at = NOW()
		WHERE email = LOWER($1)
	`, email, string(bounceType), at)
	if err != nil {
		return fmt.Errorf("mark bounced: %w", err)
	}
	return nil
}

func scanSubscriber(row rowScanner) (*domain.SubscriberState, error) {
	var s domain.SubscriberState
	var bounceType string
	err := row.Scan(
		&s.UserID, &s.Email, &s.Unsubscribed, &s.MarketingUnsubscribed,
		&s.Bounced, &bounceType, &s.UnsubscribedAt, &s.BouncedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, suppression.ErrUnknownEmail
	}
	if err != nil {
		return nil, err
	}
	s.BounceType = domain.BounceType(bounceType)
	return &s, nil
}
