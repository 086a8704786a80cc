package suppression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
)

// Service applies webhook-derived suppression signals to subscriber state.
// It is safe for concurrent use.
type Service struct {
	repo  Repository
	state CampaignStateWriter
}

// NewService creates a suppression service backed by the given repositories.
func NewService(repo Repository, state CampaignStateWriter) *Service {
	return &Service{repo: repo, state: state}
}

// Unsubscribe marks the address fully unsubscribed and disables marketing
// email on the user's campaign state. Idempotent; returns ErrUnknownEmail
// when no subscriber exists for the address.
func (s *Service) Unsubscribe(ctx context.Context, email string, at time.Time) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	sub, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.repo.MarkUnsubscribed(ctx, email, at); err != nil {
		return fmt.Errorf("mark unsubscribed: %w", err)
	}
	if err := s.state.DisableEmailMarketing(ctx, sub.UserID); err != nil {
		return fmt.Errorf("disable marketing email: %w", err)
	}
	return nil
}

// RecordBounce marks the address bounced with the given classification.
// Idempotent; returns ErrUnknownEmail when no subscriber exists.
func (s *Service) RecordBounce(ctx context.Context, email string, bounceType domain.BounceType, at time.Time) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if bounceType == "" {
		bounceType = domain.BounceHard
	}

	if _, err := s.repo.GetByEmail(ctx, email); err != nil {
		return err
	}
	if err := s.repo.MarkBounced(ctx, email, bounceType, at); err != nil {
		return fmt.Errorf("mark bounced: %w", err)
	}
	return nil
}

// StateFor returns the subscriber state used by send-time re-checks.
func (s *Service) StateFor(ctx context.Context, userID string) (*domain.SubscriberState, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
