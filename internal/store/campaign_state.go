package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
)

// CampaignStateRepo persists per-user onboarding campaign state.
type CampaignStateRepo struct {
	db *sql.DB
}

// NewCampaignStateRepo creates a campaign state repository.
func NewCampaignStateRepo(db *sql.DB) *CampaignStateRepo {
	return &CampaignStateRepo{db: db}
}

const campaignStateColumns = `
	user_id, email, started_at, last_active_at,
	last_push_at, last_email_at, pushes_this_week, emails_this_week, week_started_at,
	COALESCE(last_nudge_key, ''), last_nudge_at, COALESCE(last_email_type, ''),
	COALESCE(completed_actions, '{}'::jsonb),
	notifications_enabled, email_marketing_enabled,
	campaign_completed, COALESCE(completed_reason, ''),
	created_at, updated_at`

// Enroll creates campaign state for a new user with the onboarding clock
// started. Idempotent: an existing row is left untouched.
func (r *CampaignStateRepo) Enroll(ctx context.Context, userID, email string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notify_campaign_state (
			user_id, email, started_at, last_active_at, week_started_at,
			pushes_this_week, emails_this_week, completed_actions,
			notifications_enabled, email_marketing_enabled, campaign_completed,
			created_at, updated_at
		) VALUES ($1, $2, $3, $3, $3, 0, 0, '{}'::jsonb, TRUE, TRUE, FALSE, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID, email, now)
	if err != nil {
		return fmt.Errorf("enroll campaign state: %w", err)
	}
	return nil
}

// Get returns one user's campaign state.
func (r *CampaignStateRepo) Get(ctx context.Context, userID string) (*domain.UserCampaignState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignStateColumns+`
		FROM notify_campaign_state WHERE user_id = $1
	`, userID)
	return scanCampaignState(row)
}

// ListEnrolled returns every enrolled user whose campaign is not complete.
// The scheduler's enqueue pass iterates this set once per run.
func (r *CampaignStateRepo) ListEnrolled(ctx context.Context) ([]domain.UserCampaignState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignStateColumns+`
		FROM notify_campaign_state
		WHERE started_at IS NOT NULL AND campaign_completed = FALSE
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list enrolled: %w", err)
	}
	defer rows.Close()

	var users []domain.UserCampaignState
	for rows.Next() {
		u, err := scanCampaignState(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListInactive returns enrolled users whose last activity predates
// inactiveBefore and who have not been nudged since nudgedBefore.
func (r *CampaignStateRepo) ListInactive(ctx context.Context, inactiveBefore, nudgedBefore time.Time) ([]domain.UserCampaignState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignStateColumns+`
		FROM notify_campaign_state
		WHERE started_at IS NOT NULL
		  AND last_active_at IS NOT NULL
		  AND last_active_at < $1
		  AND (last_nudge_at IS NULL OR last_nudge_at < $2)
		ORDER BY last_active_at
	`, inactiveBefore, nudgedBefore)
	if err != nil {
		return nil, fmt.Errorf("list inactive: %w", err)
	}
	defer rows.Close()

	var users []domain.UserCampaignState
	for rows.Next() {
		u, err := scanCampaignState(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// MarkCampaignCompleted ends the campaign for a user. Idempotent.
func (r *CampaignStateRepo) MarkCampaignCompleted(ctx context.Context, userID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_campaign_state
		SET campaign_completed = TRUE, completed_reason = $2, updated_at = NOW()
		WHERE user_id = $1 AND campaign_completed = FALSE
	`, userID, reason)
	if err != nil {
		return fmt.Errorf("mark campaign completed: %w", err)
	}
	return nil
}

// MarkActionCompleted flips one completed-actions flag.
func (r *CampaignStateRepo) MarkActionCompleted(ctx context.Context, userID, action string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_campaign_state
		SET completed_actions = COALESCE(completed_actions, '{}'::jsonb) || jsonb_build_object($2::text, TRUE),
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, action)
	if err != nil {
		return fmt.Errorf("mark action completed: %w", err)
	}
	return nil
}

// RecordPushSent bumps the weekly push counter and the last-nudge fields in
// one statement (no read-then-write).
func (r *CampaignStateRepo) RecordPushSent(ctx context.Context, userID, nudgeKey string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_campaign_state
		SET pushes_this_week = pushes_this_week + 1,
		    last_push_at = NOW(),
		    last_nudge_key = $2,
		    last_nudge_at = NOW(),
		    week_started_at = COALESCE(week_started_at, NOW()),
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, nudgeKey)
	if err != nil {
		return fmt.Errorf("record push sent: %w", err)
	}
	return nil
}

// RecordEmailSent bumps the weekly email counter and the last-email fields.
func (r *CampaignStateRepo) RecordEmailSent(ctx context.Context, userID, emailType string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_campaign_state
		SET emails_this_week = emails_this_week + 1,
		    last_email_at = NOW(),
		    last_email_type = $2,
		    week_started_at = COALESCE(week_started_at, NOW()),
		    updated_at = NOW()
		WHERE user_id = $1
	`, userID, emailType)
	if err != nil {
		return fmt.Errorf("record email sent: %w", err)
	}
	return nil
}

// ResetWeekChunk zeroes one chunk of weekly counters for the given channel
// and stamps the new week start. A user is only eligible once their week
// window has elapsed, so the pass is a no-op between boundaries no matter
// how often it runs. Returns the number of users reset so the caller can
// loop until exhausted.
func (r *CampaignStateRepo) ResetWeekChunk(ctx context.Context, ch domain.Channel, chunkSize int, now time.Time) (int64, error) {
	counter := "pushes_this_week"
	if ch == domain.ChannelEmail {
		counter = "emails_this_week"
	}

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE notify_campaign_state
		SET %[1]s = 0, week_started_at = $1, updated_at = NOW()
		WHERE user_id IN (
			SELECT user_id FROM notify_campaign_state
			WHERE %[1]s > 0
			  AND (week_started_at IS NULL OR week_started_at <= $1::timestamptz - interval '7 days')
			ORDER BY user_id
			LIMIT $2
		)
	`, counter), now, chunkSize)
	if err != nil {
		return 0, fmt.Errorf("reset week chunk: %w", err)
	}
	return res.RowsAffected()
}

// DisableEmailMarketing clears the marketing opt-in flag. Called by the
// webhook reconciler on unsubscribe events.
func (r *CampaignStateRepo) DisableEmailMarketing(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_campaign_state
		SET email_marketing_enabled = FALSE, updated_at = NOW()
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("disable email marketing: %w", err)
	}
	return nil
}

// TouchActivity updates last_active_at. Called by the event adapter when a
// domain event shows the user in the app.
func (r *CampaignStateRepo) TouchActivity(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_campaign_state
		SET last_active_at = $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, at)
	if err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaignState(row rowScanner) (*domain.UserCampaignState, error) {
	var u domain.UserCampaignState
	var actionsJSON []byte
	err := row.Scan(
		&u.UserID, &u.Email, &u.StartedAt, &u.LastActiveAt,
		&u.LastPushAt, &u.LastEmailAt, &u.PushesThisWeek, &u.EmailsThisWeek, &u.WeekStartedAt,
		&u.LastNudgeKey, &u.LastNudgeAt, &u.LastEmailType,
		&actionsJSON,
		&u.NotificationsEnabled, &u.EmailMarketingEnabled,
		&u.CampaignCompleted, &u.CompletedReason,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.CompletedActions = map[string]bool{}
	if len(actionsJSON) > 0 {
		if err := json.Unmarshal(actionsJSON, &u.CompletedActions); err != nil {
			return nil, fmt.Errorf("parse completed_actions: %w", err)
		}
	}
	return &u, nil
}
