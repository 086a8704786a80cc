package domain

import "time"

// Core actions a user can complete during onboarding. Completing
// CoreActionGoal distinct actions ends the campaign for that user.
const (
	ActionCreatedTrip          = "created_trip"
	ActionCompletedPackingList = "completed_packing_list"
	ActionAddedGearItem        = "added_gear_item"
)

// CoreActions lists the actions that count toward the campaign goal.
var CoreActions = []string{
	ActionCreatedTrip,
	ActionCompletedPackingList,
	ActionAddedGearItem,
}

// Campaign completion reasons stored on UserCampaignState.CompletedReason.
const (
	CompletedReasonHorizon = "horizon_reached"
	CompletedReasonGoal    = "goal_reached"
)

// UserCampaignState tracks one user's position in the onboarding campaign
// along with the per-user counters the suppression evaluator reads.
//
// PushesThisWeek and EmailsThisWeek are monotonically non-decreasing within
// a week window and are reset exactly once per 7-day boundary by the weekly
// reset pass. Dispatchers increment them with single-statement SQL updates,
// never read-then-write.
type UserCampaignState struct {
	UserID string `json:"user_id" db:"user_id"`
	Email  string `json:"email" db:"email"`

	// StartedAt is the onboarding enrollment instant. Nil means the user
	// is not enrolled and the scheduler never composes candidates for them.
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty" db:"last_active_at"`

	LastPushAt     *time.Time `json:"last_push_at,omitempty" db:"last_push_at"`
	LastEmailAt    *time.Time `json:"last_email_at,omitempty" db:"last_email_at"`
	PushesThisWeek int        `json:"pushes_this_week" db:"pushes_this_week"`
	EmailsThisWeek int        `json:"emails_this_week" db:"emails_this_week"`
	WeekStartedAt  *time.Time `json:"week_started_at,omitempty" db:"week_started_at"`

	// LastNudgeKey / LastEmailType record the last message sent per track,
	// used by the duplicate-for-day rule.
	LastNudgeKey  string     `json:"last_nudge_key,omitempty" db:"last_nudge_key"`
	LastNudgeAt   *time.Time `json:"last_nudge_at,omitempty" db:"last_nudge_at"`
	LastEmailType string     `json:"last_email_type,omitempty" db:"last_email_type"`

	CompletedActions map[string]bool `json:"completed_actions" db:"completed_actions"`

	NotificationsEnabled  bool `json:"notifications_enabled" db:"notifications_enabled"`
	EmailMarketingEnabled bool `json:"email_marketing_enabled" db:"email_marketing_enabled"`

	CampaignCompleted bool   `json:"campaign_completed" db:"campaign_completed"`
	CompletedReason   string `json:"completed_reason,omitempty" db:"completed_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Enrolled reports whether the user has an onboarding start instant.
func (u *UserCampaignState) Enrolled() bool {
	return u.StartedAt != nil
}

// CampaignDay returns the 1-based day index relative to StartedAt.
// Returns 0 if the user is not enrolled.
func (u *UserCampaignState) CampaignDay(now time.Time) int {
	if u.StartedAt == nil {
		return 0
	}
	return int(now.Sub(*u.StartedAt).Hours()/24) + 1
}

// CoreActionsCompleted counts distinct core actions completed so far.
func (u *UserCampaignState) CoreActionsCompleted() int {
	n := 0
	for _, a := range CoreActions {
		if u.CompletedActions[a] {
			n++
		}
	}
	return n
}
