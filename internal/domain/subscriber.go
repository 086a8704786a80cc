package domain

import "time"

// BounceType classifies a delivery-provider bounce.
type BounceType string

const (
	BounceHard    BounceType = "hard"
	BounceSoft    BounceType = "soft"
	BounceDropped BounceType = "dropped"
)

// SubscriberState is the per-email suppression state derived from delivery
// provider webhooks. It is authoritative for unsubscribe/bounce suppression
// independent of the opt-out flags on UserCampaignState.
type SubscriberState struct {
	UserID string `json:"user_id" db:"user_id"`
	Email  string `json:"email" db:"email"`

	Unsubscribed          bool `json:"unsubscribed" db:"unsubscribed"`
	MarketingUnsubscribed bool `json:"marketing_unsubscribed" db:"marketing_unsubscribed"`

	Bounced    bool       `json:"bounced" db:"bounced"`
	BounceType BounceType `json:"bounce_type,omitempty" db:"bounce_type"`

	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	BouncedAt      *time.Time `json:"bounced_at,omitempty" db:"bounced_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
