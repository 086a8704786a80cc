package domain

import "time"

// Channel identifies the delivery channel for a queue item.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// QueueStatus enumerates the lifecycle states of a queue item.
//
// Items are created as pending, claimed to in_flight by a drain pass, and
// finish in one of the terminal states (sent, suppressed, failed). Terminal
// items are never revisited: every queue query filters on status.
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusInFlight   QueueStatus = "in_flight"
	StatusSent       QueueStatus = "sent"
	StatusSuppressed QueueStatus = "suppressed"
	StatusFailed     QueueStatus = "failed"
)

// SuppressReason enumerates why a candidate or queued item was not delivered.
// Suppression is a first-class outcome, not an error.
type SuppressReason string

const (
	ReasonNotificationsDisabled  SuppressReason = "notifications_disabled"
	ReasonUnsubscribed           SuppressReason = "unsubscribed"
	ReasonBounced                SuppressReason = "bounced"
	ReasonRecentlyActive         SuppressReason = "recently_active"
	ReasonFrequencyCap           SuppressReason = "frequency_cap"
	ReasonCampaignCompleted      SuppressReason = "campaign_completed"
	ReasonNoPushToken            SuppressReason = "no_push_token"
	ReasonActionAlreadyCompleted SuppressReason = "action_already_completed"
	ReasonTripCancelled          SuppressReason = "trip_cancelled"

	// ReasonDuplicateDay means the candidate was already sent this cycle.
	// It never produces a suppressed queue row; the candidate simply
	// does not exist for today.
	ReasonDuplicateDay SuppressReason = "duplicate_for_day"
)

// Payload is the channel-specific message content of a queue item.
// Push items carry title/body/deeplink; email items carry a template id
// plus per-message template data.
type Payload struct {
	Title        string         `json:"title,omitempty"`
	Body         string         `json:"body,omitempty"`
	Deeplink     string         `json:"deeplink,omitempty"`
	TemplateID   string         `json:"template_id,omitempty"`
	TemplateData map[string]any `json:"template_data,omitempty"`
}

// QueueItem is a single durable notification or email awaiting delivery.
type QueueItem struct {
	ID                string            `json:"id" db:"id"`
	UserID            string            `json:"user_id" db:"user_id"`
	Channel           Channel           `json:"channel" db:"channel"`
	Type              string            `json:"type" db:"type"`
	Payload           Payload           `json:"payload" db:"payload"`
	Transactional     bool              `json:"transactional" db:"transactional"`
	ScheduledAt       time.Time         `json:"scheduled_at" db:"scheduled_at"`
	Status            QueueStatus       `json:"status" db:"status"`
	SuppressionReason SuppressReason    `json:"suppression_reason,omitempty" db:"suppression_reason"`
	Attempts          int               `json:"attempts" db:"attempts"`
	LastAttemptAt     *time.Time        `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	ErrorMessage      string            `json:"error_message,omitempty" db:"error_message"`
	Metadata          map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	SentAt            *time.Time        `json:"sent_at,omitempty" db:"sent_at"`
}

// TripID returns the trip this item references, or "" if none.
func (q *QueueItem) TripID() string {
	if q.Metadata == nil {
		return ""
	}
	return q.Metadata["trip_id"]
}
