package domain

import "time"

// TripStatus enumerates the trip lifecycle states the adapter cares about.
type TripStatus string

const (
	TripPlanned   TripStatus = "planned"
	TripActive    TripStatus = "active"
	TripCancelled TripStatus = "cancelled"
)

// UserCreatedEvent fires when a new account is created.
type UserCreatedEvent struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// TripCreatedEvent fires when a user creates a trip.
type TripCreatedEvent struct {
	TripID         string     `json:"trip_id"`
	UserID         string     `json:"user_id"`
	Name           string     `json:"name"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	HasPackingList bool       `json:"has_packing_list"`
}

// TripUpdatedEvent fires when a trip changes. Prev* fields carry the state
// before the update so the adapter can detect transitions (packing list
// added, trip cancelled) rather than absolute state.
type TripUpdatedEvent struct {
	TripID             string     `json:"trip_id"`
	UserID             string     `json:"user_id"`
	Status             TripStatus `json:"status"`
	PrevStatus         TripStatus `json:"prev_status"`
	HasPackingList     bool       `json:"has_packing_list"`
	PrevHasPackingList bool       `json:"prev_has_packing_list"`
	StartDate          *time.Time `json:"start_date,omitempty"`
}

// TripInvitation is a pending invitation issued to an email address before
// the invitee had an account. On user creation the event adapter auto-accepts
// any invitations addressed to the new user's email.
type TripInvitation struct {
	ID            string     `json:"id" db:"id"`
	TripID        string     `json:"trip_id" db:"trip_id"`
	InviterUserID string     `json:"inviter_user_id" db:"inviter_user_id"`
	InviteeEmail  string     `json:"invitee_email" db:"invitee_email"`
	Status        string     `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
}
