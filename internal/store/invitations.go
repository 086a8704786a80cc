package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pxlchk1/trailnotify/internal/domain"
)

// InvitationRepo persists trip invitations and trip membership. The event
// adapter auto-accepts pending invitations when the invitee registers.
type InvitationRepo struct {
	db *sql.DB
}

// NewInvitationRepo creates an invitation repository.
func NewInvitationRepo(db *sql.DB) *InvitationRepo {
	return &InvitationRepo{db: db}
}

// Create issues an invitation to an email address.
func (r *InvitationRepo) Create(ctx context.Context, tripID, inviterUserID, inviteeEmail string) (*domain.TripInvitation, error) {
	inv := &domain.TripInvitation{
		ID:            uuid.NewString(),
		TripID:        tripID,
		InviterUserID: inviterUserID,
		InviteeEmail:  inviteeEmail,
		Status:        "pending",
		CreatedAt:     time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notify_trip_invites (id, trip_id, inviter_user_id, invitee_email, status, created_at)
		VALUES ($1, $2, $3, LOWER($4), 'pending', $5)
	`, inv.ID, inv.TripID, inv.InviterUserID, inv.InviteeEmail, inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	return inv, nil
}

// PendingForEmail returns pending invitations addressed to an email.
func (r *InvitationRepo) PendingForEmail(ctx context.Context, email string) ([]domain.TripInvitation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trip_id, inviter_user_id, invitee_email, status, created_at, accepted_at
		FROM notify_trip_invites
		WHERE invitee_email = LOWER($1) AND status = 'pending'
		ORDER BY created_at
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	defer rows.Close()

	var invs []domain.TripInvitation
	for rows.Next() {
		var inv domain.TripInvitation
		if err := rows.Scan(&inv.ID, &inv.TripID, &inv.InviterUserID, &inv.InviteeEmail,
			&inv.Status, &inv.CreatedAt, &inv.AcceptedAt); err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// Accept marks an invitation accepted and adds the user to the trip's
// member list. Both writes happen in one transaction.
func (r *InvitationRepo) Accept(ctx context.Context, invitationID, userID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin accept tx: %w", err)
	}
	defer tx.Rollback()

	var tripID string
	err = tx.QueryRowContext(ctx, `
		UPDATE notify_trip_invites
		SET status = 'accepted', accepted_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING trip_id
	`, invitationID, at).Scan(&tripID)
	if err == sql.ErrNoRows {
		// Already accepted or expired. Nothing to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notify_trip_members (trip_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (trip_id, user_id) DO NOTHING
	`, tripID, userID, at)
	if err != nil {
		return fmt.Errorf("add trip member: %w", err)
	}

	return tx.Commit()
}
