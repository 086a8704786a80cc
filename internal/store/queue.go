package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pxlchk1/trailnotify/internal/domain"
)

// QueueRepo persists notification and email queue items.
type QueueRepo struct {
	db *sql.DB
}

// NewQueueRepo creates a queue repository.
func NewQueueRepo(db *sql.DB) *QueueRepo {
	return &QueueRepo{db: db}
}

const queueColumns = `
	id, user_id, channel, type, payload, transactional,
	scheduled_at, status, COALESCE(suppression_reason, ''),
	attempts, last_attempt_at, COALESCE(error_message, ''),
	COALESCE(metadata, '{}'::jsonb), created_at, sent_at`

// Enqueue inserts a queue item. Duplicate candidates for the same user,
// type, trip, and campaign day are dropped silently (the unique index plus
// ON CONFLICT DO NOTHING makes the enqueue pass idempotent per run).
func (r *QueueRepo) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notify_queue (
			id, user_id, channel, type, payload, transactional,
			scheduled_at, status, suppression_reason, attempts, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), 0, $10, NOW())
		ON CONFLICT DO NOTHING
	`, item.ID, item.UserID, string(item.Channel), item.Type, payload, item.Transactional,
		item.ScheduledAt, string(item.Status), string(item.SuppressionReason), metadata)
	if err != nil {
		return fmt.Errorf("enqueue item: %w", err)
	}
	return nil
}

// ClaimDue atomically claims up to limit due pending items for one channel,
// flipping them to in_flight before any dispatch happens. Overlapping drain
// passes cannot claim the same item.
func (r *QueueRepo) ClaimDue(ctx context.Context, ch domain.Channel, limit int, workerID string) ([]domain.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE notify_queue
			SET status = 'in_flight',
			    worker_id = $1,
			    claimed_at = NOW()
			WHERE id IN (
				SELECT id FROM notify_queue
				WHERE status = 'pending'
				  AND channel = $2
				  AND scheduled_at <= NOW()
				ORDER BY scheduled_at ASC, transactional DESC
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+queueColumns+`
		)
		SELECT * FROM claimed
	`, workerID, string(ch), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// MarkSent transitions an item to its terminal sent state.
func (r *QueueRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = 'sent', sent_at = NOW(), last_attempt_at = NOW(), attempts = attempts + 1
		WHERE id = $1 AND status = 'in_flight'
	`, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkSuppressed transitions an item to its terminal suppressed state.
func (r *QueueRepo) MarkSuppressed(ctx context.Context, id string, reason domain.SuppressReason) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = 'suppressed', suppression_reason = $2
		WHERE id = $1 AND status IN ('pending', 'in_flight')
	`, id, string(reason))
	if err != nil {
		return fmt.Errorf("mark suppressed: %w", err)
	}
	return nil
}

// MarkFailed transitions an item to its terminal failed state with the
// provider error preserved for operational triage.
func (r *QueueRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = 'failed', error_message = $2, attempts = attempts + 1, last_attempt_at = NOW()
		WHERE id = $1 AND status = 'in_flight'
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Reschedule returns a failed attempt to pending with a later send time.
func (r *QueueRepo) Reschedule(ctx context.Context, id, errMsg string, nextAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = 'pending',
		    scheduled_at = $3,
		    error_message = $2,
		    attempts = attempts + 1,
		    last_attempt_at = NOW(),
		    worker_id = NULL,
		    claimed_at = NULL
		WHERE id = $1 AND status = 'in_flight'
	`, id, errMsg, nextAt)
	if err != nil {
		return fmt.Errorf("reschedule item: %w", err)
	}
	return nil
}

// SuppressPendingForTrip suppresses still-pending items referencing a trip.
// An empty msgType matches every type (used when a trip is cancelled).
// Returns the number of items suppressed.
func (r *QueueRepo) SuppressPendingForTrip(ctx context.Context, tripID, msgType string, reason domain.SuppressReason) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = 'suppressed', suppression_reason = $2
		WHERE status = 'pending'
		  AND metadata->>'trip_id' = $1
		  AND ($3 = '' OR type = $3)
	`, tripID, string(reason), msgType)
	if err != nil {
		return 0, fmt.Errorf("suppress pending for trip: %w", err)
	}
	return res.RowsAffected()
}

// HasRecentItem reports whether the user already has an item of the given
// type created since the cutoff, in any status. The inactivity sweep uses
// this as its duplicate guard.
func (r *QueueRepo) HasRecentItem(ctx context.Context, userID, msgType string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notify_queue
			WHERE user_id = $1 AND type = $2 AND created_at >= $3
		)
	`, userID, msgType, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent item: %w", err)
	}
	return exists, nil
}

// ReclaimStale handles items stuck in_flight after a worker crash: items
// under the attempt ceiling go back to pending, the rest become failed.
// Returns (requeued, failed).
func (r *QueueRepo) ReclaimStale(ctx context.Context, staleAge time.Duration, maxAttempts int) (int64, int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = 'pending', worker_id = NULL, claimed_at = NULL, attempts = attempts + 1
		WHERE status = 'in_flight'
		  AND claimed_at < NOW() - $1::interval
		  AND attempts < $2
	`, staleAge.String(), maxAttempts)
	if err != nil {
		return 0, 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	requeued, _ := res.RowsAffected()

	res, err = r.db.ExecContext(ctx, `
		UPDATE notify_queue
		SET status = 'failed', error_message = 'abandoned after max attempts'
		WHERE status = 'in_flight'
		  AND claimed_at < NOW() - $1::interval
		  AND attempts >= $2
	`, staleAge.String(), maxAttempts)
	if err != nil {
		return requeued, 0, fmt.Errorf("fail stale items: %w", err)
	}
	failed, _ := res.RowsAffected()

	return requeued, failed, nil
}

func scanQueueItem(row rowScanner) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var channel, status, reason string
	var payloadJSON, metadataJSON []byte
	err := row.Scan(
		&item.ID, &item.UserID, &channel, &item.Type, &payloadJSON, &item.Transactional,
		&item.ScheduledAt, &status, &reason,
		&item.Attempts, &item.LastAttemptAt, &item.ErrorMessage,
		&metadataJSON, &item.CreatedAt, &item.SentAt,
	)
	if err != nil {
		return nil, err
	}
	item.Channel = domain.Channel(channel)
	item.Status = domain.QueueStatus(status)
	item.SuppressionReason = domain.SuppressReason(reason)
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &item.Payload); err != nil {
			return nil, fmt.Errorf("parse payload: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &item.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &item, nil
}
