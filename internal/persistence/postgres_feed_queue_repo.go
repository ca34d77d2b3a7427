package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"briefly/internal/core"
)

type postgresFeedQueueRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresFeedQueueRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// Enqueue upserts by (patch_id, discovered_content_id, content_hash): a
// DONE/PENDING/PROCESSING row is left untouched; a FAILED row with
// attempts remaining is reset to PENDING (§4.8).
func (r *postgresFeedQueueRepo) Enqueue(ctx context.Context, patchID, discoveredContentID, contentHash string, priority int, maxAttempts int) error {
	id := uuid.NewString()
	query := `
		INSERT INTO agent_memory_feed_queue (
			id, patch_id, discovered_content_id, content_hash, status, priority, enqueued_at
		) VALUES ($1, $2, $3, $4, 'PENDING', $5, NOW())
		ON CONFLICT (patch_id, discovered_content_id, content_hash) DO UPDATE SET
			status = CASE
				WHEN agent_memory_feed_queue.status = 'FAILED' AND agent_memory_feed_queue.attempts < $6
				THEN 'PENDING'
				ELSE agent_memory_feed_queue.status
			END
	`
	_, err := r.query().ExecContext(ctx, query, id, patchID, discoveredContentID, contentHash, priority, maxAttempts)
	return err
}

// ClaimNext atomically claims one PENDING row, or one PROCESSING row older
// than stuckTimeout, ordered by priority DESC, enqueued_at ASC (§4.8 step 1).
func (r *postgresFeedQueueRepo) ClaimNext(ctx context.Context, stuckTimeout time.Duration) (*core.FeedQueueItem, error) {
	query := `
		UPDATE agent_memory_feed_queue
		SET status = 'PROCESSING', picked_at = NOW(), attempts = attempts + 1
		WHERE id = (
			SELECT id FROM agent_memory_feed_queue
			WHERE status = 'PENDING'
			   OR (status = 'PROCESSING' AND picked_at < NOW() - $1::interval)
			ORDER BY priority DESC, enqueued_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, patch_id, discovered_content_id, content_hash, status, priority,
		          enqueued_at, picked_at, attempts, last_error
	`
	interval := fmt.Sprintf("%d milliseconds", stuckTimeout.Milliseconds())
	row := r.query().QueryRowContext(ctx, query, interval)

	var item core.FeedQueueItem
	var status string
	err := row.Scan(
		&item.ID, &item.PatchID, &item.DiscoveredContentID, &item.ContentHash, &status,
		&item.Priority, &item.EnqueuedAt, &item.PickedAt, &item.Attempts, &item.LastError,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item.Status = core.FeedQueueStatus(status)
	return &item, nil
}

func (r *postgresFeedQueueRepo) MarkDone(ctx context.Context, id string) error {
	_, err := r.query().ExecContext(ctx, `UPDATE agent_memory_feed_queue SET status = 'DONE' WHERE id = $1`, id)
	return err
}

func (r *postgresFeedQueueRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := r.query().ExecContext(ctx, `
		UPDATE agent_memory_feed_queue SET status = 'FAILED', last_error = $2 WHERE id = $1
	`, id, reason)
	return err
}

// Requeue implements §4.8 step 6: a transient error returns the item to
// PENDING if attempts remain below maxAttempts, otherwise FAILED.
func (r *postgresFeedQueueRepo) Requeue(ctx context.Context, id string, reason string, maxAttempts int) error {
	query := `
		UPDATE agent_memory_feed_queue
		SET status = CASE WHEN attempts < $3 THEN 'PENDING' ELSE 'FAILED' END,
		    last_error = $2
		WHERE id = $1
	`
	_, err := r.query().ExecContext(ctx, query, id, reason, maxAttempts)
	return err
}
