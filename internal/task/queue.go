package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queue persists tasks in Postgres. Claiming uses FOR UPDATE SKIP
// LOCKED so concurrent workers never hand the same task out twice.
type Queue struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewQueue creates a Queue backed by the given pool.
func NewQueue(pool *pgxpool.Pool, logger *slog.Logger) *Queue {
	return &Queue{pool: pool, logger: logger}
}

// Enqueue adds a task ready to run immediately.
func (q *Queue) Enqueue(ctx context.Context, name string, documentID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.pool.QueryRow(ctx, `
		INSERT INTO pipeline_tasks (name, document_id)
		VALUES ($1, $2)
		RETURNING id`,
		name, documentID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue task %s: %w", name, err)
	}

	if q.logger != nil {
		q.logger.Debug("task enqueued", "task_id", id, "name", name, "document_id", documentID)
	}
	return id, nil
}

// Claim takes the oldest runnable task, marks it running and stamps the
// lease. It returns nil with no error when the queue is empty. Tasks
// whose lease expired before leaseCutoff are treated as abandoned and
// claimed again.
func (q *Queue) Claim(ctx context.Context, leaseCutoff time.Time) (*Task, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var t Task
	err = tx.QueryRow(ctx, `
		SELECT id, name, document_id, attempts, run_at, claimed_at, last_error, created_at
		FROM pipeline_tasks
		WHERE (status = $1 AND run_at <= now())
		   OR (status = $2 AND claimed_at < $3)
		ORDER BY run_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		statusQueued, statusRunning, leaseCutoff,
	).Scan(&t.ID, &t.Name, &t.DocumentID, &t.Attempts, &t.RunAt, &t.ClaimedAt, &t.LastError, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE pipeline_tasks
		SET status = $2, claimed_at = $3, attempts = attempts + 1
		WHERE id = $1`,
		t.ID, statusRunning, now,
	)
	if err != nil {
		return nil, fmt.Errorf("mark task running: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	t.Attempts++
	t.ClaimedAt = &now
	return &t, nil
}

// Complete removes a finished task from the queue.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM pipeline_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Fail records the error and removes the task. The pipeline writes its
// own failure state on the document, so a failed task is not retried
// until something resubmits it.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, taskErr error) error {
	msg := taskErr.Error()
	_, err := q.pool.Exec(ctx, `
		UPDATE pipeline_tasks
		SET status = $2, claimed_at = NULL, last_error = $3
		WHERE id = $1`,
		id, "failed", msg,
	)
	if err != nil {
		return fmt.Errorf("record task failure: %w", err)
	}

	if q.logger != nil {
		q.logger.Warn("task failed", "task_id", id, "error", msg)
	}
	return nil
}

// Pending counts tasks still waiting or running, mostly for tests and
// the health endpoint.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `
		SELECT count(*) FROM pipeline_tasks WHERE status IN ($1, $2)`,
		statusQueued, statusRunning,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending tasks: %w", err)
	}
	return n, nil
}
