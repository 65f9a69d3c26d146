// Package task is a small durable queue on Postgres. Tasks survive a
// process crash: a claim takes a lease, and leases that outlive the
// hard timeout are requeued by the next poller.
package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task names known to the pipeline.
const (
	NameProcess = "document.process"
	NameIndex   = "document.index"
)

// Queue states stored in pipeline_tasks.status.
const (
	statusQueued  = "queued"
	statusRunning = "running"
)

var ErrUnknownTask = errors.New("no handler registered for task")

// Task is one unit of queued work against a document.
type Task struct {
	ID         uuid.UUID
	Name       string
	DocumentID uuid.UUID
	Attempts   int
	RunAt      time.Time
	ClaimedAt  *time.Time
	LastError  *string
	CreatedAt  time.Time
}
