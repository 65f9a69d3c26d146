package task_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/task"
	"github.com/sheaf-ai/sheaf/internal/testutil"
)

func TestQueue_ClaimLifecycle(t *testing.T) {
	t.Parallel()

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	q := task.NewQueue(db.Pool, testutil.DiscardLogger())

	docID := uuid.New()
	id, err := q.Enqueue(ctx, task.NameProcess, docID)
	if err != nil {
		t.Fatalf("Enqueue() = %v", err)
	}

	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	claimed, err := q.Claim(ctx, cutoff)
	if err != nil {
		t.Fatalf("Claim() = %v", err)
	}
	if claimed == nil || claimed.ID != id {
		t.Fatalf("Claim() = %+v, want task %s", claimed, id)
	}
	if claimed.Name != task.NameProcess || claimed.DocumentID != docID {
		t.Errorf("claimed = %+v", claimed)
	}
	if claimed.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", claimed.Attempts)
	}
	if claimed.ClaimedAt == nil {
		t.Error("claimed task has no lease timestamp")
	}

	// A running task with a live lease is not handed out again.
	again, err := q.Claim(ctx, cutoff)
	if err != nil {
		t.Fatalf("second Claim() = %v", err)
	}
	if again != nil {
		t.Fatalf("second Claim() = %+v, want nil while lease is held", again)
	}

	if err := q.Complete(ctx, id); err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() = %v", err)
	}
	if pending != 0 {
		t.Errorf("pending = %d after completion, want 0", pending)
	}
}

func TestQueue_ExpiredLeaseIsReclaimed(t *testing.T) {
	t.Parallel()

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	q := task.NewQueue(db.Pool, testutil.DiscardLogger())

	id, err := q.Enqueue(ctx, task.NameIndex, uuid.New())
	if err != nil {
		t.Fatalf("Enqueue() = %v", err)
	}

	farPast := time.Now().UTC().Add(-time.Hour)
	first, err := q.Claim(ctx, farPast)
	if err != nil || first == nil {
		t.Fatalf("first Claim() = %+v, %v", first, err)
	}

	// A cutoff in the future treats every lease as expired, which is
	// what a poller sees once the hard timeout has passed.
	reclaimed, err := q.Claim(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim Claim() = %v", err)
	}
	if reclaimed == nil || reclaimed.ID != id {
		t.Fatalf("reclaim = %+v, want abandoned task %s", reclaimed, id)
	}
	if reclaimed.Attempts != 2 {
		t.Errorf("attempts after reclaim = %d, want 2", reclaimed.Attempts)
	}
}

func TestQueue_FailedTaskIsNotRetried(t *testing.T) {
	t.Parallel()

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	q := task.NewQueue(db.Pool, testutil.DiscardLogger())

	id, err := q.Enqueue(ctx, task.NameProcess, uuid.New())
	if err != nil {
		t.Fatalf("Enqueue() = %v", err)
	}
	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	if _, err := q.Claim(ctx, cutoff); err != nil {
		t.Fatalf("Claim() = %v", err)
	}
	if err := q.Fail(ctx, id, errors.New("parse exploded")); err != nil {
		t.Fatalf("Fail() = %v", err)
	}

	claimed, err := q.Claim(ctx, cutoff)
	if err != nil {
		t.Fatalf("Claim() after Fail = %v", err)
	}
	if claimed != nil {
		t.Fatalf("failed task was handed out again: %+v", claimed)
	}

	var lastError string
	err = db.Pool.QueryRow(ctx,
		`SELECT last_error FROM pipeline_tasks WHERE id = $1`, id,
	).Scan(&lastError)
	if err != nil {
		t.Fatalf("read failed task: %v", err)
	}
	if lastError != "parse exploded" {
		t.Errorf("last_error = %q", lastError)
	}
}

func TestQueue_ConcurrentClaimsNeverOverlap(t *testing.T) {
	t.Parallel()

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	q := task.NewQueue(db.Pool, testutil.DiscardLogger())

	const total = 20
	for i := 0; i < total; i++ {
		if _, err := q.Enqueue(ctx, task.NameProcess, uuid.New()); err != nil {
			t.Fatalf("Enqueue() = %v", err)
		}
	}

	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	var (
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := q.Claim(ctx, cutoff)
				if err != nil {
					t.Errorf("Claim() = %v", err)
					return
				}
				if claimed == nil {
					return
				}
				mu.Lock()
				seen[claimed.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("claimed %d distinct tasks, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("task %s claimed %d times", id, n)
		}
	}
}
