package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/testutil"
)

// fakeSource hands out an in-memory task list once and records what the
// pool did with each task.
type fakeSource struct {
	mu        sync.Mutex
	queued    []*Task
	completed []uuid.UUID
	failed    map[uuid.UUID]string
}

func newFakeSource(tasks ...*Task) *fakeSource {
	return &fakeSource{queued: tasks, failed: make(map[uuid.UUID]string)}
}

func (f *fakeSource) Claim(context.Context, time.Time) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queued) == 0 {
		return nil, nil
	}
	t := f.queued[0]
	f.queued = f.queued[1:]
	return t, nil
}

func (f *fakeSource) Complete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeSource) Fail(_ context.Context, id uuid.UUID, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = err.Error()
	return nil
}

func (f *fakeSource) snapshot() (completed []uuid.UUID, failed map[uuid.UUID]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	completed = append([]uuid.UUID(nil), f.completed...)
	failed = make(map[uuid.UUID]string, len(f.failed))
	for k, v := range f.failed {
		failed[k] = v
	}
	return completed, failed
}

func makeTask(name string) *Task {
	return &Task{ID: uuid.New(), Name: name, DocumentID: uuid.New(), Attempts: 1}
}

func runPool(t *testing.T, p *Pool, wait func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for !wait() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("pool did not finish the work in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestPool_DispatchesByName(t *testing.T) {
	process := makeTask(NameProcess)
	index := makeTask(NameIndex)
	source := newFakeSource(process, index)

	var (
		mu      sync.Mutex
		handled []string
	)
	record := func(name string) Handler {
		return func(_ context.Context, tk *Task) error {
			mu.Lock()
			handled = append(handled, name+":"+tk.DocumentID.String())
			mu.Unlock()
			return nil
		}
	}

	p := NewPool(source, PoolConfig{Workers: 1, PollInterval: 5 * time.Millisecond}, testutil.DiscardLogger())
	p.Register(NameProcess, record("process"))
	p.Register(NameIndex, record("index"))

	runPool(t, p, func() bool {
		completed, _ := source.snapshot()
		return len(completed) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"process:" + process.DocumentID.String(),
		"index:" + index.DocumentID.String(),
	}
	if len(handled) != 2 || handled[0] != want[0] || handled[1] != want[1] {
		t.Errorf("handled = %v, want %v", handled, want)
	}
}

func TestPool_HandlerErrorFailsTask(t *testing.T) {
	broken := makeTask(NameProcess)
	fine := makeTask(NameProcess)
	source := newFakeSource(broken, fine)

	p := NewPool(source, PoolConfig{Workers: 1, PollInterval: 5 * time.Millisecond}, testutil.DiscardLogger())
	p.Register(NameProcess, func(_ context.Context, tk *Task) error {
		if tk.ID == broken.ID {
			return errors.New("blob missing")
		}
		return nil
	})

	runPool(t, p, func() bool {
		completed, failed := source.snapshot()
		return len(completed)+len(failed) == 2
	})

	completed, failed := source.snapshot()
	if len(completed) != 1 || completed[0] != fine.ID {
		t.Errorf("completed = %v, want only %s", completed, fine.ID)
	}
	if failed[broken.ID] != "blob missing" {
		t.Errorf("failed = %v", failed)
	}
}

func TestPool_UnknownTaskNameFails(t *testing.T) {
	orphan := makeTask("document.unknown")
	source := newFakeSource(orphan)

	p := NewPool(source, PoolConfig{Workers: 1, PollInterval: 5 * time.Millisecond}, testutil.DiscardLogger())
	p.Register(NameProcess, func(context.Context, *Task) error { return nil })

	runPool(t, p, func() bool {
		_, failed := source.snapshot()
		return len(failed) == 1
	})

	_, failed := source.snapshot()
	if msg := failed[orphan.ID]; msg != "no handler registered for task: document.unknown" {
		t.Errorf("failure message = %q", msg)
	}
}

func TestPool_HardTimeoutCancelsHandler(t *testing.T) {
	slow := makeTask(NameIndex)
	source := newFakeSource(slow)

	p := NewPool(source, PoolConfig{
		Workers:      1,
		PollInterval: 5 * time.Millisecond,
		SoftTimeout:  10 * time.Millisecond,
		HardTimeout:  30 * time.Millisecond,
	}, testutil.DiscardLogger())
	p.Register(NameIndex, func(ctx context.Context, _ *Task) error {
		<-ctx.Done()
		return ctx.Err()
	})

	runPool(t, p, func() bool {
		_, failed := source.snapshot()
		return len(failed) == 1
	})

	_, failed := source.snapshot()
	if msg := failed[slow.ID]; msg != context.DeadlineExceeded.Error() {
		t.Errorf("failure message = %q, want deadline exceeded", msg)
	}
}

func TestPool_ManyWorkersDrainQueue(t *testing.T) {
	var tasks []*Task
	for i := 0; i < 30; i++ {
		tasks = append(tasks, makeTask(NameProcess))
	}
	source := newFakeSource(tasks...)

	p := NewPool(source, PoolConfig{Workers: 4, PollInterval: 5 * time.Millisecond}, testutil.DiscardLogger())
	p.Register(NameProcess, func(context.Context, *Task) error { return nil })

	runPool(t, p, func() bool {
		completed, _ := source.snapshot()
		return len(completed) == len(tasks)
	})
}
