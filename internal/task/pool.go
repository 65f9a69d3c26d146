package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler runs one task. A returned error marks the task failed.
type Handler func(ctx context.Context, t *Task) error

// Source is the queue surface the pool consumes. *Queue satisfies it.
type Source interface {
	Claim(ctx context.Context, leaseCutoff time.Time) (*Task, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, taskErr error) error
}

// PoolConfig tunes the worker pool. Zero values fall back to defaults.
type PoolConfig struct {
	Workers      int
	PollInterval time.Duration
	SoftTimeout  time.Duration
	HardTimeout  time.Duration
}

// Pool polling defaults.
const (
	DefaultWorkers      = 4
	DefaultPollInterval = time.Second
	DefaultSoftTimeout  = 2 * time.Minute
	DefaultHardTimeout  = 10 * time.Minute
)

// Pool pulls tasks from a Source and dispatches them to registered
// handlers on a fixed number of workers.
type Pool struct {
	source   Source
	handlers map[string]Handler
	cfg      PoolConfig
	logger   *slog.Logger
}

// NewPool creates a Pool. Handlers are registered before Run.
func NewPool(source Source, cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = DefaultSoftTimeout
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = DefaultHardTimeout
	}
	return &Pool{
		source:   source,
		handlers: make(map[string]Handler),
		cfg:      cfg,
		logger:   logger,
	}
}

// Register binds a handler to a task name. Registering the same name
// twice replaces the earlier handler.
func (p *Pool) Register(name string, h Handler) {
	p.handlers[name] = h
}

// Run blocks until ctx is cancelled, then waits for in-flight tasks.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.work(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, worker int) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		claimed, err := p.runOne(ctx, worker)
		if err != nil && ctx.Err() == nil && p.logger != nil {
			p.logger.Error("claim failed", "worker", worker, "error", err)
		}
		if claimed {
			// Drain the queue before going back to the ticker.
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runOne claims and executes a single task. It reports whether a task
// was claimed so the caller knows to poll again immediately.
func (p *Pool) runOne(ctx context.Context, worker int) (bool, error) {
	leaseCutoff := time.Now().UTC().Add(-p.cfg.HardTimeout)
	t, err := p.source.Claim(ctx, leaseCutoff)
	if err != nil || t == nil {
		return false, err
	}

	handler, ok := p.handlers[t.Name]
	if !ok {
		failErr := fmt.Errorf("%w: %s", ErrUnknownTask, t.Name)
		if err := p.source.Fail(ctx, t.ID, failErr); err != nil && p.logger != nil {
			p.logger.Error("record failure", "task_id", t.ID, "error", err)
		}
		return true, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.HardTimeout)
	defer cancel()

	slow := time.AfterFunc(p.cfg.SoftTimeout, func() {
		if p.logger != nil {
			p.logger.Warn("task running past soft timeout",
				"task_id", t.ID, "name", t.Name, "worker", worker,
				"soft_timeout", p.cfg.SoftTimeout)
		}
	})
	defer slow.Stop()

	if p.logger != nil {
		p.logger.Debug("task started", "task_id", t.ID, "name", t.Name, "worker", worker, "attempt", t.Attempts)
	}

	if err := handler(runCtx, t); err != nil {
		if failErr := p.source.Fail(ctx, t.ID, err); failErr != nil && p.logger != nil {
			p.logger.Error("record failure", "task_id", t.ID, "error", failErr)
		}
		return true, nil
	}

	if err := p.source.Complete(ctx, t.ID); err != nil && p.logger != nil {
		p.logger.Error("complete task", "task_id", t.ID, "error", err)
	}
	return true, nil
}
