package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"replenish/internal/logger"
	"replenish/internal/storage"
)

var ErrAlreadyRunning = errors.New("job already running")

// JobFunc does the work of one job invocation and reports result counts for
// the run log.
type JobFunc func(ctx context.Context) (map[string]int, error)

// Runner serializes jobs by name: two invocations of the same job never
// overlap, while different jobs run freely in parallel. Every invocation is
// recorded in the run log.
type Runner struct {
	mu      sync.Mutex
	running map[string]bool
	store   *storage.DB
}

func NewRunner(store *storage.DB) *Runner {
	return &Runner{running: map[string]bool{}, store: store}
}

// Run executes the job synchronously.
func (r *Runner) Run(ctx context.Context, name string, fn JobFunc) error {
	if !r.acquire(name) {
		return ErrAlreadyRunning
	}
	defer r.release(name)
	return r.execute(ctx, name, fn)
}

// Trigger starts the job in the background and returns immediately. The
// caller learns only whether the job was accepted; the outcome goes to the
// log and the run log.
func (r *Runner) Trigger(name string, fn JobFunc) error {
	if !r.acquire(name) {
		return ErrAlreadyRunning
	}

	go func() {
		defer r.release(name)
		if err := r.execute(context.Background(), name, fn); err != nil {
			logger.Errorw("job failed", "job", name, "error", err)
		}
	}()
	return nil
}

func (r *Runner) acquire(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *Runner) release(name string) {
	r.mu.Lock()
	delete(r.running, name)
	r.mu.Unlock()
}

func (r *Runner) execute(ctx context.Context, name string, fn JobFunc) error {
	startedAt := time.Now()
	logger.Infow("job started", "job", name)

	counts, err := fn(ctx)
	duration := time.Since(startedAt)

	if r.store != nil {
		if logErr := r.store.InsertRun(name, startedAt, duration, counts, err); logErr != nil {
			logger.Warnw("run log write failed", "job", name, "error", logErr)
		}
	}

	if err != nil {
		return err
	}
	logger.Infow("job finished", "job", name, "duration_ms", duration.Milliseconds(), "counts", counts)
	return nil
}
