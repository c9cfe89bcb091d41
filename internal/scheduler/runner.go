package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Handler is one scheduled unit of work. Handlers own their error handling;
// anything they return to the runner would only be logged anyway.
type Handler func(ctx context.Context)

type job struct {
	name     string
	interval time.Duration
	handler  Handler
	enabled  bool
	running  bool
	lastRun  *time.Time
	nextRun  time.Time
}

// JobStatus is the introspection snapshot of one job.
type JobStatus struct {
	Name     string     `json:"name"`
	Interval string     `json:"interval"`
	Enabled  bool       `json:"enabled"`
	Running  bool       `json:"running"`
	LastRun  *time.Time `json:"last_run"`
	NextRun  time.Time  `json:"next_run"`
}

// Runner drives a set of recurring jobs, each on its own ticker. A slow or
// panicking job never affects the others.
type Runner struct {
	mu     sync.Mutex
	jobs   map[string]*job
	logger *slog.Logger
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{jobs: map[string]*job{}, logger: logger}
}

func (r *Runner) Register(name string, interval time.Duration, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[name] = &job{name: name, interval: interval, handler: handler, enabled: true}
}

// Start launches one goroutine per registered job. Each job runs at its
// interval until Stop or context cancellation.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	now := time.Now().UTC()
	for _, j := range r.jobs {
		j.nextRun = now.Add(j.interval)
		r.wg.Add(1)
		go r.loop(ctx, j.name, j.interval)
	}
	r.mu.Unlock()
	r.logger.Info("scheduler started", slog.Int("jobs", len(r.jobs)))
}

func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.logger.Info("scheduler stopped")
}

func (r *Runner) loop(ctx context.Context, name string, interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.execute(ctx, name)
		}
	}
}

// execute runs one job invocation with panic containment. Disabled jobs keep
// ticking but do nothing, so re-enabling picks up on the next tick.
func (r *Runner) execute(ctx context.Context, name string) {
	r.mu.Lock()
	j, ok := r.jobs[name]
	if !ok || !j.enabled || j.running {
		r.mu.Unlock()
		return
	}
	j.running = true
	handler, interval := j.handler, j.interval
	r.mu.Unlock()

	started := time.Now().UTC()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("job panicked", slog.String("job", name), slog.Any("panic", rec))
		}
		r.mu.Lock()
		j.running = false
		j.lastRun = &started
		j.nextRun = started.Add(interval)
		r.mu.Unlock()
	}()
	handler(ctx)
}

// RunNow triggers a job outside its schedule. Returns false for unknown jobs;
// disabled jobs still run, matching manual operator intent.
func (r *Runner) RunNow(ctx context.Context, name string) bool {
	r.mu.Lock()
	j, ok := r.jobs[name]
	if !ok || j.running {
		r.mu.Unlock()
		return ok
	}
	j.running = true
	handler := j.handler
	r.mu.Unlock()

	started := time.Now().UTC()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("job panicked", slog.String("job", name), slog.Any("panic", rec))
		}
		r.mu.Lock()
		j.running = false
		j.lastRun = &started
		r.mu.Unlock()
	}()
	handler(ctx)
	return true
}

func (r *Runner) Enable(name string) bool {
	return r.setEnabled(name, true)
}

func (r *Runner) Disable(name string) bool {
	return r.setEnabled(name, false)
}

func (r *Runner) setEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[name]
	if !ok {
		return false
	}
	j.enabled = enabled
	return true
}

// Status returns a snapshot of every job, sorted by name for stable output.
func (r *Runner) Status() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobStatus, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, JobStatus{
			Name:     j.name,
			Interval: j.interval.String(),
			Enabled:  j.enabled,
			Running:  j.running,
			LastRun:  j.lastRun,
			NextRun:  j.nextRun,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}
