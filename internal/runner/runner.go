// Package runner runs the pipeline in the background, one run at a time, and
// keeps the status record that pollers read.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/accidentwatch/internal/database"
	"github.com/TobiSchelling/accidentwatch/internal/metrics"
	"github.com/TobiSchelling/accidentwatch/internal/pipeline"
)

var (
	ErrAlreadyRunning = errors.New("accident scraping is already in progress")
	ErrNotRunning     = errors.New("no accident scraping process is currently running")
)

// MaxErrors is how many of the most recent errors Status reports.
const MaxErrors = 10

// Job runs one pipeline pass.
type Job func(ctx context.Context, hooks pipeline.Hooks) *pipeline.Result

// Store keeps run history. *database.DB implements it.
type Store interface {
	InsertRun(id string, startedAt time.Time) error
	FinishRun(run database.Run) error
}

// Status is a snapshot of the runner.
type Status struct {
	RunID       string           `json:"run_id,omitempty"`
	IsRunning   bool             `json:"is_running"`
	Progress    int              `json:"progress"`
	CurrentStep string           `json:"current_step"`
	StartTime   *time.Time       `json:"start_time"`
	Errors      []string         `json:"errors"`
	Duration    *float64         `json:"duration"` // seconds
	LastResult  *pipeline.Result `json:"last_result"`
}

// Runner owns the status record. All mutations happen under mu.
type Runner struct {
	job     Job
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	runID    string
	running  bool
	stopping bool
	progress int
	step     string
	started  *time.Time
	finished *time.Time
	errs     []string
	last     *pipeline.Result
	done     chan struct{}
}

// Option customises a Runner.
type Option func(*Runner)

// WithStore records every run in store.
func WithStore(s Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates an idle runner for job.
func New(job Job, opts ...Option) *Runner {
	r := &Runner{job: job, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches a run in the background and returns its ID. It fails with
// ErrAlreadyRunning while another run, including one that is stopping, is in
// flight.
func (r *Runner) Start() (string, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	now := r.now()
	id := uuid.NewString()
	done := make(chan struct{})
	r.runID = id
	r.running = true
	r.stopping = false
	r.progress = 0
	r.step = "Starting accident data scraping..."
	r.started = &now
	r.finished = nil
	r.errs = nil
	r.last = nil
	r.done = done
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.InsertRun(id, now); err != nil {
			log.Printf("Warning: recording run %s: %v", id, err)
		}
	}
	r.metrics.RunStarted()
	log.Printf("Run %s started", id)

	go r.run(id, now, done)
	return id, nil
}

// Stop asks the current run to stop at the next article boundary. The run
// stays in flight until the pipeline returns.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ErrNotRunning
	}
	r.stopping = true
	r.step = "Stopped by user"
	log.Printf("Run %s stop requested", r.runID)
	return nil
}

// Status returns a snapshot. Errors holds at most the last MaxErrors entries.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		RunID:       r.runID,
		IsRunning:   r.running,
		Progress:    r.progress,
		CurrentStep: r.step,
		LastResult:  r.last,
		Errors:      []string{},
	}
	if n := len(r.errs); n > 0 {
		s.Errors = append(s.Errors, r.errs[max(0, n-MaxErrors):]...)
	}
	if r.started != nil {
		start := *r.started
		s.StartTime = &start
		end := r.now()
		if r.finished != nil {
			end = *r.finished
		}
		d := end.Sub(start).Seconds()
		s.Duration = &d
	}
	return s
}

// Wait blocks until the current run, if any, has finished.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Runner) stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping
}

func (r *Runner) update(progress int, step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = progress
	if !r.stopping {
		r.step = step
	}
}

func (r *Runner) run(id string, started time.Time, done chan struct{}) {
	defer close(done)

	var result *pipeline.Result
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Run %s panicked: %v", id, rec)
			r.mu.Lock()
			r.errs = append(r.errs, fmt.Sprintf("Unexpected thread error: %v", rec))
			r.step = fmt.Sprintf("Failed with error: %v", rec)
			result = nil
			r.mu.Unlock()
		}
		r.finish(id, started, result)
	}()

	r.update(10, "Initializing scraping service...")
	hooks := pipeline.Hooks{
		Progress: func(step string) { r.update(50, step) },
		Stopped:  r.stopped,
	}
	r.update(50, "Running accident data scraping...")
	result = r.job(context.Background(), hooks)
	r.update(90, "Scraping completed, finalizing...")
}

func (r *Runner) finish(id string, started time.Time, result *pipeline.Result) {
	now := r.now()
	run := database.Run{ID: id, StartedAt: started, FinishedAt: &now, Outcome: pipeline.OutcomeFailed}

	r.mu.Lock()
	if result != nil {
		r.errs = append(r.errs, result.Errors...)
		if result.Error != "" {
			r.errs = append(r.errs, result.Error)
		}
		r.last = result
		r.progress = 100
		if !r.stopping {
			r.step = "Completed successfully"
		}
		run.Outcome = result.Outcome
		run.Message = result.Message
		run.Articles = result.Articles
		run.Records = result.Records
		run.Duplicates = result.Duplicates
	}
	run.Errors = append([]string(nil), r.errs...)
	r.finished = &now
	r.running = false
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.FinishRun(run); err != nil {
			log.Printf("Warning: recording result of run %s: %v", id, err)
		}
	}
	r.metrics.RunFinished(run.Outcome, now.Sub(started))
	log.Printf("Run %s finished: %s", id, run.Outcome)
}
