package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// AdmissionConfig holds configuration for the admission controller.
type AdmissionConfig struct {
	MaxActive          int           // ceiling on in-flight jobs across the run
	PollInterval       time.Duration // sleep between polls while at the ceiling
	MaxWait            time.Duration // 0 waits forever
	PollRetries        uint64        // retries of a failed status read
	PollBackoffInitial time.Duration
	PollBackoffMax     time.Duration
}

// AdmissionController bounds the number of in-flight export jobs. Jobs are
// tracked from submission until a poll observes them terminal.
type AdmissionController struct {
	mu       sync.RWMutex
	registry JobRegistry

	// gateMu makes poll, decide and return one atomic step for concurrent callers.
	gateMu sync.Mutex

	jobs    output.JobService
	ledger  output.JobLedger
	events  output.EventPublisher
	metrics output.MetricsCollector
	logger  *slog.Logger
	cfg     AdmissionConfig

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewAdmissionController creates a new admission controller.
func NewAdmissionController(
	jobs output.JobService,
	ledger output.JobLedger,
	events output.EventPublisher,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg AdmissionConfig,
) *AdmissionController {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 2000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PollBackoffInitial <= 0 {
		cfg.PollBackoffInitial = 500 * time.Millisecond
	}
	if cfg.PollBackoffMax <= 0 {
		cfg.PollBackoffMax = 30 * time.Second
	}

	return &AdmissionController{
		registry: NewJobRegistry(),
		jobs:     jobs,
		ledger:   ledger,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// Track starts tracking a submitted job. It fails with ErrDuplicateJob when
// the job key is already tracked.
func (c *AdmissionController) Track(runID string, job domain.ExportJob, handle domain.JobHandle) error {
	c.mu.Lock()
	err := c.registry.Insert(runID, job.Key, job.Name, handle, c.now())
	n := c.registry.Len()
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("job not tracked", "job", job.Name, "handle", handle, "error", err)
		return err
	}
	c.metrics.SetJobsActive(n)
	return nil
}

// Snapshot returns the tracked jobs.
func (c *AdmissionController) Snapshot() []domain.TrackedJob {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Jobs()
}

// InFlight returns the number of tracked jobs.
func (c *AdmissionController) InFlight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Len()
}

// Ceiling returns the configured ceiling.
func (c *AdmissionController) Ceiling() int {
	return c.cfg.MaxActive
}

// Gate polls every tracked job, drops the terminal ones and blocks while the
// number of active jobs is at or above the ceiling. It returns the active
// count once it is below the ceiling.
func (c *AdmissionController) Gate(ctx context.Context) (int, error) {
	c.gateMu.Lock()
	defer c.gateMu.Unlock()

	start := c.now()
	waited := false

	for {
		active, err := c.Poll(ctx)
		if err != nil {
			return active, err
		}

		if active < c.cfg.MaxActive {
			if waited {
				c.metrics.ObserveCapacityWait(c.now().Sub(start))
				c.logger.Info("capacity available", "active", active, "waited", c.now().Sub(start))
			}
			return active, nil
		}

		if c.cfg.MaxWait > 0 && c.now().Sub(start) >= c.cfg.MaxWait {
			c.metrics.ObserveCapacityWait(c.now().Sub(start))
			return active, fmt.Errorf("%d active jobs at ceiling %d after %s: %w",
				active, c.cfg.MaxActive, c.cfg.MaxWait, domain.ErrCapacityTimeout)
		}

		if !waited {
			c.logger.Info("job ceiling reached, waiting",
				"active", active,
				"ceiling", c.cfg.MaxActive,
				"poll_interval", c.cfg.PollInterval,
			)
		}
		waited = true

		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return active, err
		}
	}
}

// Poll reads the state of every tracked job once, drops the terminal ones
// and returns the number still counted as active.
func (c *AdmissionController) Poll(ctx context.Context) (int, error) {
	start := c.now()
	jobs := c.Snapshot()

	polled := make(map[domain.JobKey]domain.JobState, len(jobs))
	for _, job := range jobs {
		state, err := c.status(ctx, job)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return c.InFlight(), ctxErr
			}
			c.metrics.IncPollErrors()
			c.logger.Warn("job status unavailable, keeping it as active", "error", err)
			continue
		}
		polled[job.Key] = state
	}

	c.mu.Lock()
	next, active, finished := Advance(c.registry, polled)
	c.registry = next
	c.mu.Unlock()

	for _, f := range finished {
		c.finish(ctx, f)
	}

	c.metrics.SetJobsActive(active)
	c.metrics.ObservePollDuration(c.now().Sub(start))
	c.logger.Info("polled jobs", "active", active, "finished", len(finished))

	return active, nil
}

// status reads one job state, retrying transient failures with backoff.
func (c *AdmissionController) status(ctx context.Context, job domain.TrackedJob) (domain.JobState, error) {
	var state domain.JobState

	operation := func() error {
		s, err := c.jobs.Status(ctx, job.Handle)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		state = s
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying job status", "job", job.Name, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &domain.PollError{Key: job.Key, Handle: job.Handle, Err: err}
	}
	return state, nil
}

func (c *AdmissionController) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.PollBackoffInitial
	b.MaxInterval = c.cfg.PollBackoffMax
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, c.cfg.PollRetries)
}

// finish records a job that left the registry.
func (c *AdmissionController) finish(ctx context.Context, f FinishedJob) {
	c.metrics.IncJobsFinished(string(f.State))

	level := slog.LevelDebug
	if f.State != domain.JobStateCompleted {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, "job finished", "job", f.Name, "state", f.State)

	if err := c.ledger.RecordState(ctx, f.Handle, f.State); err != nil {
		c.logger.Warn("failed to record job state", "job", f.Name, "error", err)
	}

	ev := output.JobEvent{
		RunID:  f.RunID,
		Key:    f.Key.String(),
		Name:   f.Name,
		Handle: string(f.Handle),
		State:  f.State,
		At:     c.now(),
	}
	if err := c.events.JobFinished(ctx, ev); err != nil {
		c.logger.Warn("failed to publish job event", "job", f.Name, "error", err)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
