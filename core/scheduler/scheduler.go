package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"github.com/swarmcert/swarmcert/core/rotation"
	"github.com/swarmcert/swarmcert/pkg/logger"
	"github.com/swarmcert/swarmcert/pkg/statusfile"
)

var (
	// ErrAlreadyRunning is returned when another invocation holds the
	// host lock. The caller skips the cycle rather than queue behind it.
	ErrAlreadyRunning = errors.New("scheduler: another rotation is already running")

	// ErrInvalidConfig is returned on a malformed scheduler config.
	ErrInvalidConfig = errors.New("scheduler: invalid config")
)

// CycleRunner runs one rotation cycle. Satisfied by
// *rotation.Orchestrator.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*rotation.CycleResult, error)
}

// Config carries the scheduler's settings.
type Config struct {
	CheckInterval time.Duration `env:"CERT_CHECK_INTERVAL" envDefault:"12h"`
	LockFile      string        `env:"CERT_LOCK_FILE" envDefault:"/var/run/swarmcert.lock"`
	StatusFile    string        `env:"CERT_STATUS_FILE" envDefault:"/var/lib/swarmcert/status.json"`
}

// Scheduler serializes and schedules rotation cycles on one host.
type Scheduler struct {
	cfg    Config
	runner CycleRunner

	log *slog.Logger
	now func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the wall clock. Test seam.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New wires a Scheduler.
func New(cfg Config, runner CycleRunner, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("%w: runner required", ErrInvalidConfig)
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("%w: check interval must be positive", ErrInvalidConfig)
	}
	if cfg.LockFile == "" || cfg.StatusFile == "" {
		return nil, fmt.Errorf("%w: lock and status file paths required", ErrInvalidConfig)
	}

	s := &Scheduler{
		cfg:    cfg,
		runner: runner,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunOnce executes a single rotation cycle under the host lock and
// records its outcome in the status file. The cycle's own error is
// returned after the status file is written.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	lock := flock.New(s.cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", s.cfg.LockFile, err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.log.Warn("failed to release lock", logger.Error(err))
		}
	}()

	res, cycleErr := s.runner.RunCycle(ctx)
	s.recordOutcome(ctx, res, cycleErr)
	return cycleErr
}

// RunForever runs cycles every check interval until ctx is cancelled.
// The first cycle starts immediately. Cycle failures are logged and
// retried at the next tick, never fatal to the loop.
func (s *Scheduler) RunForever(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		switch err := s.RunOnce(ctx); {
		case err == nil:
		case errors.Is(err, ErrAlreadyRunning):
			s.log.WarnContext(ctx, "cycle skipped, another rotation holds the lock")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			s.log.ErrorContext(ctx, "rotation cycle failed", logger.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// recordOutcome persists the cycle result. Status file trouble must not
// mask the cycle's own outcome, so it is only logged.
func (s *Scheduler) recordOutcome(ctx context.Context, res *rotation.CycleResult, cycleErr error) {
	state := statusfile.StateNoop
	runID, message := "", ""

	if res != nil {
		runID = res.RunID
		if res.RenewalOccurred {
			state = statusfile.StateSuccess
		}
	}
	if cycleErr != nil {
		state = statusfile.StateFailure
		message = cycleErr.Error()
	}

	prev, err := statusfile.Read(s.cfg.StatusFile)
	if err != nil && !errors.Is(err, statusfile.ErrNotFound) {
		s.log.WarnContext(ctx, "failed to read previous status", logger.Error(err))
	}

	rec := statusfile.Next(prev, state, runID, message, s.now())
	if err := statusfile.Write(s.cfg.StatusFile, rec); err != nil {
		s.log.ErrorContext(ctx, "failed to write status file", logger.Error(err))
		return
	}

	s.log.InfoContext(ctx, "cycle outcome recorded",
		logger.RunID(runID),
		logger.State(string(state)),
		slog.Int("consecutive_failures", rec.ConsecutiveFailures))
}
