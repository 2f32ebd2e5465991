// Package scheduler runs the expiration sweeps. Expiry is never decided on
// the request path; these jobs are the only writers of time-based terminal
// statuses.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"xs2acms/internal/platform/metrics"
)

// Scheduler owns one goroutine per enabled sweep. Runs are guarded twice:
// singleflight collapses a manual trigger racing a timer tick in-process,
// and the Locker keeps other instances out.
type Scheduler struct {
	sweeps  []Sweep
	locker  Locker
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	group   singleflight.Group
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(locker Locker, lockTTL time.Duration, sweeps []Sweep, opts ...Option) *Scheduler {
	s := &Scheduler{
		sweeps:  sweeps,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled. Sweeps with a zero interval are
// configured off and get no goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sweep := range s.sweeps {
		if sweep.Interval <= 0 {
			continue
		}
		sweep := sweep
		g.Go(func() error {
			ticker := time.NewTicker(sweep.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					s.runOnce(ctx, sweep)
				}
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Trigger runs one sweep by name immediately, sharing the in-flight run if
// a timer tick already started it.
func (s *Scheduler) Trigger(ctx context.Context, name string) (int, error) {
	for _, sweep := range s.sweeps {
		if sweep.Name == name {
			rows, err, _ := s.group.Do(name, func() (any, error) {
				return s.execute(ctx, sweep)
			})
			n, _ := rows.(int)
			return n, err
		}
	}
	return 0, nil
}

func (s *Scheduler) runOnce(ctx context.Context, sweep Sweep) {
	_, _, _ = s.group.Do(sweep.Name, func() (any, error) {
		return s.execute(ctx, sweep)
	})
}

func (s *Scheduler) execute(ctx context.Context, sweep Sweep) (int, error) {
	acquired, err := s.locker.Acquire(ctx, sweep.Name, s.lockTTL)
	if err != nil {
		s.observe(sweep.Name, 0, 0, "lock_error")
		s.logger.WarnContext(ctx, "sweep lock unavailable",
			slog.String("sweep", sweep.Name), slog.String("error", err.Error()))
		return 0, err
	}
	if !acquired {
		s.observe(sweep.Name, 0, 0, "skipped")
		return 0, nil
	}
	defer func() {
		if err := s.locker.Release(ctx, sweep.Name); err != nil {
			s.logger.WarnContext(ctx, "sweep lock release failed",
				slog.String("sweep", sweep.Name), slog.String("error", err.Error()))
		}
	}()

	started := time.Now()
	rows, err := sweep.Run(ctx)
	elapsed := time.Since(started)
	if err != nil {
		s.observe(sweep.Name, rows, elapsed.Seconds(), "error")
		s.logger.ErrorContext(ctx, "sweep failed",
			slog.String("sweep", sweep.Name),
			slog.Int("rows", rows),
			slog.String("error", err.Error()))
		return rows, err
	}
	s.observe(sweep.Name, rows, elapsed.Seconds(), "ok")
	if rows > 0 {
		s.logger.InfoContext(ctx, "sweep completed",
			slog.String("sweep", sweep.Name),
			slog.Int("rows", rows),
			slog.Duration("elapsed", elapsed))
	}
	return rows, nil
}

func (s *Scheduler) observe(sweep string, rows int, seconds float64, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SweepRuns.WithLabelValues(sweep, outcome).Inc()
	if rows > 0 {
		s.metrics.SweepExpiredRows.WithLabelValues(sweep).Add(float64(rows))
	}
	if outcome == "ok" || outcome == "error" {
		s.metrics.SweepDuration.WithLabelValues(sweep).Observe(seconds)
	}
}
