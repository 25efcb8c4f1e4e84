package scheduler

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	cronrunner "prophyt/internal/cron"
	"prophyt/internal/pricecache"
	"prophyt/internal/resolution"
)

var ErrAlreadyRunning = errors.New("scheduler already running")

type Sweeper interface {
	Sweep(ctx context.Context, opts resolution.Options) (resolution.Result, error)
}

type PriceRefresher interface {
	Refresh(ctx context.Context) (*pricecache.Price, error)
}

type Config struct {
	SweepEnabled bool
	SweepSpec    string
	PriceEnabled bool
	PriceSpec    string
}

// Scheduler drives the periodic resolution sweep and price refresh.
type Scheduler struct {
	Sweeper Sweeper
	Prices  PriceRefresher
	Config  Config
	Logger  *zap.Logger

	mu      sync.Mutex
	runner  *cronrunner.Runner
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sweepMu sync.Mutex
}

// Start registers the jobs and runs each once right away. Jobs run until Stop or until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil {
		return ErrAlreadyRunning
	}

	jobCtx, cancel := context.WithCancel(ctx)
	runner := cronrunner.New(s.logger(), jobCtx)
	var startup []func(context.Context)

	if s.Config.SweepEnabled && s.Sweeper != nil {
		if _, err := runner.Add("resolution-sweep", specOr(s.Config.SweepSpec, "@every 60s"), s.sweep); err != nil {
			cancel()
			return err
		}
		startup = append(startup, s.sweep)
	}
	if s.Config.PriceEnabled && s.Prices != nil {
		if _, err := runner.Add("price-refresh", specOr(s.Config.PriceSpec, "@every 1h"), s.refreshPrices); err != nil {
			cancel()
			return err
		}
		startup = append(startup, s.refreshPrices)
	}

	runner.Start()
	s.runner = runner
	s.cancel = cancel
	for _, job := range startup {
		job := job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job(jobCtx)
		}()
	}
	s.logger().Info("scheduler started", zap.Int("jobs", runner.Entries()))
	return nil
}

// Stop cancels in-flight jobs and waits for them. Calling it twice is harmless.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	runner, cancel := s.runner, s.cancel
	s.runner, s.cancel = nil, nil
	s.mu.Unlock()
	if runner == nil {
		return
	}
	cancel()
	runner.Stop()
	s.wg.Wait()
	s.logger().Info("scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner != nil
}

func (s *Scheduler) sweep(ctx context.Context) {
	if !s.sweepMu.TryLock() {
		s.logger().Debug("sweep already running, skipped")
		return
	}
	defer s.sweepMu.Unlock()
	res, err := s.Sweeper.Sweep(ctx, resolution.Options{})
	if errors.Is(err, resolution.ErrSweepRunning) {
		s.logger().Debug("sweep already running, skipped")
		return
	}
	if err != nil {
		s.logger().Error("resolution sweep failed", zap.Error(err))
		return
	}
	if res.Resolved+res.Failed+res.Skipped > 0 {
		s.logger().Info("resolution sweep done",
			zap.String("run_id", res.RunID),
			zap.Int("resolved", res.Resolved),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
		)
	}
}

func (s *Scheduler) refreshPrices(ctx context.Context) {
	if _, err := s.Prices.Refresh(ctx); err != nil {
		s.logger().Warn("price refresh failed", zap.Error(err))
	}
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func specOr(spec, fallback string) string {
	if spec == "" {
		return fallback
	}
	return spec
}
