package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules named jobs. A job never overlaps with itself and a panicking job is
// recovered and logged.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Named("cron")}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec ("@every 60s" or a six-field cron expression).
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		start := time.Now()
		job(r.baseCtx)
		r.logger.Debug("cron job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
}

func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", r.Entries()))
	r.cron.Start()
}

// Stop waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("kv", keysAndValues))
}
