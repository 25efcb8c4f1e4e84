package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"prophyt/internal/client/sui"
	"prophyt/internal/metrics"
)

type Ledger interface {
	QueryEvents(ctx context.Context, filter sui.EventFilter, cursor *sui.EventID, limit int, descending bool) (sui.EventPage, error)
}

// Poller drains one ledger event stream per kind into the handler.
type Poller struct {
	Ledger    Ledger
	Cursors   *CursorStore
	Handler   *Handler
	Kinds     []EventKind
	PackageID string

	PollInterval time.Duration
	PageLimit    int
	// Concurrency caps in-flight ledger queries across all streams.
	Concurrency int
	// RestartBackoff is the first delay before a panicked stream loop is restarted.
	// Zero leaves the stream stopped until the process restarts.
	RestartBackoff    time.Duration
	MaxRestartBackoff time.Duration

	Metrics *metrics.Metrics
	Logger  *zap.Logger

	sem *semaphore.Weighted
}

// Run blocks until ctx is cancelled, running one supervised loop per kind.
func (p *Poller) Run(ctx context.Context) error {
	kinds := p.Kinds
	if len(kinds) == 0 {
		kinds = AllKinds()
	}
	limit := p.Concurrency
	if limit <= 0 {
		limit = len(kinds)
	}
	p.sem = semaphore.NewWeighted(int64(limit))

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		kind := kind
		g.Go(func() error {
			p.supervise(gctx, kind)
			return nil
		})
	}
	p.logger().Info("event poller started",
		zap.Int("streams", len(kinds)),
		zap.Int("concurrency", limit),
		zap.String("package", p.PackageID),
	)
	err := g.Wait()
	p.logger().Info("event poller stopped")
	return err
}

func (p *Poller) supervise(ctx context.Context, kind EventKind) {
	backoff := p.RestartBackoff
	for {
		err := p.runRecovered(ctx, kind)
		if ctx.Err() != nil {
			return
		}
		p.logger().Error("stream loop crashed", zap.String("stream", kind.Stream()), zap.Error(err))
		if p.RestartBackoff <= 0 {
			p.logger().Warn("stream stopped until restart", zap.String("stream", kind.Stream()))
			return
		}
		p.Metrics.StreamRestart(kind.Stream())
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff *= 2
		if p.MaxRestartBackoff > 0 && backoff > p.MaxRestartBackoff {
			backoff = p.MaxRestartBackoff
		}
	}
}

func (p *Poller) runRecovered(ctx context.Context, kind EventKind) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return p.RunStream(ctx, kind)
}

// RunStream polls one stream until ctx is cancelled.
func (p *Poller) RunStream(ctx context.Context, kind EventKind) error {
	stream := kind.Stream()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		more, err := p.Step(ctx, kind)
		if err != nil && ctx.Err() == nil {
			if IsRetryable(err) {
				p.logger().Warn("stream waiting for dependency", zap.String("stream", stream), zap.Error(err))
			} else {
				p.logger().Error("stream iteration failed", zap.String("stream", stream), zap.Error(err))
			}
		}
		if more && err == nil {
			continue
		}
		if !sleepCtx(ctx, p.pollInterval()) {
			return ctx.Err()
		}
	}
}

// Step runs one iteration: read cursor, fetch one page, handle it, advance the cursor.
// more reports that another page is ready and the caller should not sleep.
func (p *Poller) Step(ctx context.Context, kind EventKind) (more bool, err error) {
	stream := kind.Stream()
	cursor, err := p.Cursors.Get(ctx, stream)
	if err != nil {
		return false, fmt.Errorf("load cursor: %w", err)
	}

	page, err := p.query(ctx, kind, cursor)
	if errors.Is(err, sui.ErrCursorPruned) {
		if clearErr := p.Cursors.Clear(ctx, stream); clearErr != nil {
			return false, fmt.Errorf("clear pruned cursor: %w", clearErr)
		}
		p.Metrics.CursorReset(stream)
		pruned := ""
		if cursor != nil {
			pruned = cursor.String()
		}
		p.logger().Warn("cursor pruned, resyncing from genesis", zap.String("stream", stream), zap.String("cursor", pruned))
		return true, nil
	}
	if err != nil {
		p.Metrics.PollError(stream)
		p.recordError(ctx, stream, err)
		return false, err
	}

	if len(page.Data) == 0 {
		if page.HasNextPage && page.NextCursor != nil && (cursor == nil || *page.NextCursor != *cursor) {
			if err := p.Cursors.Set(ctx, stream, *page.NextCursor, 0); err != nil {
				return false, fmt.Errorf("save cursor: %w", err)
			}
			return true, nil
		}
		return false, nil
	}

	if err := p.Handler.HandleBatch(ctx, kind, page.Data); err != nil {
		if IsRetryable(err) {
			p.Metrics.BlockedOnMarket(stream, true)
		} else {
			p.Metrics.PollError(stream)
		}
		p.recordError(ctx, stream, err)
		return false, err
	}
	p.Metrics.BlockedOnMarket(stream, false)

	next := page.Data[len(page.Data)-1].ID
	if page.NextCursor != nil && page.NextCursor.TxDigest != "" {
		next = *page.NextCursor
	}
	if err := p.Cursors.Set(ctx, stream, next, len(page.Data)); err != nil {
		return false, fmt.Errorf("save cursor: %w", err)
	}
	p.Metrics.EventsProcessed(stream, len(page.Data))
	p.Metrics.CursorPosition(stream, next.Seq())
	p.logger().Debug("stream advanced",
		zap.String("stream", stream),
		zap.Int("events", len(page.Data)),
		zap.String("cursor", next.String()),
	)
	return page.HasNextPage, nil
}

func (p *Poller) query(ctx context.Context, kind EventKind, cursor *sui.EventID) (sui.EventPage, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return sui.EventPage{}, err
		}
		defer p.sem.Release(1)
	}
	return p.Ledger.QueryEvents(ctx, kind.Filter(p.PackageID), cursor, p.pageLimit(), false)
}

func (p *Poller) recordError(ctx context.Context, stream string, cause error) {
	if err := p.Cursors.RecordError(ctx, stream, cause); err != nil {
		p.logger().Warn("record cursor error failed", zap.String("stream", stream), zap.Error(err))
	}
}

func (p *Poller) pollInterval() time.Duration {
	if p.PollInterval <= 0 {
		return time.Second
	}
	return p.PollInterval
}

func (p *Poller) pageLimit() int {
	if p.PageLimit <= 0 {
		return 50
	}
	return p.PageLimit
}

func (p *Poller) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
