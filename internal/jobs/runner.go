package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"festival-mileage/internal/observability"
	"go.uber.org/zap"
)

type Job func(ctx context.Context) error

// Runner runs named jobs on fixed intervals until its context ends.
type Runner struct {
	ctx    context.Context
	logger *zap.Logger
	wg     sync.WaitGroup
}

func New(ctx context.Context, logger *zap.Logger) *Runner {
	return &Runner{ctx: ctx, logger: logger}
}

func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	if interval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				r.run(name, fn)
			}
		}
	}()
}

// Wait blocks until every job loop has returned.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) run(name string, fn Job) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			jobErrors.WithLabelValues(name).Inc()
			err := fmt.Errorf("panic in job %s: %v", name, rec)
			r.logger.Error("job panicked", zap.String("job", name), zap.Error(err))
			observability.CaptureErr(err)
		}
	}()
	if err := fn(r.ctx); err != nil {
		jobErrors.WithLabelValues(name).Inc()
		r.logger.Warn("job failed", zap.String("job", name), zap.Error(err))
	}
	jobRuns.WithLabelValues(name).Inc()
	jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
