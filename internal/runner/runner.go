package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/crankbench/internal/broadcast"
	"github.com/torosent/crankbench/internal/worker"
	"github.com/torosent/crankbench/internal/workload"
)

// Result captures execution summary.
type Result struct {
	Published uint64        // items emitted by the generator
	Lagged    uint64        // items skipped across all workers
	Duration  time.Duration // wall time from first publish to last worker exit
}

// Runner wires one generator to Workers workers through a broadcast channel.
type Runner struct {
	opt Options
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// Run blocks until every worker has drained the channel or ctx is cancelled,
// then finalizes the stats engine. A cancelled ctx is not an error: the
// generator stops early and the partial run is still reported.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.opt.Stats == nil || r.opt.Client == nil {
		return Result{}, errors.New("runner: stats engine and client are required")
	}
	if r.opt.Workers > r.opt.Stats.Workers() {
		return Result{}, fmt.Errorf("runner: %d workers but stats engine sized for %d", r.opt.Workers, r.opt.Stats.Workers())
	}

	ch := broadcast.New[workload.WorkItem](r.opt.Buffer, r.opt.LagPolicy)
	gen, err := workload.NewGenerator(r.opt.Plan, ch)
	if err != nil {
		ch.Close()
		return Result{}, err
	}

	// Every subscription must exist before the first publish.
	subs := make([]*broadcast.Subscriber[workload.WorkItem], r.opt.Workers)
	for i := range subs {
		subs[i] = ch.Subscribe()
	}

	r.opt.Logger.Debug("starting run",
		zap.Int("workers", r.opt.Workers),
		zap.Int("buffer", ch.Capacity()),
		zap.String("lag_policy", string(ch.Policy())))

	r.opt.Stats.Start()
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	var published uint64
	g.Go(func() error {
		n, err := gen.Run(gctx)
		published = n
		if err != nil && gctx.Err() != nil {
			return nil
		}
		return err
	})

	for i, sub := range subs {
		w := worker.New(worker.Options{
			ID:          i,
			Stats:       r.opt.Stats,
			Client:      r.opt.Client,
			Headers:     r.opt.Headers,
			ContentType: r.opt.ContentType,
			Body:        r.opt.Body,
			Seed:        r.opt.Seed,
			Logger:      r.opt.Logger,
			LogErrors:   r.opt.LogErrors,
			Tracing:     r.opt.Tracing,
		})
		g.Go(func() error {
			// A departed worker must not hold back a blocking publisher.
			defer sub.Unsubscribe()
			return w.Run(gctx, sub)
		})
	}

	err = g.Wait()
	r.opt.Stats.Finalize()

	res := Result{Published: published, Duration: time.Since(start)}
	for _, sub := range subs {
		res.Lagged += sub.Lagged()
	}
	if res.Lagged > 0 {
		r.opt.Logger.Warn("workers skipped items; consider a larger --buffer or --lag-policy=block",
			zap.Uint64("skipped", res.Lagged))
	}
	return res, err
}
