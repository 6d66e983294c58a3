package workload

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Publisher is the sending side of the distribution channel.
type Publisher interface {
	Publish(ctx context.Context, item WorkItem) error
	Close()
}

// Generator turns a Plan into a stream of WorkItems.
type Generator struct {
	plan  Plan
	out   Publisher
	now   func() time.Time
	pacer *rate.Limiter
}

// NewGenerator validates plan and binds it to out.
func NewGenerator(plan Plan, out Publisher) (*Generator, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		plan:  plan,
		out:   out,
		now:   time.Now,
		pacer: rate.NewLimiter(rate.Every(plan.tick()), 1),
	}, nil
}

// Run emits the plan and closes the publisher when done, including when ctx is
// cancelled or a publish fails. It returns the number of items published.
func (g *Generator) Run(ctx context.Context) (uint64, error) {
	defer g.out.Close()

	if g.plan.Count > 0 {
		return g.runCount(ctx)
	}
	return g.runDuration(ctx)
}

func (g *Generator) runCount(ctx context.Context) (uint64, error) {
	items := g.plan.items()
	var published uint64
	for pass := 0; pass < g.plan.Count; pass++ {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return published, err
			}
			if err := g.out.Publish(ctx, item); err != nil {
				return published, err
			}
			published++
		}
	}
	return published, nil
}

// runDuration is open loop: one item per tick regardless of consumer progress.
func (g *Generator) runDuration(ctx context.Context) (uint64, error) {
	items := g.plan.items()
	start := g.now()
	var published uint64
	idx := 0
	for g.now().Sub(start) < g.plan.Duration {
		if err := g.pacer.Wait(ctx); err != nil {
			// Wait refuses early when the next tick lies past the ctx deadline.
			<-ctx.Done()
			return published, ctx.Err()
		}
		if g.now().Sub(start) >= g.plan.Duration {
			break
		}
		if err := g.out.Publish(ctx, items[idx]); err != nil {
			return published, err
		}
		published++
		idx++
		if idx == len(items) {
			idx = 0
		}
	}
	return published, nil
}
