package runner

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/crankbench/internal/broadcast"
	"github.com/torosent/crankbench/internal/stats"
	"github.com/torosent/crankbench/internal/tracing"
	"github.com/torosent/crankbench/internal/worker"
	"github.com/torosent/crankbench/internal/workload"
)

// Options configure the Runner.
type Options struct {
	Plan      workload.Plan    // load shape (required)
	Workers   int              // subscribers; defaults to Stats.Workers()
	Buffer    int              // ring capacity per worker
	LagPolicy broadcast.Policy // drop or block; empty follows ResolveLagPolicy
	Stats     *stats.Engine    // required
	Client    worker.Issuer    // required

	Headers     http.Header
	ContentType string
	Body        worker.BodySource
	Seed        int64 // base seed for random bodies; 0 uses the clock
	Logger      *zap.Logger
	LogErrors   bool
	Tracing     *tracing.Provider
}

func (o *Options) normalize() {
	if o.Workers <= 0 && o.Stats != nil {
		o.Workers = o.Stats.Workers()
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Buffer <= 0 {
		o.Buffer = broadcast.DefaultCapacity
	}
	o.LagPolicy = ResolveLagPolicy(o.Plan, o.LagPolicy)
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// ResolveLagPolicy returns explicit when set. Otherwise a fixed-count plan
// blocks so every worker sees every item, and a duration plan drops.
func ResolveLagPolicy(plan workload.Plan, explicit broadcast.Policy) broadcast.Policy {
	if explicit != "" {
		return explicit
	}
	if plan.Count > 0 {
		return broadcast.PolicyBlock
	}
	return broadcast.PolicyDrop
}
