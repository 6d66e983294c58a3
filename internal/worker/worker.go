// Package worker consumes broadcast work items, issues one HTTP request per
// item and folds the outcome into the stats engine.
package worker

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/crankbench/internal/broadcast"
	"github.com/torosent/crankbench/internal/httpclient"
	"github.com/torosent/crankbench/internal/stats"
	"github.com/torosent/crankbench/internal/tracing"
	"github.com/torosent/crankbench/internal/workload"
)

// Issuer sends one request. *httpclient.Client implements it.
type Issuer interface {
	Issue(ctx context.Context, req httpclient.Request) (httpclient.Response, error)
}

// Source yields work items. *broadcast.Subscriber[workload.WorkItem] implements it.
type Source interface {
	Recv(ctx context.Context) (workload.WorkItem, error)
}

// Options configure a Worker.
type Options struct {
	ID          int           // index into the engine's per-worker counters
	Stats       *stats.Engine // required
	Client      Issuer        // required
	Headers     http.Header   // sent with every request
	ContentType string        // attached to POST and PUT
	Body        BodySource
	Seed        int64 // base seed; the worker adds its ID
	Logger      *zap.Logger
	LogErrors   bool
	Tracing     *tracing.Provider // lag spans; nil disables
}

// Worker runs the request loop for one subscription.
type Worker struct {
	opt    Options
	rng    *rand.Rand
	logger *zap.Logger
	now    func() time.Time
}

func New(opt Options) *Worker {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		opt:    opt,
		rng:    rand.New(rand.NewSource(opt.Seed + int64(opt.ID))),
		logger: logger.With(zap.Int("worker", opt.ID)),
		now:    time.Now,
	}
}

// Run processes items until the source is closed and drained or ctx ends.
// Lag is logged and the loop continues. It returns nil in both normal
// endings; any other receive error is returned.
func (w *Worker) Run(ctx context.Context, src Source) error {
	for {
		item, err := src.Recv(ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			switch {
			case errors.As(err, &lagged):
				w.logger.Warn("worker fell behind, skipping items", zap.Uint64("skipped", lagged.Skipped))
				w.opt.Tracing.RecordLag(ctx, w.opt.ID, lagged.Skipped)
				continue
			case errors.Is(err, broadcast.ErrClosed):
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}
		w.Do(ctx, item)
	}
}

// Do issues a single request and records it. A request cut short by ctx
// cancellation is not counted.
func (w *Worker) Do(ctx context.Context, item workload.WorkItem) {
	method := item.Method
	start := w.now()

	req, err := w.build(item)
	if err != nil {
		// Plans are validated up front, so this only fires for hand-built items.
		// Every failure carries a sample; the engine ignores untracked methods.
		w.opt.Stats.RecordFailure(method, w.opt.ID)
		w.opt.Stats.RecordSample(method, w.opt.ID, w.now().Sub(start))
		w.logger.Warn("skipping item", zap.String("url", item.URL), zap.Error(err))
		return
	}

	resp, err := w.opt.Client.Issue(ctx, req)
	elapsed := w.now().Sub(start)
	if err != nil && ctx.Err() != nil {
		return
	}

	if err != nil {
		w.opt.Stats.RecordFailure(method, w.opt.ID)
		w.logFailure(item, err)
	} else {
		w.opt.Stats.RecordOutcome(method, w.opt.ID, resp.StatusCode, resp.Bytes)
		w.opt.Stats.RecordRequestBytes(method, w.opt.ID, uint64(len(req.Body)))
		if w.opt.LogErrors && (resp.StatusCode < 200 || resp.StatusCode > 299) {
			w.logger.Info("non-2xx response",
				zap.String("method", method),
				zap.String("url", item.URL),
				zap.Int("status", resp.StatusCode))
		}
	}
	w.opt.Stats.RecordSample(method, w.opt.ID, elapsed)
}

func (w *Worker) build(item workload.WorkItem) (httpclient.Request, error) {
	req := httpclient.Request{Worker: w.opt.ID, Method: item.Method, URL: item.URL, Header: w.opt.Headers.Clone()}
	switch item.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
	case http.MethodPost, http.MethodPut:
		req.Body = w.opt.Body.next(w.rng)
		if w.opt.ContentType != "" {
			if req.Header == nil {
				req.Header = http.Header{}
			}
			req.Header.Set("Content-Type", w.opt.ContentType)
		}
	default:
		return req, &workload.UnsupportedMethodError{Method: item.Method}
	}
	return req, nil
}

func (w *Worker) logFailure(item workload.WorkItem, err error) {
	if !w.opt.LogErrors {
		return
	}
	w.logger.Info("request failed",
		zap.String("method", item.Method),
		zap.String("url", item.URL),
		zap.Error(err))
}
