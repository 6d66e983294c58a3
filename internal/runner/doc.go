// Package runner orchestrates one benchmark run.
//
// A [Runner] creates a broadcast channel, subscribes one worker per configured
// concurrency slot, and starts the request generator. Every worker receives
// every generated item, so the total number of requests is the number of
// generated items times the number of workers.
//
// # Basic Usage
//
//	engine := stats.NewEngine(8)
//	r := runner.New(runner.Options{
//		Plan:   workload.Plan{URL: "http://localhost:8080/", Method: "GET", Count: 1000},
//		Stats:  engine,
//		Client: httpclient.NewClient(30*time.Second, true),
//	})
//	res, err := r.Run(ctx)
//
// Run returns once the generator has closed the channel and every worker has
// drained it. The engine is finalized before Run returns, so its reports are
// stable.
//
// # Slow Workers
//
// With [broadcast.PolicyDrop] a worker that falls more than the buffer size
// behind skips the oldest items and keeps going; the skipped total is reported
// in [Result.Lagged]. With [broadcast.PolicyBlock] the generator waits for the
// slowest worker instead.
//
// When [Options.LagPolicy] is empty, fixed-count plans block and duration
// plans drop; see [ResolveLagPolicy].
package runner
