// Package stats is the measurement core of crankbench.
//
// An [Engine] is created once per run, sized by worker count, and shared by all
// workers. It holds:
//   - per (method, worker) [LocalCounters], written only by the owning worker
//   - per method, a fixed array of [Resolution] latency buckets of [BucketWidth]
//     each, plus an overflow list holding the exact bucket index of every sample
//     at or beyond one second
//   - per worker, an HDR histogram used for the per-worker latency summary
//
// Counters and histograms use separate locks so a worker recording an outcome
// never waits on another worker recording a sample.
//
// # Percentiles
//
// Percentiles are computed over buckets and overflow as one ordered multiset.
// For each entry of [Percentages] the target rank is floor(n*p/100), with the
// last rank forced to n so the 100th percentile is always the true maximum. A
// single forward sweep reports the first element whose running count reaches
// each rank.
//
//	engine := stats.NewEngine(workers)
//	engine.Start()
//	// workers call RecordOutcome / RecordFailure / RecordSample
//	engine.Finalize()
//	report := engine.Report()
//
// # Prometheus
//
// [Handler] serves the live counters for scraping while a run is in progress.
package stats
