package stats

import (
	"math"
	"sort"
	"time"
)

// Percentile is one row of the percentile table.
type Percentile struct {
	Percent   int           `json:"percent" yaml:"percent"`
	Latency   time.Duration `json:"-" yaml:"-"`
	LatencyMs float64       `json:"latency_ms" yaml:"latency_ms"`
}

// Distribution describes the latency multiset of one method (or of all methods
// combined): in-range buckets in bucket order followed by overflow ascending.
type Distribution struct {
	Samples     uint64        `json:"samples" yaml:"samples"`
	Min         time.Duration `json:"-" yaml:"-"`
	Mean        time.Duration `json:"-" yaml:"-"`
	Max         time.Duration `json:"-" yaml:"-"`
	StdDev      time.Duration `json:"-" yaml:"-"`
	MinMs       float64       `json:"min_ms" yaml:"min_ms"`
	MeanMs      float64       `json:"mean_ms" yaml:"mean_ms"`
	MaxMs       float64       `json:"max_ms" yaml:"max_ms"`
	StdDevMs    float64       `json:"std_dev_ms" yaml:"std_dev_ms"`
	Percentiles []Percentile  `json:"percentiles" yaml:"percentiles"`
}

// Percentile returns the latency reported for percent p.
func (d Distribution) Percentile(p int) (time.Duration, bool) {
	for _, row := range d.Percentiles {
		if row.Percent == p {
			return row.Latency, true
		}
	}
	return 0, false
}

// Summary holds counters and rates for a run or for one method.
type Summary struct {
	Concurrency      int           `json:"concurrency" yaml:"concurrency"`
	Elapsed          time.Duration `json:"-" yaml:"-"`
	ElapsedSeconds   float64       `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Completed        uint64        `json:"completed" yaml:"completed"`
	Failed           uint64        `json:"failed" yaml:"failed"`
	Not2xx           uint64        `json:"not_2xx" yaml:"not_2xx"`
	RequestBytes     uint64        `json:"request_bytes" yaml:"request_bytes"`
	ResponseBytes    uint64        `json:"response_bytes" yaml:"response_bytes"`
	TransferredBytes uint64        `json:"transferred_bytes" yaml:"transferred_bytes"`
	RequestsPerSec   float64       `json:"requests_per_sec" yaml:"requests_per_sec"`
	TransferRateKBps float64       `json:"transfer_rate_kbps" yaml:"transfer_rate_kbps"`
}

// MethodReport is the per-method block of the final report.
type MethodReport struct {
	Method  string       `json:"method" yaml:"method"`
	Summary Summary      `json:"summary" yaml:"summary"`
	Latency Distribution `json:"latency" yaml:"latency"`
}

// WorkerLatency summarises one worker's samples, attributed by worker id.
type WorkerLatency struct {
	Worker    int     `json:"worker" yaml:"worker"`
	Samples   int64   `json:"samples" yaml:"samples"`
	Completed uint64  `json:"completed" yaml:"completed"`
	Failed    uint64  `json:"failed" yaml:"failed"`
	MinMs     float64 `json:"min_ms" yaml:"min_ms"`
	MeanMs    float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms     float64 `json:"p50_ms" yaml:"p50_ms"`
	P99Ms     float64 `json:"p99_ms" yaml:"p99_ms"`
	MaxMs     float64 `json:"max_ms" yaml:"max_ms"`
}

// Report is the complete read-only view of a run.
type Report struct {
	Summary Summary         `json:"summary" yaml:"summary"`
	Methods []MethodReport  `json:"methods" yaml:"methods"`
	Overall Distribution    `json:"overall_latency" yaml:"overall_latency"`
	Workers []WorkerLatency `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// Method returns the block for method if it was reported.
func (r Report) Method(method string) (MethodReport, bool) {
	for _, m := range r.Methods {
		if m.Method == method {
			return m, true
		}
	}
	return MethodReport{}, false
}

func summarize(c LocalCounters, concurrency int, elapsed time.Duration) Summary {
	s := Summary{
		Concurrency:      concurrency,
		Elapsed:          elapsed,
		ElapsedSeconds:   elapsed.Seconds(),
		Completed:        c.Completed,
		Failed:           uint64(c.Failed),
		Not2xx:           uint64(c.Not2xx),
		RequestBytes:     c.RequestBytes,
		ResponseBytes:    c.ResponseBytes,
		TransferredBytes: c.RequestBytes + c.ResponseBytes,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.RequestsPerSec = float64(s.Completed) / secs
		s.TransferRateKBps = float64(s.TransferredBytes) / 1024 / secs
	}
	return s
}

// Summary totals every worker and method.
func (e *Engine) Summary() Summary {
	elapsed := e.Elapsed()
	e.countersMu.Lock()
	var total LocalCounters
	for _, row := range e.counters {
		for _, c := range row {
			total.add(c)
		}
	}
	e.countersMu.Unlock()
	return summarize(total, e.workers, elapsed)
}

// MethodReport computes the block for one method. ok is false when the method
// is unknown or had no completed requests; such a method is not reported.
func (e *Engine) MethodReport(method string) (MethodReport, bool) {
	counters, ok := e.Counters(method)
	if !ok || counters.Completed == 0 {
		return MethodReport{}, false
	}
	buckets, overflow := e.histogramCopy(method)
	return MethodReport{
		Method:  method,
		Summary: summarize(counters, e.workers, e.Elapsed()),
		Latency: computeDistribution(buckets, overflow),
	}, true
}

// MethodReports returns a block for every method with completed requests, in
// Methods order.
func (e *Engine) MethodReports() []MethodReport {
	var out []MethodReport
	for _, m := range Methods {
		if r, ok := e.MethodReport(m); ok {
			out = append(out, r)
		}
	}
	return out
}

// OverallLatency merges every method's histogram into one distribution.
func (e *Engine) OverallLatency() Distribution {
	merged := make([]uint64, Resolution)
	var overflow []uint64
	for _, m := range Methods {
		buckets, over := e.histogramCopy(m)
		for i, c := range buckets {
			merged[i] += c
		}
		overflow = append(overflow, over...)
	}
	return computeDistribution(merged, overflow)
}

// WorkerLatencies summarises the per-worker latency histograms.
func (e *Engine) WorkerLatencies() []WorkerLatency {
	out := make([]WorkerLatency, e.workers)
	e.histMu.Lock()
	for w, h := range e.workerHist {
		out[w] = WorkerLatency{Worker: w, Samples: h.TotalCount()}
		if h.TotalCount() == 0 {
			continue
		}
		out[w].MinMs = float64(h.Min()) / 1000
		out[w].MeanMs = h.Mean() / 1000
		out[w].P50Ms = float64(h.ValueAtQuantile(50)) / 1000
		out[w].P99Ms = float64(h.ValueAtQuantile(99)) / 1000
		out[w].MaxMs = float64(h.Max()) / 1000
	}
	e.histMu.Unlock()

	for w := range out {
		c := e.WorkerCounters(w)
		out[w].Completed = c.Completed
		out[w].Failed = uint64(c.Failed)
	}
	return out
}

// Report assembles the complete view. Calling it twice without intervening
// records yields identical values once the engine is finalized.
func (e *Engine) Report() Report {
	return Report{
		Summary: e.Summary(),
		Methods: e.MethodReports(),
		Overall: e.OverallLatency(),
		Workers: e.WorkerLatencies(),
	}
}

func bucketDuration(idx float64) time.Duration {
	return time.Duration(idx * float64(BucketWidth))
}

func bucketMs(idx float64) float64 {
	return idx * float64(BucketWidth) / float64(time.Millisecond)
}

// computeDistribution walks buckets in order, then the overflow indices
// ascending, as one multiset. overflow is sorted in place.
func computeDistribution(buckets, overflow []uint64) Distribution {
	sort.Slice(overflow, func(i, j int) bool { return overflow[i] < overflow[j] })

	var n uint64
	var sum float64
	lo, hi := uint64(math.MaxUint64), uint64(0)
	for i, c := range buckets {
		if c == 0 {
			continue
		}
		n += c
		sum += float64(c) * float64(i)
		if uint64(i) < lo {
			lo = uint64(i)
		}
		if uint64(i) > hi {
			hi = uint64(i)
		}
	}
	for _, idx := range overflow {
		n++
		sum += float64(idx)
		if idx < lo {
			lo = idx
		}
		if idx > hi {
			hi = idx
		}
	}
	if n == 0 {
		return Distribution{}
	}

	mean := sum / float64(n)
	var variance float64
	for i, c := range buckets {
		if c == 0 {
			continue
		}
		d := float64(i) - mean
		variance += d * d * float64(c)
	}
	for _, idx := range overflow {
		d := float64(idx) - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n))

	dist := Distribution{
		Samples:  n,
		Min:      bucketDuration(float64(lo)),
		Mean:     bucketDuration(mean),
		Max:      bucketDuration(float64(hi)),
		StdDev:   bucketDuration(std),
		MinMs:    bucketMs(float64(lo)),
		MeanMs:   bucketMs(mean),
		MaxMs:    bucketMs(float64(hi)),
		StdDevMs: bucketMs(std),
	}

	ranks := make([]uint64, len(Percentages))
	for i, p := range Percentages {
		ranks[i] = n * uint64(p) / 100
	}
	ranks[len(ranks)-1] = n

	dist.Percentiles = make([]Percentile, 0, len(Percentages))
	next := 0
	emit := func(idx uint64, running uint64) {
		for next < len(ranks) && running >= ranks[next] {
			dist.Percentiles = append(dist.Percentiles, Percentile{
				Percent:   Percentages[next],
				Latency:   bucketDuration(float64(idx)),
				LatencyMs: bucketMs(float64(idx)),
			})
			next++
		}
	}

	var running uint64
	for i, c := range buckets {
		if c == 0 {
			continue
		}
		running += c
		emit(uint64(i), running)
	}
	for _, idx := range overflow {
		running++
		emit(idx, running)
	}
	return dist
}
