package stats

import (
	"net/http"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Resolution is the number of in-range histogram buckets.
	Resolution = 10000
	// BucketWidth is the latency span of one bucket. Resolution buckets cover 0-1s.
	BucketWidth = time.Second / Resolution
)

// Methods is the fixed method set, in report order.
var Methods = []string{http.MethodHead, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}

// Percentages is the percentile table reported for every method.
var Percentages = []int{50, 66, 75, 80, 90, 95, 98, 99, 100}

// LocalCounters is the aggregate owned by one (worker, method) pair.
type LocalCounters struct {
	Completed     uint64
	Failed        uint32
	Not2xx        uint32
	RequestBytes  uint64
	ResponseBytes uint64
}

func (c *LocalCounters) add(o LocalCounters) {
	c.Completed += o.Completed
	c.Failed += o.Failed
	c.Not2xx += o.Not2xx
	c.RequestBytes += o.RequestBytes
	c.ResponseBytes += o.ResponseBytes
}

type histogram struct {
	buckets  [Resolution]uint64
	overflow []uint64
}

// Engine owns every counter and histogram for one run. Its dimensions (worker
// count and method set) are fixed at construction.
//
// Histograms and counters are guarded by separate locks; each Record call holds
// exactly one of them for constant time.
type Engine struct {
	workers int
	index   map[string]int

	histMu     sync.Mutex
	hists      []*histogram
	workerHist []*hdrhistogram.Histogram

	countersMu sync.Mutex
	counters   [][]LocalCounters // [method][worker]

	windowMu sync.Mutex
	start    time.Time
	end      time.Time
}

// NewEngine sizes an engine for the given number of workers. The run window
// starts now; call Start to reset it when load actually begins.
func NewEngine(workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	e := &Engine{
		workers:    workers,
		index:      make(map[string]int, len(Methods)),
		hists:      make([]*histogram, len(Methods)),
		workerHist: make([]*hdrhistogram.Histogram, workers),
		counters:   make([][]LocalCounters, len(Methods)),
		start:      time.Now(),
	}
	for i, m := range Methods {
		e.index[m] = i
		e.hists[i] = &histogram{}
		e.counters[i] = make([]LocalCounters, workers)
	}
	for w := range e.workerHist {
		// Track latencies from 1µs up to 60s with 3 significant figures.
		e.workerHist[w] = hdrhistogram.New(1, 60_000_000, 3)
	}
	return e
}

// Workers returns the worker count the engine was sized for.
func (e *Engine) Workers() int {
	return e.workers
}

// Supported reports whether method belongs to the fixed method set.
func Supported(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

func (e *Engine) cell(method string, worker int) (*LocalCounters, bool) {
	m, ok := e.index[method]
	if !ok || worker < 0 || worker >= e.workers {
		return nil, false
	}
	return &e.counters[m][worker], true
}

// RecordOutcome counts a request that received a response. Any status outside
// [200,300) is counted as both not-2xx and failed; the request is still completed.
func (e *Engine) RecordOutcome(method string, worker, status int, responseBytes uint64) {
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	c, ok := e.cell(method, worker)
	if !ok {
		return
	}
	c.Completed++
	c.ResponseBytes += responseBytes
	if status < 200 || status >= 300 {
		c.Not2xx++
		c.Failed++
	}
}

// RecordFailure counts a request that never produced a response.
func (e *Engine) RecordFailure(method string, worker int) {
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	if c, ok := e.cell(method, worker); ok {
		c.Failed++
	}
}

// RecordRequestBytes adds n sent body bytes to the worker's transfer total.
func (e *Engine) RecordRequestBytes(method string, worker int, n uint64) {
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	if c, ok := e.cell(method, worker); ok {
		c.RequestBytes += n
	}
}

// RecordSample folds one elapsed time into the method histogram. Samples at or
// beyond one second are kept exactly in the overflow list. The worker id feeds
// the per-worker latency summary only.
func (e *Engine) RecordSample(method string, worker int, elapsed time.Duration) {
	m, ok := e.index[method]
	if !ok {
		return
	}
	idx := uint64(0)
	if elapsed > 0 {
		idx = uint64(elapsed / BucketWidth)
	}

	e.histMu.Lock()
	defer e.histMu.Unlock()
	h := e.hists[m]
	if idx < Resolution {
		h.buckets[idx]++
	} else {
		h.overflow = append(h.overflow, idx)
	}

	if worker >= 0 && worker < e.workers {
		wh := e.workerHist[worker]
		us := elapsed.Microseconds()
		if us < wh.LowestTrackableValue() {
			us = wh.LowestTrackableValue()
		}
		if us > wh.HighestTrackableValue() {
			us = wh.HighestTrackableValue()
		}
		_ = wh.RecordValue(us)
	}
}

// Completed sums completed requests across all workers and methods.
func (e *Engine) Completed() uint64 {
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	var total uint64
	for _, row := range e.counters {
		for _, c := range row {
			total += c.Completed
		}
	}
	return total
}

// Start resets the run window to now.
func (e *Engine) Start() {
	e.windowMu.Lock()
	defer e.windowMu.Unlock()
	e.start = time.Now()
	e.end = time.Time{}
}

// Finalize records the end of the run. Only the first call has an effect.
func (e *Engine) Finalize() {
	e.windowMu.Lock()
	defer e.windowMu.Unlock()
	if e.end.IsZero() {
		e.end = time.Now()
	}
}

// Finalized reports whether Finalize has been called since the last Start.
func (e *Engine) Finalized() bool {
	e.windowMu.Lock()
	defer e.windowMu.Unlock()
	return !e.end.IsZero()
}

// Elapsed returns end-start, or the time since start while the run is live.
func (e *Engine) Elapsed() time.Duration {
	e.windowMu.Lock()
	defer e.windowMu.Unlock()
	if e.end.IsZero() {
		return time.Since(e.start)
	}
	return e.end.Sub(e.start)
}

// Counters returns the per-method totals summed across workers.
func (e *Engine) Counters(method string) (LocalCounters, bool) {
	m, ok := e.index[method]
	if !ok {
		return LocalCounters{}, false
	}
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	var total LocalCounters
	for _, c := range e.counters[m] {
		total.add(c)
	}
	return total, true
}

// WorkerCounters returns one worker's totals across every method.
func (e *Engine) WorkerCounters(worker int) LocalCounters {
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	var total LocalCounters
	if worker < 0 || worker >= e.workers {
		return total
	}
	for _, row := range e.counters {
		total.add(row[worker])
	}
	return total
}

// histogramCopy returns a snapshot of one method's buckets and overflow.
func (e *Engine) histogramCopy(method string) ([]uint64, []uint64) {
	m := e.index[method]
	e.histMu.Lock()
	defer e.histMu.Unlock()
	h := e.hists[m]
	buckets := make([]uint64, Resolution)
	copy(buckets, h.buckets[:])
	overflow := make([]uint64, len(h.overflow))
	copy(overflow, h.overflow)
	return buckets, overflow
}

// SampleCount returns how many samples were recorded for method, counting both
// in-range buckets and overflow.
func (e *Engine) SampleCount(method string) uint64 {
	m, ok := e.index[method]
	if !ok {
		return 0
	}
	e.histMu.Lock()
	defer e.histMu.Unlock()
	h := e.hists[m]
	n := uint64(len(h.overflow))
	for _, c := range h.buckets {
		n += c
	}
	return n
}
