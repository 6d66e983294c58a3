// Package threshold evaluates pass/fail assertions against a final report.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/crankbench/internal/stats"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "http_req_duration", "http_req_failed"
	Method    string  // optional scope, e.g. "GET"; empty means all methods
	Aggregate string  // e.g., "p95", "p99", "avg", "max", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Raw       string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Evaluator evaluates thresholds against a report.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the report.
func (e *Evaluator) Evaluate(report stats.Report) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, report))
	}
	return results
}

// AllPassed reports whether every result passed. An empty slice passes.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, report stats.Report) Result {
	actual, err := extractMetricValue(t, report)
	if err != nil {
		return Result{
			Threshold: t,
			Raw:       t.Raw,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: error: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Raw:       t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_0-9]+)(?:\{([A-Za-z]+)\})?:([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "http_req_duration:p95 < 500"      (latency percentile in ms)
//   - "http_req_duration{GET}:p99 < 200" (scoped to one method)
//   - "http_req_duration:avg < 200"      (also min, max, std)
//   - "http_req_failed:rate < 0.01"      (failed / attempted)
//   - "http_req_not2xx:count == 0"       (non-2xx responses)
//   - "http_requests:rate > 100"         (completed requests per second)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric[{METHOD}]:aggregate operator value, e.g., 'http_req_duration:p95 < 500')", s)
	}

	metric := matches[1]
	method := strings.ToUpper(matches[2])
	aggregate := matches[3]
	operator := matches[4]

	value, err := strconv.ParseFloat(matches[5], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[5], err)
	}

	if !slices.Contains(validMetrics, metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}
	if method != "" && !stats.Supported(method) {
		return Threshold{}, fmt.Errorf("unsupported method scope: %q (supported: %s)", method, strings.Join(stats.Methods, ", "))
	}
	if !isValidAggregate(metric, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s", aggregate, metric)
	}
	if !slices.Contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(validOperators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Method:    method,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

const (
	metricDuration = "http_req_duration"
	metricFailed   = "http_req_failed"
	metricNot2xx   = "http_req_not2xx"
	metricRequests = "http_requests"
)

var (
	validMetrics   = []string{metricDuration, metricFailed, metricNot2xx, metricRequests}
	validOperators = []string{"<", "<=", ">", ">=", "=="}
)

func isValidAggregate(metric, aggregate string) bool {
	if metric != metricDuration {
		return aggregate == "count" || aggregate == "rate"
	}
	switch aggregate {
	case "avg", "mean", "min", "max", "std":
		return true
	}
	p, ok := percentOf(aggregate)
	return ok && slices.Contains(stats.Percentages, p)
}

func percentOf(aggregate string) (int, bool) {
	if !strings.HasPrefix(aggregate, "p") {
		return 0, false
	}
	p, err := strconv.Atoi(aggregate[1:])
	return p, err == nil
}

// scope picks the summary and latency block the threshold applies to.
func scope(t Threshold, report stats.Report) (stats.Summary, stats.Distribution, error) {
	if t.Method == "" {
		return report.Summary, report.Overall, nil
	}
	m, ok := report.Method(t.Method)
	if !ok {
		return stats.Summary{}, stats.Distribution{}, fmt.Errorf("no %s requests completed", t.Method)
	}
	return m.Summary, m.Latency, nil
}

func extractMetricValue(t Threshold, report stats.Report) (float64, error) {
	summary, latency, err := scope(t, report)
	if err != nil {
		return 0, err
	}
	switch t.Metric {
	case metricDuration:
		return extractLatencyMetric(t.Aggregate, latency)
	case metricFailed:
		// Transport failures never complete, so they are added back to the
		// denominator.
		attempts := summary.Completed + (summary.Failed - summary.Not2xx)
		return countOrRate(t.Aggregate, summary.Failed, attempts), nil
	case metricNot2xx:
		return countOrRate(t.Aggregate, summary.Not2xx, summary.Completed), nil
	case metricRequests:
		if t.Aggregate == "rate" {
			return summary.RequestsPerSec, nil
		}
		return float64(summary.Completed), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, d stats.Distribution) (float64, error) {
	if d.Samples == 0 {
		return 0, fmt.Errorf("no latency samples recorded")
	}
	switch aggregate {
	case "avg", "mean":
		return d.MeanMs, nil
	case "min":
		return d.MinMs, nil
	case "max":
		return d.MaxMs, nil
	case "std":
		return d.StdDevMs, nil
	}
	p, _ := percentOf(aggregate)
	lat, ok := d.Percentile(p)
	if !ok {
		return 0, fmt.Errorf("percentile %d not reported", p)
	}
	return float64(lat) / float64(time.Millisecond), nil
}

func countOrRate(aggregate string, n, total uint64) float64 {
	if aggregate == "count" {
		return float64(n)
	}
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
