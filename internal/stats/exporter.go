package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crankbench"

// Exporter exposes live engine counters as Prometheus metrics. Values are read
// from the engine on every scrape; nothing is cached.
type Exporter struct {
	engine *Engine

	completed     *prometheus.Desc
	failed        *prometheus.Desc
	not2xx        *prometheus.Desc
	requestBytes  *prometheus.Desc
	responseBytes *prometheus.Desc
	samples       *prometheus.Desc
	elapsed       *prometheus.Desc
}

// NewExporter returns a collector bound to e.
func NewExporter(e *Engine) *Exporter {
	labels := []string{"method"}
	return &Exporter{
		engine:        e,
		completed:     prometheus.NewDesc(namespace+"_requests_completed_total", "Requests that received a response.", labels, nil),
		failed:        prometheus.NewDesc(namespace+"_requests_failed_total", "Requests that failed or returned a non-2xx status.", labels, nil),
		not2xx:        prometheus.NewDesc(namespace+"_requests_not_2xx_total", "Responses with a status outside 200-299.", labels, nil),
		requestBytes:  prometheus.NewDesc(namespace+"_request_bytes_total", "Request body bytes sent.", labels, nil),
		responseBytes: prometheus.NewDesc(namespace+"_response_bytes_total", "Response body bytes received.", labels, nil),
		samples:       prometheus.NewDesc(namespace+"_latency_samples_total", "Latency samples recorded, including overflow.", labels, nil),
		elapsed:       prometheus.NewDesc(namespace+"_run_elapsed_seconds", "Wall-clock time since the run started.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (x *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- x.completed
	ch <- x.failed
	ch <- x.not2xx
	ch <- x.requestBytes
	ch <- x.responseBytes
	ch <- x.samples
	ch <- x.elapsed
}

// Collect implements prometheus.Collector.
func (x *Exporter) Collect(ch chan<- prometheus.Metric) {
	for _, m := range Methods {
		c, _ := x.engine.Counters(m)
		ch <- prometheus.MustNewConstMetric(x.completed, prometheus.CounterValue, float64(c.Completed), m)
		ch <- prometheus.MustNewConstMetric(x.failed, prometheus.CounterValue, float64(c.Failed), m)
		ch <- prometheus.MustNewConstMetric(x.not2xx, prometheus.CounterValue, float64(c.Not2xx), m)
		ch <- prometheus.MustNewConstMetric(x.requestBytes, prometheus.CounterValue, float64(c.RequestBytes), m)
		ch <- prometheus.MustNewConstMetric(x.responseBytes, prometheus.CounterValue, float64(c.ResponseBytes), m)
		ch <- prometheus.MustNewConstMetric(x.samples, prometheus.CounterValue, float64(x.engine.SampleCount(m)), m)
	}
	ch <- prometheus.MustNewConstMetric(x.elapsed, prometheus.GaugeValue, x.engine.Elapsed().Seconds())
}

// Handler serves the engine's metrics on a private registry.
func Handler(e *Engine) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewExporter(e))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{DisableCompression: true})
}
