// Package output renders progress lines and final reports as text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/torosent/crankbench/internal/stats"
	"github.com/torosent/crankbench/internal/threshold"
)

// RunReport is the machine-readable document emitted with --json-output or
// --yaml-output.
type RunReport struct {
	RunID      string             `json:"run_id" yaml:"run_id"`
	Target     string             `json:"target" yaml:"target"`
	StartedAt  time.Time          `json:"started_at" yaml:"started_at"`
	Published  uint64             `json:"published" yaml:"published"`
	Lagged     uint64             `json:"lagged" yaml:"lagged"`
	Report     stats.Report       `json:"report" yaml:"report"`
	Thresholds []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// NewRunID returns a sortable unique identifier for one run.
func NewRunID() string {
	return ulid.Make().String()
}

// PrintReport writes the run summary, then one block per method that
// completed requests.
func PrintReport(w io.Writer, report stats.Report) {
	s := report.Summary
	fmt.Fprintf(w, "\n------------ %s ----------\n", "Summary")
	fmt.Fprintf(w, "\nConcurrency Level:      %d\n", s.Concurrency)
	fmt.Fprintf(w, "Time taken for tests:   %.3f seconds\n", s.ElapsedSeconds)
	fmt.Fprintf(w, "Complete requests:      %d\n", s.Completed)
	fmt.Fprintf(w, "Failed requests:        %d\n", s.Failed)
	fmt.Fprintf(w, "Failed requests(not 2xx): %d\n", s.Not2xx)
	fmt.Fprintf(w, "Total transferred:      %d bytes\n", s.TransferredBytes)
	fmt.Fprintf(w, "Requests per second:    %.2f [#/sec]\n", s.RequestsPerSec)
	fmt.Fprintf(w, "Transfer rate:          %.2f [Kbytes/sec]\n", s.TransferRateKBps)

	for _, m := range report.Methods {
		printMethod(w, m)
	}
}

func printMethod(w io.Writer, m stats.MethodReport) {
	s, d := m.Summary, m.Latency
	fmt.Fprintf(w, "\n------------ %s ----------\n", m.Method)
	fmt.Fprintf(w, "\nConcurrency Level:      %d\n", s.Concurrency)
	fmt.Fprintf(w, "Time taken for tests:   %.3f seconds\n", s.ElapsedSeconds)
	fmt.Fprintf(w, "Complete requests:      %d\n", s.Completed)
	fmt.Fprintf(w, "Failed requests:        %d\n", s.Failed)
	fmt.Fprintf(w, "Total transferred:      %d bytes\n", s.TransferredBytes)
	fmt.Fprintf(w, "Requests per second:    %.2f [#/sec]\n", s.RequestsPerSec)
	fmt.Fprintf(w, "Transfer rate:          %.2f [Kbytes/sec]\n", s.TransferRateKBps)

	fmt.Fprintf(w, "\nConnection Times (ms)\n")
	fmt.Fprintf(w, "              min      avg        max      std\n")
	fmt.Fprintf(w, "Total:        %-8.1f %-10.1f %-8.1f %.1f\n", d.MinMs, d.MeanMs, d.MaxMs, d.StdDevMs)

	fmt.Fprintf(w, "\nPercentage of the requests served within a certain time (ms)\n")
	for _, p := range d.Percentiles {
		fmt.Fprintf(w, "  %3d%%    %5.1f ms\n", p.Percent, p.LatencyMs)
	}
}

// PrintThresholds writes one line per evaluated threshold.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report RunReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
