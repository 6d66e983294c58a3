// Package dashboard renders a live terminal view of a running benchmark.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/crankbench/internal/stats"
)

// TestConfig holds load test configuration parameters for display.
type TestConfig struct {
	Target      string        // target URL or URL file
	Method      string        // HTTP method in single-URL mode
	Concurrency int           // number of workers
	Requests    int           // fixed request count (0 = duration mode)
	Duration    time.Duration // fixed duration (0 = count mode)
	Timeout     time.Duration // per-request timeout
	KeepAlive   bool
	Buffer      int    // broadcast ring capacity
	LagPolicy   string // drop or block
	ConfigFile  string // path to config file if used
}

const historyLen = 100

// Dashboard renders a live terminal UI for engine counters.
type Dashboard struct {
	engine       *stats.Engine
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid          *ui.Grid
	rpsSparkline  *widgets.SparklineGroup
	latencyPara   *widgets.Paragraph
	rpsGauge      *widgets.Gauge
	methodList    *widgets.List
	workerList    *widgets.List
	summaryPara   *widgets.Paragraph
	metricsPara   *widgets.Paragraph
	rpsHistory    []float64
	peakRPS       float64
	lastCompleted uint64
	lastUpdate    time.Time
	testConfig    TestConfig
}

// New initializes the terminal. shutdownFunc runs when the user presses q or Ctrl-C.
func New(engine *stats.Engine, cfg TestConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(engine, cfg, shutdownFunc)
	d.setupGrid()
	return d, nil
}

// newDashboard builds the widgets without touching the terminal.
func newDashboard(engine *stats.Engine, cfg TestConfig, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		engine:       engine,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		rpsHistory:   make([]float64, 0, historyLen),
		lastUpdate:   time.Now(),
		testConfig:   cfg,
	}
	d.initWidgets()
	return d
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Completed/s"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.rpsSparkline = widgets.NewSparklineGroup(sparkline)
	d.rpsSparkline.Title = "Throughput"
	d.rpsSparkline.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency (all methods)"
	d.latencyPara.Text = "Waiting for samples..."
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second"
	d.rpsGauge.Percent = 0
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.methodList = widgets.NewList()
	d.methodList.Title = "Methods"
	d.methodList.Rows = []string{"Awaiting data"}
	d.methodList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.methodList.BorderStyle.Fg = ui.ColorCyan

	d.workerList = widgets.NewList()
	d.workerList.Title = "Workers"
	d.workerList.Rows = []string{"Awaiting data"}
	d.workerList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.workerList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Test Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Counters"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.2,
			ui.NewCol(0.5, d.rpsGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.3,
			ui.NewCol(0.6, d.rpsSparkline),
			ui.NewCol(0.4, d.latencyPara),
		),
		ui.NewRow(0.36,
			ui.NewCol(0.6, d.methodList),
			ui.NewCol(0.4, d.workerList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Keep rendering until Stop cancels the context.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case now := <-ticker.C:
			d.update(d.engine.Report(), d.engine.Elapsed(), now)
			d.render()
		}
	}
}

// update refreshes all widget data from a report snapshot.
func (d *Dashboard) update(report stats.Report, elapsed time.Duration, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := report.Summary

	// Throughput over the last tick, not the run average, so stalls show up.
	currentRPS := 0.0
	if dt := now.Sub(d.lastUpdate).Seconds(); dt > 0 && s.Completed >= d.lastCompleted {
		currentRPS = float64(s.Completed-d.lastCompleted) / dt
	}
	d.lastCompleted = s.Completed
	d.lastUpdate = now

	d.rpsHistory = append(d.rpsHistory, currentRPS)
	if len(d.rpsHistory) > historyLen {
		d.rpsHistory = d.rpsHistory[1:]
	}
	d.rpsSparkline.Sparklines[0].Data = d.rpsHistory
	if currentRPS > d.peakRPS {
		d.peakRPS = currentRPS
	}
	d.rpsSparkline.Title = fmt.Sprintf("Throughput | Current: %.1f/s | Peak: %.1f/s | Avg: %.1f/s",
		currentRPS, d.peakRPS, s.RequestsPerSec)

	maxRPS := 100.0
	if d.peakRPS > maxRPS {
		maxRPS = d.peakRPS
	}
	d.rpsGauge.Percent = min(int((currentRPS/maxRPS)*100), 100)
	d.rpsGauge.Label = fmt.Sprintf("%.1f RPS", currentRPS)

	successRate := 0.0
	if s.Completed > 0 {
		successRate = float64(s.Completed-min(s.Not2xx, s.Completed)) / float64(s.Completed) * 100
	}

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Completed: %d | 2xx Rate: %.1f%%",
		d.testConfig.Target,
		d.formatTestParams(),
		elapsed.Round(time.Second),
		s.Completed,
		successRate,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Completed:         %d\nFailed:            %d\nNot 2xx:           %d\nTransferred:       %d bytes\nTransfer rate:     %.2f KB/s",
		s.Completed,
		s.Failed,
		s.Not2xx,
		s.TransferredBytes,
		s.TransferRateKBps,
	)

	d.latencyPara.Text = formatDistribution(report.Overall)
	d.methodList.Rows = formatMethodRows(report.Methods)
	d.workerList.Rows = formatWorkerRows(report.Workers, 10)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatDistribution(dist stats.Distribution) string {
	if dist.Samples == 0 {
		return "Waiting for samples..."
	}
	lines := []string{
		fmt.Sprintf("Min/Avg/Max: %.1f / %.1f / %.1f ms", dist.MinMs, dist.MeanMs, dist.MaxMs),
		fmt.Sprintf("Std:         %.1f ms", dist.StdDevMs),
	}
	for _, p := range dist.Percentiles {
		switch p.Percent {
		case 50, 90, 95, 99:
			lines = append(lines, fmt.Sprintf("P%-3d         %.1f ms", p.Percent, p.LatencyMs))
		}
	}
	return strings.Join(lines, "\n")
}

func formatMethodRows(methods []stats.MethodReport) []string {
	if len(methods) == 0 {
		return []string{"[No completed requests](fg:green)"}
	}
	rows := make([]string, 0, len(methods))
	for _, m := range methods {
		p99, _ := m.Latency.Percentile(99)
		errColor := "green"
		if m.Summary.Failed > 0 {
			errColor = "red"
		}
		rows = append(rows, fmt.Sprintf("[%-6s](fg:cyan) | Done %d | [Fail %d | Not2xx %d](fg:%s) | Avg %.1fms | P99 %.1fms",
			m.Method,
			m.Summary.Completed,
			m.Summary.Failed,
			m.Summary.Not2xx,
			errColor,
			m.Latency.MeanMs,
			float64(p99)/float64(time.Millisecond),
		))
	}
	return rows
}

func formatWorkerRows(workers []stats.WorkerLatency, limit int) []string {
	if len(workers) == 0 {
		return []string{"Awaiting data"}
	}
	shown := workers
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	rows := make([]string, 0, len(shown)+1)
	for _, w := range shown {
		rows = append(rows, fmt.Sprintf("#%-3d Done %-8d P50 %6.1fms  P99 %6.1fms", w.Worker, w.Completed, w.P50Ms, w.P99Ms))
	}
	if len(workers) > len(shown) {
		rows = append(rows, fmt.Sprintf("... %d more", len(workers)-len(shown)))
	}
	return rows
}

// formatTestParams formats the test configuration parameters for display.
func (d *Dashboard) formatTestParams() string {
	var parts []string

	if d.testConfig.Method != "" && d.testConfig.Method != "GET" {
		parts = append(parts, fmt.Sprintf("Method: %s", d.testConfig.Method))
	}
	if d.testConfig.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", d.testConfig.Concurrency))
	}
	if d.testConfig.Requests > 0 {
		parts = append(parts, fmt.Sprintf("Requests: %d", d.testConfig.Requests))
	}
	if d.testConfig.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", d.testConfig.Duration))
	}
	if d.testConfig.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.testConfig.Timeout))
	}
	if d.testConfig.KeepAlive {
		parts = append(parts, "Keep-Alive")
	}
	if d.testConfig.Buffer > 0 {
		parts = append(parts, fmt.Sprintf("Buffer: %d (%s)", d.testConfig.Buffer, d.testConfig.LagPolicy))
	}
	if d.testConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.testConfig.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
