package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/torosent/crankbench/internal/broadcast"
	"github.com/torosent/crankbench/internal/stats"
)

const (
	DefaultMinBodySize = 10
	DefaultMaxBodySize = 100
	DefaultTimeout     = 30 * time.Second
	DefaultBuffer      = broadcast.DefaultCapacity
	DefaultTick        = time.Millisecond
)

type Config struct {
	TargetURL   string            `mapstructure:"target"`
	URLFile     string            `mapstructure:"url_file"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	BodyFile    string            `mapstructure:"body_file"`
	ContentType string            `mapstructure:"content_type"`
	MinBodySize int               `mapstructure:"min_body_size"`
	MaxBodySize int               `mapstructure:"max_body_size"`
	Concurrency int               `mapstructure:"concurrency"`
	Requests    int               `mapstructure:"requests"`
	Duration    time.Duration     `mapstructure:"duration"`
	KeepAlive   bool              `mapstructure:"keepalive"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	CPU         int               `mapstructure:"cpu"`
	Buffer      int               `mapstructure:"buffer"`
	Tick        time.Duration     `mapstructure:"tick"`
	LagPolicy   string            `mapstructure:"lag_policy"` // empty: block for -n, drop for -t
	Seed        int64             `mapstructure:"seed"`
	LogErrors   bool              `mapstructure:"log_errors"`
	LogLevel    string            `mapstructure:"log_level"`
	LogFormat   string            `mapstructure:"log_format"`
	JSONOutput  bool              `mapstructure:"json_output"`
	YAMLOutput  bool              `mapstructure:"yaml_output"`
	Dashboard   bool              `mapstructure:"dashboard"`
	Thresholds  []string          `mapstructure:"thresholds"`
	MetricsAddr string            `mapstructure:"metrics_addr"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	ConfigFile  string            `mapstructure:"-"`
}

// TracingConfig controls OTLP export of per-request spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	// Propagate overrides whether W3C headers are injected. nil follows Enabled.
	Propagate *bool `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured, directly or via the
// standard OTEL_EXPORTER_OTLP_ENDPOINT variable.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Defaults returns a Config populated with the values used when neither a
// config file nor a flag sets them.
func Defaults() Config {
	return Config{
		Method:      "GET",
		Headers:     map[string]string{},
		MinBodySize: DefaultMinBodySize,
		MaxBodySize: DefaultMaxBodySize,
		Concurrency: 1,
		Timeout:     DefaultTimeout,
		Buffer:      DefaultBuffer,
		Tick:        DefaultTick,
		LogLevel:    "info",
		LogFormat:   "console",
		Tracing:     TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate reports every problem at once so the user can fix them in one pass.
func (c Config) Validate() error {
	var issues []string

	hasURL := strings.TrimSpace(c.TargetURL) != ""
	hasList := strings.TrimSpace(c.URLFile) != ""
	switch {
	case !hasURL && !hasList:
		issues = append(issues, "a target URL or a URL file (-f) is required (use --help for usage information)")
	case hasURL && hasList:
		issues = append(issues, "target URL and URL file are mutually exclusive")
	}

	switch {
	case c.Requests < 0:
		issues = append(issues, "requests must be >= 0")
	case c.Duration < 0:
		issues = append(issues, "duration must be >= 0")
	case c.Requests == 0 && c.Duration == 0:
		issues = append(issues, "either a request count (-n) or a duration (-t) is required")
	case c.Requests > 0 && c.Duration > 0:
		issues = append(issues, "request count and duration are mutually exclusive")
	}

	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if hasURL && !stats.Supported(strings.ToUpper(c.Method)) {
		issues = append(issues, fmt.Sprintf("method %q is not supported (use %s)", c.Method, strings.Join(stats.Methods, ", ")))
	}
	if c.MinBodySize < 0 {
		issues = append(issues, "min body size must be >= 0")
	}
	if c.MaxBodySize < c.MinBodySize {
		issues = append(issues, "max body size must be >= min body size")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.CPU < 0 {
		issues = append(issues, "cpu must be >= 0")
	}
	if c.Buffer < 1 {
		issues = append(issues, "buffer must be >= 1")
	}
	if c.Tick <= 0 {
		issues = append(issues, "tick must be > 0")
	}
	if _, err := broadcast.ParsePolicy(c.LagPolicy); err != nil {
		issues = append(issues, err.Error())
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log format %q is not supported (use console or json)", c.LogFormat))
	}

	outputs := 0
	for _, on := range []bool{c.JSONOutput, c.YAMLOutput, c.Dashboard} {
		if on {
			outputs++
		}
	}
	if outputs > 1 {
		issues = append(issues, "dashboard, json-output and yaml-output are mutually exclusive")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing sample rate must be between 0.0 and 1.0")
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported (use grpc or http)", c.Tracing.Protocol))
	}

	if c.Concurrency > 500 {
		fmt.Fprintf(os.Stderr, "WARNING: High concurrency configured (%d workers). Every worker replays the full load; ensure you have authorization to test the target system.\n", c.Concurrency)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
