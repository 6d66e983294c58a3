package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/crankbench/internal/config"
)

func TestLoadWithoutArgumentsRequestsHelp(t *testing.T) {
	loader := config.NewLoader()

	_, err := loader.Load([]string{})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load() error = %v, want ErrHelpRequested", err)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	loader := config.NewLoader()

	cfg, err := loader.Load([]string{"-n", "10", "http://localhost:8080/"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Method != "GET" {
		t.Errorf("Method = %q, want GET", cfg.Method)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Concurrency)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", cfg.Timeout)
	}
	if cfg.KeepAlive {
		t.Errorf("KeepAlive = true, want false")
	}
	if cfg.MinBodySize != 10 || cfg.MaxBodySize != 100 {
		t.Errorf("body size = [%d, %d], want [10, 100]", cfg.MinBodySize, cfg.MaxBodySize)
	}
	if cfg.Buffer != config.DefaultBuffer {
		t.Errorf("Buffer = %d, want %d", cfg.Buffer, config.DefaultBuffer)
	}
	if cfg.LagPolicy != "" {
		t.Errorf("LagPolicy = %q, want empty", cfg.LagPolicy)
	}
	if cfg.JSONOutput {
		t.Errorf("JSONOutput = true, want false")
	}
	if len(cfg.Headers) != 0 {
		t.Errorf("Headers len = %d, want 0", len(cfg.Headers))
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"target": "https://api.example.com",
		"method": "PUT",
		"headers": {"Content-Type": "application/json"},
		"concurrency": 10,
		"requests": 500,
		"timeout": "45s",
		"keepalive": true,
		"min_body_size": 64,
		"max_body_size": 128,
		"jsonOutput": true
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path, "--method", "POST", "--header", "Authorization=Bearer token"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "https://api.example.com" {
		t.Errorf("TargetURL = %q, want https://api.example.com", cfg.TargetURL)
	}
	if cfg.Method != "POST" {
		t.Errorf("Method = %q, want POST", cfg.Method)
	}
	if cfg.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q, want application/json", cfg.Headers["Content-Type"])
	}
	if cfg.Headers["Authorization"] != "Bearer token" {
		t.Errorf("Headers[Authorization] = %q, want Bearer token", cfg.Headers["Authorization"])
	}
	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want 10", cfg.Concurrency)
	}
	if cfg.Requests != 500 {
		t.Errorf("Requests = %d, want 500", cfg.Requests)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %s, want 45s", cfg.Timeout)
	}
	if !cfg.KeepAlive {
		t.Errorf("KeepAlive = false, want true")
	}
	if cfg.MinBodySize != 64 || cfg.MaxBodySize != 128 {
		t.Errorf("body size = [%d, %d], want [64, 128]", cfg.MinBodySize, cfg.MaxBodySize)
	}
	if !cfg.JSONOutput {
		t.Errorf("JSONOutput = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"url_file: urls.txt",
		"headers:",
		"  X-Env: staging",
		"concurrency: 4",
		"duration: 30s",
		"tick: 2ms",
		"lag_policy: block",
		"thresholds:",
		"  - \"http_req_duration:p95 < 500\"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.URLFile != "urls.txt" {
		t.Errorf("URLFile = %q, want urls.txt", cfg.URLFile)
	}
	if cfg.Headers["X-Env"] != "staging" {
		t.Errorf("Headers[X-Env] = %q, want staging", cfg.Headers["X-Env"])
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("Duration = %s, want 30s", cfg.Duration)
	}
	if cfg.Tick != 2*time.Millisecond {
		t.Errorf("Tick = %s, want 2ms", cfg.Tick)
	}
	if cfg.LagPolicy != "block" {
		t.Errorf("LagPolicy = %q, want block", cfg.LagPolicy)
	}
	if len(cfg.Thresholds) != 1 || cfg.Thresholds[0] != "http_req_duration:p95 < 500" {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
}

func TestPositionalTargetReplacesConfigURLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("url_file: urls.txt\nrequests: 5\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "http://localhost/"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TargetURL != "http://localhost/" {
		t.Errorf("TargetURL = %q, want http://localhost/", cfg.TargetURL)
	}
	if cfg.URLFile != "" {
		t.Errorf("URLFile = %q, want empty", cfg.URLFile)
	}
}

func TestLoadRejectsExtraPositionals(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"-n", "1", "http://a/", "http://b/"}); err == nil {
		t.Fatal("expected error for two positional URLs")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidationErrors(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Defaults()
		cfg.TargetURL = "http://localhost/"
		cfg.Requests = 10
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"no target", func(c *config.Config) { c.TargetURL = "" }, "target URL or a URL file"},
		{"target and file", func(c *config.Config) { c.URLFile = "urls.txt" }, "mutually exclusive"},
		{"no run mode", func(c *config.Config) { c.Requests = 0 }, "request count (-n) or a duration (-t)"},
		{"both run modes", func(c *config.Config) { c.Duration = time.Second }, "request count and duration"},
		{"negative requests", func(c *config.Config) { c.Requests = -1 }, "requests must be >= 0"},
		{"zero concurrency", func(c *config.Config) { c.Concurrency = 0 }, "concurrency must be >= 1"},
		{"unsupported method", func(c *config.Config) { c.Method = "PATCH" }, "not supported"},
		{"max below min", func(c *config.Config) { c.MinBodySize, c.MaxBodySize = 50, 10 }, "max body size"},
		{"negative min", func(c *config.Config) { c.MinBodySize = -1 }, "min body size"},
		{"zero buffer", func(c *config.Config) { c.Buffer = 0 }, "buffer must be >= 1"},
		{"zero tick", func(c *config.Config) { c.Tick = 0 }, "tick must be > 0"},
		{"bad lag policy", func(c *config.Config) { c.LagPolicy = "panic" }, "panic"},
		{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }, "log format"},
		{"two outputs", func(c *config.Config) { c.JSONOutput, c.Dashboard = true, true }, "mutually exclusive"},
		{"sample rate", func(c *config.Config) { c.Tracing.SampleRate = 1.5 }, "sample rate"},
		{"tracing protocol", func(c *config.Config) { c.Tracing.Protocol = "udp" }, "tracing protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil")
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestConfigValidationCollectsAllIssues(t *testing.T) {
	cfg := config.Defaults()
	cfg.Concurrency = 0
	cfg.Buffer = 0

	var verr config.ValidationError
	if !errors.As(cfg.Validate(), &verr) {
		t.Fatal("expected ValidationError")
	}
	if got := len(verr.Issues()); got < 4 {
		t.Errorf("Issues() = %v, want at least target, run mode, concurrency and buffer", verr.Issues())
	}
}

func TestTracingPropagationDefaults(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	tc := config.TracingConfig{}
	if tc.ShouldPropagate() {
		t.Error("ShouldPropagate() = true without endpoint")
	}
	tc.Endpoint = "localhost:4317"
	if !tc.ShouldPropagate() {
		t.Error("ShouldPropagate() = false with endpoint")
	}
	off := false
	tc.Propagate = &off
	if tc.ShouldPropagate() {
		t.Error("explicit Propagate=false ignored")
	}
}
