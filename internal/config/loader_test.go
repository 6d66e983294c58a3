package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input any
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input   any
		want    int
		wantErr bool
	}{
		{input: 123, want: 123},
		{input: "456", want: 456},
		{input: int64(789), want: 789},
		{input: float64(10.0), want: 10},
		{input: nil, want: 0},
		{input: 2.5, wantErr: true},
		{input: "ten", wantErr: true},
		{input: []any{1}, wantErr: true},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("asInt(%v) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input any
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input any
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{"250ms", 250 * time.Millisecond},
		{"30", 30 * time.Second},
		{10, 10 * time.Second},
		{float64(5), 5 * time.Second},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		entry     string
		wantKey   string
		wantValue string
		wantErr   bool
	}{
		{entry: "Accept-Encoding: gzip", wantKey: "Accept-Encoding", wantValue: "gzip"},
		{entry: "x-test=123", wantKey: "X-Test", wantValue: "123"},
		{entry: "Referer: http://example.com/a", wantKey: "Referer", wantValue: "http://example.com/a"},
		{entry: "Authorization=Bearer token", wantKey: "Authorization", wantValue: "Bearer token"},
		{entry: "novalue", wantErr: true},
		{entry: ": empty", wantErr: true},
	}

	for _, tt := range tests {
		key, value, err := parseHeader(tt.entry)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHeader(%q) expected error", tt.entry)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHeader(%q) error = %v", tt.entry, err)
			continue
		}
		if key != tt.wantKey || value != tt.wantValue {
			t.Errorf("parseHeader(%q) = (%q, %q), want (%q, %q)", tt.entry, key, value, tt.wantKey, tt.wantValue)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]any{
		"target":      "http://example.com",
		"method":      "POST",
		"concurrency": 10,
		"requests":    500,
		"timeout":     "5s",
		"min":         20,
		"max":         40,
		"lag_policy":  "block",
		"headers": map[string]any{
			"content-type": "application/json",
		},
		"thresholds": []any{"http_req_failed:rate < 0.01"},
		"tracing": map[string]any{
			"endpoint":    "localhost:4317",
			"protocol":    "http",
			"sample_rate": 0.5,
			"propagate":   false,
		},
	}

	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com" {
		t.Errorf("TargetURL = %q, want http://example.com", cfg.TargetURL)
	}
	if cfg.Method != "POST" {
		t.Errorf("Method = %q, want POST", cfg.Method)
	}
	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want 10", cfg.Concurrency)
	}
	if cfg.Requests != 500 {
		t.Errorf("Requests = %d, want 500", cfg.Requests)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.MinBodySize != 20 || cfg.MaxBodySize != 40 {
		t.Errorf("body size = [%d, %d], want [20, 40]", cfg.MinBodySize, cfg.MaxBodySize)
	}
	if cfg.LagPolicy != "block" {
		t.Errorf("LagPolicy = %q, want block", cfg.LagPolicy)
	}
	if cfg.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q, want application/json", cfg.Headers["Content-Type"])
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v, want one entry", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.Protocol != "http" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing.SampleRate = %v, want 0.5", cfg.Tracing.SampleRate)
	}
	if cfg.Tracing.Propagate == nil || *cfg.Tracing.Propagate {
		t.Errorf("Tracing.Propagate = %v, want explicit false", cfg.Tracing.Propagate)
	}
}

func TestApplyConfigSettingsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
	}{
		{"fractional concurrency", map[string]any{"concurrency": 2.5}},
		{"bad duration", map[string]any{"duration": "soon"}},
		{"bad bool", map[string]any{"keepalive": "maybe"}},
		{"headers not a map", map[string]any{"headers": []any{"x"}}},
		{"tracing not a map", map[string]any{"tracing": "on"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			if err := applyConfigSettings(&cfg, tt.settings); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--concurrency=5",
		"--method=PUT",
		"--header=X-Test=123",
		"-H", "Accept-Encoding: gzip",
		"-k",
		"-s", "2s",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Concurrency)
	}
	if cfg.Method != "PUT" {
		t.Errorf("Method = %q, want PUT", cfg.Method)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if cfg.Headers["Accept-Encoding"] != "gzip" {
		t.Errorf("Headers[Accept-Encoding] = %q, want gzip", cfg.Headers["Accept-Encoding"])
	}
	if !cfg.KeepAlive {
		t.Error("KeepAlive = false, want true")
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Timeout)
	}
	// Unchanged flags keep the existing values.
	if cfg.MinBodySize != DefaultMinBodySize || cfg.Buffer != DefaultBuffer {
		t.Errorf("unchanged flags overrode config: min=%d buffer=%d", cfg.MinBodySize, cfg.Buffer)
	}
}

func TestApplyFlagOverridesSwapsRunMode(t *testing.T) {
	cfg := Defaults()
	cfg.Requests = 1000

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"-t", "30s"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Duration != 30*time.Second {
		t.Errorf("Duration = %v, want 30s", cfg.Duration)
	}
	if cfg.Requests != 0 {
		t.Errorf("Requests = %d, want 0 after -t replaced the file's count", cfg.Requests)
	}
}

func TestApplyFlagOverridesBareSeconds(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantDuration time.Duration
		wantTimeout  time.Duration
		wantErr      bool
	}{
		{"bare duration", []string{"-t", "10"}, 10 * time.Second, DefaultTimeout, false},
		{"bare timeout", []string{"-s", "3"}, 0, 3 * time.Second, false},
		{"go durations", []string{"--duration=1m", "--timeout=1500ms"}, time.Minute, 1500 * time.Millisecond, false},
		{"garbage", []string{"-t", "soon"}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			configureFlags(fs)
			err := fs.Parse(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			cfg := Defaults()
			if err := applyFlagOverrides(&cfg, fs); err != nil {
				t.Fatalf("applyFlagOverrides() error = %v", err)
			}
			if cfg.Duration != tt.wantDuration || cfg.Timeout != tt.wantTimeout {
				t.Errorf("duration=%v timeout=%v, want %v and %v", cfg.Duration, cfg.Timeout, tt.wantDuration, tt.wantTimeout)
			}
		})
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"-c", "2",
		"-n", "100",
		"-m", "head",
		"http://example.com",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com" {
		t.Errorf("TargetURL = %q, want http://example.com", cfg.TargetURL)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Concurrency)
	}
	if cfg.Requests != 100 {
		t.Errorf("Requests = %d, want 100", cfg.Requests)
	}
	if cfg.Method != "HEAD" {
		t.Errorf("Method = %q, want HEAD", cfg.Method)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
