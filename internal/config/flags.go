package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crankbench [flags] <url>",
		Short:         "Concurrent HTTP benchmark with per-method latency percentiles",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set. Defaults are
// applied by Defaults, so only changed flags override a config file.
func configureFlags(flags *pflag.FlagSet) {
	d := Defaults()

	// Request flags
	flags.String("target", "", "Target URL (alternative to the positional argument)")
	flags.StringP("url-file", "f", "", "File with one METHOD,URL entry per line")
	flags.StringP("method", "m", d.Method, "HTTP method: HEAD, GET, POST, PUT or DELETE")
	flags.StringArrayP("header", "H", nil, "Custom header, e.g. 'Accept-Encoding: gzip' (repeatable)")
	flags.StringP("body-file", "b", "", "File whose contents are sent as the POST/PUT body")
	flags.String("content-type", "", "Content-Type header for POST/PUT bodies")
	flags.Int("min", d.MinBodySize, "Minimum random body length in bytes")
	flags.Int("max", d.MaxBodySize, "Maximum random body length in bytes")

	// Load flags
	flags.IntP("concurrency", "c", d.Concurrency, "Number of concurrent workers; each replays the full load")
	flags.IntP("requests", "n", 0, "Number of requests to generate")
	flags.VarP(newSecondsValue(0), "duration", "t", "How long to generate load (e.g. 30s, 1m; a bare number is seconds)")
	flags.Duration("tick", d.Tick, "Emission interval in duration mode")
	flags.Int("buffer", d.Buffer, "Distribution buffer capacity per worker")
	flags.String("lag-policy", "", "Slow worker policy: 'drop' (skip and continue) or 'block' (slow the generator); defaults to block with -n and drop with -t")
	flags.Int64("seed", 0, "Base seed for random bodies (0 uses the clock)")
	flags.Int("cpu", 0, "GOMAXPROCS for the run (0 keeps the runtime default)")

	// Network flags
	flags.BoolP("keepalive", "k", false, "Reuse connections between requests")
	flags.VarP(newSecondsValue(d.Timeout), "timeout", "s", "Per-request timeout (a bare number is seconds)")

	// Output flags
	flags.Bool("json-output", false, "Emit the final report as JSON")
	flags.Bool("yaml-output", false, "Emit the final report as YAML")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("log-errors", false, "Log each failed request")
	flags.String("log-level", d.LogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", d.LogFormat, "Log encoding: console or json")
	flags.StringSlice("threshold", nil, "Pass/fail threshold (repeatable, e.g. 'http_req_duration:p95 < 500')")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", d.Tracing.Protocol, "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported in spans")
	flags.Bool("tracing-insecure", false, "Disable TLS to the OTLP collector")
	flags.Float64("tracing-sample-rate", d.Tracing.SampleRate, "Fraction of requests to trace (0.0-1.0)")
	flags.Bool("tracing-propagate", false, "Inject W3C trace headers (defaults to on when an endpoint is set)")
}

// secondsValue is a duration flag that also takes a bare integer as seconds,
// matching how the config file reads durations.
type secondsValue time.Duration

func newSecondsValue(d time.Duration) *secondsValue {
	v := secondsValue(d)
	return &v
}

func (v *secondsValue) Set(s string) error {
	d, err := asDuration(s)
	if err != nil {
		return err
	}
	*v = secondsValue(d)
	return nil
}

func (v *secondsValue) String() string { return time.Duration(*v).String() }

func (v *secondsValue) Type() string { return "duration" }

func getSeconds(fs *pflag.FlagSet, name string) (time.Duration, error) {
	f := fs.Lookup(name)
	if f == nil {
		return 0, fmt.Errorf("flag %q not defined", name)
	}
	v, ok := f.Value.(*secondsValue)
	if !ok {
		return 0, fmt.Errorf("flag %q is not a duration", name)
	}
	return time.Duration(*v), nil
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// parseHeader accepts "Key: Value" and falls back to "key=value".
func parseHeader(entry string) (string, string, error) {
	sep := ":"
	if !strings.Contains(entry, sep) {
		sep = "="
	}
	parts := strings.SplitN(entry, sep, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("header must be in 'Key: Value' or key=value format: %s", entry)
	}
	key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
	if key == "" {
		return "", "", fmt.Errorf("header key cannot be empty")
	}
	value := strings.TrimSpace(parts[1])
	if strings.ContainsAny(key, "\r\n") || strings.ContainsAny(value, "\r\n") {
		return "", "", fmt.Errorf("invalid header %q", entry)
	}
	return key, value, nil
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			var v string
			v, err = fs.GetString(name)
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}
	flag := func(name string, dst *bool) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetBool(name)
		}
	}

	str("target", &cfg.TargetURL)
	str("url-file", &cfg.URLFile)
	str("method", &cfg.Method)
	str("body-file", &cfg.BodyFile)
	str("content-type", &cfg.ContentType)
	num("min", &cfg.MinBodySize)
	num("max", &cfg.MaxBodySize)
	num("concurrency", &cfg.Concurrency)
	num("requests", &cfg.Requests)
	num("buffer", &cfg.Buffer)
	num("cpu", &cfg.CPU)
	str("lag-policy", &cfg.LagPolicy)
	flag("keepalive", &cfg.KeepAlive)
	flag("json-output", &cfg.JSONOutput)
	flag("yaml-output", &cfg.YAMLOutput)
	flag("dashboard", &cfg.Dashboard)
	flag("log-errors", &cfg.LogErrors)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("metrics-addr", &cfg.MetricsAddr)
	str("tracing-endpoint", &cfg.Tracing.Endpoint)
	str("tracing-protocol", &cfg.Tracing.Protocol)
	str("tracing-service-name", &cfg.Tracing.ServiceName)
	flag("tracing-insecure", &cfg.Tracing.Insecure)
	if err != nil {
		return err
	}

	if fs.Changed("duration") {
		if cfg.Duration, err = getSeconds(fs, "duration"); err != nil {
			return err
		}
		// A duration on the command line replaces a count from the config file.
		if !fs.Changed("requests") {
			cfg.Requests = 0
		}
	}
	if fs.Changed("requests") && !fs.Changed("duration") {
		cfg.Duration = 0
	}
	if fs.Changed("timeout") {
		if cfg.Timeout, err = getSeconds(fs, "timeout"); err != nil {
			return err
		}
	}
	if fs.Changed("tick") {
		if cfg.Tick, err = fs.GetDuration("tick"); err != nil {
			return err
		}
	}
	if fs.Changed("seed") {
		if cfg.Seed, err = fs.GetInt64("seed"); err != nil {
			return err
		}
	}
	if fs.Changed("tracing-sample-rate") {
		if cfg.Tracing.SampleRate, err = fs.GetFloat64("tracing-sample-rate"); err != nil {
			return err
		}
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	if fs.Changed("target") || fs.Changed("url-file") {
		// One URL form on the command line replaces the other from the config file.
		if !fs.Changed("url-file") {
			cfg.URLFile = ""
		}
		if !fs.Changed("target") {
			cfg.TargetURL = ""
		}
	}

	if fs.Changed("threshold") {
		vals, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = vals
	}

	vals, err := fs.GetStringArray("header")
	if err != nil {
		return err
	}
	for _, entry := range vals {
		key, value, err := parseHeader(entry)
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		cfg.Headers[key] = value
	}
	return nil
}
