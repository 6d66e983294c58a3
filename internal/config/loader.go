package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional configuration file. Flags
// the user set explicitly override file values; the first positional argument
// is the target URL.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	if positional := flagSet.Args(); len(positional) > 0 {
		if len(positional) > 1 {
			return nil, fmt.Errorf("expected a single target URL, got %d arguments", len(positional))
		}
		cfg.TargetURL = strings.TrimSpace(positional[0])
		if !flagSet.Changed("url-file") {
			cfg.URLFile = ""
		}
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	cfg.LagPolicy = strings.ToLower(strings.TrimSpace(cfg.LagPolicy))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]any) error {
	if len(settings) == 0 {
		return nil
	}

	strs := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.TargetURL, []string{"target", "url"}},
		{&cfg.URLFile, []string{"url_file", "urlfile", "url-file"}},
		{&cfg.Method, []string{"method"}},
		{&cfg.BodyFile, []string{"body_file", "bodyfile", "body-file"}},
		{&cfg.ContentType, []string{"content_type", "contenttype", "content-type"}},
		{&cfg.LagPolicy, []string{"lag_policy", "lagpolicy", "lag-policy"}},
		{&cfg.LogLevel, []string{"log_level", "loglevel", "log-level"}},
		{&cfg.LogFormat, []string{"log_format", "logformat", "log-format"}},
		{&cfg.MetricsAddr, []string{"metrics_addr", "metricsaddr", "metrics-addr"}},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			if val = strings.TrimSpace(val); val != "" {
				*s.dst = val
			}
		}
	}

	ints := []struct {
		dst  *int
		keys []string
	}{
		{&cfg.Concurrency, []string{"concurrency", "workers"}},
		{&cfg.Requests, []string{"requests", "total"}},
		{&cfg.MinBodySize, []string{"min_body_size", "minbodysize", "min"}},
		{&cfg.MaxBodySize, []string{"max_body_size", "maxbodysize", "max"}},
		{&cfg.Buffer, []string{"buffer"}},
		{&cfg.CPU, []string{"cpu"}},
	}
	for _, n := range ints {
		if raw, ok := lookupSetting(settings, n.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", n.keys[0], err)
			}
			*n.dst = val
		}
	}

	durations := []struct {
		dst  *time.Duration
		keys []string
	}{
		{&cfg.Duration, []string{"duration"}},
		{&cfg.Timeout, []string{"timeout"}},
		{&cfg.Tick, []string{"tick"}},
	}
	for _, d := range durations {
		if raw, ok := lookupSetting(settings, d.keys...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.keys[0], err)
			}
			*d.dst = val
		}
	}

	bools := []struct {
		dst  *bool
		keys []string
	}{
		{&cfg.KeepAlive, []string{"keepalive", "keep_alive"}},
		{&cfg.LogErrors, []string{"log_errors", "logerrors"}},
		{&cfg.JSONOutput, []string{"json_output", "jsonoutput"}},
		{&cfg.YAMLOutput, []string{"yaml_output", "yamloutput"}},
		{&cfg.Dashboard, []string{"dashboard"}},
	}
	for _, b := range bools {
		if raw, ok := lookupSetting(settings, b.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", b.keys[0], err)
			}
			*b.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, raw any) error {
	settings, err := toStringKeyMap(raw, true)
	if err != nil {
		return err
	}
	if v, ok := lookupSetting(settings, "endpoint"); ok {
		s, _ := asString(v)
		t.Endpoint = strings.TrimSpace(s)
	}
	if v, ok := lookupSetting(settings, "protocol"); ok {
		s, _ := asString(v)
		t.Protocol = strings.TrimSpace(s)
	}
	if v, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		s, _ := asString(v)
		t.ServiceName = strings.TrimSpace(s)
	}
	if v, ok := lookupSetting(settings, "insecure"); ok {
		b, err := asBool(v)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = b
	}
	if v, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		f, err := asFloat64(v)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = f
	}
	if v, ok := lookupSetting(settings, "propagate"); ok {
		b, err := asBool(v)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &b
	}
	return nil
}
