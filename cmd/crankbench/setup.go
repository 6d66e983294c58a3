package main

import (
	"net/http"
	"strings"

	"github.com/torosent/crankbench/internal/broadcast"
	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/dashboard"
	"github.com/torosent/crankbench/internal/feeder"
	"github.com/torosent/crankbench/internal/runner"
	"github.com/torosent/crankbench/internal/tracing"
	"github.com/torosent/crankbench/internal/worker"
	"github.com/torosent/crankbench/internal/workload"
)

// buildPlan turns the target URL or URL file into a load plan.
func buildPlan(cfg *config.Config) (workload.Plan, error) {
	plan := workload.Plan{
		Count:    cfg.Requests,
		Duration: cfg.Duration,
		Tick:     cfg.Tick,
	}
	if cfg.URLFile != "" {
		items, err := feeder.LoadURLList(cfg.URLFile)
		if err != nil {
			return workload.Plan{}, err
		}
		plan.Items = items
		return plan, nil
	}
	plan.URL = cfg.TargetURL
	plan.Method = strings.ToUpper(cfg.Method)
	return plan, nil
}

// buildBody picks the body file when one is configured, otherwise random
// payloads in [min, max].
func buildBody(cfg *config.Config) (worker.BodySource, error) {
	if cfg.BodyFile != "" {
		return worker.LoadBodyFile(cfg.BodyFile)
	}
	return worker.RandomBody(cfg.MinBodySize, cfg.MaxBodySize)
}

// lagPolicy applies --lag-policy when given; otherwise the plan decides.
func lagPolicy(cfg *config.Config, plan workload.Plan) (broadcast.Policy, error) {
	var explicit broadcast.Policy
	if cfg.LagPolicy != "" {
		p, err := broadcast.ParsePolicy(cfg.LagPolicy)
		if err != nil {
			return "", err
		}
		explicit = p
	}
	return runner.ResolveLagPolicy(plan, explicit), nil
}

func traceRun(cfg *config.Config, runID string, plan workload.Plan, policy broadcast.Policy) tracing.Run {
	run := tracing.Run{
		ID:        runID,
		Workers:   cfg.Concurrency,
		Mode:      "duration",
		Items:     len(plan.Items),
		LagPolicy: string(policy),
	}
	if plan.Count > 0 {
		run.Mode = "count"
	}
	if run.Items == 0 {
		run.Items = 1
	}
	return run
}

func makeHeaders(src map[string]string) http.Header {
	h := make(http.Header, len(src))
	for k, v := range src {
		h.Set(k, v)
	}
	return h
}

func targetLabel(cfg *config.Config) string {
	if cfg.URLFile != "" {
		return cfg.URLFile
	}
	return cfg.TargetURL
}

func dashboardConfig(cfg *config.Config, policy broadcast.Policy) dashboard.TestConfig {
	return dashboard.TestConfig{
		Target:      targetLabel(cfg),
		Method:      strings.ToUpper(cfg.Method),
		Concurrency: cfg.Concurrency,
		Requests:    cfg.Requests,
		Duration:    cfg.Duration,
		Timeout:     cfg.Timeout,
		KeepAlive:   cfg.KeepAlive,
		Buffer:      cfg.Buffer,
		LagPolicy:   string(policy),
		ConfigFile:  cfg.ConfigFile,
	}
}
