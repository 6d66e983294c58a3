package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/tracing"
)

func TestIssueCountsResponseBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello world"))
	}))
	defer server.Close()

	client := NewClient(5*time.Second, true)
	resp, err := client.Issue(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Bytes != 11 {
		t.Fatalf("expected 11 bytes, got %d", resp.Bytes)
	}
}

func TestIssueNon2xxIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, true)
	resp, err := client.Issue(context.Background(), Request{Method: http.MethodDelete, URL: server.URL})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestIssueSendsHeadersAndBody(t *testing.T) {
	var gotBody []byte
	var gotHeader, gotType, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Test")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	header := http.Header{}
	header.Set("X-Test", "yes")
	header.Set("Content-Type", "application/octet-stream")

	client := NewClient(5*time.Second, true)
	resp, err := client.Issue(context.Background(), Request{
		Method: http.MethodPut,
		URL:    server.URL,
		Header: header,
		Body:   []byte("payload"),
	})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if gotMethod != http.MethodPut || gotHeader != "yes" || gotType != "application/octet-stream" {
		t.Fatalf("unexpected request: method=%s x-test=%q content-type=%q", gotMethod, gotHeader, gotType)
	}
	if string(gotBody) != "payload" {
		t.Fatalf("expected body %q, got %q", "payload", gotBody)
	}
}

func TestIssueHeadHasNoBodyBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
	}))
	defer server.Close()

	client := NewClient(5*time.Second, true)
	resp, err := client.Issue(context.Background(), Request{Method: http.MethodHead, URL: server.URL})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if resp.Bytes != 0 {
		t.Fatalf("expected 0 bytes for HEAD, got %d", resp.Bytes)
	}
}

func TestKeepAliveDisabledClosesConnections(t *testing.T) {
	closes := make(chan bool, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		closes <- r.Close
	}))
	defer server.Close()

	client := NewClient(5*time.Second, false)
	if _, err := client.Issue(context.Background(), Request{Method: http.MethodGet, URL: server.URL}); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !<-closes {
		t.Fatal("expected Connection: close when keep-alive is disabled")
	}
}

func TestIssueConnectionRefusedIsTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client := NewClient(2*time.Second, true)
	_, err = client.Issue(context.Background(), Request{Method: http.MethodGet, URL: "http://" + addr})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.Method != http.MethodGet {
		t.Fatalf("expected method GET in error, got %q", transportErr.Method)
	}
}

func TestIssueTimeoutIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(20*time.Millisecond, true)
	_, err := client.Issue(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError on timeout, got %v", err)
	}
}

func TestIssueRecordsSpanAndPropagates(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	propagate := true
	provider, err := tracing.Init(context.Background(),
		config.TracingConfig{SampleRate: 1, Propagate: &propagate},
		tracing.Run{ID: "run-1", Workers: 4, Mode: "count", Items: 1},
		tracing.WithExporter(exporter))
	if err != nil {
		t.Fatalf("tracing.Init() error = %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	var traceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, true, WithTracing(provider))
	req := Request{Method: http.MethodPost, URL: server.URL, Body: []byte("abc"), Worker: 3}
	if _, err := client.Issue(context.Background(), req); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if traceparent == "" {
		t.Error("expected traceparent header to be injected")
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "HTTP POST" {
		t.Errorf("span name = %q, want %q", span.Name, "HTTP POST")
	}
	if span.Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error for 503", span.Status.Code)
	}
	attrs := map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	for key, want := range map[string]string{
		"crankbench.worker":         "3",
		"http.request.body.size":    "3",
		"http.response.status_code": "503",
		"crankbench.outcome":        "not_2xx",
	} {
		if attrs[key] != want {
			t.Errorf("attribute %s = %q, want %q", key, attrs[key], want)
		}
	}
}

func TestIssueWithoutTracingSendsNoTraceparent(t *testing.T) {
	var traceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
	}))
	defer server.Close()

	provider, err := tracing.Init(context.Background(), config.TracingConfig{}, tracing.Run{})
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(5*time.Second, true, WithTracing(provider))
	if _, err := client.Issue(context.Background(), Request{Method: http.MethodGet, URL: server.URL}); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if traceparent != "" {
		t.Errorf("traceparent = %q, want none with tracing disabled", traceparent)
	}
}
