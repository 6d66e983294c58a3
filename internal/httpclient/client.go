package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/torosent/crankbench/internal/tracing"
)

// Request is one outgoing call. Body is nil for bodiless methods.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// Worker is the issuing worker's id, recorded on the request span.
	Worker int
}

// Response is what the load loop needs from a reply.
type Response struct {
	StatusCode int
	// Bytes is the number of response body bytes read off the wire.
	Bytes uint64
}

// TransportError wraps any failure that prevented a complete response:
// connection errors, timeouts, and malformed or truncated replies.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client issues requests with a fixed timeout and connection policy.
type Client struct {
	http    *http.Client
	tracing *tracing.Provider
}

// Option configures a Client.
type Option func(*Client)

// WithTracing records a client span per request and, when the provider asks for
// it, injects W3C trace headers.
func WithTracing(p *tracing.Provider) Option {
	return func(c *Client) {
		c.tracing = p
	}
}

// WithHTTPClient replaces the underlying client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a client tuned for load generation. When keepAlive is false
// every request uses a fresh connection and sends Connection: close.
func NewClient(timeout time.Duration, keepAlive bool, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: timeout, Transport: newTransport(keepAlive)},
	}
	if timeout < 0 {
		c.http.Timeout = 0
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newTransport(keepAlive bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		DisableKeepAlives:     !keepAlive,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Issue sends req and drains the response body. Any status code is a
// successful Response; only failures to obtain one return a *TransportError.
func (c *Client) Issue(ctx context.Context, req Request) (Response, error) {
	ctx, span := c.tracing.StartRequest(ctx, req.Worker, req.Method, req.URL, len(req.Body))

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		tracing.EndRequest(span, 0, 0, err)
		return Response{}, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	c.tracing.InjectHeaders(ctx, httpReq.Header)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		tracing.EndRequest(span, 0, 0, err)
		return Response{}, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}
	n, err := io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		err = fmt.Errorf("read body: %w", err)
		tracing.EndRequest(span, 0, 0, err)
		return Response{}, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	tracing.EndRequest(span, resp.StatusCode, n, nil)
	return Response{StatusCode: resp.StatusCode, Bytes: uint64(n)}, nil
}

// CloseIdleConnections releases pooled connections after a run.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}
