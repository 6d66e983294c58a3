// Package httpclient issues the requests a worker generates.
//
// [Client.Issue] takes a method, URL, headers and an optional body and returns
// the status code and the number of response body bytes read. Every status code
// counts as a response; only failures to obtain one (dial errors, timeouts,
// truncated bodies) come back as a [*TransportError]. The per-request timeout
// and keep-alive policy are fixed by [NewClient].
//
//	client := httpclient.NewClient(30*time.Second, true, httpclient.WithTracing(provider))
//	resp, err := client.Issue(ctx, httpclient.Request{Method: http.MethodGet, URL: target})
//
// This package integrates with:
//   - [github.com/torosent/crankbench/internal/tracing] for per-request client spans
package httpclient
