// Command target is a local HTTP server for exercising crankbench by hand. It
// serves fixed statuses, artificial latency and a request echo.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/torosent/crankbench/internal/logging"
)

// maxDelay caps the ?ms= parameter of /delay.
const maxDelay = 10 * time.Second

func main() {
	port := pflag.IntP("port", "p", 8080, "Listening port")
	level := pflag.String("log-level", "info", "Log level")
	pflag.Parse()

	logger, err := logging.New(*level, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("target server listening", zap.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: newMux(logger), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newMux(logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status/{code}", handleStatus)
	mux.HandleFunc("/delay", handleDelay)
	mux.HandleFunc("/echo", handleEcho)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "path": r.URL.Path})
	})
	return mux
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 100 || code > 599 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "status code must be 100-599"})
		return
	}
	_, _ = io.Copy(io.Discard, r.Body)
	w.WriteHeader(code)
}

func handleDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.URL.Query().Get("ms"))
	if err != nil || ms < 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "ms must be a non-negative integer"})
		return
	}
	delay := min(time.Duration(ms)*time.Millisecond, maxDelay)

	select {
	case <-time.After(delay):
	case <-r.Context().Done():
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"delayed_ms": delay.Milliseconds()})
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	respondJSON(w, http.StatusOK, map[string]any{
		"method":       r.Method,
		"path":         r.URL.Path,
		"content_type": r.Header.Get("Content-Type"),
		"body_bytes":   len(body),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
