package workload

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/torosent/crankbench/internal/stats"
)

// DefaultTick is the emission interval used in duration mode.
const DefaultTick = time.Millisecond

// ErrInvalidPlan is returned when a Plan does not describe exactly one URL form
// and exactly one termination mode.
var ErrInvalidPlan = errors.New("invalid load plan")

// WorkItem is one (method, URL) unit of load. It is copied to every worker.
type WorkItem struct {
	Method string
	URL    string
}

// UnsupportedMethodError reports a method outside the supported set.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported method %q (supported: %s)", e.Method, strings.Join(stats.Methods, ", "))
}

// ValidateMethod returns an *UnsupportedMethodError for methods the engine does not track.
func ValidateMethod(method string) error {
	if !stats.Supported(method) {
		return &UnsupportedMethodError{Method: method}
	}
	return nil
}

// Plan describes the load shape. Exactly one of URL or Items is set, and
// exactly one of Count or Duration is positive.
type Plan struct {
	// URL and Method describe single-URL mode.
	URL    string
	Method string
	// Items is the URL list, replayed in order.
	Items []WorkItem

	Count    int
	Duration time.Duration
	Tick     time.Duration
}

// Validate checks the plan for contradictions.
func (p Plan) Validate() error {
	switch {
	case p.URL != "" && len(p.Items) > 0:
		return fmt.Errorf("%w: both a single URL and a URL list are set", ErrInvalidPlan)
	case p.URL == "" && len(p.Items) == 0:
		return fmt.Errorf("%w: no URL or URL list entries", ErrInvalidPlan)
	case p.Count > 0 && p.Duration > 0:
		return fmt.Errorf("%w: both a request count and a duration are set", ErrInvalidPlan)
	case p.Count <= 0 && p.Duration <= 0:
		return fmt.Errorf("%w: neither a request count nor a duration is set", ErrInvalidPlan)
	}
	for _, item := range p.items() {
		if err := ValidateMethod(item.Method); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
		}
	}
	return nil
}

func (p Plan) items() []WorkItem {
	if p.URL != "" {
		method := p.Method
		if method == "" {
			method = "GET"
		}
		return []WorkItem{{Method: method, URL: p.URL}}
	}
	return p.Items
}

func (p Plan) tick() time.Duration {
	if p.Tick <= 0 {
		return DefaultTick
	}
	return p.Tick
}

// Total returns how many items a fixed-count plan emits, or 0 in duration mode.
func (p Plan) Total() int {
	if p.Count <= 0 {
		return 0
	}
	return p.Count * len(p.items())
}
