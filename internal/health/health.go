// Package health provides HTTP health and readiness check handlers for the
// animus server.
//
// The package exposes two endpoints:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when no registered
//     [Checker] fails hard.
//
// A checker may also report degradation by wrapping its error in
// [ErrDegraded]: the condition is surfaced in the response body but does not
// flip readiness, because the server keeps answering with fallback behavior.
// Open model-provider breakers are the canonical degraded state.
//
// Responses are JSON objects with a top-level "status" field ("ok",
// "degraded", or "fail") and a "checks" map containing the result of each
// named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/solmae/animus/internal/resilience"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// ErrDegraded marks a checker failure that should be reported without
// failing readiness. Wrap it: fmt.Errorf("%w: llm breaker open", ErrDegraded).
var ErrDegraded = errors.New("degraded")

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "store",
	// "write_queue"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Pinger is the slice of the store used by [StoreChecker].
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker probes the embedded database with a ping. The server is not
// ready while the store cannot answer reads.
func StoreChecker(p Pinger) Checker {
	return Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// WriteQueueChecker reports the write-behind queue state. A failing flush
// leaves reads working and writes queued, so it degrades readiness rather
// than failing it.
func WriteQueueChecker(q interface{ Healthy() bool }) Checker {
	return Checker{
		Name: "write_queue",
		Check: func(context.Context) error {
			if !q.Healthy() {
				return fmt.Errorf("%w: last flush failed, writes backing off", ErrDegraded)
			}
			return nil
		},
	}
}

// BreakerReporter is the slice of the oracle used by [OracleChecker].
type BreakerReporter interface {
	BreakerStats() []resilience.Stats
}

// OracleChecker surfaces open model-provider breakers as a degraded state.
// Interactions keep working on canned frames while a breaker is open, so an
// open breaker never fails readiness.
func OracleChecker(o BreakerReporter) Checker {
	return Checker{
		Name: "oracle",
		Check: func(context.Context) error {
			var open []string
			for _, s := range o.BreakerStats() {
				if s.State == "open" {
					open = append(open, s.Name)
				}
			}
			if len(open) > 0 {
				return fmt.Errorf("%w: breakers open: %s", ErrDegraded, strings.Join(open, ", "))
			}
			return nil
		},
	}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request. The checkers are evaluated sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 unless a registered [Checker]
// fails hard. Degraded checks ([ErrDegraded]) appear in the body with a 200.
// Each checker is given a context with a [checkTimeout] deadline derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	overall := "ok"
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		switch {
		case err == nil:
			checks[c.Name] = "ok"
		case errors.Is(err, ErrDegraded):
			checks[c.Name] = err.Error()
			if overall == "ok" {
				overall = "degraded"
			}
		default:
			checks[c.Name] = "fail: " + err.Error()
			overall = "fail"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, result{Status: overall, Checks: checks})
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
