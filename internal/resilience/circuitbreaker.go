// Package resilience protects the oracle's provider calls from cascading
// failures.
//
// The central type is [CircuitBreaker], a three-state breaker
// (closed → open → half-open). [FallbackGroup] composes multiple instances of
// any provider type with per-entry breakers so a failing primary is bypassed
// in favour of healthy fallbacks; [LLMFallback], [TTSFallback] and
// [STTFallback] wrap the three provider interfaces the oracle consumes.
//
// A rejected call never burns the caller's timeout budget: breaker-open
// reports immediately and the cognition layer answers with its fallback frame.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls immediately with [ErrCircuitOpen] until the
	// reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through; enough
	// successes close the breaker, any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker]. Zero-value
// fields are replaced with sensible defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and health reports.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing again.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls permitted in the half-open
	// state; that many successes close the breaker. Default: 3.
	HalfOpenMax int

	// Logger for state transitions. Defaults to slog.Default.
	Logger *slog.Logger

	// Now is the clock used for reset timing. Defaults to time.Now.
	Now func() time.Time
}

func (c *CircuitBreakerConfig) setDefaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Stats is a point-in-time view of a breaker for health reporting.
type Stats struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Opens               uint64 `json:"opens"`
	Rejections          uint64 `json:"rejections"`
}

// CircuitBreaker implements the three-state breaker pattern. It is safe for
// concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	log          *slog.Logger
	now          func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
	opens           uint64
	rejections      uint64
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg.setDefaults()
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		log:          cfg.Logger.With("component", "breaker", "breaker", cfg.Name),
		now:          cfg.Now,
		state:        StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn; in the half-open state a limited number
// of probes pass through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	inHalfOpen, err := cb.allow()
	if err != nil {
		return err
	}
	err = fn()
	cb.observe(inHalfOpen, err)
	return err
}

// allow decides whether a call may proceed and reports whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) allow() (inHalfOpen bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.rejections++
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.halfOpenFails = 0
		cb.log.Info("circuit breaker probing", "state", cb.state.String())

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.rejections++
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.halfOpenCalls++
		return true, nil
	}
	return false, nil
}

// observe records the outcome of a permitted call.
func (cb *CircuitBreaker) observe(inHalfOpen bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.lastFailure = cb.now()
		if inHalfOpen {
			cb.halfOpenFails++
			cb.state = StateOpen
			cb.opens++
			cb.consecutiveFail = cb.maxFailures
			cb.log.Warn("circuit breaker re-opened", "error", err)
			return
		}
		cb.consecutiveFail++
		if cb.consecutiveFail >= cb.maxFailures {
			cb.state = StateOpen
			cb.opens++
			cb.log.Warn("circuit breaker opened",
				"consecutive_failures", cb.consecutiveFail)
		}
		return
	}

	if inHalfOpen {
		if cb.halfOpenCalls-cb.halfOpenFails >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			cb.halfOpenCalls = 0
			cb.halfOpenFails = 0
			cb.log.Info("circuit breaker closed after successful probes")
		}
		return
	}
	cb.consecutiveFail = 0
}

// State returns the breaker's current [State]. An open breaker whose reset
// timeout has elapsed reports [StateHalfOpen]; the transition itself happens
// on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	state := cb.state
	if state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.resetTimeout {
		state = StateHalfOpen
	}
	return Stats{
		Name:                cb.name,
		State:               state.String(),
		ConsecutiveFailures: cb.consecutiveFail,
		Opens:               cb.opens,
		Rejections:          cb.rejections,
	}
}

// Reset forces the breaker back to [StateClosed], clearing failure counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenFails = 0
	cb.log.Info("circuit breaker manually reset")
}
