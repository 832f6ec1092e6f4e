package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has
// an open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup]. Zero-value fields are replaced
// with defaults.
type FallbackConfig struct {
	// CircuitBreaker is the template for the per-entry breakers. Its Name is
	// overridden with each entry's name.
	CircuitBreaker CircuitBreakerConfig

	// Logger for failover decisions, shared with the per-entry breakers.
	// Defaults to slog.Default.
	Logger *slog.Logger

	// Now is the clock shared by all per-entry breakers. Defaults to time.Now.
	Now func() time.Time
}

func (c *FallbackConfig) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

func newFallbackEntry[T any](value T, name string, cfg FallbackConfig) fallbackEntry[T] {
	bcfg := cfg.CircuitBreaker
	bcfg.Name = name
	bcfg.Logger = cfg.Logger
	bcfg.Now = cfg.Now
	return fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(bcfg),
	}
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type. When the primary fails (or its circuit breaker is open),
// the next healthy fallback is tried in registration order.
//
// FallbackGroup is safe for concurrent use once all fallbacks are registered.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	log     *slog.Logger
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	cfg.setDefaults()
	return &FallbackGroup[T]{
		entries: []fallbackEntry[T]{newFallbackEntry(primary, primaryName, cfg)},
		log:     cfg.Logger.With("component", "fallback-group"),
		cfg:     cfg,
	}
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order
// they are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.entries = append(fg.entries, newFallbackEntry(fallback, name, fg.cfg))
}

// Execute tries fn against each entry in order until one succeeds.
// Circuit-breaker-open entries are skipped without calling fn. Returns
// [ErrAllFailed] wrapped with the last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	var lastErr error
	for i := range fg.entries {
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			fg.log.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			fg.log.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Names returns the entry names in registration order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i := range fg.entries {
		names[i] = fg.entries[i].name
	}
	return names
}

// BreakerStates reports the current breaker [State] per entry, keyed by entry
// name. Health reporting surfaces this map.
func (fg *FallbackGroup[T]) BreakerStates() map[string]State {
	states := make(map[string]State, len(fg.entries))
	for i := range fg.entries {
		states[fg.entries[i].name] = fg.entries[i].breaker.State()
	}
	return states
}

// BreakerStats reports per-entry breaker counters in registration order.
func (fg *FallbackGroup[T]) BreakerStats() []Stats {
	stats := make([]Stats, len(fg.entries))
	for i := range fg.entries {
		stats[i] = fg.entries[i].breaker.Stats()
	}
	return stats
}

// ExecuteWithResult tries fn against each entry in the group until one
// succeeds, returning both the result value and error. This is a package-level
// function because Go does not support method-level type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var result R
	err := fg.Execute(func(v T) error {
		r, innerErr := fn(v)
		if innerErr != nil {
			return innerErr
		}
		result = r
		return nil
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
