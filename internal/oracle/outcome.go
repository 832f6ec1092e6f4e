package oracle

import "github.com/solmae/animus/pkg/types"

// FallbackReason names why a cognition pass substituted a fallback frame.
type FallbackReason string

const (
	// FallbackTimeout means the provider exceeded the cognition deadline.
	FallbackTimeout FallbackReason = "timeout"

	// FallbackMalformed means the reply failed schema validation or did not
	// decode.
	FallbackMalformed FallbackReason = "malformed"

	// FallbackBreakerOpen means the provider's circuit breaker rejected the
	// call before any I/O happened.
	FallbackBreakerOpen FallbackReason = "breaker_open"

	// FallbackProvider covers every other provider failure.
	FallbackProvider FallbackReason = "provider_error"
)

// CognizeOutcome is the two-case result of a cognition pass: either the model
// produced a valid frame (Ok) or the oracle substituted the mood-derived
// fallback (Fallback). Callers branch on [CognizeOutcome.IsFallback], never on
// sentinel values inside the frame. Both cases carry a usable frame, so a
// cognition call never fails from the caller's point of view.
type CognizeOutcome struct {
	frame    types.CognitiveFrame
	fallback bool
	reason   FallbackReason
	err      error
}

// Ok wraps a frame the model produced and the oracle validated.
func Ok(frame types.CognitiveFrame) CognizeOutcome {
	return CognizeOutcome{frame: frame}
}

// Fallback wraps a substitute frame together with the reason and the
// underlying error, which may be nil.
func Fallback(reason FallbackReason, frame types.CognitiveFrame, err error) CognizeOutcome {
	return CognizeOutcome{frame: frame, fallback: true, reason: reason, err: err}
}

// Frame returns the cognitive frame. For fallback outcomes this is the
// substitute; it is always safe to act on.
func (o CognizeOutcome) Frame() types.CognitiveFrame {
	return o.frame
}

// IsFallback reports whether the frame is a substitute rather than validated
// model output. Fallback frames carry no trust or reputation effects.
func (o CognizeOutcome) IsFallback() bool {
	return o.fallback
}

// Reason returns the fallback cause, or the empty string for Ok outcomes.
func (o CognizeOutcome) Reason() FallbackReason {
	return o.reason
}

// Err returns the provider or validation error behind a fallback outcome,
// or nil.
func (o CognizeOutcome) Err() error {
	return o.err
}
