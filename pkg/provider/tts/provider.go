// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI audio or
// ElevenLabs) and presents a uniform chunked interface: one text in, a stream
// of encoded audio chunks out. Chunk size is capped so that gateway clients
// can relay frames without buffering whole clips; see [MaxChunkBytes].
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel (e.g., several agent voices at once).
package tts

import "context"

// MaxChunkBytes is the upper bound on a single audio chunk emitted by
// Synthesize. Providers must never emit a larger chunk; the gateway forwards
// chunks verbatim and relies on this cap.
const MaxChunkBytes = 16 * 1024

// Voice selects a backend voice and carries the personality-derived delivery
// settings. Backends honor the subset of settings they support and ignore the
// rest.
type Voice struct {
	// ID is the provider-specific voice identifier (e.g., "alloy").
	ID string

	// Speed is the speaking-rate multiplier; 1.0 is neutral.
	Speed float64

	// Stability shifts delivery between erratic (low) and steady (high),
	// on the provider's native scale around 0.5.
	Stability float64

	// Similarity controls adherence to the base voice timbre.
	Similarity float64

	// Style is the expressiveness exaggeration applied to the base voice.
	Style float64
}

// VoiceInfo describes one voice available from a provider.
type VoiceInfo struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which backend this voice belongs to.
	Provider string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text in the given voice and returns a channel that
	// emits encoded audio chunks of at most [MaxChunkBytes] bytes, in order.
	// The channel is closed by the implementation when synthesis completes
	// or ctx is cancelled; callers must drain it to avoid goroutine leaks.
	//
	// Returns a non-nil error only if synthesis cannot be started. Errors
	// during synthesis are signalled by closing the channel early; callers
	// should check ctx.Err() to distinguish cancellation.
	Synthesize(ctx context.Context, text string, voice Voice) (<-chan []byte, error)

	// ListVoices returns all voices available from this provider.
	ListVoices(ctx context.Context) ([]VoiceInfo, error)
}
