package resilience

import (
	"context"

	"github.com/solmae/animus/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize returns a channel of audio chunks from the first healthy
// provider. Only the initial synthesis setup is covered by failover;
// mid-stream errors are the caller's responsibility.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceInfo, error) {
		return p.ListVoices(ctx)
	})
}

// BreakerStates reports the breaker state of each backend, keyed by name.
func (f *TTSFallback) BreakerStates() map[string]State {
	return f.group.BreakerStates()
}
