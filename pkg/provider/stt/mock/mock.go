// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to return a controlled Transcript and to verify which clips
// were submitted for transcription.
//
// Example:
//
//	p := &mock.Provider{
//	    TranscribeResult: &stt.Transcript{Text: "hello there"},
//	}
//	tr, _ := p.Transcribe(ctx, clip)
package mock

import (
	"context"
	"sync"

	"github.com/solmae/animus/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Clip is the clip passed to Transcribe.
	Clip stt.Clip
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// TranscribeResult is returned by Transcribe when TranscribeErr is nil.
	// If nil, Transcribe returns an empty Transcript.
	TranscribeResult *stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFunc, if non-nil, overrides the canned response entirely.
	// Useful for simulating latency or context cancellation.
	TranscribeFunc func(ctx context.Context, clip stt.Clip) (*stt.Transcript, error)

	// --- Call records ---

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, clip stt.Clip) (*stt.Transcript, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Clip: clip})
	fn := p.TranscribeFunc
	result := p.TranscribeResult
	err := p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, clip)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &stt.Transcript{}, nil
	}
	out := *result
	return &out, nil
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
