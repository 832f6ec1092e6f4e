// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., OpenAI Whisper or
// Deepgram) and exposes a uniform one-shot interface: the caller records a
// complete utterance, submits it as a Clip, and receives the recognized text.
// Player speech arrives as discrete clips over the gateway, so there is no
// streaming session surface here.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Clip is a single recorded utterance submitted for transcription.
type Clip struct {
	// Data is the raw encoded audio (WAV, MP3, OGG, or WebM depending on
	// what the backend accepts).
	Data []byte

	// MIMEType describes the encoding of Data (e.g., "audio/wav").
	// Empty defaults to "audio/wav".
	MIMEType string

	// Language is an optional BCP-47 hint (e.g., "en", "de-DE"). Empty lets
	// the backend auto-detect where supported.
	Language string
}

// Transcript is the recognition result for one Clip.
type Transcript struct {
	// Text is the recognized speech.
	Text string

	// Confidence is the backend's confidence in [0.0, 1.0], or 0 when the
	// backend does not report one.
	Confidence float64

	// Language is the detected or assumed language, when reported.
	Language string
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple players may
// submit clips simultaneously.
type Provider interface {
	// Transcribe submits a complete audio clip and blocks until the backend
	// returns the recognized text or ctx is cancelled.
	Transcribe(ctx context.Context, clip Clip) (*Transcript, error)
}
