// Package openai provides an OpenAI Whisper-backed STT provider using the
// official openai-go SDK. It implements the stt.Provider interface.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/solmae/animus/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// config holds construction-time settings for the Provider.
type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for configuring the Provider.
type Option func(*config)

// WithModel overrides the transcription model (default "whisper-1").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the API base URL, e.g. for an OpenAI-compatible
// local server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets the HTTP client timeout for transcription requests.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements stt.Provider backed by the OpenAI audio transcription API.
type Provider struct {
	client oai.Client
	model  string
}

// New creates a new OpenAI STT Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := config{model: string(oai.AudioModelWhisper1)}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Transcribe implements stt.Provider. The clip is uploaded as a single file;
// Whisper does not report per-utterance confidence, so Confidence is left 0.
func (p *Provider) Transcribe(ctx context.Context, clip stt.Clip) (*stt.Transcript, error) {
	if len(clip.Data) == 0 {
		return nil, fmt.Errorf("openai: clip data must not be empty")
	}

	mime := clip.MIMEType
	if mime == "" {
		mime = "audio/wav"
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  oai.File(bytes.NewReader(clip.Data), fileNameFor(mime), mime),
	}
	if clip.Language != "" {
		params.Language = param.NewOpt(clip.Language)
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: transcribe: %w", err)
	}

	return &stt.Transcript{
		Text:     res.Text,
		Language: clip.Language,
	}, nil
}

// fileNameFor derives an upload filename from the clip MIME type. The OpenAI
// API infers the container format from the filename extension.
func fileNameFor(mime string) string {
	switch mime {
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/ogg":
		return "audio.ogg"
	case "audio/webm":
		return "audio.webm"
	case "audio/flac":
		return "audio.flac"
	case "audio/mp4", "audio/m4a":
		return "audio.m4a"
	default:
		return "audio.wav"
	}
}
