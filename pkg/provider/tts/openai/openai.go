// Package openai provides a TTS provider backed by the OpenAI audio API.
//
// Synthesis is request/response: the full clip is requested from the API and
// re-emitted as bounded chunks, so gateway consumers see the same frame shape
// regardless of backend.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/solmae/animus/pkg/audio"
	"github.com/solmae/animus/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const defaultModel = "tts-1"

// knownVoices is the fixed voice catalogue of the OpenAI audio API.
var knownVoices = []tts.VoiceInfo{
	{ID: "alloy", Name: "Alloy", Provider: "openai"},
	{ID: "ash", Name: "Ash", Provider: "openai"},
	{ID: "coral", Name: "Coral", Provider: "openai"},
	{ID: "echo", Name: "Echo", Provider: "openai"},
	{ID: "fable", Name: "Fable", Provider: "openai"},
	{ID: "nova", Name: "Nova", Provider: "openai"},
	{ID: "onyx", Name: "Onyx", Provider: "openai"},
	{ID: "sage", Name: "Sage", Provider: "openai"},
	{ID: "shimmer", Name: "Shimmer", Provider: "openai"},
}

// config holds optional configuration for the provider.
type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel sets the speech model (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements tts.Provider using the OpenAI audio API.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
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

// Synthesize implements tts.Provider. The OpenAI backend honors the voice ID
// and speed; stability, similarity and style have no API equivalent and are
// ignored.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	if text == "" {
		return nil, fmt.Errorf("openai: text must not be empty")
	}
	if voice.ID == "" {
		voice.ID = "alloy"
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice.ID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if voice.Speed > 0 {
		params.Speed = param.NewOpt(voice.Speed)
	}

	res, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", err)
	}

	return audio.ChunkReader(res.Body, tts.MaxChunkBytes), nil
}

// ListVoices implements tts.Provider. The OpenAI catalogue is static.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceInfo, error) {
	out := make([]tts.VoiceInfo, len(knownVoices))
	copy(out, knownVoices)
	return out, nil
}
