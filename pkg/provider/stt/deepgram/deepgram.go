// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// prerecorded audio API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/solmae/animus/pkg/provider/stt"
)

const (
	listenEndpoint  = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code for recognition
// (e.g., "en", "de-DE"). A per-clip language overrides it.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithTimeout sets the HTTP client timeout for transcription requests.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements stt.Provider backed by the Deepgram prerecorded API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The clip is submitted as one request
// and the first alternative of the first channel is returned.
func (p *Provider) Transcribe(ctx context.Context, clip stt.Clip) (*stt.Transcript, error) {
	if len(clip.Data) == 0 {
		return nil, errors.New("deepgram: clip data must not be empty")
	}

	reqURL, err := p.buildURL(clip.Language)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(clip.Data))
	if err != nil {
		return nil, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	mime := clip.MIMEType
	if mime == "" {
		mime = "audio/wav"
	}
	req.Header.Set("Content-Type", mime)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: transcribe HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram: transcribe: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response: %w", err)
	}

	t, ok := parseListenResponse(body)
	if !ok {
		return nil, errors.New("deepgram: response contained no transcript")
	}
	if t.Language == "" {
		t.Language = clip.Language
	}
	return &t, nil
}

// buildURL constructs the Deepgram prerecorded endpoint URL.
func (p *Provider) buildURL(language string) (string, error) {
	u, err := url.Parse(listenEndpoint)
	if err != nil {
		return "", err
	}

	lang := language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// listenResponse is the JSON structure returned by the prerecorded endpoint.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
			DetectedLanguage string `json:"detected_language"`
		} `json:"channels"`
	} `json:"results"`
}

// parseListenResponse parses a raw Deepgram response body into a Transcript.
// Returns (Transcript, true) on success, or (zero, false) if the response
// holds no usable alternative.
func parseListenResponse(data []byte) (stt.Transcript, bool) {
	var resp listenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if len(resp.Results.Channels) == 0 {
		return stt.Transcript{}, false
	}
	ch := resp.Results.Channels[0]
	if len(ch.Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := ch.Alternatives[0]
	return stt.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Language:   ch.DetectedLanguage,
	}, true
}
