// Package oracle is the model boundary of the simulation. Every provider
// call the service makes (LLM cognition, speech synthesis, transcription)
// goes through an [Oracle]; no other component performs provider I/O.
//
// Cognition never fails from the caller's point of view: [Oracle.Cognize]
// returns a [CognizeOutcome] that is either the validated model frame or a
// mood-derived fallback, and callers branch on the outcome tag. Each provider
// sits behind its own circuit breaker, so a dead backend is rejected
// immediately instead of burning the caller's timeout budget on every call.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/resilience"
	"github.com/solmae/animus/pkg/audio"
	"github.com/solmae/animus/pkg/provider/llm"
	"github.com/solmae/animus/pkg/provider/stt"
	"github.com/solmae/animus/pkg/provider/tts"
	"github.com/solmae/animus/pkg/types"
)

const (
	defaultCognizeTimeout    = 15 * time.Second
	defaultSynthesizeTimeout = 30 * time.Second
	defaultTranscribeTimeout = 20 * time.Second
	defaultTemperature       = 0.7
	defaultMaxTokens         = 1024
)

// Config assembles an [Oracle]. LLM is required; TTS and STT are optional and
// their operations report a configuration fault when absent. Zero-value
// fields are replaced with defaults.
type Config struct {
	// LLM handles cognition. Wrap it in a [resilience.LLMFallback] to fail
	// over between backends.
	LLM llm.Provider

	// TTS handles speech synthesis. Optional.
	TTS tts.Provider

	// STT handles transcription. Optional.
	STT stt.Provider

	// Logger for provider failures. Defaults to slog.Default.
	Logger *slog.Logger

	// CognizeTimeout bounds one cognition call. Default: 15s.
	CognizeTimeout time.Duration

	// SynthesizeTimeout bounds one synthesis stream end to end. Default: 30s.
	SynthesizeTimeout time.Duration

	// TranscribeTimeout bounds one transcription call. Default: 20s.
	TranscribeTimeout time.Duration

	// Breaker is the template for the three per-provider circuit breakers.
	// Name and Logger are overridden per provider.
	Breaker resilience.CircuitBreakerConfig

	// Temperature for cognition completions. Default: 0.7.
	Temperature float64

	// MaxTokens for cognition completions. Default: 1024.
	MaxTokens int
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.CognizeTimeout <= 0 {
		c.CognizeTimeout = defaultCognizeTimeout
	}
	if c.SynthesizeTimeout <= 0 {
		c.SynthesizeTimeout = defaultSynthesizeTimeout
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = defaultTranscribeTimeout
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
}

// Oracle mediates all provider I/O. It is safe for concurrent use.
type Oracle struct {
	llm llm.Provider
	tts tts.Provider
	stt stt.Provider
	log *slog.Logger

	cognizeTimeout    time.Duration
	synthesizeTimeout time.Duration
	transcribeTimeout time.Duration
	temperature       float64
	maxTokens         int

	llmBreaker *resilience.CircuitBreaker
	ttsBreaker *resilience.CircuitBreaker
	sttBreaker *resilience.CircuitBreaker
}

// New creates an [Oracle] from cfg.
func New(cfg Config) (*Oracle, error) {
	if cfg.LLM == nil {
		return nil, errors.New("oracle: LLM provider must not be nil")
	}
	cfg.setDefaults()

	breaker := func(name string) *resilience.CircuitBreaker {
		bcfg := cfg.Breaker
		bcfg.Name = name
		bcfg.Logger = cfg.Logger
		return resilience.NewCircuitBreaker(bcfg)
	}

	return &Oracle{
		llm:               cfg.LLM,
		tts:               cfg.TTS,
		stt:               cfg.STT,
		log:               cfg.Logger.With("component", "oracle"),
		cognizeTimeout:    cfg.CognizeTimeout,
		synthesizeTimeout: cfg.SynthesizeTimeout,
		transcribeTimeout: cfg.TranscribeTimeout,
		temperature:       cfg.Temperature,
		maxTokens:         cfg.MaxTokens,
		llmBreaker:        breaker("oracle-llm"),
		ttsBreaker:        breaker("oracle-tts"),
		sttBreaker:        breaker("oracle-stt"),
	}, nil
}

// ─── Cognition ────────────────────────────────────────────────────────────────

// CognizeRequest carries one cognition pass: the persona and situation blocks
// assembled by the caller plus the agent state the oracle needs for fallback
// frames and survival overrides.
type CognizeRequest struct {
	// AgentID attributes log lines. Not sent to the provider.
	AgentID string

	// System is the persona block. The oracle appends the frame format
	// instructions.
	System string

	// Prompt is the situation block sent as the user message.
	Prompt string

	// Mood seeds the fallback frame when cognition fails.
	Mood types.Mood

	// Vitals drive the survival overrides on validated frames.
	Vitals types.Vitals
}

// Cognize runs one cognition pass. The returned outcome always carries a
// usable frame: validated model output on success, the mood-derived fallback
// on timeout, malformed output, open breaker or provider failure.
func (o *Oracle) Cognize(ctx context.Context, req CognizeRequest) CognizeOutcome {
	cctx, cancel := context.WithTimeout(ctx, o.cognizeTimeout)
	defer cancel()

	creq := llm.CompletionRequest{
		SystemPrompt: req.System + "\n\n" + frameInstructions,
		Messages:     []llm.Message{{Role: "user", Content: req.Prompt}},
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
	}

	var resp *llm.CompletionResponse
	err := o.llmBreaker.Execute(func() error {
		var callErr error
		resp, callErr = o.llm.Complete(cctx, creq)
		return callErr
	})

	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		o.log.Warn("cognition rejected, breaker open", "agent", req.AgentID)
		return Fallback(FallbackBreakerOpen, FallbackFrame(req.Mood), err)
	case errors.Is(err, context.DeadlineExceeded) || cctx.Err() != nil:
		o.log.Warn("cognition timed out",
			"agent", req.AgentID, "timeout", o.cognizeTimeout)
		return Fallback(FallbackTimeout, FallbackFrame(req.Mood),
			fault.Wrap(fault.OracleTimeout, "oracle: cognize", err))
	default:
		o.log.Warn("cognition provider error", "agent", req.AgentID, "error", err)
		return Fallback(FallbackProvider, FallbackFrame(req.Mood), err)
	}

	if resp == nil || resp.Content == "" {
		o.log.Warn("cognition returned empty completion", "agent", req.AgentID)
		return Fallback(FallbackMalformed, FallbackFrame(req.Mood),
			fault.New(fault.OracleMalformed, "oracle: empty completion"))
	}

	frame, err := parseFrame(resp.Content)
	if err != nil {
		o.log.Warn("cognition reply malformed", "agent", req.AgentID, "error", err)
		return Fallback(FallbackMalformed, FallbackFrame(req.Mood),
			fault.Wrap(fault.OracleMalformed, "oracle: cognize", err))
	}

	frame = sanitizeFrame(frame)
	frame = applySurvivalOverrides(frame, req.Vitals)
	return Ok(frame)
}

// ─── Speech ──────────────────────────────────────────────────────────────────

// Synthesize converts text to a stream of audio chunks no larger than
// [audio.DefaultChunkBytes]. The whole stream shares one synthesis budget;
// when it runs out the stream ends early rather than blocking.
func (o *Oracle) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	if o.tts == nil {
		return nil, fault.New(fault.InvalidArgument, "oracle: no speech synthesis provider configured")
	}

	sctx, cancel := context.WithTimeout(ctx, o.synthesizeTimeout)

	var ch <-chan []byte
	err := o.ttsBreaker.Execute(func() error {
		var callErr error
		ch, callErr = o.tts.Synthesize(sctx, text, voice)
		return callErr
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("oracle: synthesize: %w", err)
	}

	out := make(chan []byte, 4)
	go func() {
		defer cancel()
		defer close(out)
		for chunk := range ch {
			for _, piece := range audio.Split(chunk, audio.DefaultChunkBytes) {
				select {
				case out <- piece:
				case <-sctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Transcribe converts an audio clip to text.
func (o *Oracle) Transcribe(ctx context.Context, clip stt.Clip) (*stt.Transcript, error) {
	if o.stt == nil {
		return nil, fault.New(fault.InvalidArgument, "oracle: no transcription provider configured")
	}

	tctx, cancel := context.WithTimeout(ctx, o.transcribeTimeout)
	defer cancel()

	var tr *stt.Transcript
	err := o.sttBreaker.Execute(func() error {
		var callErr error
		tr, callErr = o.stt.Transcribe(tctx, clip)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: transcribe: %w", err)
	}
	return tr, nil
}

// BreakerStats reports the three provider breakers for health reporting.
func (o *Oracle) BreakerStats() []resilience.Stats {
	return []resilience.Stats{
		o.llmBreaker.Stats(),
		o.ttsBreaker.Stats(),
		o.sttBreaker.Stats(),
	}
}
