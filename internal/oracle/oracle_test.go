package oracle

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/resilience"
	"github.com/solmae/animus/pkg/audio"
	"github.com/solmae/animus/pkg/provider/llm"
	llmmock "github.com/solmae/animus/pkg/provider/llm/mock"
	"github.com/solmae/animus/pkg/provider/stt"
	sttmock "github.com/solmae/animus/pkg/provider/stt/mock"
	"github.com/solmae/animus/pkg/provider/tts"
	ttsmock "github.com/solmae/animus/pkg/provider/tts/mock"
	"github.com/solmae/animus/pkg/types"
)

func newTestOracle(t *testing.T, cfg Config) *Oracle {
	t.Helper()
	if cfg.LLM == nil {
		cfg.LLM = &llmmock.Provider{}
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNew_RequiresLLM(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for nil LLM provider")
	}
}

func TestCognize_ValidReply(t *testing.T) {
	mockLLM := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: validFrameJSON},
	}
	o := newTestOracle(t, Config{LLM: mockLLM})

	out := o.Cognize(context.Background(), CognizeRequest{
		AgentID: "npc-1",
		System:  "You are Garrett, a gatekeeper.",
		Prompt:  "A stranger approaches.",
	})

	if out.IsFallback() {
		t.Fatalf("unexpected fallback: reason %q err %v", out.Reason(), out.Err())
	}
	frame := out.Frame()
	if frame.Intent != types.IntentInvestigate {
		t.Errorf("intent = %q, want Investigate", frame.Intent)
	}
	if frame.Dialogue != "State your business." {
		t.Errorf("dialogue = %q", frame.Dialogue)
	}
	if out.Reason() != "" {
		t.Errorf("reason = %q, want empty for ok outcome", out.Reason())
	}
	if out.Err() != nil {
		t.Errorf("err = %v, want nil", out.Err())
	}
}

func TestCognize_AppendsFrameInstructions(t *testing.T) {
	mockLLM := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: validFrameJSON},
	}
	o := newTestOracle(t, Config{LLM: mockLLM})

	o.Cognize(context.Background(), CognizeRequest{
		System: "You are Garrett.",
		Prompt: "A stranger approaches.",
	})

	if len(mockLLM.CompleteCalls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(mockLLM.CompleteCalls))
	}
	req := mockLLM.CompleteCalls[0].Req
	if !strings.HasPrefix(req.SystemPrompt, "You are Garrett.") {
		t.Errorf("system prompt does not start with the persona block: %q", req.SystemPrompt)
	}
	if !strings.Contains(req.SystemPrompt, "CRITICAL INSTRUCTIONS") {
		t.Error("system prompt missing frame instructions")
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "A stranger approaches." {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestCognize_MalformedReply(t *testing.T) {
	mockLLM := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "I shall guard the gate, as always."},
	}
	o := newTestOracle(t, Config{LLM: mockLLM})

	out := o.Cognize(context.Background(), CognizeRequest{
		Mood: types.Mood{Label: "calm"},
	})

	if !out.IsFallback() {
		t.Fatal("expected fallback outcome")
	}
	if out.Reason() != FallbackMalformed {
		t.Errorf("reason = %q, want malformed", out.Reason())
	}
	if !fault.Is(out.Err(), fault.OracleMalformed) {
		t.Errorf("err = %v, want OracleMalformed kind", out.Err())
	}
	frame := out.Frame()
	if frame.Dialogue != "..." || frame.Intent != types.IntentGuard {
		t.Errorf("fallback frame = %+v", frame)
	}
	if frame.MoodShift.Label != "calm" {
		t.Errorf("fallback mood label = %q, want calm", frame.MoodShift.Label)
	}
}

func TestCognize_SchemaRejectsUnknownIntent(t *testing.T) {
	mockLLM := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"reflection": "x", "dialogue": "y", "intent": "Dance", "urgency": 0.5}`,
		},
	}
	o := newTestOracle(t, Config{LLM: mockLLM})

	out := o.Cognize(context.Background(), CognizeRequest{})
	if !out.IsFallback() || out.Reason() != FallbackMalformed {
		t.Fatalf("outcome = fallback %v reason %q, want malformed fallback",
			out.IsFallback(), out.Reason())
	}
}

func TestCognize_EmptyCompletion(t *testing.T) {
	o := newTestOracle(t, Config{LLM: &llmmock.Provider{}})

	out := o.Cognize(context.Background(), CognizeRequest{})
	if !out.IsFallback() || out.Reason() != FallbackMalformed {
		t.Fatalf("outcome = fallback %v reason %q, want malformed fallback",
			out.IsFallback(), out.Reason())
	}
}

func TestCognize_ProviderError(t *testing.T) {
	mockLLM := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	o := newTestOracle(t, Config{LLM: mockLLM})

	out := o.Cognize(context.Background(), CognizeRequest{})
	if !out.IsFallback() {
		t.Fatal("expected fallback outcome")
	}
	if out.Reason() != FallbackProvider {
		t.Errorf("reason = %q, want provider_error", out.Reason())
	}
}

func TestCognize_Timeout(t *testing.T) {
	mockLLM := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := newTestOracle(t, Config{
		LLM:            mockLLM,
		CognizeTimeout: 20 * time.Millisecond,
	})

	out := o.Cognize(context.Background(), CognizeRequest{Mood: types.Mood{Label: "tense"}})

	if !out.IsFallback() {
		t.Fatal("expected fallback outcome")
	}
	if out.Reason() != FallbackTimeout {
		t.Errorf("reason = %q, want timeout", out.Reason())
	}
	if !fault.Is(out.Err(), fault.OracleTimeout) {
		t.Errorf("err = %v, want OracleTimeout kind", out.Err())
	}
	if out.Frame().Dialogue != "..." {
		t.Errorf("fallback dialogue = %q", out.Frame().Dialogue)
	}
}

func TestCognize_BreakerOpenSkipsProvider(t *testing.T) {
	mockLLM := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	o := newTestOracle(t, Config{
		LLM: mockLLM,
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})

	for i := 0; i < 3; i++ {
		out := o.Cognize(context.Background(), CognizeRequest{})
		if !out.IsFallback() {
			t.Fatalf("call %d: expected fallback", i)
		}
	}

	// The third call was rejected by the open breaker without provider I/O.
	if mockLLM.CallCount() != 2 {
		t.Errorf("provider called %d times, want 2", mockLLM.CallCount())
	}
	last := o.Cognize(context.Background(), CognizeRequest{})
	if last.Reason() != FallbackBreakerOpen {
		t.Errorf("reason = %q, want breaker_open", last.Reason())
	}
}

func TestCognize_SurvivalOverrideApplied(t *testing.T) {
	mockLLM := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: validFrameJSON},
	}
	o := newTestOracle(t, Config{LLM: mockLLM})

	out := o.Cognize(context.Background(), CognizeRequest{
		Vitals: types.Vitals{Fatigue: 0.95},
	})

	if out.IsFallback() {
		t.Fatalf("unexpected fallback: %v", out.Err())
	}
	frame := out.Frame()
	if frame.Intent != types.IntentIgnore {
		t.Errorf("intent = %q, want Ignore under critical fatigue", frame.Intent)
	}
	if frame.Dialogue != "I... need to rest..." {
		t.Errorf("dialogue = %q", frame.Dialogue)
	}
}

func TestSynthesize_ChunksCapped(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, audio.DefaultChunkBytes*2+512)
	mockTTS := &ttsmock.Provider{SynthesizeChunks: [][]byte{big}}
	o := newTestOracle(t, Config{TTS: mockTTS})

	ch, err := o.Synthesize(context.Background(), "hello", tts.Voice{ID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []byte
	for chunk := range ch {
		if len(chunk) > audio.DefaultChunkBytes {
			t.Fatalf("chunk of %d bytes exceeds cap %d", len(chunk), audio.DefaultChunkBytes)
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, big) {
		t.Fatalf("reassembled %d bytes, want %d", len(got), len(big))
	}
}

func TestSynthesize_NoProvider(t *testing.T) {
	o := newTestOracle(t, Config{})
	if _, err := o.Synthesize(context.Background(), "hi", tts.Voice{}); !fault.Is(err, fault.InvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestSynthesize_ProviderError(t *testing.T) {
	mockTTS := &ttsmock.Provider{SynthesizeErr: errors.New("voice backend down")}
	o := newTestOracle(t, Config{TTS: mockTTS})

	if _, err := o.Synthesize(context.Background(), "hi", tts.Voice{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestTranscribe(t *testing.T) {
	mockSTT := &sttmock.Provider{
		TranscribeResult: &stt.Transcript{Text: "open the gate", Confidence: 0.92},
	}
	o := newTestOracle(t, Config{STT: mockSTT})

	tr, err := o.Transcribe(context.Background(), stt.Clip{Data: []byte("pcm")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "open the gate" {
		t.Errorf("text = %q", tr.Text)
	}
	if mockSTT.CallCount() != 1 {
		t.Errorf("provider called %d times, want 1", mockSTT.CallCount())
	}
}

func TestTranscribe_NoProvider(t *testing.T) {
	o := newTestOracle(t, Config{})
	if _, err := o.Transcribe(context.Background(), stt.Clip{}); !fault.Is(err, fault.InvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestBreakerStats_NamesAllProviders(t *testing.T) {
	o := newTestOracle(t, Config{})
	stats := o.BreakerStats()
	if len(stats) != 3 {
		t.Fatalf("got %d stats, want 3", len(stats))
	}
	want := map[string]bool{"oracle-llm": true, "oracle-tts": true, "oracle-stt": true}
	for _, s := range stats {
		if !want[s.Name] {
			t.Errorf("unexpected breaker name %q", s.Name)
		}
		if s.State != "closed" {
			t.Errorf("breaker %s state = %q, want closed", s.Name, s.State)
		}
	}
}
