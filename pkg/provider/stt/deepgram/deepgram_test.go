package deepgram

import (
	"context"
	"net/url"
	"testing"

	"github.com/solmae/animus/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL("")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
}

func TestBuildURL_CustomModel(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("de-DE"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL("")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
}

func TestBuildURL_ClipLanguageWins(t *testing.T) {
	// The per-clip language should take precedence over the provider default.
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL("fr-FR")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
}

// ---- Response parsing tests ----

func TestParseListenResponse_Success(t *testing.T) {
	raw := []byte(`{
		"results": {
			"channels": [
				{
					"alternatives": [
						{"transcript": "Hello traveler, what brings you here?", "confidence": 0.97}
					],
					"detected_language": "en"
				}
			]
		}
	}`)

	tr, ok := parseListenResponse(raw)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if tr.Text != "Hello traveler, what brings you here?" {
		t.Errorf("unexpected text: %q", tr.Text)
	}
	if tr.Confidence != 0.97 {
		t.Errorf("expected confidence 0.97, got %f", tr.Confidence)
	}
	if tr.Language != "en" {
		t.Errorf("expected language en, got %q", tr.Language)
	}
}

func TestParseListenResponse_FirstAlternativeWins(t *testing.T) {
	raw := []byte(`{
		"results": {
			"channels": [
				{
					"alternatives": [
						{"transcript": "first", "confidence": 0.9},
						{"transcript": "second", "confidence": 0.5}
					]
				}
			]
		}
	}`)

	tr, ok := parseListenResponse(raw)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	assertEqual(t, "transcript", "first", tr.Text)
}

func TestParseListenResponse_NoChannels(t *testing.T) {
	raw := []byte(`{"results": {"channels": []}}`)
	if _, ok := parseListenResponse(raw); ok {
		t.Error("expected parse to fail for empty channels")
	}
}

func TestParseListenResponse_NoAlternatives(t *testing.T) {
	raw := []byte(`{"results": {"channels": [{"alternatives": []}]}}`)
	if _, ok := parseListenResponse(raw); ok {
		t.Error("expected parse to fail for empty alternatives")
	}
}

func TestParseListenResponse_InvalidJSON(t *testing.T) {
	if _, ok := parseListenResponse([]byte(`{invalid`)); ok {
		t.Error("expected parse to fail for invalid JSON")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestTranscribe_EmptyClip(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Clip{}); err == nil {
		t.Error("expected error for empty clip data")
	}
}

// assertEqual is a tiny helper to keep the query-param assertions readable.
func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %q, got %q", field, want, got)
	}
}
