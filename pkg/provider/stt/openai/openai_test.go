package openai

import (
	"context"
	"testing"

	"github.com/solmae/animus/pkg/provider/stt"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "whisper-1" {
		t.Errorf("expected model whisper-1, got %q", p.model)
	}
}

func TestNew_WithModel(t *testing.T) {
	p, err := New("sk-test", WithModel("gpt-4o-transcribe"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "gpt-4o-transcribe" {
		t.Errorf("expected model gpt-4o-transcribe, got %q", p.model)
	}
}

func TestTranscribe_EmptyClip(t *testing.T) {
	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Clip{}); err == nil {
		t.Error("expected error for empty clip data")
	}
}

func TestFileNameFor(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"audio/wav", "audio.wav"},
		{"audio/mpeg", "audio.mp3"},
		{"audio/mp3", "audio.mp3"},
		{"audio/ogg", "audio.ogg"},
		{"audio/webm", "audio.webm"},
		{"audio/flac", "audio.flac"},
		{"audio/m4a", "audio.m4a"},
		{"application/octet-stream", "audio.wav"},
		{"", "audio.wav"},
	}
	for _, tc := range tests {
		if got := fileNameFor(tc.mime); got != tc.want {
			t.Errorf("fileNameFor(%q) = %q, want %q", tc.mime, got, tc.want)
		}
	}
}
