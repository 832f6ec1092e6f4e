package config

import (
	"errors"
	"testing"

	"github.com/solmae/animus/pkg/provider/llm"
	llmmock "github.com/solmae/animus/pkg/provider/llm/mock"
	"github.com/solmae/animus/pkg/provider/tts"
	ttsmock "github.com/solmae/animus/pkg/provider/tts/mock"
)

func TestRegistryCreateLLM(t *testing.T) {
	reg := NewRegistry()

	var gotEntry ProviderEntry
	reg.RegisterLLM("mock", func(e ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return &llmmock.Provider{}, nil
	})

	p, err := reg.CreateLLM(ProviderEntry{Name: "mock", Model: "test-model"})
	if err != nil {
		t.Fatalf("CreateLLM() error = %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM() returned nil provider")
	}
	if gotEntry.Model != "test-model" {
		t.Errorf("factory received Model = %q, want %q", gotEntry.Model, "test-model")
	}
}

func TestRegistryCreateUnregistered(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterTTS("mock", func(ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	if _, err := reg.CreateLLM(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM(nope) error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTTS(ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateTTS(mock) error = %v, want nil", err)
	}
	if _, err := reg.CreateSTT(ProviderEntry{Name: "mock"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateSTT(mock) error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	reg := NewRegistry()

	reg.RegisterLLM("dup", func(ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("first")
	})
	reg.RegisterLLM("dup", func(ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	if _, err := reg.CreateLLM(ProviderEntry{Name: "dup"}); err != nil {
		t.Errorf("CreateLLM(dup) error = %v, want the second registration to win", err)
	}
}
