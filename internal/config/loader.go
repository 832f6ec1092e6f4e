package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "elevenlabs"},
	"stt": {"openai", "deepgram"},
}

// knownRoles lists the generator archetypes, for seed-NPC validation.
var knownRoles = []string{"gatekeeper", "guard", "merchant", "civilian", "scholar", "warrior"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands secrets and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets resolves ${VAR} references in provider API keys so keys can
// live in the environment rather than the config file.
func expandSecrets(cfg *Config) {
	expandEntry(&cfg.Providers.LLM)
	expandEntry(&cfg.Providers.TTS)
	expandEntry(&cfg.Providers.STT)
}

func expandEntry(e *ProviderEntry) {
	e.APIKey = os.ExpandEnv(e.APIKey)
	for i := range e.Fallbacks {
		expandEntry(&e.Fallbacks[i])
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if rl := cfg.Server.RateLimit; rl.PerSecond < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit.per_second %.2f must not be negative", rl.PerSecond))
	}

	// World
	if w := cfg.World; w.TimeScale != 0 && (w.TimeScale < 0.1 || w.TimeScale > 100) {
		errs = append(errs, fmt.Errorf("world.time_scale %.2f is out of range [0.1, 100]", w.TimeScale))
	}
	if w := cfg.World; w.TickIntervalSeconds != 0 && (w.TickIntervalSeconds < 10 || w.TickIntervalSeconds > 300) {
		errs = append(errs, fmt.Errorf("world.tick_interval_seconds %d is out of range [10, 300]", w.TickIntervalSeconds))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM)
	validateProviderName("tts", cfg.Providers.TTS)
	validateProviderName("stt", cfg.Providers.STT)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; cognition will answer with fallback frames only")
	}

	// NPC duplicate name detection
	npcNamesSeen := make(map[string]int, len(cfg.NPCs))

	// Seed NPCs
	for i, npc := range cfg.NPCs {
		prefix := fmt.Sprintf("npcs[%d]", i)
		if npc.Name != "" {
			if prev, ok := npcNamesSeen[npc.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of npcs[%d]", prefix, npc.Name, prev))
			}
			npcNamesSeen[npc.Name] = i
		}
		if npc.Role != "" && !slices.Contains(knownRoles, npc.Role) {
			slog.Warn("unknown NPC role falls back to civilian",
				"npc", npc.Name,
				"role", npc.Role,
				"known", knownRoles,
			)
		}
	}

	// TLS needs both halves.
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if the entry (or any of its fallbacks)
// names a provider not found in the [ValidProviderNames] list for the kind.
func validateProviderName(kind string, entry ProviderEntry) {
	if entry.Name != "" {
		known := ValidProviderNames[kind]
		if !slices.Contains(known, entry.Name) {
			slog.Warn("unknown provider name — may be a typo or third-party provider",
				"kind", kind,
				"name", entry.Name,
				"known", known,
			)
		}
	}
	for _, fb := range entry.Fallbacks {
		validateProviderName(kind, fb)
	}
}
