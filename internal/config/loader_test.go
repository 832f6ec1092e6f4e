package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  rate_limit:
    per_second: 5
    burst: 10
store:
  path: world.db
world:
  seed: 42
  time_scale: 1.0
  tick_interval_seconds: 60
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    fallbacks:
      - name: ollama
        base_url: http://localhost:11434
        model: llama3
  tts:
    name: openai
    api_key: sk-test
  stt:
    name: openai
    api_key: sk-test
npcs:
  - name: Vera
    role: merchant
  - name: Marcus
    role: guard
    zone: gates
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.World.Seed != 42 {
		t.Errorf("World.Seed = %d, want 42", cfg.World.Seed)
	}
	if got := cfg.World.TickInterval().Seconds(); got != 60 {
		t.Errorf("TickInterval = %.0fs, want 60s", got)
	}
	if len(cfg.Providers.LLM.Fallbacks) != 1 || cfg.Providers.LLM.Fallbacks[0].Name != "ollama" {
		t.Errorf("LLM.Fallbacks = %+v, want one ollama entry", cfg.Providers.LLM.Fallbacks)
	}
	if len(cfg.NPCs) != 2 {
		t.Fatalf("len(NPCs) = %d, want 2", len(cfg.NPCs))
	}
	if cfg.NPCs[1].Zone != "gates" {
		t.Errorf("NPCs[1].Zone = %q, want %q", cfg.NPCs[1].Zone, "gates")
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listne_addr: \":8080\"\n"))
	if err == nil {
		t.Fatal("LoadFromReader() with a misspelled key should fail, got nil error")
	}
}

func TestLoadFromReaderExpandsSecrets(t *testing.T) {
	t.Setenv("ANIMUS_TEST_KEY", "sk-from-env")
	yaml := `
providers:
  llm:
    name: openai
    api_key: ${ANIMUS_TEST_KEY}
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if got := cfg.Providers.LLM.APIKey; got != "sk-from-env" {
		t.Errorf("APIKey = %q, want %q", got, "sk-from-env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "empty config is valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "time scale out of range",
			mutate:  func(c *Config) { c.World.TimeScale = 500 },
			wantErr: "time_scale",
		},
		{
			name:    "tick interval too small",
			mutate:  func(c *Config) { c.World.TickIntervalSeconds = 5 },
			wantErr: "tick_interval_seconds",
		},
		{
			name: "duplicate npc names",
			mutate: func(c *Config) {
				c.NPCs = []NPCConfig{{Name: "Vera"}, {Name: "Vera"}}
			},
			wantErr: "duplicate",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.Server.RateLimit.PerSecond = -1 },
			wantErr: "rate_limit",
		},
		{
			name:    "tls missing key file",
			mutate:  func(c *Config) { c.Server.TLS = &TLSConfig{CertFile: "cert.pem"} },
			wantErr: "tls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
