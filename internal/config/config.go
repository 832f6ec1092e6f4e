// Package config provides the configuration schema, loader, and provider
// registry for the animus simulation server.
package config

import "time"

// LogLevel controls log verbosity for the animus server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for animus.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	World     WorldConfig     `yaml:"world"`
	Providers ProvidersConfig `yaml:"providers"`
	Oracle    OracleConfig    `yaml:"oracle"`
	NPCs      []NPCConfig     `yaml:"npcs"`
}

// ServerConfig holds network and logging settings for the animus server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// RateLimit throttles interactive endpoints per client. Zero values
	// disable throttling.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RateLimitConfig is a per-client token bucket over the interactive
// endpoints (/npc/action, conversation messages, voice, transcription).
type RateLimitConfig struct {
	// PerSecond is the sustained request rate allowed per client.
	PerSecond float64 `yaml:"per_second"`

	// Burst is the bucket capacity. Defaults to PerSecond when zero.
	Burst int `yaml:"burst"`
}

// StoreConfig locates the embedded database.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps the world
	// in-process only.
	Path string `yaml:"path"`

	// SnapshotDir is where /world/snapshot exports land. Empty disables
	// file snapshots; the endpoint then streams to the caller only.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// WorldConfig tunes the simulation clock and the initial world.
type WorldConfig struct {
	// Seed is the master RNG seed. Zero lets the store's persisted seed win,
	// or mints a fresh one on an empty database.
	Seed uint64 `yaml:"seed"`

	// TimeScale is simulated hours per autorun tick. Clamped to [0.1, 100].
	TimeScale float64 `yaml:"time_scale"`

	// TickIntervalSeconds is the autorun wall period. Clamped to [10, 300].
	TickIntervalSeconds int `yaml:"tick_interval_seconds"`

	// Autostart runs the clock as soon as the server is up.
	Autostart bool `yaml:"autostart"`

	// Setting is the one-line world framing injected into every persona
	// prompt. Empty uses the built-in default.
	Setting string `yaml:"setting"`
}

// TickInterval returns the configured autorun period as a duration.
func (w WorldConfig) TickInterval() time.Duration {
	return time.Duration(w.TickIntervalSeconds) * time.Second
}

// ProvidersConfig declares which provider implementation to use for each
// model boundary. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// ${VAR} references are expanded from the environment at load time.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when the primary provider's circuit
	// breaker opens or its calls fail.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// OracleConfig tunes the cognition boundary.
type OracleConfig struct {
	// Temperature for cognition completions. Zero uses the oracle default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens for cognition completions. Zero uses the oracle default.
	MaxTokens int `yaml:"max_tokens"`

	// CognizeTimeoutSeconds bounds one cognition call. Zero means 15.
	CognizeTimeoutSeconds int `yaml:"cognize_timeout_seconds"`
}

// NPCConfig seeds one agent on first boot. Agents listed here are minted
// through the generator only when the store holds no agents yet; restarts
// wake the persisted population instead.
type NPCConfig struct {
	// Name is the agent's in-world display name. Empty rolls one from the
	// generator's name pools.
	Name string `yaml:"name"`

	// Role is the archetype key (gatekeeper, guard, merchant, civilian,
	// scholar, warrior). Empty rolls one.
	Role string `yaml:"role"`

	// Zone overrides the archetype's duty zone.
	Zone string `yaml:"zone"`

	// Faction overrides the archetype's faction.
	Faction string `yaml:"faction"`
}
