// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the VoiceCanvas controller.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
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

// SlogLevel maps l to the corresponding slog level. Unknown levels map to
// info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TranscriptMode selects how the transcript panel is presented.
type TranscriptMode string

const (
	// TranscriptAlways shows the transcript whenever a session is connected.
	TranscriptAlways TranscriptMode = "always"

	// TranscriptToggle lets the user show and hide the transcript.
	TranscriptToggle TranscriptMode = "toggle"

	// TranscriptHidden never shows the transcript. Messages are still
	// recorded.
	TranscriptHidden TranscriptMode = "hidden"
)

// IsValid reports whether m is a recognised transcript mode.
func (m TranscriptMode) IsValid() bool {
	switch m {
	case TranscriptAlways, TranscriptToggle, TranscriptHidden:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Voices     VoicesConfig     `yaml:"voices"`
	Transcript TranscriptConfig `yaml:"transcript"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP surface (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives log output while the terminal UI owns the screen.
	LogFile string `yaml:"log_file"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// SessionConfig configures the realtime voice session.
type SessionConfig struct {
	// Provider selects and configures the realtime backend.
	Provider ProviderEntry `yaml:"provider"`

	// Voice is the voice preference used in headless mode: a curated voice
	// name, free text matched against the other voices, or empty for the
	// default voice.
	Voice string `yaml:"voice"`

	// Instructions is an optional system prompt sent on connect.
	Instructions string `yaml:"instructions"`

	// StrictToolProtocol ends the session on a tool protocol violation.
	StrictToolProtocol bool `yaml:"strict_tool_protocol"`

	// Headless connects immediately without the terminal UI.
	Headless bool `yaml:"headless"`

	// ConnectAttempts is the number of connection attempts before giving up.
	ConnectAttempts int `yaml:"connect_attempts"`

	// RetryBackoff is the initial wait between connection attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// BreakerFailures is the number of consecutive failed connects after
	// which further connects fail fast for BreakerCooldown.
	BreakerFailures int `yaml:"breaker_failures"`

	// BreakerCooldown is how long connects are rejected once the breaker
	// opens.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// ProviderEntry is the configuration block of the realtime provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "hume", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// AccessToken is a short-lived token used instead of APIKey where the
	// provider supports it.
	AccessToken string `yaml:"access_token"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above (e.g., "config_id" for Hume).
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] if it is a string.
func (e ProviderEntry) StringOption(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// VoicesConfig controls the voice catalog and its curated subset.
type VoicesConfig struct {
	// CatalogFile is a JSON voice catalog. Empty uses the embedded catalog.
	CatalogFile string `yaml:"catalog_file"`

	// Preferred is the ordered list of curated voice names.
	Preferred []string `yaml:"preferred"`

	// PrimaryDefault is the name of the preferred default voice.
	PrimaryDefault string `yaml:"primary_default"`

	// OtherLimit caps the filtered "Other" list.
	OtherLimit int `yaml:"other_limit"`
}

// TranscriptConfig controls the transcript panel.
type TranscriptConfig struct {
	// Mode is always, toggle or hidden.
	Mode TranscriptMode `yaml:"mode"`

	// ScrollDelay is the debounce before the transcript scrolls to the
	// newest message.
	ScrollDelay time.Duration `yaml:"scroll_delay"`
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	// Enabled mounts the MCP endpoint on the HTTP surface.
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the MCP endpoint.
	Path string `yaml:"path"`
}
