package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultLogFile         = "voicecanvas.log"
	DefaultProvider        = "hume"
	DefaultConnectAttempts = 3
	DefaultRetryBackoff    = time.Second
	DefaultBreakerFailures = 3
	DefaultBreakerCooldown = 30 * time.Second
	DefaultOtherLimit      = 4
	DefaultScrollDelay     = 200 * time.Millisecond
	DefaultMCPPath         = "/mcp"
)

// ValidProviderNames lists known realtime provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"hume", "openai"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default. Explicit
// values are left untouched.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFile == "" {
		cfg.Server.LogFile = DefaultLogFile
	}
	if cfg.Session.Provider.Name == "" {
		cfg.Session.Provider.Name = DefaultProvider
	}
	if cfg.Session.ConnectAttempts == 0 {
		cfg.Session.ConnectAttempts = DefaultConnectAttempts
	}
	if cfg.Session.RetryBackoff == 0 {
		cfg.Session.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Session.BreakerFailures == 0 {
		cfg.Session.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.Session.BreakerCooldown == 0 {
		cfg.Session.BreakerCooldown = DefaultBreakerCooldown
	}
	if cfg.Voices.OtherLimit == 0 {
		cfg.Voices.OtherLimit = DefaultOtherLimit
	}
	if cfg.Transcript.Mode == "" {
		cfg.Transcript.Mode = TranscriptToggle
	}
	if cfg.Transcript.ScrollDelay == 0 {
		cfg.Transcript.ScrollDelay = DefaultScrollDelay
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
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
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Session
	validateProviderName(cfg.Session.Provider.Name)
	if cfg.Session.Provider.APIKey == "" && cfg.Session.Provider.AccessToken == "" {
		slog.Warn("session.provider has no api_key or access_token; connecting will fail unless the provider needs none")
	}
	if cfg.Session.ConnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("session.connect_attempts %d must not be negative", cfg.Session.ConnectAttempts))
	}
	if cfg.Session.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("session.retry_backoff %v must not be negative", cfg.Session.RetryBackoff))
	}
	if cfg.Session.BreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("session.breaker_failures %d must not be negative", cfg.Session.BreakerFailures))
	}
	if cfg.Session.BreakerCooldown < 0 {
		errs = append(errs, fmt.Errorf("session.breaker_cooldown %v must not be negative", cfg.Session.BreakerCooldown))
	}

	// Voices
	if cfg.Voices.OtherLimit < 0 {
		errs = append(errs, fmt.Errorf("voices.other_limit %d must not be negative", cfg.Voices.OtherLimit))
	}
	seen := make(map[string]int, len(cfg.Voices.Preferred))
	for i, name := range cfg.Voices.Preferred {
		prefix := fmt.Sprintf("voices.preferred[%d]", i)
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", prefix))
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of voices.preferred[%d]", prefix, name, prev))
		}
		seen[name] = i
	}

	// Transcript
	if cfg.Transcript.Mode != "" && !cfg.Transcript.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("transcript.mode %q is invalid; valid values: always, toggle, hidden", cfg.Transcript.Mode))
	}
	if cfg.Transcript.ScrollDelay < 0 {
		errs = append(errs, fmt.Errorf("transcript.scroll_delay %v must not be negative", cfg.Transcript.ScrollDelay))
	}

	// MCP
	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
