package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/voicecanvas/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo},
		Session: config.SessionConfig{Provider: config.ProviderEntry{Name: "hume", APIKey: "k"}},
		Voices:  config.VoicesConfig{Preferred: []string{"Ava Song", "Kora"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		check   func(config.ConfigDiff) bool
		restart string
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(d config.ConfigDiff) bool {
				return d.LogLevelChanged && d.NewLogLevel == config.LogDebug
			},
		},
		{
			name:   "preferred order",
			mutate: func(c *config.Config) { c.Voices.Preferred = []string{"Kora", "Ava Song"} },
			check:  func(d config.ConfigDiff) bool { return d.VoicesChanged },
		},
		{
			name:   "primary default",
			mutate: func(c *config.Config) { c.Voices.PrimaryDefault = "Kora" },
			check:  func(d config.ConfigDiff) bool { return d.VoicesChanged },
		},
		{
			name:   "other limit",
			mutate: func(c *config.Config) { c.Voices.OtherLimit = 8 },
			check:  func(d config.ConfigDiff) bool { return d.VoicesChanged },
		},
		{
			name:   "instructions",
			mutate: func(c *config.Config) { c.Session.Instructions = "be brief" },
			check:  func(d config.ConfigDiff) bool { return d.InstructionsChanged },
		},
		{
			name:    "provider credentials",
			mutate:  func(c *config.Config) { c.Session.Provider.APIKey = "other" },
			restart: "session.provider",
		},
		{
			name:    "listen address",
			mutate:  func(c *config.Config) { c.Server.ListenAddr = ":1" },
			restart: "server.listen_addr",
		},
		{
			name:    "transcript mode",
			mutate:  func(c *config.Config) { c.Transcript.Mode = config.TranscriptHidden },
			restart: "transcript",
		},
		{
			name:    "mcp",
			mutate:  func(c *config.Config) { c.MCP.Enabled = true },
			restart: "mcp",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			newCfg := baseConfig()
			tt.mutate(newCfg)
			d := config.Diff(baseConfig(), newCfg)
			if d.Empty() {
				t.Fatal("expected a non-empty diff")
			}
			if tt.check != nil && !tt.check(d) {
				t.Errorf("unexpected diff: %+v", d)
			}
			if tt.restart != "" && !slices.Contains(d.RestartRequired, tt.restart) {
				t.Errorf("RestartRequired = %v, want it to contain %q", d.RestartRequired, tt.restart)
			}
		})
	}
}
