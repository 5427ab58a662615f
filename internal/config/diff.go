package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoicesChanged is true if the curated list, the primary default or the
	// other limit changed. The catalog file itself is read once at startup.
	VoicesChanged bool

	// InstructionsChanged is true if the system prompt changed. It applies
	// to the next connection.
	InstructionsChanged bool

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VoicesChanged && !d.InstructionsChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Voices
	if !slices.Equal(old.Voices.Preferred, new.Voices.Preferred) ||
		old.Voices.PrimaryDefault != new.Voices.PrimaryDefault ||
		old.Voices.OtherLimit != new.Voices.OtherLimit {
		d.VoicesChanged = true
	}

	// Session
	if old.Session.Instructions != new.Session.Instructions {
		d.InstructionsChanged = true
	}

	// Everything below is wired once at startup.
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Session.Provider.Name != new.Session.Provider.Name ||
		old.Session.Provider.APIKey != new.Session.Provider.APIKey ||
		old.Session.Provider.AccessToken != new.Session.Provider.AccessToken ||
		old.Session.Provider.BaseURL != new.Session.Provider.BaseURL ||
		old.Session.Provider.Model != new.Session.Provider.Model {
		d.RestartRequired = append(d.RestartRequired, "session.provider")
	}
	if old.Voices.CatalogFile != new.Voices.CatalogFile {
		d.RestartRequired = append(d.RestartRequired, "voices.catalog_file")
	}
	if old.Transcript != new.Transcript {
		d.RestartRequired = append(d.RestartRequired, "transcript")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}

	return d
}
