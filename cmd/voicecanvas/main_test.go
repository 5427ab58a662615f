package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voicecanvas/internal/config"
)

func TestArtifactURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "wildcard host",
			cfg:  config.Config{Server: config.ServerConfig{ListenAddr: ":8080"}},
			want: "http://localhost:8080/artifact",
		},
		{
			name: "explicit host",
			cfg:  config.Config{Server: config.ServerConfig{ListenAddr: "10.0.0.5:9000"}},
			want: "http://10.0.0.5:9000/artifact",
		},
		{
			name: "tls",
			cfg: config.Config{Server: config.ServerConfig{
				ListenAddr: ":443",
				TLS:        &config.TLSConfig{CertFile: "c", KeyFile: "k"},
			}},
			want: "https://localhost:443/artifact",
		},
		{
			name: "unparseable",
			cfg:  config.Config{Server: config.ServerConfig{ListenAddr: "nope"}},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := artifactURL(&tt.cfg); got != tt.want {
				t.Errorf("artifactURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server:     config.ServerConfig{ListenAddr: ":8080"},
		Session:    config.SessionConfig{Provider: config.ProviderEntry{Name: "openai", Model: "gpt-realtime"}},
		Transcript: config.TranscriptConfig{Mode: config.TranscriptToggle},
	}
	var buf bytes.Buffer
	printStartupSummary(&buf, cfg)

	out := buf.String()
	for _, want := range []string{"openai / gpt-realt…", "(default)", "toggle", "(disabled)", ":8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if got := reg.RealtimeNames(); len(got) != 2 || got[0] != "hume" || got[1] != "openai" {
		t.Fatalf("RealtimeNames() = %v, want [hume openai]", got)
	}

	p, err := reg.CreateRealtime(config.ProviderEntry{
		Name:    "hume",
		APIKey:  "k",
		Options: map[string]any{"config_id": "cfg-1"},
	})
	if err != nil {
		t.Fatalf("CreateRealtime(hume): %v", err)
	}
	if p.Name() != "hume" {
		t.Errorf("Name() = %q, want hume", p.Name())
	}

	if _, err := reg.CreateRealtime(config.ProviderEntry{Name: "openai"}); err == nil {
		t.Error("openai without api_key should fail")
	}
	if _, err := reg.CreateRealtime(config.ProviderEntry{Name: "gemini"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown provider error = %v, want ErrProviderNotRegistered", err)
	}
}
