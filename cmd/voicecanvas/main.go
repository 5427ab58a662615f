// Command voicecanvas is the main entry point for the VoiceCanvas controller.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecanvas/internal/app"
	"github.com/MrWong99/voicecanvas/internal/config"
	"github.com/MrWong99/voicecanvas/internal/observe"
	"github.com/MrWong99/voicecanvas/internal/tui"
	"github.com/MrWong99/voicecanvas/pkg/provider/realtime"
	"github.com/MrWong99/voicecanvas/pkg/provider/realtime/hume"
	"github.com/MrWong99/voicecanvas/pkg/provider/realtime/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	headless := flag.Bool("headless", false, "run without the terminal UI and connect one session immediately")
	voicePref := flag.String("voice", "", "voice preference for headless mode (overrides session.voice)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicecanvas: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicecanvas: %v\n", err)
		}
		return 1
	}
	overrides := func(c *config.Config) {
		if *headless {
			c.Session.Headless = true
		}
		if *voicePref != "" {
			c.Session.Voice = *voicePref
		}
	}
	overrides(cfg)

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	logOut, closeLog, err := logWriter(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicecanvas: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	slog.Info("voicecanvas starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"headless", cfg.Session.Headless,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.Setup(ctx, observe.ProviderConfig{
		ServiceName:    "voicecanvas",
		ServiceVersion: app.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := reg.CreateRealtime(cfg.Session.Provider)
	if err != nil {
		slog.Error("failed to build realtime provider", "err", err, "registered", reg.RealtimeNames())
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, provider,
		app.WithMetrics(tel.Metrics),
		app.WithMetricsHandler(promhttp.Handler()),
		app.WithLevelVar(level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig, config.WithOverlay(overrides))
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}

	if cfg.Session.Headless {
		printStartupSummary(os.Stdout, cfg)
		slog.Info("server ready; press Ctrl+C to shut down")
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return application.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if !cfg.Session.Headless {
		g.Go(func() error {
			defer cancel()
			return tui.Run(gctx, tui.Deps{
				Catalog:     application.Catalog,
				Connector:   application.Sessions(),
				Artifact:    application.Artifact(),
				Transcript:  application.Transcript(),
				Mode:        cfg.Transcript.Mode,
				ArtifactURL: artifactURL(cfg),
			}, application.Synchronizer())
		})
	}
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in realtime provider factories
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterRealtime("hume", func(entry config.ProviderEntry) (realtime.Provider, error) {
		var opts []hume.Option
		if entry.AccessToken != "" {
			opts = append(opts, hume.WithAccessToken(entry.AccessToken))
		}
		if id := entry.StringOption("config_id"); id != "" {
			opts = append(opts, hume.WithConfigID(id))
		}
		if entry.BaseURL != "" {
			opts = append(opts, hume.WithBaseURL(entry.BaseURL))
		}
		return hume.New(entry.APIKey, opts...), nil
	})
	reg.RegisterRealtime("openai", func(entry config.ProviderEntry) (realtime.Provider, error) {
		if entry.APIKey == "" {
			return nil, errors.New("openai realtime: api_key is required")
		}
		var opts []openai.Option
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, opts...), nil
	})
	for _, name := range reg.RealtimeNames() {
		slog.Debug("registered provider", "kind", "realtime", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║      VoiceCanvas: startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Provider", providerLabel(cfg.Session.Provider))
	voice := cfg.Session.Voice
	if voice == "" {
		voice = "(default)"
	}
	printRow(w, "Voice", voice)
	printRow(w, "Transcript", string(cfg.Transcript.Mode))
	if cfg.MCP.Enabled {
		printRow(w, "MCP", cfg.MCP.Path)
	} else {
		printRow(w, "MCP", "(disabled)")
	}
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func providerLabel(p config.ProviderEntry) string {
	if p.Model != "" {
		return p.Name + " / " + p.Model
	}
	return p.Name
}

func printRow(w io.Writer, label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// logWriter returns stderr in headless mode. The terminal UI owns the screen
// otherwise, so logs go to server.log_file.
func logWriter(cfg *config.Config) (io.Writer, func(), error) {
	if cfg.Session.Headless {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// artifactURL is the address of the artifact page shown in the UI.
func artifactURL(cfg *config.Config) string {
	host, port, err := net.SplitHostPort(cfg.Server.ListenAddr)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	scheme := "http"
	if cfg.Server.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, port) + "/artifact"
}
