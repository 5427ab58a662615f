// Package app wires all VoiceCanvas subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP surface (and, in headless mode, a single
// session), and Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithVoices,
// WithMetrics, WithListener). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecanvas/internal/artifact"
	"github.com/MrWong99/voicecanvas/internal/config"
	"github.com/MrWong99/voicecanvas/internal/health"
	"github.com/MrWong99/voicecanvas/internal/mcpserver"
	"github.com/MrWong99/voicecanvas/internal/observe"
	"github.com/MrWong99/voicecanvas/internal/resilience"
	"github.com/MrWong99/voicecanvas/internal/session"
	"github.com/MrWong99/voicecanvas/internal/toolcall"
	"github.com/MrWong99/voicecanvas/internal/transcript"
	"github.com/MrWong99/voicecanvas/internal/web"
	"github.com/MrWong99/voicecanvas/pkg/provider/realtime"
	"github.com/MrWong99/voicecanvas/pkg/voice"
)

// Version is reported by the MCP server and the startup log.
var Version = "dev"

// shutdownGrace bounds the HTTP server drain when Run returns.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes of the controller.
type App struct {
	cfg      *config.Config
	provider realtime.Provider

	metrics        *observe.Metrics
	metricsHandler http.Handler
	levelVar       *slog.LevelVar
	listener       net.Listener

	// Subsystems, initialised in New and torn down in Shutdown.
	voices     []voice.Voice
	catalog    atomic.Pointer[voice.Catalog]
	artifact   *artifact.State
	log        *transcript.Log
	sync       *transcript.Synchronizer
	dispatcher *toolcall.Dispatcher
	breaker    *resilience.Breaker
	adapter    *session.Adapter
	sessions   *SessionManager
	mcp        *mcpserver.Server
	health     *health.Handler
	handler    http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithVoices injects the voice catalog instead of loading
// voices.catalog_file.
func WithVoices(v []voice.Voice) Option {
	return func(a *App) { a.voices = v }
}

// WithMetrics injects the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets config reloads adjust the log level through v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The provider comes
// from main.go (created via the config registry). Use Option functions to
// inject test doubles.
func New(ctx context.Context, cfg *config.Config, provider realtime.Provider, opts ...Option) (*App, error) {
	if provider == nil {
		return nil, errors.New("app: realtime provider is required")
	}
	a := &App{
		cfg:      cfg,
		provider: provider,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Voice catalog ─────────────────────────────────────────────────
	if err := a.initCatalog(); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 2. Artifact and transcript ───────────────────────────────────────
	a.artifact = artifact.New(artifact.WithMetrics(a.metrics))
	a.log = transcript.NewLog(a.metrics)
	a.sync = transcript.NewSynchronizer(cfg.Transcript.ScrollDelay, transcript.WithSyncMetrics(a.metrics))
	a.closers = append(a.closers,
		func() error { a.sync.Stop(); return nil },
		func() error { a.log.Close(); return nil },
		func() error { a.artifact.Close(); return nil },
	)

	// ── 3. Tool dispatcher ───────────────────────────────────────────────
	a.dispatcher = toolcall.NewDispatcher(a.metrics, toolcall.RenderSVG(a.artifact))

	// ── 4. Session adapter ───────────────────────────────────────────────
	a.breaker = resilience.New(resilience.Config{
		Name:        provider.Name(),
		MaxFailures: cfg.Session.BreakerFailures,
		Cooldown:    cfg.Session.BreakerCooldown,
	})
	a.adapter = session.New(session.Config{
		Provider:           provider,
		Dispatcher:         a.dispatcher,
		Log:                a.log,
		Synchronizer:       a.sync,
		Instructions:       cfg.Session.Instructions,
		StrictToolProtocol: cfg.Session.StrictToolProtocol,
		RecordToolFailures: cfg.Transcript.Mode != config.TranscriptHidden,
		Retry: session.RetryPolicy{
			MaxAttempts: cfg.Session.ConnectAttempts,
			Backoff:     cfg.Session.RetryBackoff,
		},
		Breaker: a.breaker,
		Metrics: a.metrics,
	})
	a.sessions = NewSessionManager(SessionManagerConfig{
		Adapter:  a.adapter,
		Log:      a.log,
		Provider: provider.Name(),
	})

	// ── 5. MCP tool server ───────────────────────────────────────────────
	if cfg.MCP.Enabled {
		a.mcp = mcpserver.New(a.dispatcher, Version)
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	checkers := []health.Checker{
		health.Catalog(func() int { return a.Catalog().Len() }),
		health.Backend(a.breaker.Open),
	}
	if cfg.Session.Headless {
		checkers = append(checkers, health.Session(a.adapter.Connected))
	}
	a.health = health.New(checkers...)

	webOpts := web.Options{
		Artifact:   a.artifact,
		Transcript: a.log,
		Catalog:    a.Catalog,
		Health:     a.health,
		Metrics:    a.metricsHandler,
		Observe:    a.metrics,
	}
	if a.mcp != nil {
		webOpts.MCP = a.mcp.Handler()
		webOpts.MCPPath = cfg.MCP.Path
	}
	a.handler = web.New(webOpts).Handler()

	observe.Logger(ctx).Info("application initialised",
		"provider", provider.Name(),
		"voices", a.Catalog().Len(),
		"default_voice", a.Catalog().DefaultID(),
		"mcp", cfg.MCP.Enabled,
		"headless", cfg.Session.Headless,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCatalog loads the voice list and builds the catalog from it.
func (a *App) initCatalog() error {
	if a.voices == nil {
		v, err := voice.LoadFile(a.cfg.Voices.CatalogFile)
		if err != nil {
			return err
		}
		a.voices = v
	}
	a.catalog.Store(newCatalog(a.voices, a.cfg.Voices))
	if a.Catalog().Len() == 0 {
		slog.Warn("voice catalog is empty; every session uses the backend default voice")
	}
	return nil
}

func newCatalog(voices []voice.Voice, cfg config.VoicesConfig) *voice.Catalog {
	return voice.NewCatalog(voices, voice.Options{
		PreferredNames: cfg.Preferred,
		PrimaryName:    cfg.PrimaryDefault,
		OtherLimit:     cfg.OtherLimit,
	})
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Catalog returns the current voice catalog. It is replaced as a whole when
// the voice settings are reloaded.
func (a *App) Catalog() *voice.Catalog { return a.catalog.Load() }

// Artifact returns the artifact state.
func (a *App) Artifact() *artifact.State { return a.artifact }

// Transcript returns the session transcript.
func (a *App) Transcript() *transcript.Log { return a.log }

// Synchronizer returns the transcript scroll synchronizer.
func (a *App) Synchronizer() *transcript.Synchronizer { return a.sync }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP surface until ctx is cancelled. In headless mode it
// also starts one session with the configured voice preference and returns
// once that session ends.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := a.listener
	if l == nil {
		var err error
		l, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http surface listening", "addr", l.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(l, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(l)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})
	if a.cfg.Session.Headless {
		g.Go(func() error {
			defer cancel()
			return a.runHeadless(gctx)
		})
	}
	return g.Wait()
}

// runHeadless connects one session with the configured voice preference and
// waits for it to end.
func (a *App) runHeadless(ctx context.Context) error {
	voiceID := a.Catalog().ResolvePreference(a.cfg.Session.Voice)
	if voiceID == "" {
		slog.Warn("voice preference did not resolve; using the backend default",
			"preference", a.cfg.Session.Voice)
	}
	done, err := a.sessions.Start(ctx, voiceID)
	if err != nil {
		return err
	}
	return <-done
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new.
// It is the callback of the [config.Watcher].
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VoicesChanged {
		a.catalog.Store(newCatalog(a.voices, new.Voices))
		slog.Info("voice catalog rebuilt",
			"curated", len(a.Catalog().Curated()),
			"default_voice", a.Catalog().DefaultID(),
		)
	}
	if d.InstructionsChanged {
		a.adapter.SetInstructions(new.Session.Instructions)
		slog.Info("session instructions updated; applies to the next session")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "settings", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the active session and tears down all subsystems in order.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.sessions.Stop(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			slog.Warn("session stop error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
