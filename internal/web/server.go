// Package web serves the controller's HTTP surface: the current artifact and
// its live updates, voice lookup, the transcript, the MCP endpoint, health
// probes and Prometheus metrics.
//
// The artifact is untrusted markup written by the remote agent. It is served
// as is, never inlined into another page, and always carries a
// Content-Security-Policy that forbids scripts, network access and
// navigation.
package web

import (
	"net/http"
	"strings"

	"github.com/MrWong99/voicecanvas/internal/artifact"
	"github.com/MrWong99/voicecanvas/internal/health"
	"github.com/MrWong99/voicecanvas/internal/observe"
	"github.com/MrWong99/voicecanvas/internal/transcript"
	"github.com/MrWong99/voicecanvas/pkg/voice"
)

// ArtifactCSP is the Content-Security-Policy sent with every artifact
// response. Inline styles and data: images are the only resources allowed.
const ArtifactCSP = "default-src 'none'; style-src 'unsafe-inline'; img-src data:; sandbox"

// Options configures a [Server]. Artifact, Transcript and Catalog are
// required; every other field is optional.
type Options struct {
	Artifact   *artifact.State
	Transcript *transcript.Log

	// Catalog returns the current voice catalog. It is a function so the
	// catalog can be swapped on config reload.
	Catalog func() *voice.Catalog

	// Health serves /healthz and /readyz.
	Health *health.Handler

	// MCP is mounted at MCPPath when non-nil.
	MCP     http.Handler
	MCPPath string

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	// Observe records HTTP request metrics. Defaults to
	// [observe.DefaultMetrics].
	Observe *observe.Metrics
}

// Server is the HTTP surface. It holds no state of its own.
type Server struct {
	opts Options
}

// New returns a Server for opts. It panics when a required field is nil.
func New(opts Options) *Server {
	if opts.Artifact == nil || opts.Transcript == nil || opts.Catalog == nil {
		panic("web: Artifact, Transcript and Catalog are required")
	}
	if opts.Observe == nil {
		opts.Observe = observe.DefaultMetrics()
	}
	return &Server{opts: opts}
}

// Handler returns the routed handler wrapped in the tracing and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /artifact", s.handleArtifact)
	mux.HandleFunc("GET /artifact/ws", s.handleArtifactWS)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("GET /transcript", s.handleTranscript)

	if s.opts.Health != nil {
		s.opts.Health.Register(mux)
	}
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	if s.opts.MCP != nil {
		path := s.opts.MCPPath
		if path == "" {
			path = "/mcp"
		}
		mux.Handle(path, s.opts.MCP)
	}

	return observe.Middleware(s.opts.Observe)(mux)
}

// contentType returns the media type used to serve markup.
func contentType(markup string) string {
	if strings.HasPrefix(strings.TrimSpace(markup), "<svg") {
		return "image/svg+xml"
	}
	return "text/html; charset=utf-8"
}
