// Package artifact holds the markup currently shown on the canvas.
//
// A [State] has exactly one writer API ([State.Set] and [State.Reset]) and any
// number of readers. Readers either poll [State.Current] or subscribe to
// snapshots; a slow subscriber skips intermediate snapshots but always ends on
// the latest one. The state lives for the duration of the process and is never
// persisted.
package artifact

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voicecanvas/internal/notify"
	"github.com/MrWong99/voicecanvas/internal/observe"
)

// Placeholder is the markup shown before the first render and whenever a
// render call carries no markup.
const Placeholder = "<pre>No image yet</pre>"

// Kind values reported by [Snapshot.Kind].
const (
	KindPlaceholder = "placeholder"
	KindSVG         = "svg"
	KindMarkup      = "markup"
)

// Snapshot is an immutable view of the artifact at one version.
type Snapshot struct {
	// Markup is the stored markup, verbatim.
	Markup string `json:"markup"`

	// Version increases by one on every write. The initial placeholder is
	// version 0.
	Version uint64 `json:"version"`

	// UpdatedAt is the time of the write that produced this version.
	UpdatedAt time.Time `json:"updated_at"`
}

// Kind classifies the markup as the placeholder, an SVG document, or
// other markup.
func (s Snapshot) Kind() string {
	switch {
	case s.Markup == Placeholder:
		return KindPlaceholder
	case strings.HasPrefix(strings.TrimSpace(s.Markup), "<svg"):
		return KindSVG
	default:
		return KindMarkup
	}
}

// Option is a functional option for [New].
type Option func(*State)

// WithMetrics records artifact writes on m. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *State) { s.metrics = m }
}

// WithClock overrides the time source used for [Snapshot.UpdatedAt].
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// State is the single-writer artifact store. It is safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	cur     Snapshot
	hub     notify.Hub[Snapshot]
	metrics *observe.Metrics
	now     func() time.Time
}

// New returns a State holding the [Placeholder] at version 0.
func New(opts ...Option) *State {
	s := &State{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.cur = Snapshot{Markup: Placeholder, UpdatedAt: s.now()}
	return s
}

// Set replaces the markup verbatim and returns the new version. An empty
// markup stores the [Placeholder].
func (s *State) Set(markup string) uint64 {
	if markup == "" {
		markup = Placeholder
	}
	s.mu.Lock()
	s.cur = Snapshot{
		Markup:    markup,
		Version:   s.cur.Version + 1,
		UpdatedAt: s.now(),
	}
	snap := s.cur
	// Publish under the lock so subscribers observe versions in order.
	s.hub.Publish(snap)
	s.mu.Unlock()

	s.metrics.RecordArtifactUpdate(context.Background(), snap.Kind())
	return snap.Version
}

// Reset restores the [Placeholder] and returns the new version.
func (s *State) Reset() uint64 {
	return s.Set(Placeholder)
}

// Current returns the latest snapshot.
func (s *State) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Subscribe returns a channel that receives the current snapshot immediately
// and every later one on a latest-wins basis. Call cancel to unsubscribe.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hub.SubscribeWith(s.cur)
}

// Close closes every subscriber channel.
func (s *State) Close() {
	s.hub.Close()
}
