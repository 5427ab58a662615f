package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voicecanvas/internal/observe"
)

// DefaultScrollDelay is the debounce delay used when none is configured.
const DefaultScrollDelay = 200 * time.Millisecond

// View is a scrollable transcript display.
type View interface {
	// Visible reports whether the view is currently mounted and shown.
	Visible() bool

	// ScrollToBottom moves the view to its newest entry.
	ScrollToBottom()
}

// Synchronizer keeps an attached [View] scrolled to the newest message.
//
// Every [Synchronizer.Notify] cancels the pending timer and schedules a new
// one, so a burst of notifications spaced closer than the delay produces a
// single effect, one delay after the last notification. When the timer fires
// the effect checks the view at that moment: an absent or hidden view makes
// it a silent no-op, and the missed scroll is not queued.
//
// It is safe for concurrent use. The view is called from the timer
// goroutine, never with the internal lock held.
type Synchronizer struct {
	delay   time.Duration
	metrics *observe.Metrics

	mu      sync.Mutex
	view    View
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// SyncOption is a functional option for [NewSynchronizer].
type SyncOption func(*Synchronizer)

// WithSyncMetrics records fired effects on m. Defaults to
// [observe.DefaultMetrics].
func WithSyncMetrics(m *observe.Metrics) SyncOption {
	return func(s *Synchronizer) { s.metrics = m }
}

// NewSynchronizer returns a Synchronizer with the given debounce delay. A
// non-positive delay uses [DefaultScrollDelay].
func NewSynchronizer(delay time.Duration, opts ...SyncOption) *Synchronizer {
	if delay <= 0 {
		delay = DefaultScrollDelay
	}
	s := &Synchronizer{delay: delay}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Delay returns the configured debounce delay.
func (s *Synchronizer) Delay() time.Duration { return s.delay }

// Attach sets the view that fired effects scroll. It replaces any previous
// view.
func (s *Synchronizer) Attach(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

// Detach removes the view. A pending timer still fires but does nothing.
func (s *Synchronizer) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = nil
}

// Notify records that a message arrived. It never blocks on the view.
func (s *Synchronizer) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

// Pending reports whether a timer is scheduled and has not fired yet.
func (s *Synchronizer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Stop cancels the pending timer and turns later Notify calls into no-ops.
// An effect that has already started runs to completion.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// fire runs the effect for timer generation gen. A superseded generation
// means the timer was replaced or stopped after it had already expired.
func (s *Synchronizer) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	v := s.view
	s.mu.Unlock()

	scrolled := v != nil && v.Visible()
	if scrolled {
		v.ScrollToBottom()
	}
	s.metrics.RecordScrollEffect(context.Background(), scrolled)
}
