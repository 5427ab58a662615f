package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/voicecanvas/internal/observe"
	"github.com/MrWong99/voicecanvas/internal/session"
	"github.com/MrWong99/voicecanvas/internal/transcript"
)

// Sentinel errors returned by [SessionManager].
var (
	ErrSessionActive = errors.New("app: a session is already active")
	ErrNoSession     = errors.New("app: no active session")
)

// SessionInfo holds metadata about the active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// VoiceID is the voice id forwarded on connect. Empty means the backend
	// default.
	VoiceID string

	// Provider is the realtime provider name.
	Provider string

	// StartedAt is when the session was connected.
	StartedAt time.Time
}

// SessionManager runs at most one realtime session at a time on top of a
// [session.Adapter]. A new session starts with an empty transcript.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	adapter  *session.Adapter
	log      *transcript.Log
	provider string

	mu       sync.Mutex
	active   bool
	info     SessionInfo
	cancel   context.CancelFunc
	finished chan struct{}
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Adapter  *session.Adapter
	Log      *transcript.Log
	Provider string
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		adapter:  cfg.Adapter,
		log:      cfg.Log,
		provider: cfg.Provider,
	}
}

// Start connects a session with voiceID and pumps it in the background until
// it ends, [SessionManager.Stop] is called or ctx is done. The returned
// channel receives the session's final error (nil for a clean end) and is
// then closed.
//
// Returns [ErrSessionActive] if a session is already running.
func (sm *SessionManager) Start(ctx context.Context, voiceID string) (<-chan error, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return nil, fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}

	now := time.Now().UTC()
	sessionID := "session-" + now.Format("20060102T150405.000Z")
	ctx = observe.WithSession(ctx, observe.SessionScope{SessionID: sessionID, VoiceID: voiceID})

	sm.log.Reset()
	if err := sm.adapter.Connect(ctx, voiceID); err != nil {
		return nil, fmt.Errorf("app: start session: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	finished := make(chan struct{})

	sm.active = true
	sm.cancel = cancel
	sm.finished = finished
	sm.info = SessionInfo{
		SessionID: sessionID,
		VoiceID:   voiceID,
		Provider:  sm.provider,
		StartedAt: now,
	}
	logger := observe.Logger(ctx)

	go func() {
		err := sm.adapter.Run(runCtx)
		sm.finish(finished)
		cancel()
		if err != nil {
			logger.Warn("session ended with error", "err", err)
		} else {
			logger.Info("session ended")
		}
		done <- err
		close(done)
	}()

	logger.Info("session started", "provider", sm.provider)
	return done, nil
}

// Stop ends the active session and waits until it has been torn down or ctx
// is done.
//
// Returns [ErrNoSession] if no session is active.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	if !sm.active {
		sm.mu.Unlock()
		return ErrNoSession
	}
	cancel, finished := sm.cancel, sm.finished
	sm.mu.Unlock()

	cancel()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app: stop session: %w", ctx.Err())
	}
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// finish clears the state of the session whose run loop closed finished.
func (sm *SessionManager) finish(finished chan struct{}) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.finished == finished {
		sm.active = false
		sm.info = SessionInfo{}
		sm.cancel = nil
		sm.finished = nil
	}
	close(finished)
}
