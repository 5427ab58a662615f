// Package session bridges a realtime voice session to the local controller
// state.
//
// An [Adapter] opens a session on a [realtime.Provider] with the chosen
// voice and the dispatcher's tools, answers every tool call through the
// [toolcall.Dispatcher], and feeds received messages into the transcript
// [transcript.Log] and its [transcript.Synchronizer]. Audio is owned entirely
// by the remote backend; nothing here touches it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voicecanvas/internal/observe"
	"github.com/MrWong99/voicecanvas/internal/resilience"
	"github.com/MrWong99/voicecanvas/internal/toolcall"
	"github.com/MrWong99/voicecanvas/internal/transcript"
	"github.com/MrWong99/voicecanvas/pkg/provider/realtime"
)

// Sentinel errors returned by [Adapter].
var (
	ErrAlreadyConnected = errors.New("session: already connected")
	ErrNotConnected     = errors.New("session: not connected")
)

// Config holds the collaborators and policy of an [Adapter].
type Config struct {
	// Provider opens realtime sessions. Required.
	Provider realtime.Provider

	// Dispatcher answers tool calls. Required.
	Dispatcher *toolcall.Dispatcher

	// Log receives every message. Required.
	Log *transcript.Log

	// Synchronizer is notified after every appended entry. Optional.
	Synchronizer *transcript.Synchronizer

	// Instructions is an optional system prompt sent on connect.
	Instructions string

	// StrictToolProtocol ends the session when a tool call violates the
	// protocol. Otherwise the call is logged and left unacknowledged.
	StrictToolProtocol bool

	// RecordToolFailures appends soft tool failures to the transcript as
	// system entries.
	RecordToolFailures bool

	// Retry controls connection retries.
	Retry RetryPolicy

	// Breaker, when set, guards Connect. Once it opens, Connect fails fast
	// with [resilience.ErrOpen] until the backend may be probed again.
	Breaker *resilience.Breaker

	// Metrics records session metrics. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Adapter owns at most one realtime session at a time.
//
// Connect opens the session and Run pumps it until it ends. Disconnect may be
// called from any goroutine. All methods are safe for concurrent use.
type Adapter struct {
	cfg     Config
	metrics *observe.Metrics

	mu           sync.Mutex
	handle       realtime.SessionHandle
	connecting   bool
	voiceID      string
	instructions string
	fatal        chan error

	// released is the session ended by Disconnect before Run picked it up.
	released realtime.SessionHandle
}

// New returns an Adapter for cfg. It panics when a required collaborator is
// missing.
func New(cfg Config) *Adapter {
	if cfg.Provider == nil || cfg.Dispatcher == nil || cfg.Log == nil {
		panic("session: Provider, Dispatcher and Log are required")
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Adapter{cfg: cfg, metrics: m, instructions: cfg.Instructions}
}

// SetInstructions replaces the system prompt used by the next Connect. An
// open session keeps the prompt it was opened with.
func (a *Adapter) SetInstructions(s string) {
	a.mu.Lock()
	a.instructions = s
	a.mu.Unlock()
}

// Connect opens a session with voiceID. An empty voiceID is forwarded as is;
// the backend then uses its own default voice.
func (a *Adapter) Connect(ctx context.Context, voiceID string) error {
	a.mu.Lock()
	if a.handle != nil || a.connecting {
		a.mu.Unlock()
		return ErrAlreadyConnected
	}
	a.connecting = true
	a.released = nil
	a.fatal = make(chan error, 1)
	instructions := a.instructions
	a.mu.Unlock()

	opts := realtime.ConnectOptions{
		VoiceID:         voiceID,
		Tools:           toolDefinitions(a.cfg.Dispatcher.Definitions()),
		Instructions:    instructions,
		ToolCallHandler: a.handleToolCall,
		ErrorHandler:    a.handleError,
	}

	var h realtime.SessionHandle
	connect := func(ctx context.Context) error {
		var err error
		h, err = connectWithRetry(ctx, a.cfg.Provider, opts, a.cfg.Retry)
		return err
	}
	var err error
	if a.cfg.Breaker != nil {
		err = a.cfg.Breaker.Do(ctx, connect)
	} else {
		err = connect(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.connecting = false
	if err != nil {
		a.metrics.RecordProviderError(ctx, a.cfg.Provider.Name(), "connect")
		return err
	}

	a.handle = h
	a.voiceID = voiceID
	a.metrics.ActiveSessions.Add(ctx, 1)

	observe.Logger(ctx).Info("realtime session connected",
		"provider", a.cfg.Provider.Name(),
		"voice_id", voiceID,
		"tools", len(opts.Tools),
	)
	return nil
}

// Run pumps messages into the transcript until the session ends, a fatal
// protocol violation occurs or ctx is done. Cancelling ctx disconnects the
// session and returns nil. A session that ended with an error returns it. A
// session closed by Disconnect before Run started also ends cleanly.
func (a *Adapter) Run(ctx context.Context) error {
	a.mu.Lock()
	h, fatal := a.handle, a.fatal
	released := a.released
	a.released = nil
	a.mu.Unlock()
	if h == nil {
		if released != nil {
			return nil
		}
		return ErrNotConnected
	}

	msgs := h.Messages()
	for {
		select {
		case <-ctx.Done():
			return a.disconnect(context.WithoutCancel(ctx), h, false)

		case err := <-fatal:
			_ = a.disconnect(ctx, h, false)
			return fmt.Errorf("session: ended by protocol violation: %w", err)

		case msg, ok := <-msgs:
			if !ok {
				_ = a.disconnect(ctx, h, false)
				if err := h.Err(); err != nil {
					a.metrics.RecordProviderError(ctx, a.cfg.Provider.Name(), "session")
					return fmt.Errorf("session: %w", err)
				}
				observe.Logger(ctx).Info("realtime session ended")
				return nil
			}
			a.record(transcript.Entry{
				Role:      transcript.Role(msg.Role),
				Content:   msg.Content,
				Timestamp: msg.Timestamp,
			})
		}
	}
}

// Disconnect closes the current session, if any.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	h := a.handle
	a.mu.Unlock()
	if h == nil {
		return nil
	}
	return a.disconnect(context.Background(), h, true)
}

// Connected reports whether a session is open.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle != nil
}

// VoiceID returns the voice id of the open session, or "" when disconnected.
func (a *Adapter) VoiceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.voiceID
}

// disconnect releases h if it is still the current session and closes it.
// External callers mark it released so a later Run ends cleanly.
func (a *Adapter) disconnect(ctx context.Context, h realtime.SessionHandle, external bool) error {
	a.mu.Lock()
	if a.handle != h {
		a.mu.Unlock()
		return nil
	}
	a.handle = nil
	a.voiceID = ""
	if external {
		a.released = h
	}
	a.mu.Unlock()

	a.metrics.ActiveSessions.Add(ctx, -1)
	if err := h.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}

// handleToolCall routes a tool call to the dispatcher and converts the result
// into an acknowledgement. It is called from the session's receive loop.
func (a *Adapter) handleToolCall(ctx context.Context, call realtime.ToolCall) (realtime.ToolResponse, error) {
	res, err := a.cfg.Dispatcher.Dispatch(ctx, toolcall.Request{
		CallID:     call.CallID,
		Name:       call.Name,
		Parameters: call.Parameters,
	})
	if err != nil {
		observe.Logger(ctx).Error("tool call protocol violation",
			"call_id", call.CallID,
			"tool", call.Name,
			"strict", a.cfg.StrictToolProtocol,
			"err", err,
		)
		a.metrics.RecordProviderError(ctx, a.cfg.Provider.Name(), "protocol")
		if a.cfg.StrictToolProtocol {
			a.signalFatal(err)
		}
		return realtime.ToolResponse{}, err
	}

	if res.OK() {
		return realtime.ToolResponse{
			CallID:  call.CallID,
			Success: true,
			Content: res.Success.Message,
		}, nil
	}

	f := res.Failure
	if a.cfg.RecordToolFailures {
		a.record(transcript.Entry{
			Role:    transcript.RoleSystem,
			Content: fmt.Sprintf("%s: %s (%s)", call.Name, f.Message, f.Code),
		})
	}
	return realtime.ToolResponse{
		CallID:  call.CallID,
		Success: false,
		Content: f.Message,
		Error:   f.Error,
		Code:    f.Code,
		Level:   f.Level,
	}, nil
}

// handleError receives non-fatal session errors.
func (a *Adapter) handleError(err error) {
	// Protocol violations were already logged and counted by handleToolCall.
	var pe *toolcall.ProtocolError
	if errors.As(err, &pe) {
		return
	}
	ctx := context.Background()
	observe.Logger(ctx).Warn("realtime session error",
		"provider", a.cfg.Provider.Name(),
		"err", err,
	)
	a.metrics.RecordProviderError(ctx, a.cfg.Provider.Name(), "event")
}

func (a *Adapter) signalFatal(err error) {
	a.mu.Lock()
	fatal := a.fatal
	a.mu.Unlock()
	if fatal == nil {
		return
	}
	select {
	case fatal <- err:
	default:
	}
}

func (a *Adapter) record(e transcript.Entry) {
	a.cfg.Log.Append(e)
	if a.cfg.Synchronizer != nil {
		a.cfg.Synchronizer.Notify()
	}
}

func toolDefinitions(defs []toolcall.Definition) []realtime.ToolDefinition {
	out := make([]realtime.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = realtime.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return out
}
