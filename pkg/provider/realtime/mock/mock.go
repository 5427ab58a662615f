// Package mock provides test doubles for the realtime package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions. Use
// Session to feed messages and tool calls the way a backend's receive loop
// would, and to inspect which acknowledgements were sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, opts)
//	resp, acked := sess.DeliverToolCall(ctx, realtime.ToolCall{CallID: "c1", Name: "render_svg"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicecanvas/pkg/provider/realtime"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Opts is the ConnectOptions passed to Connect.
	Opts realtime.ConnectOptions
}

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect returns
	// a new default Session.
	Session realtime.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	// OnConnect, if set, runs after the handlers from ConnectOptions are
	// installed and before Connect returns. Use it to emulate a backend that
	// sends events immediately after the handshake.
	OnConnect func(sess realtime.SessionHandle)
}

// Connect records the call and returns Session, ConnectErr. When the returned
// session is a *Session, the handlers in opts are installed on it.
func (p *Provider) Connect(ctx context.Context, opts realtime.ConnectOptions) (realtime.SessionHandle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Opts: opts})
	if p.ConnectErr != nil {
		err := p.ConnectErr
		p.mu.Unlock()
		return nil, err
	}
	sess := p.Session
	if sess == nil {
		sess = NewSession()
	}
	onConnect := p.OnConnect
	p.mu.Unlock()

	if s, ok := sess.(*Session); ok {
		s.mu.Lock()
		if opts.ToolCallHandler != nil {
			s.toolHandler = opts.ToolCallHandler
		}
		if opts.ErrorHandler != nil {
			s.errorHandler = opts.ErrorHandler
		}
		s.mu.Unlock()
	}
	if onConnect != nil {
		onConnect(sess)
	}
	return sess, nil
}

// Name returns ProviderName, or "mock" when unset.
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Calls returns a copy of the recorded Connect calls. Thread-safe.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
}

// Ensure Provider implements realtime.Provider at compile time.
var _ realtime.Provider = (*Provider)(nil)

// Session is a mock implementation of realtime.SessionHandle.
//
// Push messages with Send (or directly on MessagesCh) and end the session
// with End. DeliverToolCall runs the registered handler synchronously and
// records the outcome the way a real session acknowledges calls.
type Session struct {
	mu sync.Mutex

	// MessagesCh is returned by Messages.
	MessagesCh chan realtime.Message

	// ErrValue is returned by Err.
	ErrValue error

	// Acks records every ToolResponse that would have been sent.
	Acks []realtime.ToolResponse

	// Unacked records every ToolCall whose handler returned an error.
	Unacked []realtime.ToolCall

	// Errors records every error reported to the OnError callback.
	Errors []error

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	toolHandler  realtime.ToolCallHandler
	errorHandler func(error)
	ended        bool
}

// NewSession returns a Session with a buffered MessagesCh.
func NewSession() *Session {
	return &Session{MessagesCh: make(chan realtime.Message, 64)}
}

// Messages returns MessagesCh.
func (s *Session) Messages() <-chan realtime.Message { return s.MessagesCh }

// OnToolCall stores handler.
func (s *Session) OnToolCall(handler realtime.ToolCallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolHandler = handler
}

// OnError stores handler.
func (s *Session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// Err returns ErrValue.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrValue
}

// Close records the call and ends the session. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	s.mu.Unlock()
	s.End(nil)
	return nil
}

// Send pushes a message onto MessagesCh. It is a no-op after End.
func (s *Session) Send(msg realtime.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.MessagesCh <- msg
}

// End closes MessagesCh, setting ErrValue to err when it is non-nil. Only the
// first call has an effect.
func (s *Session) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	if err != nil {
		s.ErrValue = err
	}
	close(s.MessagesCh)
}

// DeliverToolCall invokes the registered handler with call. A nil handler
// error records the response in Acks and returns it with acked true; a
// handler error is recorded in Unacked and Errors and reported to OnError.
func (s *Session) DeliverToolCall(ctx context.Context, call realtime.ToolCall) (realtime.ToolResponse, bool) {
	s.mu.Lock()
	handler := s.toolHandler
	s.mu.Unlock()
	if handler == nil {
		return realtime.ToolResponse{}, false
	}

	resp, err := handler(ctx, call)
	if err != nil {
		s.mu.Lock()
		s.Unacked = append(s.Unacked, call)
		s.mu.Unlock()
		s.ReportError(err)
		return realtime.ToolResponse{}, false
	}
	if resp.CallID == "" {
		resp.CallID = call.CallID
	}
	s.mu.Lock()
	s.Acks = append(s.Acks, resp)
	s.mu.Unlock()
	return resp, true
}

// ReportError records err and passes it to the OnError callback.
func (s *Session) ReportError(err error) {
	s.mu.Lock()
	s.Errors = append(s.Errors, err)
	handler := s.errorHandler
	s.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// AckSnapshot returns a copy of Acks. Thread-safe.
func (s *Session) AckSnapshot() []realtime.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.ToolResponse, len(s.Acks))
	copy(out, s.Acks)
	return out
}

// Ensure Session implements realtime.SessionHandle at compile time.
var _ realtime.SessionHandle = (*Session)(nil)
