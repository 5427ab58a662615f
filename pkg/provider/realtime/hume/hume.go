// Package hume implements the realtime.Provider interface for Hume's
// Empathic Voice Interface (EVI).
//
// It opens the EVI chat WebSocket and exchanges JSON events. The selected
// voice travels as the voice_id query parameter. Finalised user and
// assistant messages are surfaced on the Messages channel; tool_call events
// are routed to the ToolCallHandler and acknowledged with tool_response or
// tool_error events. Audio events are ignored: capture and playback belong to
// the EVI client, not to this controller.
package hume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicecanvas/pkg/provider/realtime"
)

// Compile-time assertions that Provider and session satisfy the realtime
// interfaces.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*session)(nil)

const (
	defaultBaseURL = "wss://api.hume.ai/v0/evi/chat"

	// apiKeyHeader carries the API key when no access token is configured.
	apiKeyHeader = "X-Hume-Api-Key"
)

// ErrNoCredentials is returned by [Provider.Connect] when neither an access
// token nor an API key is configured.
var ErrNoCredentials = errors.New("hume: no access token or api key configured")

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAccessToken authenticates with a short-lived access token sent as the
// access_token query parameter. It takes precedence over the API key.
func WithAccessToken(token string) Option {
	return func(p *Provider) { p.accessToken = token }
}

// WithConfigID selects a server-side EVI configuration.
func WithConfigID(id string) Option {
	return func(p *Provider) { p.configID = id }
}

// WithBaseURL overrides the chat WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements realtime.Provider for Hume EVI.
type Provider struct {
	apiKey      string
	accessToken string
	configID    string
	baseURL     string
}

// New creates a Hume EVI Provider. apiKey may be empty when an access token is
// supplied via [WithAccessToken].
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns "hume".
func (p *Provider) Name() string { return "hume" }

// chatURL builds the chat endpoint URL for a connection.
func (p *Provider) chatURL(voiceID string) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("hume: parse base url: %w", err)
	}
	q := u.Query()
	// voice_id is always sent, even when empty.
	q.Set("voice_id", voiceID)
	if p.configID != "" {
		q.Set("config_id", p.configID)
	}
	if p.accessToken != "" {
		q.Set("access_token", p.accessToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect opens an EVI chat session. When tools are given they are advertised
// with a session_settings event before the session is returned.
func (p *Provider) Connect(ctx context.Context, opts realtime.ConnectOptions) (realtime.SessionHandle, error) {
	if p.accessToken == "" && p.apiKey == "" {
		return nil, ErrNoCredentials
	}
	wsURL, err := p.chatURL(opts.VoiceID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if p.accessToken == "" {
		header.Set(apiKeyHeader, p.apiKey)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("hume: dial: %w", err)
	}
	conn.SetReadLimit(1 << 22)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:         conn,
		messages:     make(chan realtime.Message, 16),
		ctx:          sessCtx,
		cancel:       sessCancel,
		toolHandler:  opts.ToolCallHandler,
		errorHandler: opts.ErrorHandler,
	}

	if len(opts.Tools) > 0 || opts.Instructions != "" {
		if err := sess.writeJSON(newSessionSettings(opts)); err != nil {
			sessCancel()
			conn.Close(websocket.StatusInternalError, "session settings failed")
			return nil, fmt.Errorf("hume: session settings: %w", err)
		}
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionSettingsMessage struct {
	Type         string     `json:"type"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
	Tools        []humeTool `json:"tools,omitempty"`
}

// humeTool is a user-defined tool. EVI expects the JSON Schema as a string.
type humeTool struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  string `json:"parameters"`
}

type toolResponseMessage struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

type toolErrorMessage struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Level      string `json:"level,omitempty"`
	Content    string `json:"content,omitempty"`
}

func newSessionSettings(opts realtime.ConnectOptions) sessionSettingsMessage {
	msg := sessionSettingsMessage{
		Type:         "session_settings",
		SystemPrompt: opts.Instructions,
	}
	for _, t := range opts.Tools {
		params := []byte(`{"type":"object"}`)
		if t.Parameters != nil {
			if b, err := json.Marshal(t.Parameters); err == nil {
				params = b
			}
		}
		msg.Tools = append(msg.Tools, humeTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  string(params),
		})
	}
	return msg
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// envelope carries the discriminator shared by every server event.
type envelope struct {
	Type string `json:"type"`
}

// messageEvent is a user_message or assistant_message event.
type messageEvent struct {
	Message chatMessage `json:"message"`
	Interim bool        `json:"interim,omitempty"`
}

type toolCallEvent struct {
	Name             string `json:"name"`
	Parameters       string `json:"parameters"`
	ToolCallID       string `json:"tool_call_id"`
	ResponseRequired bool   `json:"response_required"`
}

type errorEvent struct {
	Code    string `json:"code"`
	Slug    string `json:"slug"`
	Message string `json:"message"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn         *websocket.Conn
	messages     chan realtime.Message
	toolHandler  realtime.ToolCallHandler
	errorHandler func(error)

	// writeMu serialises writes; coder/websocket allows one writer at a time.
	writeMu sync.Mutex

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("hume: marshal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns
// the messages channel and closes it when it exits.
func (s *session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			s.setErr(fmt.Errorf("hume: read: %w", err))
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.handleServerEvent(env.Type, data)
	}
}

func (s *session) handleServerEvent(typ string, data []byte) {
	switch typ {
	case "user_message", "assistant_message":
		var evt messageEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return
		}
		if evt.Interim || evt.Message.Content == "" {
			return
		}
		role := realtime.RoleAssistant
		if typ == "user_message" {
			role = realtime.RoleUser
		}
		msg := realtime.Message{
			Role:      role,
			Content:   evt.Message.Content,
			Timestamp: time.Now(),
		}
		select {
		case s.messages <- msg:
		case <-s.ctx.Done():
		}

	case "tool_call":
		var evt toolCallEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.reportErr(fmt.Errorf("hume: decode tool_call: %w", err))
			return
		}
		s.handleToolCall(&evt)

	case "error":
		var evt errorEvent
		_ = json.Unmarshal(data, &evt)
		s.handleErrorEvent(&evt)
	}
}

func (s *session) handleToolCall(evt *toolCallEvent) {
	s.mu.Lock()
	handler := s.toolHandler
	s.mu.Unlock()

	if handler == nil {
		return
	}

	call := realtime.ToolCall{
		CallID:           evt.ToolCallID,
		Name:             evt.Name,
		Parameters:       evt.Parameters,
		ResponseRequired: evt.ResponseRequired,
	}
	resp, err := handler(s.ctx, call)
	if err != nil {
		s.reportErr(fmt.Errorf("hume: tool call %q not acknowledged: %w", call.CallID, err))
		return
	}
	if resp.CallID == "" {
		resp.CallID = call.CallID
	}

	var ack any
	if resp.Success {
		ack = toolResponseMessage{
			Type:       "tool_response",
			ToolCallID: resp.CallID,
			Content:    resp.Content,
		}
	} else {
		ack = toolErrorMessage{
			Type:       "tool_error",
			ToolCallID: resp.CallID,
			Error:      resp.Error,
			Code:       resp.Code,
			Level:      resp.Level,
			Content:    resp.Content,
		}
	}
	if err := s.writeJSON(ack); err != nil {
		s.reportErr(fmt.Errorf("hume: acknowledge tool call %q: %w", resp.CallID, err))
	}
}

func (s *session) handleErrorEvent(evt *errorEvent) {
	msg := evt.Message
	if msg == "" {
		msg = "unknown error"
	}
	if evt.Code != "" {
		msg = evt.Code + ": " + msg
	}
	s.reportErr(fmt.Errorf("hume: %s", msg))
}

func (s *session) reportErr(err error) {
	s.mu.Lock()
	handler := s.errorHandler
	s.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.messages)
	})
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// Messages returns the channel on which finalised messages arrive.
func (s *session) Messages() <-chan realtime.Message { return s.messages }

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// OnError registers a callback for non-fatal errors.
func (s *session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// OnToolCall registers a callback for tool invocations from the agent.
func (s *session) OnToolCall(handler realtime.ToolCallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolHandler = handler
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
