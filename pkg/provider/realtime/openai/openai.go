// Package openai implements the realtime.Provider interface for OpenAI's
// Realtime API.
//
// It establishes a WebSocket connection to the OpenAI Realtime endpoint and
// exchanges JSON events according to the Realtime API protocol. The selected
// voice and the tool definitions are sent in the initial session.update.
// Transcripts of both sides are surfaced as messages; function calls are
// routed to the ToolCallHandler and answered with a function_call_output item
// followed by response.create. Audio deltas are ignored.
//
// Both the beta (response.audio_transcript.*) and the GA
// (response.output_audio_transcript.*) event names are understood.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voicecanvas/pkg/provider/realtime"
)

// Compile-time assertions that Provider and session satisfy the realtime
// interfaces.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements realtime.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns "openai".
func (p *Provider) Name() string { return "openai" }

// Connect establishes a new OpenAI Realtime session. The session.update
// carrying voice, instructions and tools is sent before Connect returns.
func (p *Provider) Connect(ctx context.Context, opts realtime.ConnectOptions) (realtime.SessionHandle, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, url.QueryEscape(p.model))

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}
	conn.SetReadLimit(1 << 22)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:         conn,
		messages:     make(chan realtime.Message, 16),
		partial:      make(map[string]string),
		ctx:          sessCtx,
		cancel:       sessCancel,
		toolHandler:  opts.ToolCallHandler,
		errorHandler: opts.ErrorHandler,
	}

	if err := sess.sendSessionUpdate(opts); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice                   string         `json:"voice,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	Tools                   []oaiTool      `json:"tools,omitempty"`
	InputAudioTranscription *transcription `json:"input_audio_transcription,omitempty"`
}

type transcription struct {
	Model string `json:"model"`
}

type oaiTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

// functionOutput is the JSON document placed in a function_call_output item.
type functionOutput struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Level   string `json:"level,omitempty"`
}

// serverErrorDetail represents the nested error object in an OpenAI Realtime
// error event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// ItemID identifies the output item a transcript delta belongs to.
	ItemID string `json:"item_id,omitempty"`

	// response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// response.audio_transcript.done /
	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn         *websocket.Conn
	messages     chan realtime.Message
	toolHandler  realtime.ToolCallHandler
	errorHandler func(error)

	writeMu sync.Mutex

	mu     sync.Mutex
	errVal error
	closed bool

	// partial holds assistant transcript deltas per output item until the
	// matching done event arrives.
	partial map[string]string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate sends a session.update event to configure voice,
// instructions, tools and input transcription.
func (s *session) sendSessionUpdate(opts realtime.ConnectOptions) error {
	params := sessionParams{
		Voice:                   opts.VoiceID,
		Instructions:            opts.Instructions,
		Tools:                   toOAITools(opts.Tools),
		InputAudioTranscription: &transcription{Model: "whisper-1"},
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON sends v as one text message. Writes are serialised.
func (s *session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsjson.Write(s.ctx, s.conn, v)
}

// receiveLoop reads events from the WebSocket and dispatches them.
// It owns the messages channel and closes it when it exits.
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
			s.setErr(fmt.Errorf("openai: read: %w", err))
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.audio_transcript.delta", "response.output_audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.mu.Lock()
		s.partial[evt.ItemID] += evt.Delta
		s.mu.Unlock()

	case "response.audio_transcript.done", "response.output_audio_transcript.done":
		s.mu.Lock()
		text := s.partial[evt.ItemID]
		delete(s.partial, evt.ItemID)
		s.mu.Unlock()

		if evt.Transcript != "" {
			text = evt.Transcript
		}
		s.emit(realtime.RoleAssistant, text)

	case "conversation.item.input_audio_transcription.completed":
		s.emit(realtime.RoleUser, evt.Transcript)

	case "response.function_call_arguments.done":
		s.handleFunctionCall(evt)

	case "error":
		s.handleErrorEvent(evt)
	}
}

func (s *session) emit(role, text string) {
	if text == "" {
		return
	}
	msg := realtime.Message{Role: role, Content: text, Timestamp: time.Now()}
	select {
	case s.messages <- msg:
	case <-s.ctx.Done():
	}
}

func (s *session) handleErrorEvent(evt *serverEvent) {
	msg := "unknown error"
	if evt.Error != nil && evt.Error.Message != "" {
		msg = evt.Error.Message
	}
	s.reportErr(fmt.Errorf("openai: %s", msg))
}

func (s *session) handleFunctionCall(evt *serverEvent) {
	s.mu.Lock()
	handler := s.toolHandler
	s.mu.Unlock()

	if handler == nil {
		return
	}

	call := realtime.ToolCall{
		CallID:           evt.CallID,
		Name:             evt.Name,
		Parameters:       evt.Arguments,
		ResponseRequired: true,
	}
	resp, err := handler(s.ctx, call)
	if err != nil {
		s.reportErr(fmt.Errorf("openai: tool call %q not acknowledged: %w", call.CallID, err))
		return
	}
	if resp.CallID == "" {
		resp.CallID = call.CallID
	}

	out, _ := json.Marshal(functionOutput{
		Success: resp.Success,
		Content: resp.Content,
		Error:   resp.Error,
		Code:    resp.Code,
		Level:   resp.Level,
	})

	// Return tool result and trigger the next model response.
	if err := s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: resp.CallID,
			Output: string(out),
		},
	}); err != nil {
		s.reportErr(fmt.Errorf("openai: acknowledge tool call %q: %w", resp.CallID, err))
		return
	}
	if err := s.writeJSON(map[string]string{"type": "response.create"}); err != nil {
		s.reportErr(fmt.Errorf("openai: response.create: %w", err))
	}
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

// toOAITools converts tool definitions to the OpenAI Realtime tool format.
func toOAITools(tools []realtime.ToolDefinition) []oaiTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]oaiTool, len(tools))
	for i, t := range tools {
		out[i] = oaiTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return out
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// Messages returns the channel on which transcribed messages arrive.
func (s *session) Messages() <-chan realtime.Message { return s.messages }

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// OnError registers a callback for non-fatal error events from the provider.
func (s *session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// OnToolCall registers a callback for tool invocations from the model.
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
