// Package realtime defines the Provider interface for real-time conversational
// voice backends.
//
// A realtime provider wraps a remote voice agent service that owns audio
// capture, speech recognition, reasoning and speech synthesis. The controller
// never touches audio: it opens a session with a chosen voice, receives the
// text of every user and assistant message, and answers the tool calls the
// agent issues. Examples include Hume EVI and the OpenAI Realtime API.
//
// The central abstraction is SessionHandle: a long-lived channel that
// delivers messages and tool calls in the order the backend emits them.
//
// All implementations must be safe for concurrent use.
package realtime

import (
	"context"
	"time"
)

// Message roles reported in [Message.Role].
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a finalised conversation message received from the backend.
type Message struct {
	// Role is [RoleUser] or [RoleAssistant].
	Role string

	// Content is the message text.
	Content string

	// Timestamp is when the message was received.
	Timestamp time.Time
}

// ToolCall is a tool invocation requested by the remote agent.
type ToolCall struct {
	// CallID correlates the call with its acknowledgement.
	CallID string

	// Name is the requested tool name.
	Name string

	// Parameters is the JSON-encoded argument text, passed through unparsed.
	Parameters string

	// ResponseRequired reports whether the backend waits for an
	// acknowledgement before continuing the turn.
	ResponseRequired bool
}

// ToolResponse acknowledges a [ToolCall].
type ToolResponse struct {
	// CallID must equal the CallID of the acknowledged call.
	CallID string

	// Success selects between a success acknowledgement carrying Content and
	// an error acknowledgement carrying Error, Code, Level and Content.
	Success bool

	// Content is the message returned to the agent.
	Content string

	// Error is a short error summary. Error acknowledgements only.
	Error string

	// Code is a machine-readable error code. Error acknowledgements only.
	Code string

	// Level is the error severity. Error acknowledgements only.
	Level string
}

// ToolDefinition advertises a tool to the remote agent.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is a JSON Schema object.
	Parameters map[string]any
}

// ToolCallHandler is invoked by the session whenever the agent requests a
// tool call. Calls are delivered synchronously from the session's receive
// loop, one at a time, in the order the backend sent them.
//
// A nil error makes the session send the returned [ToolResponse]. A non-nil
// error means the call was not processable; the session sends no
// acknowledgement and reports the error via the OnError callback.
// Implementors must not call blocking session methods from within the
// handler.
type ToolCallHandler func(ctx context.Context, call ToolCall) (ToolResponse, error)

// ConnectOptions is the initial configuration for a new session.
type ConnectOptions struct {
	// VoiceID is the resolved backend voice id. It is forwarded even when
	// empty; the backend then falls back to its own default voice.
	VoiceID string

	// Tools is the set of tools offered to the agent.
	Tools []ToolDefinition

	// Instructions is an optional system prompt. Backends configured
	// server-side may ignore it.
	Instructions string

	// ToolCallHandler and ErrorHandler are installed before the session
	// starts receiving, so events sent right after the handshake reach them.
	// Both are optional and can be replaced later with OnToolCall and OnError.
	ToolCallHandler ToolCallHandler
	ErrorHandler    func(error)
}

// SessionHandle represents an open realtime session. It is an interface so
// that test code can supply mock implementations without a live backend.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// Messages returns a read-only channel that emits every finalised user and
	// assistant message. The channel is closed when the session ends. After
	// it closes, call [SessionHandle.Err] to check whether the session ended
	// cleanly. Consumers must drain it promptly; the receive loop blocks on
	// it, which also delays tool calls.
	Messages() <-chan Message

	// OnToolCall registers the tool call handler. Only one handler can be
	// active at a time; passing nil clears it. Calls arriving without a
	// handler are dropped unacknowledged.
	OnToolCall(handler ToolCallHandler)

	// OnError registers a callback for non-fatal errors: backend error
	// events, acknowledgement write failures and handler errors.
	OnError(handler func(error))

	// Err returns the error that caused the Messages channel to close, or nil
	// if the session ended cleanly or is still open.
	Err() error

	// Close terminates the session and closes the Messages channel. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any realtime backend.
type Provider interface {
	// Connect establishes a new session. The caller owns the returned
	// SessionHandle and is responsible for calling Close.
	//
	// Returns an error if the session cannot be established (e.g.
	// authentication failure or ctx already cancelled).
	Connect(ctx context.Context, opts ConnectOptions) (SessionHandle, error)

	// Name returns the provider name used in logs and metrics.
	Name() string
}
