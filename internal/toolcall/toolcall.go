// Package toolcall validates and executes tool calls issued by the remote
// agent.
//
// A [Dispatcher] holds a table of [Tool] values keyed by name. Each call is
// handled in three steps: the name is checked against the table, the
// handler runs, and exactly one [Result] is produced for the caller to
// acknowledge.
//
// Two failure classes are kept apart. An unknown tool name is a protocol
// violation: [Dispatcher.Dispatch] returns a [*ProtocolError] and no Result.
// A malformed payload for a known tool is a soft failure: the handler returns
// a Failure Result that is acknowledged like any other outcome.
package toolcall

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTool is wrapped by [*ProtocolError] when a call names a tool that
// is not registered.
var ErrUnknownTool = errors.New("toolcall: unknown tool")

// Request is a single tool invocation as delivered by the session.
type Request struct {
	// CallID correlates the acknowledgement with the request.
	CallID string

	// Name selects the tool.
	Name string

	// Parameters is the opaque JSON-encoded argument text.
	Parameters string
}

// Definition is the agent-facing schema of a tool.
type Definition struct {
	// Name is the unique tool name.
	Name string `json:"name"`

	// Description tells the agent what the tool does.
	Description string `json:"description"`

	// Parameters is a JSON Schema object describing the accepted arguments.
	Parameters map[string]any `json:"parameters"`
}

// Handler executes a tool. It must convert malformed parameters into a
// Failure [Result]; it never returns protocol errors.
type Handler func(ctx context.Context, req Request) Result

// Tool is a dispatch table entry.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Success carries the message of a successful call.
type Success struct {
	Message string `json:"message"`
}

// Failure describes a soft failure. All fields are forwarded verbatim in the
// acknowledgement.
type Failure struct {
	// Code is a machine-readable error code, e.g. "svg_rendering_error".
	Code string `json:"code"`

	// Level is the severity reported to the agent, e.g. "error".
	Level string `json:"level"`

	// Message is the human-readable content sent with the error.
	Message string `json:"message"`

	// Error is a short error summary.
	Error string `json:"error"`
}

// Outcome values reported by [Result.Outcome].
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Result is the outcome of a dispatched call. Exactly one of Success and
// Failure is set on a Result produced by a handler; the zero Result
// accompanies protocol errors only.
type Result struct {
	Success *Success `json:"success,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Succeeded returns a success Result with message.
func Succeeded(message string) Result {
	return Result{Success: &Success{Message: message}}
}

// Failed returns a failure Result.
func Failed(f Failure) Result {
	return Result{Failure: &f}
}

// OK reports whether r is a success.
func (r Result) OK() bool { return r.Success != nil }

// Outcome returns [OutcomeSuccess] or [OutcomeError].
func (r Result) Outcome() string {
	if r.OK() {
		return OutcomeSuccess
	}
	return OutcomeError
}

// valid reports whether exactly one shape is set.
func (r Result) valid() bool {
	return (r.Success == nil) != (r.Failure == nil)
}

// ProtocolError is returned by [Dispatcher.Dispatch] when a call cannot be
// processed at all. No acknowledgement should be sent for it.
type ProtocolError struct {
	CallID string
	Name   string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("toolcall: protocol violation in call %q (tool %q): %v", e.CallID, e.Name, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
