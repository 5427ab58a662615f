package toolcall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/voicecanvas/internal/observe"
)

// Dispatcher routes tool calls to registered handlers. Calls are serialised:
// one call commits or fails before the next starts. It is safe for concurrent
// use.
type Dispatcher struct {
	// callMu serialises Dispatch. It is held while a handler runs.
	callMu sync.Mutex

	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	metrics *observe.Metrics
}

// NewDispatcher returns a Dispatcher with tools registered. A nil m uses
// [observe.DefaultMetrics]. It panics on an invalid or duplicate tool, which
// is a programming error.
func NewDispatcher(m *observe.Metrics, tools ...Tool) *Dispatcher {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	d := &Dispatcher{
		tools:   make(map[string]Tool, len(tools)),
		metrics: m,
	}
	for _, t := range tools {
		if err := d.Register(t); err != nil {
			panic(err)
		}
	}
	return d
}

// Register adds t to the dispatch table.
func (d *Dispatcher) Register(t Tool) error {
	name := t.Definition.Name
	if name == "" {
		return errors.New("toolcall: tool name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("toolcall: tool %q has no handler", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.tools[name]; dup {
		return fmt.Errorf("toolcall: tool %q already registered", name)
	}
	d.tools[name] = t
	d.order = append(d.order, name)
	return nil
}

// Definitions returns the registered tool definitions in registration order.
func (d *Dispatcher) Definitions() []Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	defs := make([]Definition, 0, len(d.order))
	for _, name := range d.order {
		defs = append(defs, d.tools[name].Definition)
	}
	return defs
}

// Has reports whether a tool called name is registered.
func (d *Dispatcher) Has(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.tools[name]
	return ok
}

// Dispatch validates req, runs the matching handler and returns its Result.
//
// An unregistered name yields a zero Result and a [*ProtocolError] wrapping
// [ErrUnknownTool]; no handler runs and no state changes. A handler that
// returns neither or both Result shapes is also reported as a protocol
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "toolcall.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", req.Name),
		attribute.String("tool.call_id", req.CallID),
	)

	d.mu.RLock()
	t, ok := d.tools[req.Name]
	d.mu.RUnlock()
	if !ok {
		err := &ProtocolError{CallID: req.CallID, Name: req.Name, Err: ErrUnknownTool}
		span.SetStatus(codes.Error, err.Error())
		d.metrics.RecordToolCall(ctx, req.Name, observe.StatusProtocol, 0)
		return Result{}, err
	}

	d.callMu.Lock()
	start := time.Now()
	res := t.Handler(ctx, req)
	elapsed := time.Since(start)
	d.callMu.Unlock()

	if !res.valid() {
		err := &ProtocolError{
			CallID: req.CallID,
			Name:   req.Name,
			Err:    errors.New("handler returned an ambiguous result"),
		}
		span.SetStatus(codes.Error, err.Error())
		d.metrics.RecordToolCall(ctx, req.Name, observe.StatusProtocol, elapsed.Seconds())
		return Result{}, err
	}

	status := observe.StatusOK
	if !res.OK() {
		status = observe.StatusError
		span.SetStatus(codes.Error, res.Failure.Code)
	}
	span.SetAttributes(attribute.String("tool.outcome", res.Outcome()))
	d.metrics.RecordToolCall(ctx, req.Name, status, elapsed.Seconds())
	return res, nil
}
