// Package mcpserver exposes the tool dispatcher as a Model Context Protocol
// server.
//
// Every tool registered on the [toolcall.Dispatcher] is published under the
// same name and schema, so an MCP-speaking agent drives the artifact exactly
// like a realtime voice agent does. Soft tool failures become tool results
// with IsError set; protocol violations are returned as JSON-RPC errors.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voicecanvas/internal/toolcall"
)

// implementationName is reported to MCP clients during initialisation.
const implementationName = "voicecanvas"

// Server wraps an MCP server whose tools are backed by a dispatcher.
type Server struct {
	server     *mcpsdk.Server
	dispatcher *toolcall.Dispatcher
	seq        atomic.Uint64
}

// New creates a Server publishing every tool of d. version is reported to
// clients as the implementation version.
func New(d *toolcall.Dispatcher, version string) *Server {
	s := &Server{
		server: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: implementationName, Version: version},
			nil,
		),
		dispatcher: d,
	}
	for _, def := range d.Definitions() {
		schema := def.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		s.server.AddTool(&mcpsdk.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		}, s.handler(def.Name))
	}
	return s
}

// MCP returns the underlying SDK server, e.g. for connecting an in-memory
// transport.
func (s *Server) MCP() *mcpsdk.Server { return s.server }

// Handler returns an http.Handler serving the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.server
	}, nil)
}

// handler adapts the dispatcher to an SDK tool handler for the tool name.
func (s *Server) handler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		// Clients may omit arguments entirely for a call without any.
		args := "{}"
		if req.Params != nil && len(req.Params.Arguments) > 0 && string(req.Params.Arguments) != "null" {
			args = string(req.Params.Arguments)
		}

		res, err := s.dispatcher.Dispatch(ctx, toolcall.Request{
			CallID:     fmt.Sprintf("mcp-%d", s.seq.Add(1)),
			Name:       name,
			Parameters: args,
		})
		if err != nil {
			return nil, err
		}

		if res.OK() {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Success.Message}},
			}, nil
		}
		f := res.Failure
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: fmt.Sprintf("%s: %s (code=%s, level=%s)", f.Error, f.Message, f.Code, f.Level)},
			},
		}, nil
	}
}
