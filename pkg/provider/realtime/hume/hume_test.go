package hume_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicecanvas/pkg/provider/realtime"
	"github.com/MrWong99/voicecanvas/pkg/provider/realtime/hume"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startHumeServer launches a test EVI chat server. The handler receives the
// accepted conn. The server is automatically closed when the test finishes.
func startHumeServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("readJSON: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

func connect(t *testing.T, srv *httptest.Server, opts realtime.ConnectOptions, popts ...hume.Option) realtime.SessionHandle {
	t.Helper()
	popts = append([]hume.Option{hume.WithBaseURL(wsURL(srv))}, popts...)
	p := hume.New("test-key", popts...)
	handle, err := p.Connect(context.Background(), opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })
	return handle
}

// ── Connection ────────────────────────────────────────────────────────────────

func TestName(t *testing.T) {
	t.Parallel()
	if got := hume.New("k").Name(); got != "hume" {
		t.Errorf("Name = %q, want hume", got)
	}
}

func TestConnect_ForwardsVoiceAndConfig(t *testing.T) {
	t.Parallel()
	query := make(chan map[string][]string, 1)
	header := make(chan string, 1)

	srv := startHumeServer(t, func(conn *websocket.Conn, r *http.Request) {
		query <- r.URL.Query()
		header <- r.Header.Get("X-Hume-Api-Key")
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, realtime.ConnectOptions{VoiceID: "voice-123"}, hume.WithConfigID("cfg-9"))

	q := <-query
	if got := q["voice_id"]; len(got) != 1 || got[0] != "voice-123" {
		t.Errorf("voice_id = %v, want [voice-123]", got)
	}
	if got := q["config_id"]; len(got) != 1 || got[0] != "cfg-9" {
		t.Errorf("config_id = %v, want [cfg-9]", got)
	}
	if _, ok := q["access_token"]; ok {
		t.Error("access_token sent without being configured")
	}
	if h := <-header; h != "test-key" {
		t.Errorf("X-Hume-Api-Key = %q, want test-key", h)
	}
}

func TestConnect_EmptyVoiceIDStillSent(t *testing.T) {
	t.Parallel()
	query := make(chan map[string][]string, 1)

	srv := startHumeServer(t, func(conn *websocket.Conn, r *http.Request) {
		query <- r.URL.Query()
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, realtime.ConnectOptions{VoiceID: ""})

	q := <-query
	got, ok := q["voice_id"]
	if !ok {
		t.Fatal("voice_id parameter missing")
	}
	if len(got) != 1 || got[0] != "" {
		t.Errorf("voice_id = %v, want one empty value", got)
	}
}

func TestConnect_AccessTokenReplacesHeader(t *testing.T) {
	t.Parallel()
	seen := make(chan *http.Request, 1)

	srv := startHumeServer(t, func(conn *websocket.Conn, r *http.Request) {
		seen <- r
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, realtime.ConnectOptions{}, hume.WithAccessToken("tok-abc"))

	r := <-seen
	if got := r.URL.Query().Get("access_token"); got != "tok-abc" {
		t.Errorf("access_token = %q, want tok-abc", got)
	}
	if got := r.Header.Get("X-Hume-Api-Key"); got != "" {
		t.Errorf("api key header = %q, want none when using a token", got)
	}
}

func TestConnect_NoCredentials(t *testing.T) {
	t.Parallel()
	_, err := hume.New("").Connect(context.Background(), realtime.ConnectOptions{})
	if !errors.Is(err, hume.ErrNoCredentials) {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
}

func TestConnect_CancelledContext_ReturnsError(t *testing.T) {
	t.Parallel()
	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := hume.New("k", hume.WithBaseURL(wsURL(srv))).Connect(ctx, realtime.ConnectOptions{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestConnect_SendsSessionSettingsWithTools(t *testing.T) {
	t.Parallel()
	got := make(chan map[string]any, 1)

	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		got <- raw
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, realtime.ConnectOptions{
		Tools: []realtime.ToolDefinition{{
			Name:        "render_svg",
			Description: "Render an SVG",
			Parameters:  map[string]any{"type": "object"},
		}},
	})

	raw := <-got
	if raw["type"] != "session_settings" {
		t.Fatalf("type = %v, want session_settings", raw["type"])
	}
	tools, _ := raw["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools = %v, want 1 entry", raw["tools"])
	}
	tool := tools[0].(map[string]any)
	if tool["name"] != "render_svg" || tool["type"] != "function" {
		t.Errorf("tool = %v", tool)
	}
	params, ok := tool["parameters"].(string)
	if !ok || !strings.Contains(params, `"object"`) {
		t.Errorf("parameters = %v, want JSON schema string", tool["parameters"])
	}
}

// ── Messages ──────────────────────────────────────────────────────────────────

func TestMessages_DeliversFinalUserAndAssistantMessages(t *testing.T) {
	t.Parallel()
	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		writeJSON(t, conn, map[string]any{"type": "user_message", "interim": true, "message": map[string]string{"role": "user", "content": "dra"}})
		writeJSON(t, conn, map[string]any{"type": "user_message", "message": map[string]string{"role": "user", "content": "draw a house"}})
		writeJSON(t, conn, map[string]any{"type": "audio_output", "data": "AAAA"})
		writeJSON(t, conn, map[string]any{"type": "assistant_message", "message": map[string]string{"role": "assistant", "content": "Sure!"}})
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, realtime.ConnectOptions{})

	want := []realtime.Message{
		{Role: realtime.RoleUser, Content: "draw a house"},
		{Role: realtime.RoleAssistant, Content: "Sure!"},
	}
	for i, w := range want {
		select {
		case m := <-handle.Messages():
			if m.Role != w.Role || m.Content != w.Content {
				t.Errorf("message %d = %+v, want %+v", i, m, w)
			}
			if m.Timestamp.IsZero() {
				t.Errorf("message %d has zero timestamp", i)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

// ── Tool calls ────────────────────────────────────────────────────────────────

func TestOnToolCall_SuccessSendsToolResponse(t *testing.T) {
	t.Parallel()
	ack := make(chan map[string]any, 1)

	ready := make(chan struct{})
	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-ready
		writeJSON(t, conn, map[string]any{
			"type":              "tool_call",
			"name":              "render_svg",
			"parameters":        `{"svg":"<svg/>"}`,
			"tool_call_id":      "call-1",
			"response_required": true,
		})
		var raw map[string]any
		readJSON(t, conn, &raw)
		ack <- raw
		<-conn.CloseRead(context.Background()).Done()
	})

	calls := make(chan realtime.ToolCall, 1)
	p := hume.New("k", hume.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), realtime.ConnectOptions{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()
	handle.OnToolCall(func(_ context.Context, call realtime.ToolCall) (realtime.ToolResponse, error) {
		calls <- call
		return realtime.ToolResponse{Success: true, Content: "SVG rendered successfully"}, nil
	})
	close(ready)

	select {
	case call := <-calls:
		if call.CallID != "call-1" || call.Name != "render_svg" || call.Parameters != `{"svg":"<svg/>"}` || !call.ResponseRequired {
			t.Errorf("call = %+v", call)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler never called")
	}

	select {
	case raw := <-ack:
		if raw["type"] != "tool_response" || raw["tool_call_id"] != "call-1" || raw["content"] != "SVG rendered successfully" {
			t.Errorf("ack = %v", raw)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no acknowledgement received")
	}
}

func TestConnect_HandlerReceivesToolCallSentAfterSettings(t *testing.T) {
	t.Parallel()
	ack := make(chan map[string]any, 1)

	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var settings map[string]any
		readJSON(t, conn, &settings)
		writeJSON(t, conn, map[string]any{
			"type":         "tool_call",
			"name":         "render_svg",
			"parameters":   `{"svg":"<svg/>"}`,
			"tool_call_id": "call-0",
		})
		var raw map[string]any
		readJSON(t, conn, &raw)
		ack <- raw
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, realtime.ConnectOptions{
		Tools: []realtime.ToolDefinition{{Name: "render_svg"}},
		ToolCallHandler: func(_ context.Context, call realtime.ToolCall) (realtime.ToolResponse, error) {
			return realtime.ToolResponse{CallID: call.CallID, Success: true, Content: "ok"}, nil
		},
	})

	select {
	case raw := <-ack:
		if raw["type"] != "tool_response" || raw["tool_call_id"] != "call-0" {
			t.Errorf("ack = %v", raw)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no acknowledgement received")
	}
}

func TestOnToolCall_FailureSendsToolError(t *testing.T) {
	t.Parallel()
	ack := make(chan map[string]any, 1)

	ready := make(chan struct{})
	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-ready
		writeJSON(t, conn, map[string]any{"type": "tool_call", "name": "render_svg", "parameters": "{", "tool_call_id": "call-2"})
		var raw map[string]any
		readJSON(t, conn, &raw)
		ack <- raw
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, realtime.ConnectOptions{})
	handle.OnToolCall(func(_ context.Context, call realtime.ToolCall) (realtime.ToolResponse, error) {
		return realtime.ToolResponse{
			CallID:  call.CallID,
			Error:   "SVG rendering error",
			Code:    "svg_rendering_error",
			Level:   "error",
			Content: "There was an error rendering the SVG",
		}, nil
	})
	close(ready)

	select {
	case raw := <-ack:
		want := map[string]any{
			"type":         "tool_error",
			"tool_call_id": "call-2",
			"error":        "SVG rendering error",
			"code":         "svg_rendering_error",
			"level":        "error",
			"content":      "There was an error rendering the SVG",
		}
		for k, v := range want {
			if raw[k] != v {
				t.Errorf("ack[%q] = %v, want %v", k, raw[k], v)
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no acknowledgement received")
	}
}

func TestOnToolCall_HandlerErrorSendsNoAck(t *testing.T) {
	t.Parallel()
	extra := make(chan map[string]any, 1)

	ready := make(chan struct{})
	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-ready
		writeJSON(t, conn, map[string]any{"type": "tool_call", "name": "draw_png", "parameters": "{}", "tool_call_id": "call-3"})
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		if _, data, err := conn.Read(ctx); err == nil {
			var raw map[string]any
			_ = json.Unmarshal(data, &raw)
			extra <- raw
		}
	})

	errs := make(chan error, 1)
	handle := connect(t, srv, realtime.ConnectOptions{})
	handle.OnError(func(err error) { errs <- err })
	handle.OnToolCall(func(context.Context, realtime.ToolCall) (realtime.ToolResponse, error) {
		return realtime.ToolResponse{}, errors.New("unknown tool")
	})
	close(ready)

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "call-3") {
			t.Errorf("error %q does not name the call", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("OnError never called")
	}

	select {
	case raw := <-extra:
		t.Errorf("unexpected acknowledgement %v", raw)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestOnError_ErrorEvent(t *testing.T) {
	t.Parallel()
	ready := make(chan struct{})
	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-ready
		writeJSON(t, conn, map[string]any{"type": "error", "code": "E0710", "slug": "tool_not_found", "message": "tool missing"})
		<-conn.CloseRead(context.Background()).Done()
	})

	errs := make(chan error, 1)
	p := hume.New("k", hume.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), realtime.ConnectOptions{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()
	handle.OnError(func(err error) { errs <- err })
	close(ready)

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "E0710") || !strings.Contains(err.Error(), "tool missing") {
			t.Errorf("error = %q", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("OnError never called")
	}
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func TestClose_IdempotentAndClosesMessages(t *testing.T) {
	t.Parallel()
	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})
	p := hume.New("k", hume.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), realtime.ConnectOptions{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := handle.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case _, ok := <-handle.Messages():
		if ok {
			t.Error("expected closed Messages channel")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Messages channel not closed")
	}
	if err := handle.Err(); err != nil {
		t.Errorf("Err after clean close = %v", err)
	}
}

func TestErr_SetOnAbnormalClose(t *testing.T) {
	t.Parallel()
	srv := startHumeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.Close(websocket.StatusInternalError, "boom")
	})
	handle := connect(t, srv, realtime.ConnectOptions{})

	select {
	case _, ok := <-handle.Messages():
		if ok {
			t.Fatal("unexpected message")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Messages channel not closed")
	}
	if handle.Err() == nil {
		t.Error("Err = nil, want read error")
	}
}
