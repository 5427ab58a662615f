package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/voicecanvas/internal/artifact"
	"github.com/MrWong99/voicecanvas/internal/health"
	"github.com/MrWong99/voicecanvas/internal/observe"
	"github.com/MrWong99/voicecanvas/internal/transcript"
	"github.com/MrWong99/voicecanvas/pkg/voice"
)

var testVoices = []voice.Voice{
	{ID: "v1", Name: "Ava Song", Provider: "HUME_AI"},
	{ID: "v2", Name: "Kora", Provider: "HUME_AI"},
	{ID: "v3", Name: "Vince Douglas", Provider: "HUME_AI"},
	{ID: "v4", Name: "Sitcom Girl", Provider: "HUME_AI"},
	{ID: "v5", Name: "Male English Actor", Provider: "HUME_AI"},
}

type fixture struct {
	srv   *httptest.Server
	state *artifact.State
	log   *transcript.Log
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	state := artifact.New(artifact.WithMetrics(m))
	log := transcript.NewLog(m)
	catalog := voice.NewCatalog(testVoices, voice.Options{
		PreferredNames: []string{"Ava Song", "Kora"},
		PrimaryName:    "Kora",
	})

	opts := Options{
		Artifact:   state,
		Transcript: log,
		Catalog:    func() *voice.Catalog { return catalog },
		Health:     health.New(health.Catalog(catalog.Len)),
		Observe:    m,
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(func() {
		state.Close()
		log.Close()
		srv.Close()
	})
	return &fixture{srv: srv, state: state, log: log}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestArtifact_ContentTypeAndCSP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		markup   string
		wantType string
		wantBody string
	}{
		{name: "placeholder", markup: "", wantType: "text/html; charset=utf-8", wantBody: artifact.Placeholder},
		{name: "svg", markup: `<svg viewBox="0 0 1 1"/>`, wantType: "image/svg+xml", wantBody: `<svg viewBox="0 0 1 1"/>`},
		{name: "svg with leading whitespace", markup: "\n  <svg/>", wantType: "image/svg+xml", wantBody: "\n  <svg/>"},
		{name: "other markup", markup: "<p>hi</p>", wantType: "text/html; charset=utf-8", wantBody: "<p>hi</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, nil)
			if tt.markup != "" {
				f.state.Set(tt.markup)
			}

			resp, body := get(t, f.srv.URL+"/artifact")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if got := resp.Header.Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if got := resp.Header.Get("Content-Security-Policy"); got != ArtifactCSP {
				t.Errorf("Content-Security-Policy = %q, want %q", got, ArtifactCSP)
			}
			if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q", got)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestArtifactWS_PushesSnapshots(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/artifact/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var first artifactMessage
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.Markup != artifact.Placeholder || first.Kind != artifact.KindPlaceholder {
		t.Errorf("initial = %+v, want placeholder", first)
	}

	f.state.Set("<svg/>")

	var next artifactMessage
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.Markup != "<svg/>" || next.Kind != artifact.KindSVG {
		t.Errorf("update = %+v, want svg", next)
	}
	if next.Version <= first.Version {
		t.Errorf("version did not increase: %d -> %d", first.Version, next.Version)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func TestVoices(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	tests := []struct {
		name            string
		query           string
		wantOthers      []string
		wantResolved    string
		wantSuggestions bool
	}{
		{name: "no query", query: "", wantOthers: []string{"v3", "v4", "v5"}},
		{name: "substring", query: "douglas", wantOthers: []string{"v3"}, wantResolved: "v3"},
		{name: "misspelling suggests", query: "vins duglas", wantOthers: []string{}, wantSuggestions: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, body := get(t, f.srv.URL+"/voices?q="+strings.ReplaceAll(tt.query, " ", "+"))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			var got voicesResponse
			if err := json.Unmarshal([]byte(body), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.DefaultID != "v2" {
				t.Errorf("default_id = %q, want v2", got.DefaultID)
			}
			if len(got.Curated) != 2 || got.Curated[0].ID != "v1" || got.Curated[1].ID != "v2" {
				t.Errorf("curated = %+v, want [v1 v2]", got.Curated)
			}
			var ids []string
			for _, v := range got.Others {
				ids = append(ids, v.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantOthers, ",") {
				t.Errorf("others = %v, want %v", ids, tt.wantOthers)
			}
			if got.ResolvedID != tt.wantResolved {
				t.Errorf("resolved_id = %q, want %q", got.ResolvedID, tt.wantResolved)
			}
			if (len(got.Suggestions) > 0) != tt.wantSuggestions {
				t.Errorf("suggestions = %+v, want present=%v", got.Suggestions, tt.wantSuggestions)
			}
		})
	}
}

func TestTranscript(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, body := get(t, f.srv.URL+"/transcript")
	if !strings.Contains(body, `"entries":[]`) {
		t.Errorf("empty transcript body = %s", body)
	}

	f.log.Append(transcript.Entry{Role: transcript.RoleUser, Content: "draw a boat"})
	f.log.Append(transcript.Entry{Role: transcript.RoleAssistant, Content: "done"})

	resp, body := get(t, f.srv.URL+"/transcript")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	var got transcriptResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 2 || got.Entries[0].Content != "draw a boat" || got.Entries[1].Role != transcript.RoleAssistant {
		t.Errorf("entries = %+v", got.Entries)
	}
}

func TestOptionalRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(o *Options) {
		o.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics")
		})
		o.MCP = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "mcp")
		})
		o.MCPPath = "/tools"
	})

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/readyz", http.StatusOK, `"catalog":"ok"`},
		{"/metrics", http.StatusOK, "# metrics"},
		{"/tools", http.StatusOK, "mcp"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		resp, body := get(t, f.srv.URL+tt.path)
		if resp.StatusCode != tt.wantCode {
			t.Errorf("%s: status = %d, want %d", tt.path, resp.StatusCode, tt.wantCode)
		}
		if !strings.Contains(body, tt.wantBody) {
			t.Errorf("%s: body = %q, want it to contain %q", tt.path, body, tt.wantBody)
		}
	}
}

func TestNew_PanicsWithoutRequiredOptions(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	New(Options{})
}
