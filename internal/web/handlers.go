package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voicecanvas/internal/artifact"
	"github.com/MrWong99/voicecanvas/internal/observe"
	"github.com/MrWong99/voicecanvas/internal/transcript"
	"github.com/MrWong99/voicecanvas/pkg/voice"
)

// wsWriteTimeout bounds a single WebSocket write.
const wsWriteTimeout = 5 * time.Second

// handleArtifact handles GET /artifact.
func (s *Server) handleArtifact(w http.ResponseWriter, _ *http.Request) {
	snap := s.opts.Artifact.Current()

	h := w.Header()
	h.Set("Content-Type", contentType(snap.Markup))
	h.Set("Content-Security-Policy", ArtifactCSP)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Artifact-Version", strconv.FormatUint(snap.Version, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(snap.Markup))
}

// artifactMessage is the JSON frame pushed on /artifact/ws.
type artifactMessage struct {
	Version   uint64    `json:"version"`
	Kind      string    `json:"kind"`
	Markup    string    `json:"markup"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newArtifactMessage(s artifact.Snapshot) artifactMessage {
	return artifactMessage{
		Version:   s.Version,
		Kind:      s.Kind(),
		Markup:    s.Markup,
		UpdatedAt: s.UpdatedAt,
	}
}

// handleArtifactWS handles GET /artifact/ws. The current snapshot is sent
// immediately, then every update. Updates that arrive faster than the client
// reads are coalesced to the newest one.
func (s *Server) handleArtifactWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("web: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	updates, cancel := s.opts.Artifact.Subscribe()
	defer cancel()

	// The client never sends; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := writeJSON(ctx, conn, newArtifactMessage(snap)); err != nil {
				observe.Logger(ctx).Debug("web: artifact push ended", "err", err)
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

// voicesResponse is the JSON body of GET /voices.
type voicesResponse struct {
	DefaultID   string        `json:"default_id"`
	Curated     []voice.Voice `json:"curated"`
	Others      []voice.Voice `json:"others"`
	Query       string        `json:"query"`
	ResolvedID  string        `json:"resolved_id"`
	Suggestions []voice.Voice `json:"suggestions,omitempty"`
}

// handleVoices handles GET /voices?q=. Suggestions are only computed when
// a non-empty query filters every other voice out.
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	c := s.opts.Catalog()
	q := r.URL.Query().Get("q")

	resp := voicesResponse{
		DefaultID:  c.DefaultID(),
		Curated:    c.Curated(),
		Others:     c.FilterOthers(q),
		Query:      q,
		ResolvedID: c.ResolveFreeText(q),
	}
	if q != "" && len(resp.Others) == 0 {
		resp.Suggestions = c.Suggest(q)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// transcriptResponse is the JSON body of GET /transcript.
type transcriptResponse struct {
	Entries []transcript.Entry `json:"entries"`
}

// handleTranscript handles GET /transcript.
func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	entries := s.opts.Transcript.Entries()
	if entries == nil {
		entries = []transcript.Entry{}
	}
	writeJSONResponse(w, http.StatusOK, transcriptResponse{Entries: entries})
}

// writeJSONResponse encodes v as JSON and writes it with the given status
// code. On encoding failure it falls back to a plain-text 500 response.
func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
