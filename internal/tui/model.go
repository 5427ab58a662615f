// Package tui is the interactive terminal front end: a voice picker, the
// connection flow and the connected screen showing the artifact and the
// transcript.
//
// The model follows the Elm architecture of bubbletea. Everything that
// happens outside the event loop (artifact updates, new transcript entries,
// debounced scroll effects, session termination) arrives as a message.
package tui

import (
	"context"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/voicecanvas/internal/artifact"
	"github.com/MrWong99/voicecanvas/internal/config"
	"github.com/MrWong99/voicecanvas/internal/transcript"
	"github.com/MrWong99/voicecanvas/pkg/voice"
)

// otherLabel is the picker entry that switches to free text input.
const otherLabel = "Other…"

// Connector starts and stops realtime sessions on behalf of the UI.
type Connector interface {
	// Start opens a session with voiceID. The returned channel receives the
	// session's final error (nil for a clean end) and is then closed.
	Start(ctx context.Context, voiceID string) (<-chan error, error)

	// Stop ends the current session. Stopping with no active session is not
	// an error for the UI and is ignored.
	Stop(ctx context.Context) error
}

// Deps are the collaborators of the UI.
type Deps struct {
	// Catalog returns the current voice catalog. It is called on every
	// picker interaction so a reloaded catalog shows up without a restart.
	Catalog    func() *voice.Catalog
	Connector  Connector
	Artifact   *artifact.State
	Transcript *transcript.Log
	Mode       config.TranscriptMode

	// ArtifactURL is shown on the connected screen. Optional.
	ArtifactURL string
}

type screen int

const (
	screenPicker screen = iota
	screenOther
	screenConnecting
	screenConnected
)

// ── Messages ────────────────────────────────────────────────────────────────

type connectedMsg struct {
	voiceID string
	done    <-chan error
}

type connectErrMsg struct{ err error }

type sessionEndedMsg struct{ err error }

type artifactMsg artifact.Snapshot

type entryMsg transcript.Entry

// scrollMsg is delivered by the transcript synchronizer's debounced effect.
type scrollMsg struct{}

// Model is the root bubbletea model.
type Model struct {
	deps Deps
	ctx  context.Context

	screen  screen
	cursor  int
	items   []voice.Voice
	catalog *voice.Catalog

	other       textinput.Model
	matches     []voice.Voice
	suggestions []voice.Voice

	spinner    spinner.Model
	transcript viewport.Model
	showLog    bool
	view       *scrollView

	snapshot artifact.Snapshot
	voiceID  string
	status   string
	err      error

	artifactCh <-chan artifact.Snapshot
	entryCh    <-chan transcript.Entry

	width, height int
}

// NewModel returns a Model on the picker screen with the default voice
// selected. ctx bounds connection attempts.
func NewModel(ctx context.Context, deps Deps) Model {
	ti := textinput.New()
	ti.Placeholder = "type a voice name"
	ti.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		deps:       deps,
		ctx:        ctx,
		other:      ti,
		spinner:    sp,
		transcript: viewport.New(80, 10),
		showLog:    deps.Mode == config.TranscriptAlways,
		view:       &scrollView{},
		snapshot:   deps.Artifact.Current(),
	}
	m.syncItems()
	m.matches = deps.Catalog().FilterOthers("")
	return m
}

// syncItems reloads the curated list when the catalog was replaced. The
// cursor stays on the same voice (or on the Other entry) when it survives the
// change and moves to the default voice otherwise.
func (m *Model) syncItems() {
	cat := m.deps.Catalog()
	if cat == m.catalog {
		return
	}
	first := m.catalog == nil
	m.catalog = cat

	onOther := !first && m.cursor == len(m.items)
	var selected string
	if !first && m.cursor < len(m.items) {
		selected = m.items[m.cursor].ID
	}
	m.items = cat.Curated()
	switch {
	case onOther:
		m.cursor = len(m.items)
	case indexOf(m.items, selected) >= 0:
		m.cursor = indexOf(m.items, selected)
	default:
		m.cursor = max(indexOf(m.items, cat.DefaultID()), 0)
	}
}

func indexOf(items []voice.Voice, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(items, func(v voice.Voice) bool { return v.ID == id })
}

// ScrollTarget returns the transcript.View backed by this model. It must be attached
// to the synchronizer before the program starts.
func (m Model) ScrollTarget() transcript.View { return m.view }

// Init subscribes to artifact and transcript updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeArtifact(m.deps.Artifact),
		subscribeTranscript(m.deps.Transcript),
	)
}

type artifactSubMsg struct{ ch <-chan artifact.Snapshot }

type transcriptSubMsg struct{ ch <-chan transcript.Entry }

func subscribeArtifact(s *artifact.State) tea.Cmd {
	return func() tea.Msg {
		ch, _ := s.Subscribe()
		return artifactSubMsg{ch: ch}
	}
}

func subscribeTranscript(l *transcript.Log) tea.Cmd {
	return func() tea.Msg {
		ch, _ := l.Subscribe()
		return transcriptSubMsg{ch: ch}
	}
}

func waitArtifact(ch <-chan artifact.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return artifactMsg(s)
	}
}

func waitEntry(ch <-chan transcript.Entry) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return entryMsg(e)
	}
}

func waitSession(done <-chan error) tea.Cmd {
	return func() tea.Msg {
		return sessionEndedMsg{err: <-done}
	}
}

func (m Model) connect(voiceID string) tea.Cmd {
	c, ctx := m.deps.Connector, m.ctx
	return func() tea.Msg {
		done, err := c.Start(ctx, voiceID)
		if err != nil {
			return connectErrMsg{err: err}
		}
		return connectedMsg{voiceID: voiceID, done: done}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.screen == screenPicker {
		m.syncItems()
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

	case artifactSubMsg:
		m.artifactCh = msg.ch
		cmds = append(cmds, waitArtifact(msg.ch))

	case transcriptSubMsg:
		m.entryCh = msg.ch
		cmds = append(cmds, waitEntry(msg.ch))

	case artifactMsg:
		m.snapshot = artifact.Snapshot(msg)
		cmds = append(cmds, waitArtifact(m.artifactCh))

	case entryMsg:
		m.transcript.SetContent(renderEntries(m.deps.Transcript.Entries(), m.transcript.Width))
		cmds = append(cmds, waitEntry(m.entryCh))

	case scrollMsg:
		m.transcript.GotoBottom()

	case spinner.TickMsg:
		if m.screen == screenConnecting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case connectedMsg:
		m.screen = screenConnected
		m.voiceID = msg.voiceID
		m.err = nil
		m.status = "connected"
		m.transcript.SetContent(renderEntries(m.deps.Transcript.Entries(), m.transcript.Width))
		cmds = append(cmds, waitSession(msg.done))

	case connectErrMsg:
		m.screen = screenPicker
		m.err = msg.err
		m.status = "connection failed"

	case sessionEndedMsg:
		if m.screen == screenConnected {
			m.screen = screenPicker
			m.err = msg.err
			m.status = "session ended"
		}

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.stop()
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		cmds = append(cmds, cmd)
	}

	if m.screen == screenPicker {
		m.syncItems()
	}
	m.view.setVisible(m.transcriptMounted())
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.screen {
	case screenPicker:
		switch msg.String() {
		case "q", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items) {
				m.cursor++
			}
		case "enter":
			if m.cursor == len(m.items) {
				m.screen = screenOther
				m.other.SetValue("")
				m.refreshMatches()
				return m, m.other.Focus()
			}
			return m.startConnect(m.deps.Catalog().Resolve(voice.Selection{VoiceID: m.items[m.cursor].ID}))
		}

	case screenOther:
		switch msg.String() {
		case "esc":
			m.other.Blur()
			m.screen = screenPicker
			return m, nil
		case "tab":
			if len(m.matches) > 0 {
				m.other.SetValue(m.matches[0].Name)
				m.other.CursorEnd()
				m.refreshMatches()
			} else if len(m.suggestions) > 0 {
				m.other.SetValue(m.suggestions[0].Name)
				m.other.CursorEnd()
				m.refreshMatches()
			}
			return m, nil
		case "enter":
			m.other.Blur()
			return m.startConnect(m.deps.Catalog().Resolve(voice.Selection{
				Other:      true,
				OtherInput: m.query(),
			}))
		}
		var cmd tea.Cmd
		m.other, cmd = m.other.Update(msg)
		m.refreshMatches()
		return m, cmd

	case screenConnected:
		switch msg.String() {
		case "t":
			if m.deps.Mode == config.TranscriptToggle {
				m.showLog = !m.showLog
				if m.showLog {
					m.transcript.GotoBottom()
				}
			}
		case "d", "esc":
			m.status = "disconnecting"
			m.stop()
		case "q":
			m.stop()
			return m, tea.Quit
		default:
			if m.transcriptMounted() {
				var cmd tea.Cmd
				m.transcript, cmd = m.transcript.Update(msg)
				return m, cmd
			}
		}
	}
	return m, nil
}

func (m Model) stop() {
	_ = m.deps.Connector.Stop(context.WithoutCancel(m.ctx))
}

func (m Model) startConnect(voiceID string) (Model, tea.Cmd) {
	m.screen = screenConnecting
	m.err = nil
	m.status = "connecting"
	return m, tea.Batch(m.spinner.Tick, m.connect(voiceID))
}

// refreshMatches recomputes the filtered others and, when nothing matches,
// the "did you mean" suggestions.
func (m *Model) refreshMatches() {
	q := m.query()
	cat := m.deps.Catalog()
	m.matches = cat.FilterOthers(q)
	m.suggestions = nil
	if q != "" && len(m.matches) == 0 {
		m.suggestions = cat.Suggest(q)
	}
}

// query is the free text input as used for filtering and resolution.
func (m Model) query() string {
	return strings.TrimSpace(m.other.Value())
}

// transcriptMounted reports whether the transcript panel is on screen.
func (m Model) transcriptMounted() bool {
	return m.screen == screenConnected && m.deps.Mode != config.TranscriptHidden && m.showLog
}

func (m *Model) resize() {
	w := max(m.width-4, 20)
	m.transcript.Width = w
	m.transcript.Height = max(m.height/3, 3)
	m.transcript.SetContent(renderEntries(m.deps.Transcript.Entries(), w))
}
