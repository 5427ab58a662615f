package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/voicecanvas/internal/config"
	"github.com/MrWong99/voicecanvas/internal/transcript"
)

// previewLines is the number of markup lines shown in the artifact panel.
const previewLines = 8

type theme struct {
	title     lipgloss.Style
	selected  lipgloss.Style
	muted     lipgloss.Style
	errorText lipgloss.Style
	panel     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	system    lipgloss.Style
}

func newTheme() theme {
	return theme{
		title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7dd3fc")),
		selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#facc15")),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8")),
		errorText: lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171")),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#334155")).
			Padding(0, 1),
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("#86efac")),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("#c4b5fd")),
		system:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#fca5a5")),
	}
}

var styles = newTheme()

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("voicecanvas"))
	b.WriteString("\n\n")

	switch m.screen {
	case screenPicker:
		b.WriteString(m.pickerView())
	case screenOther:
		b.WriteString(m.otherView())
	case screenConnecting:
		fmt.Fprintf(&b, "%s connecting…\n", m.spinner.View())
	case screenConnected:
		b.WriteString(m.connectedView())
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(styles.errorText.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) pickerView() string {
	var b strings.Builder
	b.WriteString("Choose a voice:\n")
	for i, v := range m.items {
		b.WriteString(m.row(i, v.Name))
	}
	b.WriteString(m.row(len(m.items), otherLabel))
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(styles.muted.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(styles.muted.Render("↑/↓ select • enter connect • q quit"))
	return b.String()
}

func (m Model) row(i int, label string) string {
	if i == m.cursor {
		return styles.selected.Render("> "+label) + "\n"
	}
	return "  " + label + "\n"
}

func (m Model) otherView() string {
	var b strings.Builder
	b.WriteString("Other voice:\n")
	b.WriteString(m.other.View())
	b.WriteString("\n\n")
	switch {
	case len(m.matches) > 0:
		for _, v := range m.matches {
			b.WriteString("  " + v.Name + "\n")
		}
	case len(m.suggestions) > 0:
		names := make([]string, len(m.suggestions))
		for i, v := range m.suggestions {
			names[i] = v.Name
		}
		b.WriteString(styles.muted.Render("no match, did you mean: " + strings.Join(names, ", ")))
		b.WriteString("\n")
	case strings.TrimSpace(m.other.Value()) != "":
		b.WriteString(styles.muted.Render("no match, the default voice of the backend will be used"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.muted.Render("tab complete • enter connect • esc back"))
	return b.String()
}

func (m Model) connectedView() string {
	var b strings.Builder
	voiceLabel := m.voiceID
	if voiceLabel == "" {
		voiceLabel = "backend default"
	} else if v, ok := m.deps.Catalog().Lookup(m.voiceID); ok {
		voiceLabel = v.Name
	}
	fmt.Fprintf(&b, "%s  voice: %s\n\n", styles.selected.Render("● "+m.status), voiceLabel)

	b.WriteString(styles.panel.Render(m.artifactPanel()))
	b.WriteString("\n")

	if m.transcriptMounted() {
		b.WriteString(styles.panel.Render(m.transcript.View()))
		b.WriteString("\n")
	}

	help := "d disconnect • q quit"
	if m.deps.Mode == config.TranscriptToggle {
		help = "t transcript • " + help
	}
	b.WriteString(styles.muted.Render(help))
	return b.String()
}

func (m Model) artifactPanel() string {
	s := m.snapshot
	var b strings.Builder
	fmt.Fprintf(&b, "artifact v%d (%s, %d bytes)", s.Version, s.Kind(), len(s.Markup))
	if m.deps.ArtifactURL != "" {
		fmt.Fprintf(&b, "  %s", m.deps.ArtifactURL)
	}
	b.WriteString("\n")

	width := max(m.width-8, 20)
	lines := strings.Split(s.Markup, "\n")
	for i, line := range lines {
		if i == previewLines {
			b.WriteString(styles.muted.Render(fmt.Sprintf("… %d more lines", len(lines)-previewLines)))
			break
		}
		b.WriteString(styles.muted.Render(truncate(line, width)))
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderEntries formats transcript entries for the viewport.
func renderEntries(entries []transcript.Entry, width int) string {
	if len(entries) == 0 {
		return styles.muted.Render("(no messages yet)")
	}
	wrap := lipgloss.NewStyle().Width(max(width, 10))
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		var label string
		switch e.Role {
		case transcript.RoleUser:
			label = styles.user.Render("you")
		case transcript.RoleAssistant:
			label = styles.assistant.Render("assistant")
		default:
			label = styles.system.Render(string(e.Role))
		}
		b.WriteString(wrap.Render(fmt.Sprintf("%s %s: %s", e.Timestamp.Format("15:04:05"), label, e.Content)))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
