package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/voicecanvas/internal/transcript"
)

// Run shows the UI until the user quits or ctx is cancelled. The transcript
// view is attached to syncer for the lifetime of the program.
func Run(ctx context.Context, deps Deps, syncer *transcript.Synchronizer) error {
	m := NewModel(ctx, deps)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	m.view.bind(p.Send)
	if syncer != nil {
		syncer.Attach(m.view)
		defer syncer.Detach()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
