package tui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/voicecanvas/internal/transcript"
)

// scrollView adapts the model's transcript panel to [transcript.View].
//
// The synchronizer calls it from its timer goroutine, so it never touches the
// model directly: visibility is mirrored after every Update and the scroll
// effect is posted back into the event loop as a scrollMsg.
type scrollView struct {
	visible atomic.Bool

	mu   sync.Mutex
	send func(tea.Msg)
}

var _ transcript.View = (*scrollView)(nil)

func (v *scrollView) Visible() bool { return v.visible.Load() }

func (v *scrollView) ScrollToBottom() {
	v.mu.Lock()
	send := v.send
	v.mu.Unlock()
	if send != nil {
		send(scrollMsg{})
	}
}

func (v *scrollView) setVisible(b bool) { v.visible.Store(b) }

func (v *scrollView) bind(send func(tea.Msg)) {
	v.mu.Lock()
	v.send = send
	v.mu.Unlock()
}
