package tui

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/smileynet/mosaic/internal/cache"
	"github.com/smileynet/mosaic/internal/orchestrator"
)

// IsTTY reports whether w is connected to a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// TileUpdateMsg bridges load settle notifications to the TUI.
type TileUpdateMsg struct {
	ID       string
	Kind     cache.Kind
	Status   orchestrator.Status
	Attempts int
}

// Bridge forwards orchestrator status callbacks, which arrive on
// loader worker goroutines, into a Bubble Tea program.
type Bridge struct {
	ch   chan tea.Msg
	stop chan struct{}
}

// NewBridge creates a Bridge with a buffered event channel.
func NewBridge() *Bridge {
	return &Bridge{
		ch:   make(chan tea.Msg, 64),
		stop: make(chan struct{}),
	}
}

// Callback returns a status callback that queues updates for the
// program. When the buffer is full the update is dropped; a drop only
// delays a repaint, it never loses cache state.
func (b *Bridge) Callback() orchestrator.StatusCallback {
	return func(u orchestrator.StatusUpdate) {
		msg := TileUpdateMsg{ID: u.ID, Kind: u.Kind, Status: u.Status, Attempts: u.Attempts}
		select {
		case b.ch <- msg:
		case <-b.stop:
		default:
		}
	}
}

// Sender receives pumped messages. *tea.Program satisfies it.
type Sender interface {
	Send(tea.Msg)
}

// Forward pumps queued messages into p until Close is called.
// Run it in its own goroutine.
func (b *Bridge) Forward(p Sender) {
	for {
		select {
		case msg := <-b.ch:
			p.Send(msg)
		case <-b.stop:
			return
		}
	}
}

// Close stops forwarding and releases callback senders.
func (b *Bridge) Close() {
	close(b.stop)
}
