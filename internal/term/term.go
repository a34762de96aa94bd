// Package term renders the chat in a terminal: messages, confidence bars,
// notices and the sidebar list.
package term

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pbaille/newschat/internal/domain"
)

const welcome = `Bienvenido al modelo de Noticias Falsas
Inicie una conversación escribiendo una noticia o usando el micrófono.`

// Terminal implements domain.UI and domain.Notifier on a writer.
type Terminal struct {
	mu       sync.Mutex
	out      io.Writer
	barWidth int
	input    string
	shown    []domain.Message
	view     uint64
}

func New(out io.Writer, barWidth int) *Terminal {
	if barWidth <= 0 {
		barWidth = 20
	}
	return &Terminal{out: out, barWidth: barWidth}
}

func (t *Terminal) SetBusy(busy bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if busy {
		fmt.Fprintln(t.out, "… clasificando")
	}
}

func (t *Terminal) ClearInput() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input = ""
}

func (t *Terminal) SetInput(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input = text
	fmt.Fprintf(t.out, "🎤 %s\n", text)
}

// TakeInput returns the pending input buffer and empties it.
func (t *Terminal) TakeInput() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	in := t.input
	t.input = ""
	return in
}

// Render prints only the messages added since the last render, or the
// whole conversation when it was replaced.
func (t *Terminal) Render(snap domain.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msgs := snap.Messages
	if snap.View == t.view && isPrefix(t.shown, msgs) {
		for _, m := range msgs[len(t.shown):] {
			t.writeMessage(m)
		}
	} else {
		fmt.Fprintln(t.out, strings.Repeat("─", t.barWidth+12))
		if len(msgs) == 0 {
			fmt.Fprintln(t.out, welcome)
		}
		for _, m := range msgs {
			t.writeMessage(m)
		}
	}
	t.shown = msgs
	t.view = snap.View
}

func (t *Terminal) Notify(n domain.Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "[%s] %s: %s\n", n.Severity, n.Title, n.Text)
}

// Print writes messages without touching the render state.
func (t *Terminal) Print(msgs ...domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range msgs {
		t.writeMessage(m)
	}
}

// Sidebar prints the numbered list of past items.
func (t *Terminal) Sidebar(items []domain.SidebarItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(items) == 0 {
		fmt.Fprintln(t.out, "Sin historial.")
		return
	}
	for i, it := range items {
		fmt.Fprintf(t.out, "%3d  %-28s  %s\n", i+1, it.Title, it.Timestamp)
	}
}

func (t *Terminal) writeMessage(m domain.Message) {
	switch m.Role {
	case domain.RoleUser:
		fmt.Fprintf(t.out, "> %s\n", m.Text)
	default:
		fmt.Fprintf(t.out, "  %s\n", m.Text)
		if m.Confidence != nil {
			fmt.Fprintf(t.out, "  %s\n", ConfidenceBar(*m.Confidence, t.barWidth))
		}
	}
}

// ConfidenceBar draws a horizontal 0-100% bar of the given width.
func ConfidenceBar(confidence float64, width int) string {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	filled := int(confidence/100*float64(width) + 0.5)
	return fmt.Sprintf("[%s%s] %g%%",
		strings.Repeat("█", filled),
		strings.Repeat("░", width-filled),
		confidence)
}

func isPrefix(prefix, msgs []domain.Message) bool {
	if len(prefix) > len(msgs) {
		return false
	}
	for i := range prefix {
		if prefix[i].Role != msgs[i].Role || prefix[i].Text != msgs[i].Text {
			return false
		}
	}
	return true
}
