package session

import (
	"strings"
	"sync"

	"github.com/tuzig/vt10x"
)

// terminalRenderer feeds raw PTY/log bytes (which may carry ANSI escape
// sequences the LLM CLI emits for its own TUI) through a virtual terminal
// emulator so failure-sentinel scanning operates on rendered plain text
// rather than raw control sequences that could otherwise hide or split a
// sentinel across an escape boundary.
type terminalRenderer struct {
	mu   sync.Mutex
	term vt10x.Terminal
	cols int
	rows int
}

const (
	rendererCols = 220
	rendererRows = 64
)

func newTerminalRenderer() *terminalRenderer {
	return &terminalRenderer{
		term: vt10x.New(vt10x.WithSize(rendererCols, rendererRows)),
		cols: rendererCols,
		rows: rendererRows,
	}
}

// Write feeds data into the virtual terminal. Never returns an error: a
// malformed escape sequence degrades the rendering, it never breaks the
// tail.
func (r *terminalRenderer) Write(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.term.Write(data)
}

// Render returns the current visible screen as plain text, one string per
// row, trailing blank rows trimmed.
func (r *terminalRenderer) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := make([]string, 0, r.rows)
	for row := 0; row < r.rows; row++ {
		var b strings.Builder
		for col := 0; col < r.cols; col++ {
			g := r.term.Cell(col, row)
			if g.Char == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteRune(g.Char)
			}
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
