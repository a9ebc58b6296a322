package session

import "io"

// PtyHandle abstracts pseudo-terminal operations across Unix and Windows,
// backing Attach's live view onto a running session.
// On Unix this wraps creack/pty (*os.File); on Windows it wraps ConPTY.
type PtyHandle interface {
	io.ReadWriteCloser
	// Resize changes the PTY window size.
	Resize(cols, rows uint16) error
}
