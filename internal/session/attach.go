package session

import (
	"fmt"
	"os/exec"
)

// Attach opens a live, interactive view onto an already-running session by
// attaching the multiplexer's own client inside a freshly allocated
// pseudo-terminal. This is an observability/debugging side channel: it
// never participates in completion detection, which remains
// session-existence polling regardless of whether anyone is attached.
func Attach(name string, cols, rows int) (PtyHandle, error) {
	cmd := exec.Command(muxBinary, "attach-session", "-t", name)
	handle, err := startPTYWithSize(cmd, cols, rows)
	if err != nil {
		return nil, fmt.Errorf("attach to session %s: %w", name, err)
	}
	return handle, nil
}
