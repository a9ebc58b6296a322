package session

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// muxBinary is the terminal-multiplexer binary invoked for every session
// lifecycle operation. A tmux-compatible command surface is assumed: every
// call below is the literal subcommand tmux itself accepts.
const muxBinary = "tmux"

// newSession creates a detached multiplexer session named name, rooted at
// cwd, running script under a shell. script is expected to already
// incorporate output redirection (the caller builds it via buildRunScript).
// Process spawn uses exec.Command, not exec.CommandContext: the caller's
// inbound request context must never be able to reach in and kill a
// long-lived agent session, only Cancel/timeout may.
func newSession(name, cwd, script string, env []string) error {
	cmd := exec.Command(muxBinary, "new-session", "-d", "-s", name, "-c", cwd, "sh", "-c", script)
	cmd.Env = append(os.Environ(), env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// hasSession reports whether name is still a live session. Bounded by ctx so
// a hung multiplexer binary can't stall the poll loop indefinitely.
func hasSession(ctx context.Context, name string) bool {
	cmd := exec.CommandContext(ctx, muxBinary, "has-session", "-t", name)
	return cmd.Run() == nil
}

// killSession force-terminates a session if it still exists. Killing an
// already-gone session is not an error: multiple teardown paths (cancel,
// timeout, natural completion) may race to call this.
func killSession(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, muxBinary, "kill-session", "-t", name)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if !hasSession(context.Background(), name) {
			return nil
		}
		return fmt.Errorf("%s: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// buildRunScript composes the shell line run inside the session: cmdLine is
// exec'd as the first stage of a pipeline (replacing that stage's subshell,
// so no extra shell sits between the CLI and the pipe) under the session's
// sh, with combined output piped through an
// unbuffered tee into logPath per §4.2 step 3.
func buildRunScript(cmdLine []string, logPath string) string {
	quoted := make([]string, len(cmdLine))
	for i, a := range cmdLine {
		quoted[i] = shellQuote(a)
	}
	return fmt.Sprintf("exec %s 2>&1 | tee -a %s", strings.Join(quoted, " "), shellQuote(logPath))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
