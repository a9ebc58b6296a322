package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CLIClient implements LLMClient by shelling out to a one-shot, non-
// interactive invocation of an LLM CLI (as opposed to the long-lived,
// session-supervised invocations the Mode Engines drive). It is the
// Analyzer's default client: the same binary agents use for full runs
// already carries the credential and model configuration, so reusing it
// here needs no separate provider wiring.
type CLIClient struct {
	// CommandLine is the binary and leading args, e.g.
	// []string{"claude", "-p", "--output-format", "json"}. The prompt is
	// appended as the final argument.
	CommandLine []string
	// Env supplies the credential for the CLI via environment variable
	// only, per the credential policy the rest of the system follows.
	Env []string
}

// Complete runs the configured CLI once with prompt appended, bounded by
// ctx's deadline, and returns its trimmed stdout.
func (c *CLIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if len(c.CommandLine) == 0 {
		return "", fmt.Errorf("analyzer CLI client: no command configured")
	}

	args := append(append([]string{}, c.CommandLine[1:]...), prompt)
	cmd := exec.CommandContext(ctx, c.CommandLine[0], args...)
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
