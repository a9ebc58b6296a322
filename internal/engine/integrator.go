package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CLIIntegrator implements Integrator by shelling out to a one-shot LLM CLI
// invocation, the same pattern analyzer.CLIClient uses for task
// optimization: non-interactive, credentials via environment only, bounded
// by the caller's context.
type CLIIntegrator struct {
	CommandLine []string
	Env         []string
}

// Integrate runs the configured CLI once with a synthesis prompt built from
// task and the successful agents' raw output, returning its trimmed stdout
// as the combined artifact.
func (c *CLIIntegrator) Integrate(ctx context.Context, task string, outputs []string) (string, error) {
	if len(c.CommandLine) == 0 {
		return "", fmt.Errorf("ensemble integrator: no command configured")
	}

	prompt := buildIntegrationPrompt(task, outputs)
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

func buildIntegrationPrompt(task string, outputs []string) string {
	var b strings.Builder
	b.WriteString("You are synthesizing the best combined result from several independent attempts at the same task.\n\n")
	b.WriteString("Task:\n")
	b.WriteString(task)
	b.WriteString("\n\n")
	for i, out := range outputs {
		fmt.Fprintf(&b, "--- Attempt %d ---\n%s\n\n", i+1, out)
	}
	b.WriteString("Produce one combined result that takes the strongest parts of each attempt.\n")
	return b.String()
}
