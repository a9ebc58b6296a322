package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ait42/orchestrator/internal/model"
	"go.uber.org/zap"
)

const maxIntegrationInputBytes = 64 * 1024

// EnsembleResult is the outcome of one Ensemble run: the per-agent results
// plus, if at least one agent succeeded, a synthesized combined result.
type EnsembleResult struct {
	Outcomes       []*model.AgentOutcome
	Integrated     string
	IntegrationRan bool
}

// RunEnsemble implements the Ensemble mode: the same fan-out as
// Competition, followed by a single integration pass over the successful
// agents' output when at least one of them succeeded. Ensemble never fails
// the run outright for partial agent failure; it only skips integration
// entirely when every agent failed.
func RunEnsemble(ctx context.Context, deps Deps, run *model.Run, report StatusReporter) (*EnsembleResult, error) {
	outcomes, err := RunCompetition(ctx, deps, run, report)
	if err != nil {
		return nil, err
	}

	successful := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Cause != model.ExitCauseSuccess {
			continue
		}
		text, readErr := readOutputText(o.LogPath)
		if readErr != nil {
			deps.Logger.Warn("ensemble: could not read agent output for integration",
				zap.Int("agent_index", o.AgentIndex), zap.Error(readErr))
			continue
		}
		successful = append(successful, text)
	}

	if len(successful) == 0 {
		return &EnsembleResult{Outcomes: outcomes}, nil
	}
	if deps.Integrator == nil {
		return nil, fmt.Errorf("ensemble run requires an Integrator but none was configured")
	}

	integrated, err := deps.Integrator.Integrate(ctx, run.Task, successful)
	if err != nil {
		return &EnsembleResult{Outcomes: outcomes}, fmt.Errorf("integration pass failed: %w", err)
	}

	return &EnsembleResult{Outcomes: outcomes, Integrated: integrated, IntegrationRan: true}, nil
}

func readOutputText(logPath string) (string, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return "", err
	}
	if len(data) > maxIntegrationInputBytes {
		data = data[len(data)-maxIntegrationInputBytes:]
	}
	return strings.TrimSpace(string(data)), nil
}
