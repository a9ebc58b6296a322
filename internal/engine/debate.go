package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ait42/orchestrator/internal/model"
	"github.com/ait42/orchestrator/internal/session"
	"go.uber.org/zap"
)

const (
	defaultDebateRounds  = 3
	breakerMaxFailures   = 2
	breakerResetTimeout  = 30 * time.Second
	breakerHalfOpenTests = 1
)

func roundStatusFor(round, total int) model.RunStatus {
	switch {
	case round == 1:
		return model.RunStatusRound1
	case round == 2:
		return model.RunStatusRound2
	default:
		return model.RunStatusRoundN
	}
}

// RunDebate implements the Debate mode: K roles deliberate over
// RoundsTotal sequential rounds (default defaultDebateRounds), parallel
// within each round and barriered between rounds. Each role keeps the same
// working copy across rounds; only the session is relaunched per round.
func RunDebate(ctx context.Context, deps Deps, run *model.Run, report StatusReporter) ([]model.RoundOutput, error) {
	if err := validateModelTag(deps, run.ModelTag); err != nil {
		return nil, err
	}
	if len(run.AgentPlan) == 0 {
		return nil, fmt.Errorf("%w: debate requires at least one role", model.ErrInvalidRequest)
	}

	roundsTotal := run.RoundsTotal
	if roundsTotal <= 0 {
		roundsTotal = defaultDebateRounds
	}

	report(model.RunStatusProvisioning)

	working := make(map[int]*model.WorkingCopy, len(run.AgentPlan))
	breakers := make(map[int]*CircuitBreaker, len(run.AgentPlan))
	for _, spec := range run.AgentPlan {
		wc, err := deps.Workspace.Provision(ctx, run.RunID, run.Mode, spec.Index, run.BaseWorkingDirectory)
		if err != nil {
			for _, already := range working {
				releaseWorkingCopy(ctx, deps, run, already)
			}
			return nil, err
		}
		working[spec.Index] = wc
		breakers[spec.Index] = NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout, breakerHalfOpenTests, deps.Logger)
	}
	defer func() {
		if !run.PreserveArtifacts {
			for _, wc := range working {
				releaseWorkingCopy(ctx, deps, run, wc)
			}
		}
	}()

	var allRounds []model.RoundOutput
	contextDir := filepath.Join(run.BaseWorkingDirectory, "context")
	if err := os.MkdirAll(contextDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrIO, err)
	}

	for round := 1; round <= roundsTotal; round++ {
		report(roundStatusFor(round, roundsTotal))

		priorContext, err := loadPriorRoundsContext(contextDir, round, run.StrictContextReload)
		if err != nil {
			return allRounds, err
		}

		roundOutputs := runDebateRound(ctx, deps, run, round, working, breakers, priorContext)
		allRounds = append(allRounds, roundOutputs...)

		for _, ro := range roundOutputs {
			_ = deps.Bus.Publish(ctx, model.NewRoundOutputEvent(run.RunID, ro))
		}

		if err := persistRoundOutputs(contextDir, round, roundOutputs); err != nil {
			deps.Logger.Warn("failed to persist round outputs to disk", zap.Error(err))
		}

		if allRoleFailed(roundOutputs) {
			err := fmt.Errorf("%w: round %d", model.ErrAllRolesInRound, round)
			report(model.RunStatusFailed)
			_ = deps.Bus.Publish(ctx, model.NewRunStatusEvent(run.RunID, model.RunStatusFailed))
			return allRounds, err
		}
	}

	report(model.RunStatusCompleted)
	_ = deps.Bus.Publish(ctx, model.NewRunStatusEvent(run.RunID, model.RunStatusCompleted))
	return allRounds, nil
}

func allRoleFailed(outputs []model.RoundOutput) bool {
	for _, o := range outputs {
		if o.Status == "succeeded" {
			return false
		}
	}
	return len(outputs) > 0
}

func runDebateRound(
	ctx context.Context,
	deps Deps,
	run *model.Run,
	round int,
	working map[int]*model.WorkingCopy,
	breakers map[int]*CircuitBreaker,
	priorContext string,
) []model.RoundOutput {
	outputs := make([]model.RoundOutput, len(run.AgentPlan))

	var wg sync.WaitGroup
	for i, spec := range run.AgentPlan {
		wg.Add(1)
		go func(i int, spec model.AgentSpec) {
			defer wg.Done()
			outputs[i] = runDebateRole(ctx, deps, run, round, spec, working[spec.Index], breakers[spec.Index], priorContext)
		}(i, spec)
	}
	wg.Wait()

	return outputs
}

func runDebateRole(
	ctx context.Context,
	deps Deps,
	run *model.Run,
	round int,
	spec model.AgentSpec,
	wc *model.WorkingCopy,
	breaker *CircuitBreaker,
	priorContext string,
) model.RoundOutput {
	started := time.Now()

	if round > 1 && !breaker.CanExecute() {
		return model.RoundOutput{
			RoundNumber: round, RoleID: spec.RoleID, Status: "failed",
			StartedAt: started, CompletedAt: time.Now(),
			TextContent: "role skipped: circuit breaker open after repeated failures",
		}
	}

	extraVars := map[string]string{"round": fmt.Sprintf("%d", round), "prior_rounds_context": priorContext}
	tmpl := deps.CLIProfiles[run.ModelTag]
	vars := invocationVars(run, spec, spec.SystemPromptOverride, extraVars)
	vars["workspace.path"] = wc.Path
	cmdLine, env := buildInvocation(tmpl, vars)

	sup, err := session.Launch(ctx, deps.SessionCfg, deps.Bus, deps.Logger, run.RunID, run.Mode, spec.Index, wc, run.BaseWorkingDirectory, cmdLine, env)
	if err != nil {
		breaker.RecordFailure()
		return model.RoundOutput{
			RoundNumber: round, RoleID: spec.RoleID, Status: "failed",
			StartedAt: started, CompletedAt: time.Now(), TextContent: err.Error(),
		}
	}

	outcome, err := sup.AwaitCompletion(ctx, run.TimeoutPerUnit)
	completed := time.Now()
	if err != nil || outcome == nil || outcome.Cause != model.ExitCauseSuccess {
		breaker.RecordFailure()
		reason := ""
		if outcome != nil {
			reason = outcome.FailureReason
		} else if err != nil {
			reason = err.Error()
		}
		return model.RoundOutput{
			RoundNumber: round, RoleID: spec.RoleID, Status: "failed",
			StartedAt: started, CompletedAt: completed,
			ExecutionTimeMs: completed.Sub(started).Milliseconds(),
			TextContent:     reason,
		}
	}

	breaker.RecordSuccess()
	text, readErr := readOutputText(outcome.LogPath)
	if readErr != nil {
		text = ""
	}
	return model.RoundOutput{
		RoundNumber: round, RoleID: spec.RoleID, Status: "succeeded",
		StartedAt: started, CompletedAt: completed,
		ExecutionTimeMs: completed.Sub(started).Milliseconds(),
		TextContent:     text,
		ArtifactPath:    outcome.LogPath,
	}
}

func persistRoundOutputs(contextDir string, round int, outputs []model.RoundOutput) error {
	path := filepath.Join(contextDir, fmt.Sprintf("round%d-outputs.json", round))
	data, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// loadPriorRoundsContext concatenates every already-completed round's
// serialized output into one context blob handed to the next round's
// agents. Round 1 has no prior context.
func loadPriorRoundsContext(contextDir string, round int, strict bool) (string, error) {
	if round == 1 {
		return "", nil
	}

	var combined []byte
	for r := 1; r < round; r++ {
		path := filepath.Join(contextDir, fmt.Sprintf("round%d-outputs.json", r))
		data, err := os.ReadFile(path)
		if err != nil {
			if strict {
				return "", fmt.Errorf("%w: %s", model.ErrContextCorrupted, path)
			}
			continue
		}
		var outputs []model.RoundOutput
		if jsonErr := json.Unmarshal(data, &outputs); jsonErr != nil {
			if strict {
				return "", fmt.Errorf("%w: %s", model.ErrContextCorrupted, path)
			}
			continue
		}
		combined = append(combined, data...)
		combined = append(combined, '\n')
	}
	return string(combined), nil
}
