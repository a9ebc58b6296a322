package engine

import (
	"context"
	"sync"

	"github.com/ait42/orchestrator/internal/model"
)

// RunCompetition implements the Competition mode: N independent agents
// attack the same task from isolated working copies, no cross-agent
// communication, winner selection left to the caller. A partial failure
// does not fail the run — Competition degrades gracefully as long as the
// caller still gets to see which agents succeeded.
func RunCompetition(ctx context.Context, deps Deps, run *model.Run, report StatusReporter) ([]*model.AgentOutcome, error) {
	if err := validateInstanceCount(len(run.AgentPlan)); err != nil {
		return nil, err
	}
	if err := validateModelTag(deps, run.ModelTag); err != nil {
		return nil, err
	}

	report(model.RunStatusProvisioning)

	launched := make([]*launchedAgent, len(run.AgentPlan))
	launchErrs := make([]error, len(run.AgentPlan))

	var wg sync.WaitGroup
	for i, spec := range run.AgentPlan {
		wg.Add(1)
		go func(i int, spec model.AgentSpec) {
			defer wg.Done()
			la, err := provisionAndLaunch(ctx, deps, run, spec, spec.SystemPromptOverride, nil)
			launched[i] = la
			launchErrs[i] = err
		}(i, spec)
	}
	wg.Wait()

	report(model.RunStatusRunning)

	outcomes := make([]*model.AgentOutcome, 0, len(run.AgentPlan))
	var outcomesMu sync.Mutex
	var awaitWg sync.WaitGroup

	for i, la := range launched {
		if la == nil {
			// Provisioning or launch itself failed: synthesize a failed
			// outcome so callers see a uniform per-agent result set.
			outcomesMu.Lock()
			outcomes = append(outcomes, &model.AgentOutcome{
				AgentIndex:    run.AgentPlan[i].Index,
				Cause:         model.ExitCauseCrashed,
				FailureReason: launchErrs[i].Error(),
			})
			outcomesMu.Unlock()
			continue
		}

		awaitWg.Add(1)
		go func(la *launchedAgent) {
			defer awaitWg.Done()
			outcome, err := la.supervisor.AwaitCompletion(ctx, run.TimeoutPerUnit)
			if err != nil && outcome == nil {
				outcome = &model.AgentOutcome{AgentIndex: la.spec.Index, Cause: model.ExitCauseCrashed, FailureReason: err.Error()}
			}
			outcomesMu.Lock()
			outcomes = append(outcomes, outcome)
			outcomesMu.Unlock()

			if !run.PreserveArtifacts {
				releaseWorkingCopy(ctx, deps, run, la.workingCopy)
			}
		}(la)
	}
	awaitWg.Wait()

	report(model.RunStatusCompleted)
	_ = deps.Bus.Publish(ctx, model.NewRunStatusEvent(run.RunID, model.RunStatusCompleted))

	return outcomes, nil
}
