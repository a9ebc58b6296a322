// Package engine implements the three Mode Engines (C5): Competition,
// Ensemble, and Debate. All three share a provisioning/launch skeleton and
// diverge in fan-out shape and inter-agent data flow.
package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/eventbus"
	"github.com/ait42/orchestrator/internal/model"
	"github.com/ait42/orchestrator/internal/scriptengine"
	"github.com/ait42/orchestrator/internal/session"
	"github.com/ait42/orchestrator/internal/sysprompt"
	"github.com/ait42/orchestrator/internal/workspace"
	"go.uber.org/zap"
)

// CLITemplate is the command-line/environment shape for one model tag. Each
// element may contain {{placeholder}} tokens resolved per-agent via
// scriptengine, the same templating mechanism the Workspace Provisioner
// uses for setup/cleanup hooks.
type CLITemplate struct {
	Command []string
	Env     []string
}

// CLIProfiles selects a CLITemplate per quality/speed tier.
type CLIProfiles map[model.ModelTag]CLITemplate

// StatusReporter is invoked on every run-level status transition so the
// Registry can keep its snapshot current without the engine knowing
// anything about Registry internals.
type StatusReporter func(model.RunStatus)

// Integrator synthesizes one combined result from several agents' raw
// output text. Ensemble is the only mode that needs it.
type Integrator interface {
	Integrate(ctx context.Context, task string, outputs []string) (string, error)
}

// Deps bundles the collaborators every engine needs. Integrator may be nil
// for Competition/Debate runs, which never synthesize a combined result.
type Deps struct {
	Workspace   *workspace.Provisioner
	SessionCfg  session.Config
	Bus         eventbus.Publisher
	Logger      *logger.Logger
	CLIProfiles CLIProfiles
	Integrator  Integrator
}

const (
	minInstances = 2
	maxInstances = model.HardCap
)

// validateInstanceCount enforces §4.5.1 step 1.
func validateInstanceCount(n int) error {
	if n < minInstances || n > maxInstances {
		return fmt.Errorf("%w: instance_count %d outside [%d, %d]", model.ErrInvalidRequest, n, minInstances, maxInstances)
	}
	return nil
}

func validateModelTag(deps Deps, tag model.ModelTag) error {
	if _, ok := deps.CLIProfiles[tag]; !ok {
		return fmt.Errorf("%w: unrecognized model_tag %q", model.ErrInvalidRequest, tag)
	}
	return nil
}

// buildInvocation resolves a CLITemplate's placeholders against vars,
// returning the concrete command line and environment for one agent.
func buildInvocation(tmpl CLITemplate, vars map[string]string) (cmdLine []string, env []string) {
	resolver := scriptengine.NewResolver().WithStatic(vars)

	cmdLine = make([]string, len(tmpl.Command))
	for i, c := range tmpl.Command {
		cmdLine[i] = resolver.Resolve(c)
	}
	env = make([]string, len(tmpl.Env))
	for i, e := range tmpl.Env {
		env[i] = resolver.Resolve(e)
	}
	return cmdLine, env
}

func invocationVars(run *model.Run, spec model.AgentSpec, systemPromptOverride string, extra map[string]string) map[string]string {
	vars := map[string]string{
		"task":          run.Task,
		"run.id":        run.RunID,
		"agent.index":   strconv.Itoa(spec.Index),
		"role.id":       spec.RoleID,
		"system_prompt": sysprompt.InjectRunContext(run.RunID, spec.Index, spec.RoleID, systemPromptOverride),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

// launchedAgent is one provisioned-and-launched agent, ready to be awaited.
type launchedAgent struct {
	spec       model.AgentSpec
	workingCopy *model.WorkingCopy
	supervisor *session.Supervisor
}

// provisionAndLaunch allocates a working copy and starts a session for one
// agent. On any failure it releases whatever it already allocated before
// returning, so a partial failure never leaks a working copy.
func provisionAndLaunch(
	ctx context.Context,
	deps Deps,
	run *model.Run,
	spec model.AgentSpec,
	systemPrompt string,
	extraVars map[string]string,
) (*launchedAgent, error) {
	_ = deps.Bus.Publish(ctx, model.NewAgentStatusEvent(run.RunID, spec.Index, model.LifecycleProvisioning))

	wc, err := deps.Workspace.Provision(ctx, run.RunID, run.Mode, spec.Index, run.BaseWorkingDirectory)
	if err != nil {
		_ = deps.Bus.Publish(ctx, model.NewAgentStatusEvent(run.RunID, spec.Index, model.LifecycleFailed))
		return nil, err
	}

	tmpl := deps.CLIProfiles[run.ModelTag]
	vars := invocationVars(run, spec, systemPrompt, extraVars)
	vars["workspace.path"] = wc.Path
	cmdLine, env := buildInvocation(tmpl, vars)

	sup, err := session.Launch(ctx, deps.SessionCfg, deps.Bus, deps.Logger, run.RunID, run.Mode, spec.Index, wc, run.BaseWorkingDirectory, cmdLine, env)
	if err != nil {
		_ = deps.Workspace.Release(ctx, wc, run.BaseWorkingDirectory, false)
		_ = deps.Bus.Publish(ctx, model.NewAgentStatusEvent(run.RunID, spec.Index, model.LifecycleFailed))
		return nil, err
	}

	return &launchedAgent{spec: spec, workingCopy: wc, supervisor: sup}, nil
}

func releaseWorkingCopy(ctx context.Context, deps Deps, run *model.Run, wc *model.WorkingCopy) {
	if err := deps.Workspace.Release(ctx, wc, run.BaseWorkingDirectory, run.PreserveArtifacts); err != nil {
		deps.Logger.Warn("failed to release working copy",
			zap.String("run_id", run.RunID), zap.String("path", wc.Path), zap.Error(err))
	}
}
