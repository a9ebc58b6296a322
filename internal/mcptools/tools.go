package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ait42/orchestrator/internal/analyzer"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/model"
	"github.com/ait42/orchestrator/internal/registry"
	"github.com/ait42/orchestrator/internal/workspace"
)

func registerTools(s *server.MCPServer, reg *registry.Registry, az *analyzer.Analyzer, workingDir string, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("execute_competition",
			mcp.WithDescription("Start a Competition run: N independent agents attempt the same task from a shared starting point, and all results are returned for review."),
			mcp.WithString("task", mcp.Required(), mcp.Description("The task description given to every agent")),
			mcp.WithNumber("instance_count", mcp.Required(), mcp.Description("Number of independent agent attempts to launch")),
			mcp.WithString("model_tag", mcp.Required(), mcp.Description("Quality/speed tier: fast, balanced, or thorough")),
			mcp.WithNumber("timeout_seconds", mcp.Description("Per-agent timeout in seconds (0 or omitted disables it)")),
		),
		executeFanOutHandler(reg, model.ModeCompetition, workingDir),
	)

	s.AddTool(
		mcp.NewTool("execute_ensemble",
			mcp.WithDescription("Start an Ensemble run: N independent agents attempt the same task, then their outputs are synthesized into one combined result."),
			mcp.WithString("task", mcp.Required(), mcp.Description("The task description given to every agent")),
			mcp.WithNumber("instance_count", mcp.Required(), mcp.Description("Number of independent agent attempts to launch")),
			mcp.WithString("model_tag", mcp.Required(), mcp.Description("Quality/speed tier: fast, balanced, or thorough")),
			mcp.WithNumber("timeout_seconds", mcp.Description("Per-agent timeout in seconds (0 or omitted disables it)")),
		),
		executeFanOutHandler(reg, model.ModeEnsemble, workingDir),
	)

	s.AddTool(
		mcp.NewTool("execute_debate",
			mcp.WithDescription("Start a Debate run: agents with distinct roles argue a task across several rounds, each round reloading the prior round's transcript."),
			mcp.WithString("task", mcp.Required(), mcp.Description("The task/question the roles debate")),
			mcp.WithArray("roles", mcp.Required(), mcp.Description("At least one role, each an object with id, name, and optional system_prompt")),
			mcp.WithString("model_tag", mcp.Required(), mcp.Description("Quality/speed tier: fast, balanced, or thorough")),
			mcp.WithNumber("timeout_seconds", mcp.Description("Per-agent timeout in seconds (0 or omitted disables it)")),
			mcp.WithNumber("rounds_total", mcp.Description("Number of debate rounds (defaults to 3)")),
		),
		executeDebateHandler(reg, workingDir),
	)

	s.AddTool(
		mcp.NewTool("get_run_status",
			mcp.WithDescription("Get the aggregate status of a run started by execute_competition/execute_ensemble/execute_debate."),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The run ID returned by an execute_* tool")),
		),
		getStatusHandler(reg),
	)

	s.AddTool(
		mcp.NewTool("get_run_progress",
			mcp.WithDescription("Get the full progress snapshot for a run: status plus whatever per-agent outcomes or debate rounds have landed so far."),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The run ID returned by an execute_* tool")),
		),
		getProgressHandler(reg),
	)

	s.AddTool(
		mcp.NewTool("cancel_run",
			mcp.WithDescription("Request termination of a running run."),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The run ID to cancel")),
		),
		cancelRunHandler(reg),
	)

	s.AddTool(
		mcp.NewTool("optimize_task",
			mcp.WithDescription("Classify a task description's complexity and recommend a subtask count, ahead of launching a run."),
			mcp.WithString("task_description", mcp.Required(), mcp.Description("The task to classify")),
			mcp.WithString("context_hint", mcp.Description("Optional extra context to improve the classification")),
		),
		optimizeTaskHandler(az),
	)

	s.AddTool(
		mcp.NewTool("calculate_instances",
			mcp.WithDescription("Pure closed-form recommendation for how many agent instances to launch, given a complexity class and subtask count."),
			mcp.WithString("complexity_class", mcp.Required(), mcp.Description("One of: Constant, Logarithmic, Linear, Linearithmic, Quadratic, Exponential")),
			mcp.WithNumber("subtask_count", mcp.Required(), mcp.Description("Estimated number of subtasks")),
		),
		calculateInstancesHandler(),
	)

	s.AddTool(
		mcp.NewTool("get_complexity_info",
			mcp.WithDescription("Static description of one complexity class: its notation, subtask range, and example tasks."),
			mcp.WithString("complexity_class", mcp.Required(), mcp.Description("One of: Constant, Logarithmic, Linear, Linearithmic, Quadratic, Exponential")),
		),
		getComplexityInfoHandler(),
	)

	s.AddTool(
		mcp.NewTool("get_workspace",
			mcp.WithDescription("Report the configured base working directory and whether it is an initialized VCS repository."),
		),
		getWorkspaceHandler(workingDir),
	)

	log.Info("registered mcp tools", zap.Int("count", 9))
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func toolJSON(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func timeoutOrDefault(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func executeFanOutHandler(reg *registry.Registry, mode model.Mode, workingDir string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := req.RequireString("task")
		if err != nil {
			return toolError(err)
		}
		instanceCount, err := req.RequireFloat("instance_count")
		if err != nil {
			return toolError(err)
		}
		modelTag, err := req.RequireString("model_tag")
		if err != nil {
			return toolError(err)
		}
		timeoutSeconds := req.GetFloat("timeout_seconds", 0)

		plan := make([]model.AgentSpec, int(instanceCount))
		for i := range plan {
			plan[i] = model.AgentSpec{Index: i + 1, DisplayName: "agent"}
		}

		runID, err := reg.Start(ctx, registry.StartRequest{
			Mode:                 mode,
			Task:                 task,
			ModelTag:             model.ModelTag(modelTag),
			AgentPlan:            plan,
			BaseWorkingDirectory: workingDir,
			TimeoutPerUnit:       timeoutOrDefault(timeoutSeconds),
		})
		if err != nil {
			return toolError(err)
		}
		return toolJSON(map[string]string{"run_id": runID})
	}
}

func executeDebateHandler(reg *registry.Registry, workingDir string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := req.RequireString("task")
		if err != nil {
			return toolError(err)
		}
		modelTag, err := req.RequireString("model_tag")
		if err != nil {
			return toolError(err)
		}

		args := req.GetArguments()
		rolesRaw, ok := args["roles"]
		if !ok {
			return toolError(fmt.Errorf("roles is required"))
		}
		rolesJSON, err := json.Marshal(rolesRaw)
		if err != nil {
			return toolError(err)
		}
		var roles []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			SystemPrompt string `json:"system_prompt"`
		}
		if err := json.Unmarshal(rolesJSON, &roles); err != nil {
			return toolError(err)
		}
		if len(roles) < 1 {
			return toolError(fmt.Errorf("at least one role is required"))
		}

		plan := make([]model.AgentSpec, len(roles))
		for i, role := range roles {
			plan[i] = model.AgentSpec{
				Index:                i + 1,
				RoleID:               role.ID,
				DisplayName:          role.Name,
				SystemPromptOverride: role.SystemPrompt,
			}
		}

		timeoutSeconds := req.GetFloat("timeout_seconds", 0)
		roundsTotal := int(req.GetFloat("rounds_total", 0))

		runID, err := reg.Start(ctx, registry.StartRequest{
			Mode:                 model.ModeDebate,
			Task:                 task,
			ModelTag:             model.ModelTag(modelTag),
			AgentPlan:            plan,
			BaseWorkingDirectory: workingDir,
			TimeoutPerUnit:       timeoutOrDefault(timeoutSeconds),
			RoundsTotal:          roundsTotal,
			StrictContextReload:  true,
		})
		if err != nil {
			return toolError(err)
		}
		return toolJSON(map[string]string{"run_id": runID})
	}
}

func getStatusHandler(reg *registry.Registry) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := req.RequireString("run_id")
		if err != nil {
			return toolError(err)
		}
		status, err := reg.Status(runID)
		if err != nil {
			return toolError(err)
		}
		return toolJSON(map[string]string{"status": string(status)})
	}
}

func getProgressHandler(reg *registry.Registry) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := req.RequireString("run_id")
		if err != nil {
			return toolError(err)
		}
		progress, err := reg.Progress(runID)
		if err != nil {
			return toolError(err)
		}

		resp := map[string]interface{}{
			"run_id": progress.Run.RunID,
			"status": string(progress.Run.Status),
		}
		if progress.Err != nil {
			resp["error"] = progress.Err.Error()
		}
		if len(progress.AgentResults) > 0 {
			resp["agent_results"] = progress.AgentResults
		}
		if len(progress.Rounds) > 0 {
			resp["rounds"] = progress.Rounds
		}
		return toolJSON(resp)
	}
}

func cancelRunHandler(reg *registry.Registry) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := req.RequireString("run_id")
		if err != nil {
			return toolError(err)
		}
		if err := reg.Cancel(runID); err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText("run cancelled"), nil
	}
}

func optimizeTaskHandler(az *analyzer.Analyzer) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskDescription, err := req.RequireString("task_description")
		if err != nil {
			return toolError(err)
		}
		contextHint := req.GetString("context_hint", "")

		result, err := az.OptimizeTask(ctx, taskDescription, contextHint)
		if err != nil {
			return toolError(err)
		}
		return toolJSON(map[string]interface{}{
			"complexity_class":     string(result.ComplexityClass),
			"recommended_subtasks": result.RecommendedSubtasks,
			"confidence":           result.Confidence,
			"reasoning":            result.Reasoning,
		})
	}
}

func calculateInstancesHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		classStr, err := req.RequireString("complexity_class")
		if err != nil {
			return toolError(err)
		}
		subtaskCount, err := req.RequireFloat("subtask_count")
		if err != nil {
			return toolError(err)
		}

		class, ok := model.ValidComplexityClass(classStr)
		if !ok {
			return toolError(fmt.Errorf("unrecognized complexity class %q", classStr))
		}

		rec, err := analyzer.CalculateInstances(class, int(subtaskCount))
		if err != nil {
			return toolError(err)
		}
		return toolJSON(map[string]interface{}{
			"recommended_instances": rec.RecommendedInstances,
			"subtasks_per_instance": rec.SubtasksPerInstance,
			"resource_constrained":  rec.ResourceConstrained,
		})
	}
}

func getComplexityInfoHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		classStr, err := req.RequireString("complexity_class")
		if err != nil {
			return toolError(err)
		}
		class, ok := model.ValidComplexityClass(classStr)
		if !ok {
			return toolError(fmt.Errorf("unrecognized complexity class %q", classStr))
		}

		info, err := analyzer.GetComplexityInfo(class)
		if err != nil {
			return toolError(err)
		}
		return toolJSON(map[string]interface{}{
			"notation":      info.Notation,
			"subtask_range": info.SubtaskRange,
			"examples":      info.Examples,
		})
	}
}

func getWorkspaceHandler(workingDir string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolJSON(map[string]interface{}{
			"path":        workingDir,
			"is_vcs_repo": workspace.IsVcsRepo(workingDir),
		})
	}
}
