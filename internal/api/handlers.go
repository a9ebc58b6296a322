package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ait42/orchestrator/internal/analyzer"
	apperrors "github.com/ait42/orchestrator/internal/common/errors"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/model"
	"github.com/ait42/orchestrator/internal/registry"
	"github.com/ait42/orchestrator/internal/workspace"
)

// Handler wires the Registry and Analyzer into the command-verb table.
// It carries no business logic of its own: every verb either constructs a
// registry.StartRequest and delegates, or calls a pure Analyzer function.
type Handler struct {
	registry   *registry.Registry
	analyzer   *analyzer.Analyzer
	logger     *logger.Logger
	workingDir string
}

// NewHandler creates a Handler. workingDir is the base directory every run
// started through this Handler uses, and the one getWorkspace reports.
func NewHandler(reg *registry.Registry, az *analyzer.Analyzer, workingDir string, log *logger.Logger) *Handler {
	return &Handler{
		registry:   reg,
		analyzer:   az,
		logger:     log.WithFields(zap.String("component", "command-surface")),
		workingDir: workingDir,
	}
}

func respondAppErr(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.HTTPStatus, err)
}

// ExecuteCompetition starts a Competition run.
// POST /api/v1/runs/competition
func (h *Handler) ExecuteCompetition(c *gin.Context) {
	var req ExecuteCompetitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAppErr(c, apperrors.ValidationError("request", err.Error()))
		return
	}

	plan := make([]model.AgentSpec, req.InstanceCount)
	for i := range plan {
		plan[i] = model.AgentSpec{Index: i + 1, DisplayName: "agent"}
	}

	runID, err := h.registry.Start(c.Request.Context(), registry.StartRequest{
		Mode:                 model.ModeCompetition,
		Task:                 req.Task,
		ModelTag:             model.ModelTag(req.ModelTag),
		AgentPlan:            plan,
		BaseWorkingDirectory: h.workingDir,
		PreserveArtifacts:    req.PreserveArtifacts,
		TimeoutPerUnit:       timeoutOrDefault(req.TimeoutSeconds),
	})
	if err != nil {
		respondAppErr(c, apperrors.FromModelErr(err))
		return
	}
	c.JSON(http.StatusAccepted, RunIDResponse{RunID: runID})
}

// ExecuteEnsemble starts an Ensemble run.
// POST /api/v1/runs/ensemble
func (h *Handler) ExecuteEnsemble(c *gin.Context) {
	var req ExecuteEnsembleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAppErr(c, apperrors.ValidationError("request", err.Error()))
		return
	}

	plan := make([]model.AgentSpec, req.InstanceCount)
	for i := range plan {
		plan[i] = model.AgentSpec{Index: i + 1, DisplayName: "agent"}
	}

	runID, err := h.registry.Start(c.Request.Context(), registry.StartRequest{
		Mode:                 model.ModeEnsemble,
		Task:                 req.Task,
		ModelTag:             model.ModelTag(req.ModelTag),
		AgentPlan:            plan,
		BaseWorkingDirectory: h.workingDir,
		PreserveArtifacts:    req.PreserveArtifacts,
		TimeoutPerUnit:       timeoutOrDefault(req.TimeoutSeconds),
	})
	if err != nil {
		respondAppErr(c, apperrors.FromModelErr(err))
		return
	}
	c.JSON(http.StatusAccepted, RunIDResponse{RunID: runID})
}

// ExecuteDebate starts a Debate run. Roles are ordered as supplied.
// POST /api/v1/runs/debate
func (h *Handler) ExecuteDebate(c *gin.Context) {
	var req ExecuteDebateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAppErr(c, apperrors.ValidationError("request", err.Error()))
		return
	}

	plan := make([]model.AgentSpec, len(req.Roles))
	for i, role := range req.Roles {
		plan[i] = model.AgentSpec{
			Index:                i + 1,
			RoleID:               role.ID,
			DisplayName:          role.Name,
			SystemPromptOverride: role.SystemPrompt,
		}
	}

	runID, err := h.registry.Start(c.Request.Context(), registry.StartRequest{
		Mode:                 model.ModeDebate,
		Task:                 req.Task,
		ModelTag:             model.ModelTag(req.ModelTag),
		AgentPlan:            plan,
		BaseWorkingDirectory: h.workingDir,
		PreserveArtifacts:    req.PreserveArtifacts,
		TimeoutPerUnit:       timeoutOrDefault(req.TimeoutSeconds),
		RoundsTotal:          req.RoundsTotal,
		StrictContextReload:  true,
	})
	if err != nil {
		respondAppErr(c, apperrors.FromModelErr(err))
		return
	}
	c.JSON(http.StatusAccepted, RunIDResponse{RunID: runID})
}

// GetStatus returns the aggregate status of a run.
// GET /api/v1/runs/:runId/status
func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.registry.Status(c.Param("runId"))
	if err != nil {
		respondAppErr(c, apperrors.FromModelErr(err))
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: string(status)})
}

// GetProgress returns the full progress snapshot for a run.
// GET /api/v1/runs/:runId/progress
func (h *Handler) GetProgress(c *gin.Context) {
	progress, err := h.registry.Progress(c.Param("runId"))
	if err != nil {
		respondAppErr(c, apperrors.FromModelErr(err))
		return
	}

	resp := ProgressResponse{
		RunID:  progress.Run.RunID,
		Status: string(progress.Run.Status),
	}
	if progress.Err != nil {
		resp.Error = progress.Err.Error()
	}
	for _, a := range progress.AgentResults {
		resp.AgentResults = append(resp.AgentResults, AgentOutcomeDTO{
			AgentIndex:    a.AgentIndex,
			Cause:         string(a.Cause),
			FailureReason: a.FailureReason,
			LogPath:       a.LogPath,
		})
	}
	for _, r := range progress.Rounds {
		resp.Rounds = append(resp.Rounds, RoundOutputDTO{
			RoundNumber:     r.RoundNumber,
			RoleID:          r.RoleID,
			Status:          r.Status,
			ExecutionTimeMs: r.ExecutionTimeMs,
			TextContent:     r.TextContent,
			ArtifactPath:    r.ArtifactPath,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Cancel requests termination of a run.
// POST /api/v1/runs/:runId/cancel
func (h *Handler) Cancel(c *gin.Context) {
	if err := h.registry.Cancel(c.Param("runId")); err != nil {
		respondAppErr(c, apperrors.FromModelErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// OptimizeTask classifies a task description and recommends a subtask count.
// POST /api/v1/analyzer/optimize
func (h *Handler) OptimizeTask(c *gin.Context) {
	var req OptimizeTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAppErr(c, apperrors.ValidationError("request", err.Error()))
		return
	}

	result, err := h.analyzer.OptimizeTask(c.Request.Context(), req.TaskDescription, req.ContextHint)
	if err != nil {
		h.logger.Warn("optimizeTask failed", zap.Error(err))
		respondAppErr(c, apperrors.FromModelErr(err))
		return
	}
	c.JSON(http.StatusOK, OptimizeTaskResponse{
		ComplexityClass:     string(result.ComplexityClass),
		RecommendedSubtasks: result.RecommendedSubtasks,
		Confidence:          result.Confidence,
		Reasoning:           result.Reasoning,
	})
}

// CalculateInstances is a pure closed-form instance-count recommendation.
// POST /api/v1/analyzer/instances
func (h *Handler) CalculateInstances(c *gin.Context) {
	var req CalculateInstancesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAppErr(c, apperrors.ValidationError("request", err.Error()))
		return
	}

	class, ok := model.ValidComplexityClass(req.ComplexityClass)
	if !ok {
		respondAppErr(c, apperrors.BadRequest("unrecognized complexity class"))
		return
	}

	rec, err := analyzer.CalculateInstances(class, req.SubtaskCount)
	if err != nil {
		respondAppErr(c, apperrors.FromModelErr(err))
		return
	}
	c.JSON(http.StatusOK, CalculateInstancesResponse{
		RecommendedInstances: rec.RecommendedInstances,
		SubtasksPerInstance:  rec.SubtasksPerInstance,
		ResourceConstrained:  rec.ResourceConstrained,
	})
}

// GetComplexityInfo is a pure, static lookup.
// GET /api/v1/analyzer/complexity/:class
func (h *Handler) GetComplexityInfo(c *gin.Context) {
	class, ok := model.ValidComplexityClass(c.Param("class"))
	if !ok {
		respondAppErr(c, apperrors.BadRequest("unrecognized complexity class"))
		return
	}

	info, err := analyzer.GetComplexityInfo(class)
	if err != nil {
		respondAppErr(c, apperrors.FromModelErr(err))
		return
	}
	c.JSON(http.StatusOK, ComplexityInfoResponse{
		Notation:     info.Notation,
		SubtaskRange: info.SubtaskRange,
		Examples:     info.Examples,
	})
}

// GetWorkspace reports the configured base working directory and whether
// it is an initialized VCS repository.
// GET /api/v1/workspace
func (h *Handler) GetWorkspace(c *gin.Context) {
	c.JSON(http.StatusOK, WorkspaceResponse{
		Path:      h.workingDir,
		IsVcsRepo: workspace.IsVcsRepo(h.workingDir),
	})
}

func timeoutOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
