// Package api implements the External Command Surface (C7): a thin
// HTTP+WebSocket RPC layer translating UI requests into Orchestrator
// Registry calls and subscriptions. No business logic lives here.
package api

// RoleRequest is one Debate role as supplied by the caller.
type RoleRequest struct {
	ID           string `json:"id" binding:"required"`
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
}

// ExecuteCompetitionRequest starts a Competition run.
type ExecuteCompetitionRequest struct {
	Task              string `json:"task" binding:"required"`
	InstanceCount     int    `json:"instanceCount" binding:"required"`
	ModelTag          string `json:"modelTag" binding:"required"`
	TimeoutSeconds    int    `json:"timeoutSeconds"`
	PreserveArtifacts bool   `json:"preserveArtifacts"`
}

// ExecuteEnsembleRequest starts an Ensemble run; same shape as Competition.
type ExecuteEnsembleRequest = ExecuteCompetitionRequest

// ExecuteDebateRequest starts a Debate run.
type ExecuteDebateRequest struct {
	Task              string        `json:"task" binding:"required"`
	Roles             []RoleRequest `json:"roles" binding:"required,min=1"`
	ModelTag          string        `json:"modelTag" binding:"required"`
	TimeoutSeconds    int           `json:"timeoutSeconds"`
	PreserveArtifacts bool          `json:"preserveArtifacts"`
	RoundsTotal       int           `json:"roundsTotal,omitempty"`
}

// RunIDRequest is the common shape for getStatus/getProgress/cancel.
type RunIDRequest struct {
	RunID string `json:"runId" binding:"required"`
}

// RunIDResponse is the common response shape for run-starting verbs.
type RunIDResponse struct {
	RunID string `json:"runId"`
}

// OptimizeTaskRequest backs the optimizeTask verb.
type OptimizeTaskRequest struct {
	TaskDescription string `json:"taskDescription" binding:"required"`
	ContextHint     string `json:"contextHint,omitempty"`
}

// OptimizeTaskResponse backs the optimizeTask verb.
type OptimizeTaskResponse struct {
	ComplexityClass     string  `json:"complexityClass"`
	RecommendedSubtasks int     `json:"recommendedSubtasks"`
	Confidence          float64 `json:"confidence"`
	Reasoning           string  `json:"reasoning"`
}

// CalculateInstancesRequest backs the calculateInstances verb.
type CalculateInstancesRequest struct {
	ComplexityClass string `json:"complexityClass" binding:"required"`
	SubtaskCount    int    `json:"subtaskCount" binding:"required"`
}

// CalculateInstancesResponse backs the calculateInstances verb.
type CalculateInstancesResponse struct {
	RecommendedInstances int     `json:"recommendedInstances"`
	SubtasksPerInstance  float64 `json:"subtasksPerInstance"`
	ResourceConstrained  bool    `json:"resourceConstrained"`
}

// ComplexityInfoResponse backs the getComplexityInfo verb.
type ComplexityInfoResponse struct {
	Notation     string   `json:"notation"`
	SubtaskRange string   `json:"subtaskRange"`
	Examples     []string `json:"examples"`
}

// WorkspaceResponse backs the getWorkspace verb.
type WorkspaceResponse struct {
	Path     string `json:"path"`
	IsVcsRepo bool  `json:"isVcsRepo"`
}

// ProgressResponse is the full snapshot returned by getProgress: every
// per-agent tail for Competition/Ensemble, every round output for Debate.
type ProgressResponse struct {
	RunID        string                `json:"runId"`
	Status       string                `json:"status"`
	AgentResults []AgentOutcomeDTO     `json:"agentResults,omitempty"`
	Rounds       []RoundOutputDTO      `json:"rounds,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// AgentOutcomeDTO mirrors model.AgentOutcome on the wire.
type AgentOutcomeDTO struct {
	AgentIndex    int    `json:"agentIndex"`
	Cause         string `json:"cause"`
	FailureReason string `json:"failureReason,omitempty"`
	LogPath       string `json:"logPath"`
}

// RoundOutputDTO mirrors model.RoundOutput on the wire.
type RoundOutputDTO struct {
	RoundNumber     int    `json:"roundNumber"`
	RoleID          string `json:"roleId"`
	Status          string `json:"status"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	TextContent     string `json:"textContent,omitempty"`
	ArtifactPath    string `json:"artifactPath,omitempty"`
}

// StatusResponse backs the getStatus verb.
type StatusResponse struct {
	Status string `json:"status"`
}
