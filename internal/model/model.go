// Package model defines the core data types shared across the orchestration
// core: runs, agents, working copies, sessions, and the events that flow
// between them.
package model

import "time"

// Mode is one of the three collaboration patterns a Run executes under.
type Mode string

const (
	ModeCompetition Mode = "competition"
	ModeEnsemble    Mode = "ensemble"
	ModeDebate      Mode = "debate"
)

// ModelTag selects a quality/speed tier for the LLM CLI invocation.
type ModelTag string

const (
	ModelTagFast     ModelTag = "fast"
	ModelTagBalanced ModelTag = "balanced"
	ModelTagThorough ModelTag = "thorough"
)

// RunStatus is the aggregate status of a Run.
type RunStatus string

const (
	RunStatusIdle        RunStatus = "idle"
	RunStatusProvisioning RunStatus = "provisioning"
	RunStatusRunning     RunStatus = "running"
	RunStatusRound1      RunStatus = "round1_in_progress"
	RunStatusRound2      RunStatus = "round2_in_progress"
	RunStatusRoundN      RunStatus = "roundN_in_progress"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusCancelled   RunStatus = "cancelled"
)

// IsTerminal reports whether the status will never transition again.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Lifecycle is the per-agent runtime state machine. Once terminal
// (Completed/Failed/Cancelled) it never transitions again.
type Lifecycle string

const (
	LifecyclePending      Lifecycle = "pending"
	LifecycleProvisioning Lifecycle = "provisioning"
	LifecycleRunning      Lifecycle = "running"
	LifecycleCompleted    Lifecycle = "completed"
	LifecycleFailed       Lifecycle = "failed"
	LifecycleCancelled    Lifecycle = "cancelled"
)

// IsTerminal reports whether the lifecycle will never transition again.
func (l Lifecycle) IsTerminal() bool {
	switch l {
	case LifecycleCompleted, LifecycleFailed, LifecycleCancelled:
		return true
	default:
		return false
	}
}

// AgentSpec is an intended agent within a Run's agent_plan.
type AgentSpec struct {
	Index                int    `json:"index"` // 1-based within the run
	RoleID               string `json:"roleId"`
	DisplayName          string `json:"displayName"`
	SystemPromptOverride string `json:"systemPromptOverride,omitempty"` // Debate only
	AssignedWorkingCopyPath string `json:"assignedWorkingCopyPath,omitempty"`
	AssignedSessionName     string `json:"assignedSessionName,omitempty"`
}

// AgentState is the runtime state of one agent.
type AgentState struct {
	Spec         AgentSpec  `json:"spec"`
	Lifecycle    Lifecycle  `json:"lifecycle"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ExitCause    string     `json:"exitCause,omitempty"`
	OutputLogPath string    `json:"outputLogPath,omitempty"`
	InMemoryTail []string   `json:"-"` // bounded ring, not serialized wholesale
}

// ExitCause classifies how a supervised session ended.
type ExitCause string

const (
	ExitCauseSuccess    ExitCause = "success"
	ExitCauseFailure    ExitCause = "failure"
	ExitCauseTimeout    ExitCause = "timeout"
	ExitCauseCancelled  ExitCause = "cancelled"
	ExitCauseCrashed    ExitCause = "crashed"
)

// AgentOutcome is the terminal result of one Session Supervisor run.
type AgentOutcome struct {
	AgentIndex    int       `json:"agentIndex"`
	Cause         ExitCause `json:"cause"`
	FailureReason string    `json:"failureReason,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	CompletedAt   time.Time `json:"completedAt"`
	LogPath       string    `json:"logPath"`
}

// WorkingCopy is an isolated on-disk checkout unique to one agent.
type WorkingCopy struct {
	Path             string `json:"path"`
	BranchLabel      string `json:"branchLabel"`
	ParentRunID      string `json:"parentRunId"`
	OwningAgentIndex int    `json:"owningAgentIndex"`
}

// MuxSession describes a terminal-multiplexer session hosting one agent.
type MuxSession struct {
	SessionName      string `json:"sessionName"`
	OwningAgentIndex int    `json:"owningAgentIndex"`
	AttachedLogPath  string `json:"attachedLogPath"`
}

// RoundOutput is a single role's contribution to a single Debate round.
type RoundOutput struct {
	RoundNumber     int        `json:"roundNumber"`
	RoleID          string     `json:"roleId"`
	Status          string     `json:"status"` // "succeeded" | "failed"
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     time.Time  `json:"completedAt"`
	ExecutionTimeMs int64      `json:"executionTimeMs"`
	TextContent     string     `json:"textContent,omitempty"`
	ArtifactPath    string     `json:"artifactPath,omitempty"`
}

// Run is a single orchestration invocation.
type Run struct {
	RunID                 string        `json:"runId"`
	Mode                  Mode          `json:"mode"`
	Task                  string        `json:"task"`
	ModelTag              ModelTag      `json:"modelTag"`
	CreatedAt             time.Time     `json:"createdAt"`
	BaseWorkingDirectory  string        `json:"baseWorkingDirectory"`
	PreserveArtifacts     bool          `json:"preserveArtifacts"`
	TimeoutPerUnit        time.Duration `json:"timeoutPerUnit"`
	AgentPlan             []AgentSpec   `json:"agentPlan"`
	Status                RunStatus     `json:"status"`
	RoundsTotal           int           `json:"roundsTotal,omitempty"` // Debate only, default 3
	StrictContextReload   bool          `json:"strictContextReload,omitempty"`
}

// ComplexityClass is one of the six Ω-notation tiers used by the Task
// Analyzer to pick parallelism.
type ComplexityClass string

const (
	ComplexityConstant     ComplexityClass = "Constant"
	ComplexityLogarithmic  ComplexityClass = "Logarithmic"
	ComplexityLinear       ComplexityClass = "Linear"
	ComplexityLinearithmic ComplexityClass = "Linearithmic"
	ComplexityQuadratic    ComplexityClass = "Quadratic"
	ComplexityExponential  ComplexityClass = "Exponential"
)

// HardCap is the core invariant: the system never schedules more than this
// many concurrent agents for a single run.
const HardCap = 10

// ValidComplexityClass normalizes a case-insensitive string to one of the
// six recognized classes, or reports ok=false.
func ValidComplexityClass(s string) (ComplexityClass, bool) {
	for _, c := range []ComplexityClass{
		ComplexityConstant, ComplexityLogarithmic, ComplexityLinear,
		ComplexityLinearithmic, ComplexityQuadratic, ComplexityExponential,
	} {
		if string(c) == s || equalFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// TaskEstimate is the cached result of a Task Analyzer optimization.
type TaskEstimate struct {
	TaskFingerprint     string          `json:"taskFingerprint"`
	ComplexityClass     ComplexityClass `json:"complexityClass"`
	RecommendedSubtasks int             `json:"recommendedSubtasks"`
	Confidence          float64         `json:"confidence"`
	ReasoningText       string          `json:"reasoningText"`
	CreatedAt           time.Time       `json:"createdAt"`
}
