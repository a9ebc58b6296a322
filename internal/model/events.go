package model

import "time"

// EventKind discriminates the Event sum type on the wire.
type EventKind string

const (
	EventKindAgentStatus   EventKind = "agentStatus"
	EventKindOutputChunk   EventKind = "outputChunk"
	EventKindRoundOutput   EventKind = "roundOutput"
	EventKindRunStatus     EventKind = "runStatus"
)

// Event is the sum type published on the Event Bus. Exactly one of the
// payload fields is populated, selected by Kind.
type Event struct {
	Kind      EventKind  `json:"kind"`
	RunID     string     `json:"runId"`
	Timestamp time.Time  `json:"timestamp"`

	AgentStatus *AgentStatusPayload `json:"agentStatus,omitempty"`
	Output      *OutputChunkPayload `json:"outputChunk,omitempty"`
	Round       *RoundOutputPayload `json:"roundOutput,omitempty"`
	Run         *RunStatusPayload   `json:"runStatus,omitempty"`
}

// AgentStatusPayload backs EventKindAgentStatus.
type AgentStatusPayload struct {
	AgentIndex int       `json:"agentIndex"`
	Lifecycle  Lifecycle `json:"lifecycle"`
}

// OutputChunkPayload backs EventKindOutputChunk. Ordering invariant: for a
// fixed (RunID, AgentIndex), chunks are delivered in generation order and
// the terminal chunk (IsTerminal=true) is last.
type OutputChunkPayload struct {
	AgentIndex    int    `json:"agentIndex"`
	Text          string `json:"text"`
	IsTerminal    bool   `json:"isTerminal"`
	FailureReason string `json:"failureReason,omitempty"`
}

// RoundOutputPayload backs EventKindRoundOutput (Debate only).
type RoundOutputPayload struct {
	RoundOutput RoundOutput `json:"roundOutput"`
}

// RunStatusPayload backs EventKindRunStatus.
type RunStatusPayload struct {
	AggregateStatus RunStatus `json:"aggregateStatus"`
}

// NewAgentStatusEvent builds an AgentStatus event.
func NewAgentStatusEvent(runID string, agentIndex int, lifecycle Lifecycle) *Event {
	return &Event{
		Kind:      EventKindAgentStatus,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		AgentStatus: &AgentStatusPayload{AgentIndex: agentIndex, Lifecycle: lifecycle},
	}
}

// NewOutputChunkEvent builds an OutputChunk event.
func NewOutputChunkEvent(runID string, agentIndex int, text string, isTerminal bool, failureReason string) *Event {
	return &Event{
		Kind:      EventKindOutputChunk,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Output: &OutputChunkPayload{
			AgentIndex:    agentIndex,
			Text:          text,
			IsTerminal:    isTerminal,
			FailureReason: failureReason,
		},
	}
}

// NewRoundOutputEvent builds a RoundOutputEvent (Debate only).
func NewRoundOutputEvent(runID string, round RoundOutput) *Event {
	return &Event{
		Kind:      EventKindRoundOutput,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Round:     &RoundOutputPayload{RoundOutput: round},
	}
}

// NewRunStatusEvent builds a RunStatus event.
func NewRunStatusEvent(runID string, aggregate RunStatus) *Event {
	return &Event{
		Kind:      EventKindRunStatus,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Run:       &RunStatusPayload{AggregateStatus: aggregate},
	}
}
