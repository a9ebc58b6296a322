// Package sysprompt provides centralized system prompts and utilities for
// injecting orchestration context into an agent's invocation prompt.
//
// All system-injected content is wrapped in <orc-system> tags to mark it as
// orchestrator-injected rather than user- or role-authored, so it can be
// stripped when an agent's raw output is replayed back to the UI.
package sysprompt

import (
	"fmt"
	"regexp"
)

// System tag constants for marking system-injected content.
const (
	// TagStart marks the beginning of system-injected content.
	TagStart = "<orc-system>"
	// TagEnd marks the end of system-injected content.
	TagEnd = "</orc-system>"
)

// systemTagRegex matches <orc-system>...</orc-system> content including the tags.
var systemTagRegex = regexp.MustCompile(`<orc-system>[\s\S]*?</orc-system>\s*`)

// StripSystemContent removes all <orc-system>...</orc-system> blocks from
// text. Nothing in this module calls it; the run-events stream forwards
// agent output without stripping.
func StripSystemContent(text string) string {
	return systemTagRegex.ReplaceAllString(text, "")
}

// Wrap wraps content in <orc-system> tags to mark it as system-injected.
func Wrap(content string) string {
	return TagStart + content + TagEnd
}

// runContextTemplate is the orchestration context every agent invocation carries,
// regardless of mode: which run and agent index it is, and what role (if
// any) it was assigned for Debate.
const runContextTemplate = `ORCHESTRATION CONTEXT:
- Run ID: %s
- Agent index: %d
- Role ID: %s
This context is provided for your awareness only; it is not part of the task.`

// FormatRunContext renders the orchestration context prompt for one agent.
// roleID is empty for Competition/Ensemble agents, which have no role.
func FormatRunContext(runID string, agentIndex int, roleID string) string {
	return fmt.Sprintf(runContextTemplate, runID, agentIndex, roleID)
}

// InjectRunContext wraps the orchestration context, followed by any
// role-specific system prompt override, as the resolved value of a CLI
// template's {{system_prompt}} placeholder. The task itself is a separate
// {{task}} placeholder and is not duplicated here.
func InjectRunContext(runID string, agentIndex int, roleID, systemPromptOverride string) string {
	content := FormatRunContext(runID, agentIndex, roleID)
	if systemPromptOverride != "" {
		content += "\n\n" + systemPromptOverride
	}
	return Wrap(content)
}
