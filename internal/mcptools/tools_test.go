package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ait42/orchestrator/internal/analyzer"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/engine"
	"github.com/ait42/orchestrator/internal/eventbus"
	"github.com/ait42/orchestrator/internal/model"
	"github.com/ait42/orchestrator/internal/registry"
)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	var counter int64
	return registry.New(registry.NewOpts{
		Deps: engine.Deps{
			Bus:    eventbus.New(logger.Default()),
			Logger: logger.Default(),
		},
		Logger: logger.Default(),
		IDGen: func() string {
			n := atomic.AddInt64(&counter, 1)
			return "run-" + time.Duration(n).String()
		},
	})
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("tool handler returned an error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("tool result content is not text: %T", result.Content[0])
	}
	return tc.Text
}

func TestExecuteCompetitionHandlerStartsARun(t *testing.T) {
	reg := newTestRegistry(t)
	handler := executeFanOutHandler(reg, model.ModeCompetition, "/work")

	result := callTool(t, handler, map[string]interface{}{
		"task":           "investigate the flaky test",
		"instance_count": float64(3),
		"model_tag":      "fast",
	})

	var resp map[string]string
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse tool result: %v", err)
	}
	if resp["run_id"] == "" {
		t.Fatal("expected a non-empty run_id")
	}

	// CLIProfiles is nil in this test registry, so the dispatched run fails
	// validation almost immediately; what matters here is that Start
	// registered a real, queryable run rather than that it's still running.
	if _, err := reg.Status(resp["run_id"]); err != nil {
		t.Fatalf("Status: %v", err)
	}
}

func TestExecuteCompetitionHandlerMissingTaskErrors(t *testing.T) {
	reg := newTestRegistry(t)
	handler := executeFanOutHandler(reg, model.ModeCompetition, "/work")

	result := callTool(t, handler, map[string]interface{}{
		"instance_count": float64(2),
		"model_tag":      "fast",
	})
	if !result.IsError {
		t.Fatal("expected an error result for a missing required field")
	}
}

func TestExecuteDebateHandlerBuildsAgentPlanFromRoles(t *testing.T) {
	reg := newTestRegistry(t)
	handler := executeDebateHandler(reg, "/work")

	result := callTool(t, handler, map[string]interface{}{
		"task":      "should we adopt this proposal?",
		"model_tag": "balanced",
		"roles": []interface{}{
			map[string]interface{}{"id": "proponent", "name": "Proponent"},
			map[string]interface{}{"id": "skeptic", "name": "Skeptic", "system_prompt": "be skeptical"},
		},
	})

	var resp map[string]string
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse tool result: %v", err)
	}

	progress, err := reg.Progress(resp["run_id"])
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if len(progress.Run.AgentPlan) != 2 {
		t.Fatalf("expected 2 agents in the plan, got %d", len(progress.Run.AgentPlan))
	}
	if progress.Run.AgentPlan[1].SystemPromptOverride != "be skeptical" {
		t.Fatalf("role system_prompt was not threaded into the agent plan")
	}
}

func TestExecuteDebateHandlerRequiresAtLeastOneRole(t *testing.T) {
	reg := newTestRegistry(t)
	handler := executeDebateHandler(reg, "/work")

	result := callTool(t, handler, map[string]interface{}{
		"task":      "debate this",
		"model_tag": "balanced",
		"roles":     []interface{}{},
	})
	if !result.IsError {
		t.Fatal("expected an error result for an empty roles list")
	}
}

func TestCancelRunHandlerRejectsUnknownRun(t *testing.T) {
	reg := newTestRegistry(t)
	handler := cancelRunHandler(reg)

	result := callTool(t, handler, map[string]interface{}{"run_id": "does-not-exist"})
	if !result.IsError {
		t.Fatal("expected an error result for an unknown run id")
	}
	if !strings.Contains(resultText(t, result), model.ErrUnknownRun.Error()) {
		t.Fatalf("expected the unknown-run sentinel in the error text, got %q", resultText(t, result))
	}
}

func TestOptimizeTaskHandlerReturnsAnalyzerResult(t *testing.T) {
	az := analyzer.New(analyzer.DefaultConfig(), &stubLLM{reply: `{"complexity_class":"Linear","recommended_subtasks":40,"confidence":0.8,"reasoning":"touches many files"}`}, logger.Default())
	handler := optimizeTaskHandler(az)

	result := callTool(t, handler, map[string]interface{}{"task_description": "migrate every call site to the new client"})

	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse tool result: %v", err)
	}
	if resp["complexity_class"] != "Linear" {
		t.Fatalf("expected complexity_class Linear, got %v", resp["complexity_class"])
	}
}

func TestOptimizeTaskHandlerPropagatesLLMFailure(t *testing.T) {
	az := analyzer.New(analyzer.DefaultConfig(), &stubLLM{err: errors.New("boom")}, logger.Default())
	handler := optimizeTaskHandler(az)

	result := callTool(t, handler, map[string]interface{}{"task_description": "anything"})
	if !result.IsError {
		t.Fatal("expected an error result when the LLM call fails")
	}
}

func TestCalculateInstancesHandler(t *testing.T) {
	handler := calculateInstancesHandler()

	result := callTool(t, handler, map[string]interface{}{
		"complexity_class": "Linear",
		"subtask_count":    float64(50),
	})

	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse tool result: %v", err)
	}
	if resp["recommended_instances"] != float64(10) {
		t.Fatalf("expected 10 recommended instances, got %v", resp["recommended_instances"])
	}
}

func TestCalculateInstancesHandlerRejectsUnknownClass(t *testing.T) {
	handler := calculateInstancesHandler()

	result := callTool(t, handler, map[string]interface{}{
		"complexity_class": "Bogus",
		"subtask_count":    float64(10),
	})
	if !result.IsError {
		t.Fatal("expected an error result for an unrecognized complexity class")
	}
}

func TestGetComplexityInfoHandler(t *testing.T) {
	handler := getComplexityInfoHandler()

	result := callTool(t, handler, map[string]interface{}{"complexity_class": "quadratic"})

	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse tool result: %v", err)
	}
	if resp["notation"] != "O(n^2)" {
		t.Fatalf("expected notation O(n^2), got %v", resp["notation"])
	}
}

func TestGetWorkspaceHandler(t *testing.T) {
	handler := getWorkspaceHandler("/tmp")

	result := callTool(t, handler, map[string]interface{}{})

	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse tool result: %v", err)
	}
	if resp["path"] != "/tmp" {
		t.Fatalf("expected path /tmp, got %v", resp["path"])
	}
}
