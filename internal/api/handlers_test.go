package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ait42/orchestrator/internal/analyzer"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/registry"
)

func newTestRouter(t *testing.T) (*gin.Engine, *registry.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var counter int
	reg := registry.New(registry.NewOpts{
		Logger: logger.Default(),
		IDGen: func() string {
			counter++
			return "run-test-id"
		},
	})

	az := analyzer.New(analyzer.DefaultConfig(), stubLLM{}, logger.Default())

	r := gin.New()
	group := r.Group("/api/v1")
	SetupRoutes(group, reg, az, "/tmp/workspace", logger.Default())
	return r, reg
}

type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return `{"complexity_class": "Linear", "recommended_subtasks": 20, "confidence": 0.8, "reasoning": "test"}`, nil
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestExecuteCompetitionReturnsRunID(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/v1/runs/competition", ExecuteCompetitionRequest{
		Task: "do the thing", InstanceCount: 3, ModelTag: "fast",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp RunIDResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.RunID == "" {
		t.Error("expected non-empty runId")
	}
}

func TestExecuteCompetitionRejectsMissingTask(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/v1/runs/competition", ExecuteCompetitionRequest{
		InstanceCount: 3, ModelTag: "fast",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetStatusUnknownRun(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/v1/runs/does-not-exist/status", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCancelUnknownRun(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/v1/runs/does-not-exist/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetProgressAfterStart(t *testing.T) {
	r, reg := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/v1/runs/debate", ExecuteDebateRequest{
		Task:     "debate something",
		Roles:    []RoleRequest{{ID: "a", Name: "Optimist"}, {ID: "b", Name: "Skeptic"}},
		ModelTag: "balanced",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var started RunIDResponse
	json.Unmarshal(w.Body.Bytes(), &started)

	// The default dispatch will try real subprocesses and fail fast since
	// CLIProfiles is empty in this test's Deps; poll for terminal status
	// rather than asserting a particular one.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := reg.Status(started.RunID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.IsTerminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	w = doRequest(r, http.MethodGet, "/api/v1/runs/"+started.RunID+"/progress", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCalculateInstances(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/v1/analyzer/instances", CalculateInstancesRequest{
		ComplexityClass: "linear", SubtaskCount: 100,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp CalculateInstancesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.RecommendedInstances != 10 {
		t.Errorf("expected 10 recommended instances for 100 subtasks at divisor 5, got %d", resp.RecommendedInstances)
	}
}

func TestCalculateInstancesRejectsUnknownClass(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/v1/analyzer/instances", CalculateInstancesRequest{
		ComplexityClass: "not-a-class", SubtaskCount: 10,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetComplexityInfo(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/v1/analyzer/complexity/Quadratic", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ComplexityInfoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Notation != "O(n^2)" {
		t.Errorf("expected O(n^2), got %q", resp.Notation)
	}
}

func TestOptimizeTask(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/v1/analyzer/optimize", OptimizeTaskRequest{
		TaskDescription: "refactor the billing module across services",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp OptimizeTaskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ComplexityClass != "Linear" {
		t.Errorf("expected Linear, got %q", resp.ComplexityClass)
	}
}

func TestGetWorkspace(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/v1/workspace", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp WorkspaceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Path != "/tmp/workspace" {
		t.Errorf("expected /tmp/workspace, got %q", resp.Path)
	}
}
