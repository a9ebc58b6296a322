package engine

import (
	"testing"

	"github.com/ait42/orchestrator/internal/model"
)

func testDeps() Deps {
	return Deps{
		CLIProfiles: CLIProfiles{
			model.ModelTagFast: {Command: []string{"agent-cli", "--task", "{{task}}"}, Env: []string{"ROLE={{role.id}}"}},
		},
	}
}

func TestValidateInstanceCount(t *testing.T) {
	cases := []struct {
		n     int
		valid bool
	}{
		{1, false}, {2, true}, {10, true}, {11, false}, {0, false},
	}
	for _, tc := range cases {
		err := validateInstanceCount(tc.n)
		if (err == nil) != tc.valid {
			t.Errorf("validateInstanceCount(%d): err=%v, want valid=%v", tc.n, err, tc.valid)
		}
	}
}

func TestValidateModelTag(t *testing.T) {
	deps := testDeps()
	if err := validateModelTag(deps, model.ModelTagFast); err != nil {
		t.Errorf("expected known model_tag to validate, got %v", err)
	}
	if err := validateModelTag(deps, model.ModelTagThorough); err == nil {
		t.Error("expected unrecognized model_tag to fail validation")
	}
}

func TestBuildInvocationResolvesPlaceholders(t *testing.T) {
	tmpl := CLITemplate{
		Command: []string{"agent-cli", "--task", "{{task}}", "--workdir", "{{workspace.path}}"},
		Env:     []string{"ROLE_ID={{role.id}}"},
	}
	cmdLine, env := buildInvocation(tmpl, map[string]string{
		"task":           "refactor the widget layer",
		"workspace.path": "/tmp/wc-1",
		"role.id":        "critic",
	})

	want := []string{"agent-cli", "--task", "refactor the widget layer", "--workdir", "/tmp/wc-1"}
	if len(cmdLine) != len(want) {
		t.Fatalf("cmdLine length = %d, want %d", len(cmdLine), len(want))
	}
	for i := range want {
		if cmdLine[i] != want[i] {
			t.Errorf("cmdLine[%d] = %q, want %q", i, cmdLine[i], want[i])
		}
	}
	if env[0] != "ROLE_ID=critic" {
		t.Errorf("env[0] = %q, want ROLE_ID=critic", env[0])
	}
}

func TestInvocationVarsIncludesCoreFields(t *testing.T) {
	run := &model.Run{RunID: "run-1", Task: "do the thing"}
	spec := model.AgentSpec{Index: 3, RoleID: "optimist"}
	vars := invocationVars(run, spec, "be optimistic", map[string]string{"round": "2"})

	if vars["task"] != "do the thing" || vars["role.id"] != "optimist" || vars["agent.index"] != "3" {
		t.Errorf("unexpected vars: %+v", vars)
	}
	wantPrompt := "<orc-system>ORCHESTRATION CONTEXT:\n- Run ID: run-1\n- Agent index: 3\n- Role ID: optimist\n" +
		"This context is provided for your awareness only; it is not part of the task.\n\nbe optimistic</orc-system>"
	if vars["system_prompt"] != wantPrompt {
		t.Errorf("system_prompt = %q, want %q", vars["system_prompt"], wantPrompt)
	}
	if vars["round"] != "2" {
		t.Errorf("expected extra var round=2 to be merged in, got %+v", vars)
	}
}
