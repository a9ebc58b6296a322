package session

import (
	"testing"

	"github.com/ait42/orchestrator/internal/model"
)

func TestSessionName(t *testing.T) {
	cfg := Config{ProductPrefix: "orc", RuntimeTag: "acp"}
	got := SessionName(cfg, model.ModeDebate, "a1b2c3d4-e5f6-7890-abcd-ef0123456789", 3)
	want := "orc-acp-debate-a1b2c3d4-3"
	if got != want {
		t.Errorf("SessionName = %q, want %q", got, want)
	}
}

func TestShortRunID(t *testing.T) {
	if got := shortRunID("a1b2c3d4-e5f6"); got != "a1b2c3d4" {
		t.Errorf("shortRunID = %q, want a1b2c3d4", got)
	}
	if got := shortRunID("short"); got != "short" {
		t.Errorf("shortRunID(short) = %q, want short", got)
	}
}

func TestScanFailureSentinels(t *testing.T) {
	found, marker := scanFailureSentinels("...\nError: rate limit exceeded\n")
	if !found {
		t.Fatal("expected sentinel match")
	}
	if marker != "Error: rate limit exceeded" {
		t.Errorf("marker = %q", marker)
	}

	found, _ = scanFailureSentinels("all good, nothing to see here")
	if found {
		t.Error("expected no sentinel match in clean output")
	}
}

func TestBuildRunScript(t *testing.T) {
	got := buildRunScript([]string{"claude-cli", "--flag", "value with spaces"}, "/tmp/run.log")
	want := `exec 'claude-cli' '--flag' 'value with spaces' 2>&1 | tee -a '/tmp/run.log'`
	if got != want {
		t.Errorf("buildRunScript = %q, want %q", got, want)
	}
}

func TestLifecycleFor(t *testing.T) {
	cases := map[model.ExitCause]model.Lifecycle{
		model.ExitCauseSuccess:   model.LifecycleCompleted,
		model.ExitCauseCancelled: model.LifecycleCancelled,
		model.ExitCauseFailure:   model.LifecycleFailed,
		model.ExitCauseTimeout:   model.LifecycleFailed,
		model.ExitCauseCrashed:   model.LifecycleFailed,
	}
	for cause, want := range cases {
		if got := lifecycleFor(cause); got != want {
			t.Errorf("lifecycleFor(%s) = %s, want %s", cause, got, want)
		}
	}
}
