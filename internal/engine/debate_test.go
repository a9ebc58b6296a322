package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ait42/orchestrator/internal/model"
)

func TestRoundStatusFor(t *testing.T) {
	if got := roundStatusFor(1, 3); got != model.RunStatusRound1 {
		t.Errorf("round 1 = %v, want %v", got, model.RunStatusRound1)
	}
	if got := roundStatusFor(2, 3); got != model.RunStatusRound2 {
		t.Errorf("round 2 = %v, want %v", got, model.RunStatusRound2)
	}
	if got := roundStatusFor(3, 3); got != model.RunStatusRoundN {
		t.Errorf("round 3 = %v, want %v", got, model.RunStatusRoundN)
	}
}

func TestAllRoleFailed(t *testing.T) {
	if allRoleFailed(nil) {
		t.Error("no roles at all should not count as all-failed")
	}
	allFailed := []model.RoundOutput{{RoleID: "a", Status: "failed"}, {RoleID: "b", Status: "failed"}}
	if !allRoleFailed(allFailed) {
		t.Error("expected all-failed to be true when every role failed")
	}
	oneSucceeded := []model.RoundOutput{{RoleID: "a", Status: "failed"}, {RoleID: "b", Status: "succeeded"}}
	if allRoleFailed(oneSucceeded) {
		t.Error("expected graceful degradation: not all-failed when >=1 role succeeded")
	}
}

func TestPersistAndLoadRoundContextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	round1 := []model.RoundOutput{
		{RoundNumber: 1, RoleID: "optimist", Status: "succeeded", TextContent: "proposal text", StartedAt: time.Now(), CompletedAt: time.Now()},
	}
	if err := persistRoundOutputs(dir, 1, round1); err != nil {
		t.Fatalf("persistRoundOutputs: %v", err)
	}

	path := filepath.Join(dir, "round1-outputs.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected round1-outputs.json to exist: %v", err)
	}

	ctxText, err := loadPriorRoundsContext(dir, 2, true)
	if err != nil {
		t.Fatalf("loadPriorRoundsContext: %v", err)
	}
	if ctxText == "" {
		t.Error("expected non-empty context for round 2 after round 1 was persisted")
	}
}

func TestLoadPriorRoundsContextStrictFailsOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := loadPriorRoundsContext(dir, 2, true)
	if !errors.Is(err, model.ErrContextCorrupted) {
		t.Fatalf("expected ErrContextCorrupted, got %v", err)
	}
}

func TestLoadPriorRoundsContextNonStrictToleratesMissingFile(t *testing.T) {
	dir := t.TempDir()
	ctxText, err := loadPriorRoundsContext(dir, 2, false)
	if err != nil {
		t.Fatalf("expected non-strict mode to continue past a missing file, got %v", err)
	}
	if ctxText != "" {
		t.Errorf("expected empty context when no prior round file exists, got %q", ctxText)
	}
}

func TestLoadPriorRoundsContextRound1HasNoContext(t *testing.T) {
	dir := t.TempDir()
	ctxText, err := loadPriorRoundsContext(dir, 1, true)
	if err != nil {
		t.Fatalf("unexpected error for round 1: %v", err)
	}
	if ctxText != "" {
		t.Errorf("expected round 1 to have no prior context, got %q", ctxText)
	}
}
