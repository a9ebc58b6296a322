package workspace

import (
	"testing"

	"github.com/ait42/orchestrator/internal/model"
)

func TestBranchLabel(t *testing.T) {
	got := branchLabel(model.ModeCompetition, "a1b2c3d4-e5f6-7890-abcd-ef0123456789", 2)
	want := "competition-a1b2c3d4-2"
	if got != want {
		t.Errorf("branchLabel = %q, want %q", got, want)
	}
}

func TestShortRunID(t *testing.T) {
	tests := []struct {
		runID string
		want  string
	}{
		{"a1b2c3d4-e5f6-7890-abcd-ef0123456789", "a1b2c3d4"},
		{"short", "short"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := shortRunID(tt.runID); got != tt.want {
			t.Errorf("shortRunID(%q) = %q, want %q", tt.runID, got, tt.want)
		}
	}
}

func TestBelongsToLiveRun(t *testing.T) {
	live := map[string]bool{"a1b2c3d4-xxxx": true}
	if !belongsToLiveRun("competition-a1b2c3d4-1", live) {
		t.Error("expected dir to belong to a live run")
	}
	if belongsToLiveRun("competition-deadbeef-1", live) {
		t.Error("expected dir not to belong to any live run")
	}
}
