package dbindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ait42/orchestrator/internal/model"
)

func newTestIndex(t *testing.T) Index {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	idx, err := New(Config{Driver: "sqlite3", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestNoopIndexIsSelectedForEmptyDriver(t *testing.T) {
	idx, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := idx.(noopIndex); !ok {
		t.Fatalf("expected noopIndex for an empty driver, got %T", idx)
	}
}

func TestNewRejectsUnrecognizedDriver(t *testing.T) {
	if _, err := New(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected an error for an unrecognized driver")
	}
}

func TestStartedThenGetRoundTrips(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	rec := Record{
		RunID:    "run-1",
		Mode:     model.ModeCompetition,
		Task:     "fix the flaky test",
		ModelTag: model.ModelTagFast,
		Status:   model.RunStatusIdle,
		AgentPlan: []model.AgentSpec{
			{Index: 1, DisplayName: "agent-1"},
			{Index: 2, DisplayName: "agent-2"},
		},
		BaseWorkingDirectory: "/work",
		CreatedAt:            time.Now().UTC().Truncate(time.Second),
	}
	if err := idx.Started(ctx, rec); err != nil {
		t.Fatalf("Started: %v", err)
	}

	got, err := idx.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Task != rec.Task || got.Mode != rec.Mode || got.ModelTag != rec.ModelTag {
		t.Fatalf("round-tripped record mismatch: %+v", got)
	}
	if len(got.AgentPlan) != 2 {
		t.Fatalf("expected 2 agents in the plan, got %d", len(got.AgentPlan))
	}
	if got.CompletedAt != nil {
		t.Fatal("expected CompletedAt to be nil before Finished is called")
	}
}

func TestFinishedUpdatesStatusAndError(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	rec := Record{RunID: "run-2", Mode: model.ModeEnsemble, ModelTag: model.ModelTagBalanced, Status: model.RunStatusIdle, CreatedAt: time.Now().UTC()}
	if err := idx.Started(ctx, rec); err != nil {
		t.Fatalf("Started: %v", err)
	}

	completedAt := time.Now().UTC().Truncate(time.Second)
	if err := idx.Finished(ctx, "run-2", model.RunStatusFailed, completedAt, "agent 2 timed out"); err != nil {
		t.Fatalf("Finished: %v", err)
	}

	got, err := idx.Get(ctx, "run-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.RunStatusFailed {
		t.Fatalf("expected status Failed, got %s", got.Status)
	}
	if got.Error != "agent 2 timed out" {
		t.Fatalf("expected the failure reason to be persisted, got %q", got.Error)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set after Finished")
	}
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, runID := range []string{"run-a", "run-b", "run-c"} {
		rec := Record{
			RunID:     runID,
			Mode:      model.ModeDebate,
			ModelTag:  model.ModelTagThorough,
			Status:    model.RunStatusIdle,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := idx.Started(ctx, rec); err != nil {
			t.Fatalf("Started(%s): %v", runID, err)
		}
	}

	records, err := idx.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].RunID != "run-c" {
		t.Fatalf("expected run-c (most recent) first, got %s", records[0].RunID)
	}
}

func TestGetUnknownRunErrors(t *testing.T) {
	idx := newTestIndex(t)
	if _, err := idx.Get(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected an error for an unknown run id")
	}
}
