package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/portcheck/portcheck/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "portcheck.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRunLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := &Run{
		ID:         "run-1",
		Project:    "demo",
		Status:     model.RunStatusRunning,
		StartedAt:  time.Now(),
		UnitsTotal: 3,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Project != "demo" || got.Status != model.RunStatusRunning || got.UnitsTotal != 3 {
		t.Errorf("stored run: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("new run has a completion time")
	}

	run.Status = model.RunStatusPartial
	run.UnitsConverted = 2
	run.UnitsFailed = 1
	if err := store.CompleteRun(ctx, run); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != model.RunStatusPartial || got.UnitsConverted != 2 || got.CompletedAt == nil {
		t.Errorf("completed run: %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := testStore(t)
	if _, err := store.GetRun(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing run")
	}
	if err := store.CompleteRun(context.Background(), &Run{ID: "missing"}); err == nil {
		t.Fatal("expected error completing missing run")
	}
}

func TestUnitOutcomeUpsert(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	if err := store.CreateRun(ctx, &Run{ID: "run-1", Project: "demo", Status: model.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	o := &UnitOutcome{RunID: "run-1", UnitID: "math_ops", Status: model.StatusInProgress, Attempts: 1}
	if err := store.SaveUnitOutcome(ctx, o); err != nil {
		t.Fatalf("SaveUnitOutcome failed: %v", err)
	}
	o.Status = model.StatusConverted
	o.Attempts = 2
	if err := store.SaveUnitOutcome(ctx, o); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	outcomes, err := store.ListUnitOutcomes(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListUnitOutcomes failed: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("outcomes: got %d, want 1", len(outcomes))
	}
	if outcomes[0].Status != model.StatusConverted || outcomes[0].Attempts != 2 {
		t.Errorf("outcome: %+v", outcomes[0])
	}
}

func TestSaveAndListVerdicts(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	if err := store.CreateRun(ctx, &Run{ID: "run-1", Project: "demo", Status: model.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	baseline := model.IntValue(3)
	target := model.IntValue(4)
	verdict := &model.UnitVerdict{
		UnitID:  "math_ops",
		Attempt: 1,
		Cases: []model.CaseVerdict{
			{CaseID: "add_boundary_0", Name: "add_boundary_0", Function: "add", Match: true},
			{CaseID: "add_boundary_1", Name: "add_boundary_1", Function: "add", Match: false,
				Differences: []model.Difference{{
					Output: "ret", Reason: model.ReasonValueMismatch,
					Baseline: &baseline, Target: &target, Delta: 1,
				}}},
		},
		Passed: 1,
		Failed: 1,
	}
	if err := store.SaveVerdict(ctx, "run-1", verdict); err != nil {
		t.Fatalf("SaveVerdict failed: %v", err)
	}

	records, err := store.ListVerdicts(ctx, "run-1", "math_ops", 1)
	if err != nil {
		t.Fatalf("ListVerdicts failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records: got %d, want 2", len(records))
	}
	if !records[0].Match || records[1].Match {
		t.Errorf("match flags: %+v %+v", records[0], records[1])
	}
	if records[1].Detail == "" {
		t.Error("failed case has no detail")
	}
	if records[0].Detail != "" {
		t.Error("passing case carries detail")
	}
}

func TestAppendAndListEvents(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, e := range []*EventRecord{
		{RunID: "run-1", Type: "run.started", Level: "info", Message: "run started"},
		{RunID: "run-1", UnitID: "math_ops", Type: "unit.converted", Level: "info", Message: "unit converted"},
		{RunID: "run-2", Type: "run.started", Level: "info", Message: "other run"},
	} {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	events, err := store.ListEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events: got %d, want 2", len(events))
	}
	if events[0].Type != "run.started" || events[1].UnitID != "math_ops" {
		t.Errorf("event order or fields: %+v %+v", events[0], events[1])
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"run-a", "run-b"} {
		run := &Run{ID: id, Project: "demo", Status: model.RunStatusRunning, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" {
		t.Errorf("runs: %+v", runs)
	}
}
