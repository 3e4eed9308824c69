package reconcile

import (
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/lei/runwatch/internal/models"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestNormalize_DefaultsAndFiltering(t *testing.T) {
	events := []models.RawStageEvent{
		{Stage: "load_config", Status: "COMPLETED", Timestamp: 1},
		{Stage: "research", Timestamp: 2},
		{Stage: "draft", Status: "running", Timestamp: 3, Duration: floatPtr(1.5)},
		{Stage: "review", Status: "EXPLODED", Timestamp: 4, Error: strPtr("boom")},
		{Stage: "", Status: "COMPLETED", Timestamp: 5},
		{Stage: "save_result", Status: "COMPLETED", Timestamp: 6},
	}

	got := Normalize(events, DefaultInternalStages)
	if len(got) != 3 {
		t.Fatalf("Normalize() returned %d stages, want 3: %+v", len(got), got)
	}

	if got[0].Name != "research" || got[0].Status != models.StageUnknown {
		t.Errorf("missing status: got %s/%s, want research/UNKNOWN", got[0].Name, got[0].Status)
	}
	if got[0].Duration != nil || got[0].Error != nil || got[0].Output != nil {
		t.Errorf("missing optional fields should be nil, got %+v", got[0])
	}
	if got[1].Status != models.StageRunning {
		t.Errorf("status = %s, want RUNNING", got[1].Status)
	}
	if got[1].Duration == nil || *got[1].Duration != 1.5 {
		t.Errorf("duration = %v, want 1.5", got[1].Duration)
	}
	if got[2].Status != models.StageUnknown || got[2].RawStatus != "EXPLODED" {
		t.Errorf("unrecognised status: got %s raw=%q", got[2].Status, got[2].RawStatus)
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	if got := Normalize(nil, DefaultInternalStages); len(got) != 0 {
		t.Errorf("Normalize(nil) = %v, want empty", got)
	}
}

func TestInferOrder_SortsByTimestampRegardlessOfInputOrder(t *testing.T) {
	ordered := []models.RawStageEvent{
		{Stage: "s1", Timestamp: 10},
		{Stage: "s2", Timestamp: 20},
		{Stage: "s3", Timestamp: 30},
		{Stage: "s4", Timestamp: 40},
	}
	want := []string{"s1", "s2", "s3", "s4"}

	permutations := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
		{1, 3, 0, 2},
	}
	for _, perm := range permutations {
		events := make([]models.RawStageEvent, len(perm))
		for i, p := range perm {
			events[i] = ordered[p]
		}
		if got := InferOrder(events); !slices.Equal(got, want) {
			t.Errorf("InferOrder(%v) = %v, want %v", perm, got, want)
		}
	}
}

func TestInferOrder_FirstOccurrenceAndStableTies(t *testing.T) {
	events := []models.RawStageEvent{
		{Stage: "b", Timestamp: 5},
		{Stage: "a", Timestamp: 5},
		{Stage: "c", Timestamp: 1},
		{Stage: "b", Timestamp: 9},
		{Stage: "c", Timestamp: 12},
	}
	want := []string{"c", "b", "a"}
	if got := InferOrder(events); !slices.Equal(got, want) {
		t.Errorf("InferOrder() = %v, want %v", got, want)
	}
}

func TestCanonicalOrder_AuthoritativeWins(t *testing.T) {
	events := []models.RawStageEvent{
		{Stage: "draft", Timestamp: 1},
		{Stage: "research", Timestamp: 2},
		{Stage: "extra", Timestamp: 3},
	}
	got, source := CanonicalOrder(events, []string{"load_config", "research", "draft", "research"}, DefaultInternalStages)
	want := []string{"research", "draft", "extra"}
	if !slices.Equal(got, want) {
		t.Errorf("CanonicalOrder() = %v, want %v", got, want)
	}
	if source != OrderAuthoritative {
		t.Errorf("source = %q, want %q", source, OrderAuthoritative)
	}

	_, source = CanonicalOrder(events, nil, DefaultInternalStages)
	if source != OrderInferred {
		t.Errorf("source = %q, want %q", source, OrderInferred)
	}
}

func TestDeduplicate_KeepsLatestTimestamp(t *testing.T) {
	stages := []models.NormalizedStage{
		{Name: "X", Status: models.StageFailed, Timestamp: 20, Error: strPtr("second")},
		{Name: "Y", Status: models.StageCompleted, Timestamp: 15},
		{Name: "X", Status: models.StageRunning, Timestamp: 10, Error: strPtr("first")},
	}

	got, collapsed := Deduplicate(stages)
	if len(got) != 2 {
		t.Fatalf("Deduplicate() returned %d stages, want 2", len(got))
	}
	if collapsed != 1 {
		t.Errorf("collapsed = %d, want 1", collapsed)
	}
	x := got[0]
	if x.Name != "X" || x.Timestamp != 20 || x.Status != models.StageFailed || *x.Error != "second" {
		t.Errorf("X = %+v, want fields from the timestamp-20 record", x)
	}
}

func TestDeduplicate_TieGoesToLaterRecord(t *testing.T) {
	stages := []models.NormalizedStage{
		{Name: "X", Status: models.StageRunning, Timestamp: 10},
		{Name: "X", Status: models.StageCompleted, Timestamp: 10},
	}
	got, _ := Deduplicate(stages)
	if len(got) != 1 || got[0].Status != models.StageCompleted {
		t.Errorf("Deduplicate() = %+v, want the later COMPLETED record", got)
	}
}

func TestSynthesize_AddsMissingTerminalStage(t *testing.T) {
	stages := []models.NormalizedStage{{Name: "research", Status: models.StageCompleted, Timestamp: 3}}
	expected := []ExpectedStage{{Name: "publish_script", Description: "waiting"}}

	got, added := Synthesize(stages, expected)
	if len(got) != 2 {
		t.Fatalf("Synthesize() returned %d stages, want 2", len(got))
	}
	syn := got[1]
	if syn.Name != "publish_script" || syn.Status != models.StagePending || syn.Timestamp != 0 || !syn.Synthetic || syn.Description != "waiting" {
		t.Errorf("synthetic stage = %+v", syn)
	}
	if !slices.Equal(added, []string{"publish_script"}) {
		t.Errorf("added = %v, want [publish_script]", added)
	}

	present := append(stages, models.NormalizedStage{Name: "publish_script", Status: models.StageRunning, Timestamp: 9})
	got, added = Synthesize(present, expected)
	if len(got) != 2 || len(added) != 0 {
		t.Errorf("Synthesize() should not add a stage that already ran, got %+v", got)
	}
}

func TestDeduplicateAndSynthesize_Idempotent(t *testing.T) {
	stages := []models.NormalizedStage{
		{Name: "a", Status: models.StageRunning, Timestamp: 1},
		{Name: "b", Status: models.StageCompleted, Timestamp: 2},
		{Name: "a", Status: models.StageCompleted, Timestamp: 3},
	}
	expected := []ExpectedStage{{Name: "review"}, {Name: "publish_script"}}

	once := DeduplicateAndSynthesize(stages, expected)
	twice := DeduplicateAndSynthesize(once, expected)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second pass changed the result:\n once: %+v\ntwice: %+v", once, twice)
	}
	if len(once) != 4 {
		t.Errorf("len = %d, want 4 (a, b, review, publish_script)", len(once))
	}
}

func TestProject(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.StageStatus
		want     models.Aggregate
	}{
		{
			name:     "mixed",
			statuses: []models.StageStatus{models.StageCompleted, models.StageCompleted, models.StageFailed, models.StagePending},
			want:     models.Aggregate{Total: 4, CompletedCount: 2, FailedCount: 1, ProgressPercent: 50},
		},
		{
			name:     "timed out counts as failed",
			statuses: []models.StageStatus{models.StageTimedOut, models.StageFailed, models.StageCompleted},
			want:     models.Aggregate{Total: 3, CompletedCount: 1, FailedCount: 2, ProgressPercent: 33},
		},
		{
			name:     "rounds half up",
			statuses: []models.StageStatus{models.StageCompleted, models.StageRunning, models.StageRunning, models.StageRunning, models.StageRunning, models.StageRunning, models.StageRunning, models.StageRunning},
			want:     models.Aggregate{Total: 8, CompletedCount: 1, FailedCount: 0, ProgressPercent: 13},
		},
		{
			name: "empty run",
			want: models.Aggregate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stages := make([]models.NormalizedStage, len(tt.statuses))
			for i, s := range tt.statuses {
				stages[i] = models.NormalizedStage{Name: string(rune('a' + i)), Status: s}
			}
			if got := Project(stages); got != tt.want {
				t.Errorf("Project() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	report := &models.RunReport{
		Status: "RUNNING",
		StageLogs: []models.RawStageEvent{
			{Stage: "load_config", Status: "COMPLETED", Timestamp: 1},
			{Stage: "draft", Status: "RUNNING", Timestamp: 30},
			{Stage: "research", Status: "RUNNING", Timestamp: 10},
			{Stage: "research", Status: "COMPLETED", Timestamp: 20, Output: "notes"},
		},
		ExpectedStages: []string{"research", "draft", "review"},
		Warning:        "slow backend",
		StartTime:      float64(1700000000),
	}
	id := models.RunIdentity{WorkflowID: "wf", RunID: "run"}
	now := time.Unix(1700000100, 0)

	snap := Build(id, report, DefaultPipeline(), now)

	if snap.RunStatus != models.RunRunning {
		t.Errorf("RunStatus = %s, want RUNNING", snap.RunStatus)
	}
	wantOrder := []string{"research", "draft", "review", "publish_script"}
	if !slices.Equal(snap.CanonicalOrder, wantOrder) {
		t.Errorf("CanonicalOrder = %v, want %v", snap.CanonicalOrder, wantOrder)
	}
	research, ok := snap.Stage("research")
	if !ok || research.Status != models.StageCompleted || research.Output != "notes" {
		t.Errorf("research = %+v, want the COMPLETED record", research)
	}
	if snap.Aggregate != (models.Aggregate{Total: 4, CompletedCount: 1, ProgressPercent: 25}) {
		t.Errorf("Aggregate = %+v", snap.Aggregate)
	}
	d := snap.Diagnostics
	if d.RawEventCount != 4 || d.DuplicateCount != 1 || d.Warning != "slow backend" {
		t.Errorf("Diagnostics = %+v", d)
	}
	if !slices.Equal(d.SynthesizedStages, []string{"review", "publish_script"}) {
		t.Errorf("SynthesizedStages = %v", d.SynthesizedStages)
	}
	if d.StartTime == nil || d.StartTime.Unix() != 1700000000 {
		t.Errorf("StartTime = %v", d.StartTime)
	}
	if !snap.FetchedAt.Equal(now) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, now)
	}
}

func TestBuild_EmptyRunShowsTerminalPlaceholder(t *testing.T) {
	snap := Build(models.RunIdentity{WorkflowID: "wf", RunID: "r"}, &models.RunReport{Status: "PENDING"}, DefaultPipeline(), time.Now())
	if len(snap.Stages) != 1 || snap.Stages[0].Name != DefaultTerminalStage {
		t.Fatalf("Stages = %+v, want only the terminal placeholder", snap.Stages)
	}
	if snap.Aggregate.ProgressPercent != 0 {
		t.Errorf("ProgressPercent = %d, want 0", snap.Aggregate.ProgressPercent)
	}
}

func TestPipeline_Label(t *testing.T) {
	p := Pipeline{DisplayNames: map[string]string{"research": "Research notes", "draft": ""}}
	tests := map[string]string{
		"research": "Research notes",
		"draft":    "draft",
		"unknown":  "unknown",
	}
	for stage, want := range tests {
		if got := p.Label(stage); got != want {
			t.Errorf("Label(%q) = %q, want %q", stage, got, want)
		}
	}
}
