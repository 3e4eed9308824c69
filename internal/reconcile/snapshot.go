package reconcile

import (
	"time"

	"github.com/lei/runwatch/internal/models"
)

// Pipeline describes the expected shape of a run's stages
type Pipeline struct {
	InternalStages      []string
	TerminalStage       string
	TerminalDescription string

	// Descriptions annotates synthetic stages, keyed by stage name
	Descriptions map[string]string

	// DisplayNames are shown in place of raw stage names
	DisplayNames map[string]string
}

// Label returns the display name for a stage, falling back to its raw name
func (p Pipeline) Label(stage string) string {
	if name := p.DisplayNames[stage]; name != "" {
		return name
	}
	return stage
}

// DefaultPipeline returns the shape used when nothing is configured
func DefaultPipeline() Pipeline {
	return Pipeline{
		InternalStages:      DefaultInternalStages,
		TerminalStage:       DefaultTerminalStage,
		TerminalDescription: "Waiting for the publishing step to start",
	}
}

// expected merges the backend's expected stages with the terminal stage
func (p Pipeline) expected(fromBackend []string) []ExpectedStage {
	skip := nameSet(p.InternalStages)
	var out []ExpectedStage
	for _, name := range fromBackend {
		if name == "" || skip[name] || name == p.TerminalStage {
			continue
		}
		out = append(out, ExpectedStage{Name: name, Description: p.Descriptions[name]})
	}
	if p.TerminalStage != "" {
		desc := p.TerminalDescription
		if d, ok := p.Descriptions[p.TerminalStage]; ok && d != "" {
			desc = d
		}
		out = append(out, ExpectedStage{Name: p.TerminalStage, Description: desc})
	}
	return out
}

// Build reconciles one backend report into a snapshot
func Build(id models.RunIdentity, report *models.RunReport, p Pipeline, now time.Time) *models.RunSnapshot {
	filtered := FilterEvents(report.StageLogs, p.InternalStages)

	normalized := make([]models.NormalizedStage, 0, len(filtered))
	for _, ev := range filtered {
		normalized = append(normalized, normalizeEvent(ev))
	}
	deduped, collapsed := Deduplicate(normalized)
	stages, synthesized := Synthesize(deduped, p.expected(report.ExpectedStages))

	order, source := CanonicalOrder(filtered, report.StageOrder, p.InternalStages)
	order = alignOrder(order, stages)

	return &models.RunSnapshot{
		Identity:       id,
		RunStatus:      models.ParseRunStatus(report.Status),
		Stages:         stages,
		CanonicalOrder: order,
		Result:         report.Result,
		Aggregate:      Project(stages),
		Diagnostics: models.Diagnostics{
			Warning:           report.Warning,
			DiagnosticError:   report.DiagnosticError,
			CurrentPhase:      report.CurrentPhase,
			ElapsedSeconds:    report.Elapsed(),
			StartTime:         models.ParseTime(report.StartTime),
			EndTime:           models.ParseTime(report.EndTime),
			RawEventCount:     len(report.StageLogs),
			DuplicateCount:    collapsed,
			SynthesizedStages: synthesized,
			OrderSource:       source,
		},
		FetchedAt: now,
	}
}
