// Package reconcile turns the backend's raw stage log into one canonical,
// ordered and deduplicated pipeline view. Everything here is pure.
package reconcile

import (
	"strings"

	"github.com/lei/runwatch/internal/models"
)

// DefaultInternalStages mark configuration loading and result persistence.
// They are filtered when no pipeline configuration names others.
var DefaultInternalStages = []string{"load_config", "save_result"}

// FilterEvents drops internal bookkeeping stages and events without a stage
// name. The input slice is not modified.
func FilterEvents(events []models.RawStageEvent, internal []string) []models.RawStageEvent {
	skip := nameSet(internal)
	filtered := make([]models.RawStageEvent, 0, len(events))
	for _, ev := range events {
		name := strings.TrimSpace(ev.Stage)
		if name == "" || skip[name] {
			continue
		}
		ev.Stage = name
		filtered = append(filtered, ev)
	}
	return filtered
}

// Normalize converts raw events into uniform stage records, one per event
func Normalize(events []models.RawStageEvent, internal []string) []models.NormalizedStage {
	filtered := FilterEvents(events, internal)
	stages := make([]models.NormalizedStage, 0, len(filtered))
	for _, ev := range filtered {
		stages = append(stages, normalizeEvent(ev))
	}
	return stages
}

func normalizeEvent(ev models.RawStageEvent) models.NormalizedStage {
	st := models.NormalizedStage{
		Name:      ev.Stage,
		Status:    models.ParseStageStatus(ev.Status),
		Timestamp: ev.Timestamp,
		Duration:  ev.Duration,
		Error:     ev.Error,
		Output:    ev.Output,
	}
	if st.Status == models.StageUnknown {
		st.RawStatus = ev.Status
	}
	return st
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = true
		}
	}
	return set
}
