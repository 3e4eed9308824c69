package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RunReport is the body of the backend's workflow-result endpoint
type RunReport struct {
	Status          string          `json:"status"`
	Result          any             `json:"result,omitempty"`
	StartTime       any             `json:"start_time,omitempty"`
	EndTime         any             `json:"end_time,omitempty"`
	CurrentPhase    string          `json:"current_phase,omitempty"`
	ElapsedSeconds  any             `json:"elapsed_seconds,omitempty"`
	StageLogs       []RawStageEvent `json:"stage_logs"`
	Warning         string          `json:"warning,omitempty"`
	DiagnosticError string          `json:"diagnostic_error,omitempty"`

	// Optional hints. When present they take precedence over locally
	// configured or inferred pipeline shape.
	ExpectedStages []string `json:"expected_stages,omitempty"`
	StageOrder     []string `json:"stage_order,omitempty"`
}

// UnmarshalJSON decodes a report without letting one malformed field sink
// the whole snapshot: text fields accept any scalar or JSON value, and
// stage_logs entries that are not objects are skipped.
func (r *RunReport) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode workflow report: %w", err)
	}

	*r = RunReport{
		Status:          eventString(raw["status"]),
		Result:          raw["result"],
		StartTime:       raw["start_time"],
		EndTime:         raw["end_time"],
		CurrentPhase:    eventText(raw["current_phase"]),
		ElapsedSeconds:  raw["elapsed_seconds"],
		Warning:         eventText(raw["warning"]),
		DiagnosticError: eventText(raw["diagnostic_error"]),
		ExpectedStages:  stringList(raw["expected_stages"]),
		StageOrder:      stringList(raw["stage_order"]),
	}
	if logs, ok := raw["stage_logs"].([]any); ok {
		r.StageLogs = make([]RawStageEvent, 0, len(logs))
		for _, entry := range logs {
			if ev, ok := entry.(map[string]any); ok {
				r.StageLogs = append(r.StageLogs, stageEventFromMap(ev))
			}
		}
	}
	return nil
}

// stringList keeps the non-empty string entries of a JSON array
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// Elapsed returns elapsed_seconds as a number when the backend sent one
func (r *RunReport) Elapsed() *float64 {
	return eventFloat(r.ElapsedSeconds)
}

// ParseRunStatus maps a backend run status onto RunStatus
func ParseRunStatus(raw string) RunStatus {
	switch s := RunStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case RunPending, RunStarted, RunRunning, RunCompleted, RunFailed, RunTimedOut, RunTerminated, RunCanceled:
		return s
	case "CANCELLED":
		return RunCanceled
	default:
		return RunUnknown
	}
}

// ParseStageStatus maps a backend stage status onto StageStatus. Anything
// missing or unrecognised becomes StageUnknown; the caller keeps the raw text.
func ParseStageStatus(raw string) StageStatus {
	s := StageStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if s.Known() {
		return s
	}
	return StageUnknown
}

// ParseRunSummary decodes one loosely typed entry of the run list
func ParseRunSummary(entry map[string]any) RunSummary {
	return RunSummary{
		Identity: RunIdentity{
			WorkflowID: firstString(entry, "workflow_id", "workflowId", "id"),
			RunID:      firstString(entry, "run_id", "runId"),
		},
		WorkflowType: firstString(entry, "workflow_type", "type"),
		Status:       ParseRunStatus(firstString(entry, "status")),
		StartTime:    ParseTime(entry["start_time"]),
		EndTime:      ParseTime(entry["end_time"]),
		CurrentPhase: firstString(entry, "current_phase"),
	}
}

func firstString(entry map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := eventString(entry[k]); s != "" {
			return s
		}
	}
	return ""
}
