package models

import "time"

// StageStatus is the reported state of a single pipeline stage
type StageStatus string

const (
	StagePending   StageStatus = "PENDING"
	StageStarted   StageStatus = "STARTED"
	StageRunning   StageStatus = "RUNNING"
	StageCompleted StageStatus = "COMPLETED"
	StageFailed    StageStatus = "FAILED"
	StageTimedOut  StageStatus = "TIMED_OUT"

	// StageUnknown is a display status for records whose status is missing
	// or not one of the known values. It is never reported by the backend.
	StageUnknown StageStatus = "UNKNOWN"
)

// Known reports whether s is one of the backend's enum values
func (s StageStatus) Known() bool {
	switch s {
	case StagePending, StageStarted, StageRunning, StageCompleted, StageFailed, StageTimedOut:
		return true
	}
	return false
}

// Terminal reports whether the stage has finished, successfully or not
func (s StageStatus) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageTimedOut
}

// RunStatus is the run-level status reported by the backend
type RunStatus string

const (
	RunPending    RunStatus = "PENDING"
	RunStarted    RunStatus = "STARTED"
	RunRunning    RunStatus = "RUNNING"
	RunCompleted  RunStatus = "COMPLETED"
	RunFailed     RunStatus = "FAILED"
	RunTimedOut   RunStatus = "TIMED_OUT"
	RunTerminated RunStatus = "TERMINATED"
	RunCanceled   RunStatus = "CANCELED"
	RunUnknown    RunStatus = "UNKNOWN"
)

// Active reports whether the run is still executing and worth polling
func (s RunStatus) Active() bool {
	return s == RunRunning || s == RunStarted
}

// NormalizedStage is the canonical per-stage record
type NormalizedStage struct {
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	RawStatus string      `json:"raw_status,omitempty"`
	Timestamp float64     `json:"timestamp"`
	Duration  *float64    `json:"duration"`
	Error     *string     `json:"error"`
	Output    any         `json:"output"`

	// Synthetic marks placeholder records for expected stages that have no
	// backend event yet.
	Synthetic   bool   `json:"synthetic,omitempty"`
	Description string `json:"description,omitempty"`
}

// Aggregate holds run-level metrics derived from the stage set
type Aggregate struct {
	Total           int `json:"total"`
	CompletedCount  int `json:"completed_count"`
	FailedCount     int `json:"failed_count"`
	ProgressPercent int `json:"progress_percent"`
}

// Diagnostics carries backend hints and reconciliation bookkeeping
type Diagnostics struct {
	Warning           string     `json:"warning,omitempty"`
	DiagnosticError   string     `json:"diagnostic_error,omitempty"`
	CurrentPhase      string     `json:"current_phase,omitempty"`
	ElapsedSeconds    *float64   `json:"elapsed_seconds,omitempty"`
	StartTime         *time.Time `json:"start_time,omitempty"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	RawEventCount     int        `json:"raw_event_count"`
	DuplicateCount    int        `json:"duplicate_count"`
	SynthesizedStages []string   `json:"synthesized_stages,omitempty"`
	OrderSource       string     `json:"order_source"`
}

// RunSnapshot is the full reconciled view of a run at one point in time.
// Snapshots are replaced wholesale, never patched.
type RunSnapshot struct {
	Identity       RunIdentity       `json:"identity"`
	RunStatus      RunStatus         `json:"run_status"`
	Stages         []NormalizedStage `json:"stages"`
	CanonicalOrder []string          `json:"canonical_order"`
	Result         any               `json:"result"`
	Aggregate      Aggregate         `json:"aggregate"`
	Diagnostics    Diagnostics       `json:"diagnostics"`
	FetchedAt      time.Time         `json:"fetched_at"`
}

// Stage looks up a stage by name
func (s *RunSnapshot) Stage(name string) (NormalizedStage, bool) {
	for _, st := range s.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return NormalizedStage{}, false
}

// OrderedStages returns the stages in canonical order
func (s *RunSnapshot) OrderedStages() []NormalizedStage {
	byName := make(map[string]NormalizedStage, len(s.Stages))
	for _, st := range s.Stages {
		byName[st.Name] = st
	}
	ordered := make([]NormalizedStage, 0, len(s.Stages))
	for _, name := range s.CanonicalOrder {
		if st, ok := byName[name]; ok {
			ordered = append(ordered, st)
			delete(byName, name)
		}
	}
	// Stages missing from the order keep their slice position at the end
	for _, st := range s.Stages {
		if _, ok := byName[st.Name]; ok {
			ordered = append(ordered, st)
		}
	}
	return ordered
}

// RunSummary is one entry of the run list view
type RunSummary struct {
	Identity     RunIdentity `json:"identity"`
	WorkflowType string      `json:"workflow_type,omitempty"`
	Status       RunStatus   `json:"status"`
	StartTime    *time.Time  `json:"start_time,omitempty"`
	EndTime      *time.Time  `json:"end_time,omitempty"`
	CurrentPhase string      `json:"current_phase,omitempty"`
}
