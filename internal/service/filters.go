package service

import (
	"strings"

	"github.com/lei/runwatch/internal/models"
)

// RunQuery selects runs for the list view
type RunQuery struct {
	Limit    int
	Search   string
	Statuses []models.RunStatus
}

// FilterRuns keeps runs whose identifiers, type or phase contain search
// (case-insensitive) and whose status is one of statuses. Empty filters
// match everything.
func FilterRuns(runs []models.RunSummary, search string, statuses []models.RunStatus) []models.RunSummary {
	search = strings.TrimSpace(search)
	if search == "" && len(statuses) == 0 {
		return runs
	}

	filtered := make([]models.RunSummary, 0, len(runs))
	searchLower := strings.ToLower(search)

	for _, r := range runs {
		if search != "" && !matchesSearch(r, searchLower) {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, r.Status) {
			continue
		}
		filtered = append(filtered, r)
	}

	return filtered
}

func matchesSearch(r models.RunSummary, searchLower string) bool {
	for _, field := range []string{r.Identity.WorkflowID, r.Identity.RunID, r.WorkflowType, r.CurrentPhase} {
		if strings.Contains(strings.ToLower(field), searchLower) {
			return true
		}
	}
	return false
}

func hasStatus(statuses []models.RunStatus, s models.RunStatus) bool {
	for _, want := range statuses {
		if want == s {
			return true
		}
	}
	return false
}

// ParseStatuses turns a comma-separated status list into run statuses.
// Unrecognised entries are returned separately so callers can reject them.
func ParseStatuses(raw string) ([]models.RunStatus, []string) {
	var statuses []models.RunStatus
	var invalid []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s := models.ParseRunStatus(part)
		if s == models.RunUnknown && !strings.EqualFold(part, string(models.RunUnknown)) {
			invalid = append(invalid, part)
			continue
		}
		statuses = append(statuses, s)
	}
	return statuses, invalid
}
