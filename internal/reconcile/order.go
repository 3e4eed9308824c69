package reconcile

import (
	"cmp"
	"slices"

	"github.com/lei/runwatch/internal/models"
)

const (
	OrderInferred      = "inferred"
	OrderAuthoritative = "authoritative"
)

// InferOrder sorts events by ascending timestamp and returns the stage names
// in first-seen order. Events with equal timestamps keep their input order.
func InferOrder(events []models.RawStageEvent) []string {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b models.RawStageEvent) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	order := make([]string, 0, len(sorted))
	seen := make(map[string]bool, len(sorted))
	for _, ev := range sorted {
		if seen[ev.Stage] {
			continue
		}
		seen[ev.Stage] = true
		order = append(order, ev.Stage)
	}
	return order
}

// CanonicalOrder resolves the display sequence for a set of filtered events.
// An authoritative order from the backend wins; observed stages it does not
// mention follow in inferred order. The second return value names the source.
func CanonicalOrder(events []models.RawStageEvent, authoritative, internal []string) ([]string, string) {
	inferred := InferOrder(events)
	if len(authoritative) == 0 {
		return inferred, OrderInferred
	}

	skip := nameSet(internal)
	order := make([]string, 0, len(authoritative)+len(inferred))
	seen := make(map[string]bool, len(authoritative)+len(inferred))
	for _, name := range authoritative {
		if name == "" || skip[name] || seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}
	for _, name := range inferred {
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}
	return order, OrderAuthoritative
}

// alignOrder drops names without a stage record and appends stages the order
// does not mention, keeping their slice position
func alignOrder(order []string, stages []models.NormalizedStage) []string {
	present := make(map[string]bool, len(stages))
	for _, st := range stages {
		present[st.Name] = true
	}
	out := make([]string, 0, len(stages))
	seen := make(map[string]bool, len(stages))
	for _, name := range order {
		if present[name] && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, st := range stages {
		if !seen[st.Name] {
			seen[st.Name] = true
			out = append(out, st.Name)
		}
	}
	return out
}
