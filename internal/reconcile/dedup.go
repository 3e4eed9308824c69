package reconcile

import "github.com/lei/runwatch/internal/models"

// DefaultTerminalStage is the publishing step every pipeline ends with
const DefaultTerminalStage = "publish_script"

// ExpectedStage describes a stage that should always appear in the view
type ExpectedStage struct {
	Name        string
	Description string
}

// Deduplicate collapses records sharing a name to the one with the greatest
// timestamp. On equal timestamps the later record in the input wins. Output
// keeps the position of each name's first appearance. The second return value
// counts the records that were collapsed away.
func Deduplicate(stages []models.NormalizedStage) ([]models.NormalizedStage, int) {
	index := make(map[string]int, len(stages))
	out := make([]models.NormalizedStage, 0, len(stages))
	collapsed := 0
	for _, st := range stages {
		i, ok := index[st.Name]
		if !ok {
			index[st.Name] = len(out)
			out = append(out, st)
			continue
		}
		collapsed++
		if st.Timestamp >= out[i].Timestamp {
			out[i] = st
		}
	}
	return out, collapsed
}

// Synthesize appends a PENDING placeholder for every expected stage that is
// absent from stages. Applying it to its own output adds nothing.
func Synthesize(stages []models.NormalizedStage, expected []ExpectedStage) ([]models.NormalizedStage, []string) {
	present := make(map[string]bool, len(stages))
	for _, st := range stages {
		present[st.Name] = true
	}

	out := append(make([]models.NormalizedStage, 0, len(stages)+len(expected)), stages...)
	var added []string
	for _, exp := range expected {
		if exp.Name == "" || present[exp.Name] {
			continue
		}
		present[exp.Name] = true
		out = append(out, models.NormalizedStage{
			Name:        exp.Name,
			Status:      models.StagePending,
			Timestamp:   0,
			Synthetic:   true,
			Description: exp.Description,
		})
		added = append(added, exp.Name)
	}
	return out, added
}

// DeduplicateAndSynthesize runs Deduplicate followed by Synthesize
func DeduplicateAndSynthesize(stages []models.NormalizedStage, expected []ExpectedStage) []models.NormalizedStage {
	deduped, _ := Deduplicate(stages)
	out, _ := Synthesize(deduped, expected)
	return out
}
