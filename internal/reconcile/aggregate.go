package reconcile

import (
	"math"

	"github.com/lei/runwatch/internal/models"
)

// Project computes run-level counts and progress. A run without stages has
// zero progress.
func Project(stages []models.NormalizedStage) models.Aggregate {
	agg := models.Aggregate{Total: len(stages)}
	for _, st := range stages {
		switch st.Status {
		case models.StageCompleted:
			agg.CompletedCount++
		case models.StageFailed, models.StageTimedOut:
			agg.FailedCount++
		}
	}
	if agg.Total > 0 {
		agg.ProgressPercent = int(math.Round(float64(agg.CompletedCount) / float64(agg.Total) * 100))
	}
	return agg
}
