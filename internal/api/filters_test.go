package api

import (
	"net/url"
	"testing"

	"github.com/lei/runwatch/internal/models"
)

func TestParseRunQuery(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantLimit    int
		wantSearch   string
		wantStatuses []models.RunStatus
		wantErr      bool
	}{
		{"empty", "", 0, "", nil, false},
		{"limit", "limit=5", 5, "", nil, false},
		{"limit capped", "limit=500", 100, "", nil, false},
		{"bad limit", "limit=abc", 0, "", nil, true},
		{"negative limit", "limit=-1", 0, "", nil, true},
		{"search trimmed", "search=+video+", 0, "video", nil, false},
		{"statuses", "status=running,COMPLETED", 0, "", []models.RunStatus{models.RunRunning, models.RunCompleted}, false},
		{"cancelled spelling", "status=cancelled", 0, "", []models.RunStatus{models.RunCanceled}, false},
		{"bad status", "status=running,sleepy", 0, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}

			q, err := parseRunQuery(values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRunQuery() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if q.Limit != tt.wantLimit || q.Search != tt.wantSearch {
				t.Errorf("parseRunQuery() = %+v", q)
			}
			if len(q.Statuses) != len(tt.wantStatuses) {
				t.Fatalf("Statuses = %v, want %v", q.Statuses, tt.wantStatuses)
			}
			for i := range q.Statuses {
				if q.Statuses[i] != tt.wantStatuses[i] {
					t.Errorf("Statuses = %v, want %v", q.Statuses, tt.wantStatuses)
				}
			}
		})
	}
}
