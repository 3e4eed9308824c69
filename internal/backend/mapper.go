package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/lei/runwatch/internal/models"
)

// mapRunList accepts either a bare array of runs or an object wrapping one
func mapRunList(raw any) []models.RunSummary {
	var entries []any
	switch t := raw.(type) {
	case []any:
		entries = t
	case map[string]any:
		for _, key := range []string{"runs", "workflow_runs", "items"} {
			if list, ok := t[key].([]any); ok {
				entries = list
				break
			}
		}
	}

	runs := make([]models.RunSummary, 0, len(entries))
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		run := models.ParseRunSummary(entry)
		if run.Identity.WorkflowID == "" && run.Identity.RunID == "" {
			continue
		}
		runs = append(runs, run)
	}
	return runs
}

// parseError converts HTTP error responses to backend errors
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	message := errorMessage(body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &StatusError{Code: resp.StatusCode, Message: message, Err: ErrNotFound}
	case resp.StatusCode >= 500:
		return &StatusError{Code: resp.StatusCode, Message: message, Err: ErrServerFault}
	default:
		return &StatusError{Code: resp.StatusCode, Message: message}
	}
}

// errorMessage extracts {"error": ...} or {"detail": ...} from a response body
func errorMessage(body []byte) string {
	var errResp struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		for _, m := range []string{errResp.Error, errResp.Detail, errResp.Message} {
			if m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(body))
}
