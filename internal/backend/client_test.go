package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/lei/runwatch/internal/models"
	"github.com/lei/runwatch/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", 5*time.Second, logger.NewNop())
}

func TestGetWorkflowResult_EncodesIdentity(t *testing.T) {
	id := models.RunIdentity{WorkflowID: "my flow/with spaces", RunID: "run#1"}

	var gotRawPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotRawPath = r.URL.EscapedPath()
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("X-API-Key = %q", r.Header.Get("X-API-Key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "RUNNING",
			"current_phase": "draft",
			"elapsed_seconds": "12.5",
			"stage_logs": [
				{"stage": "research", "status": "COMPLETED", "timestamp": 10, "duration": 2, "output": {"a": 1}},
				{"stage": "draft", "status": "RUNNING", "timestamp": "20"},
				{"stage": "review", "error": {"code": 7}}
			]
		}`))
	})

	report, err := client.GetWorkflowResult(context.Background(), id)
	if err != nil {
		t.Fatalf("GetWorkflowResult: %v", err)
	}

	wantPath := "/api/workflow-result/my%20flow%2Fwith%20spaces/run%231"
	if gotRawPath != wantPath {
		t.Errorf("path = %q, want %q", gotRawPath, wantPath)
	}

	// The server side decodes back to the original identifiers
	parts := strings.SplitN(strings.TrimPrefix(gotRawPath, "/api/workflow-result/"), "/", 2)
	decoded, err := models.ParseRunIdentity(parts[0], parts[1])
	if err != nil || decoded != id {
		t.Errorf("round trip = %+v (%v), want %+v", decoded, err, id)
	}

	if report.Status != "RUNNING" || len(report.StageLogs) != 3 {
		t.Fatalf("report = %+v", report)
	}
	if e := report.Elapsed(); e == nil || *e != 12.5 {
		t.Errorf("Elapsed() = %v, want 12.5", e)
	}
	if report.StageLogs[1].Timestamp != 20 {
		t.Errorf("string timestamp = %v, want 20", report.StageLogs[1].Timestamp)
	}
	if e := report.StageLogs[2].Error; e == nil || *e != `{"code":7}` {
		t.Errorf("object error = %v", e)
	}
}

func TestGetWorkflowResult_MalformedFieldsStillDecode(t *testing.T) {
	bodies := map[string]string{
		"non-object stage log": `{"status":"RUNNING","stage_logs":["garbage",{"stage":"draft","timestamp":1}]}`,
		"numeric status":       `{"status":1,"stage_logs":[{"stage":"draft","timestamp":1}]}`,
		"object warning":       `{"status":"RUNNING","warning":{"m":"x"},"stage_logs":[{"stage":"draft","timestamp":1}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})

			report, err := client.GetWorkflowResult(context.Background(), models.RunIdentity{WorkflowID: "wf", RunID: "r"})
			if err != nil {
				t.Fatalf("GetWorkflowResult: %v", err)
			}
			if len(report.StageLogs) != 1 || report.StageLogs[0].Stage != "draft" {
				t.Errorf("StageLogs = %+v", report.StageLogs)
			}
		})
	}
}

func TestGetWorkflowResult_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     error
		wantCode int
		wantMsg  string
	}{
		{"not found", http.StatusNotFound, `{"detail":"not finished"}`, ErrNotFound, 404, "not found"},
		{"server fault", http.StatusInternalServerError, `oops`, ErrServerFault, 500, "failed to answer"},
		{"bad gateway", http.StatusBadGateway, ``, ErrServerFault, 502, "failed to answer"},
		{"other status", http.StatusTeapot, `{"error":"short and stout"}`, nil, 418, "status 418"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.GetWorkflowResult(context.Background(), models.RunIdentity{WorkflowID: "wf", RunID: "r"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			var statusErr *StatusError
			if !errors.As(err, &statusErr) || statusErr.Code != tt.wantCode {
				t.Errorf("error = %v, want StatusError with code %d", err, tt.wantCode)
			}
			if msg := UserMessage(err); !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("UserMessage() = %q, want it to contain %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestGetWorkflowResult_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, "", time.Second, logger.NewNop())

	_, err := client.GetWorkflowResult(context.Background(), models.RunIdentity{WorkflowID: "wf", RunID: "r"})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}
	if UserMessage(err) != "Could not reach the workflow service." {
		t.Errorf("UserMessage() = %q", UserMessage(err))
	}
}

func TestListRuns(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"workflow_id":"wf-1","run_id":"r-1","status":"running","start_time":"2024-05-01T10:00:00Z"},{"workflow_id":"wf-2","run_id":"r-2","status":"COMPLETED"},"junk"]`},
		{"wrapped", `{"runs":[{"workflow_id":"wf-1","run_id":"r-1","status":"RUNNING","start_time":1714557600},{"workflowId":"wf-2","runId":"r-2","status":"COMPLETED"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/workflow-runs" || r.URL.Query().Get("limit") != "5" {
					t.Errorf("unexpected request %s", r.URL)
				}
				w.Write([]byte(tt.body))
			})

			runs, err := client.ListRuns(context.Background(), 5)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			if len(runs) != 2 {
				t.Fatalf("ListRuns() = %d runs, want 2", len(runs))
			}
			if runs[0].Identity.WorkflowID != "wf-1" || runs[0].Status != models.RunRunning {
				t.Errorf("runs[0] = %+v", runs[0])
			}
			if runs[0].StartTime == nil || runs[0].StartTime.Unix() != 1714557600 {
				t.Errorf("runs[0].StartTime = %v", runs[0].StartTime)
			}
			if runs[1].Identity.RunID != "r-2" || runs[1].Status != models.RunCompleted {
				t.Errorf("runs[1] = %+v", runs[1])
			}
		})
	}
}

func TestTerminate(t *testing.T) {
	var gotBody map[string]string
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true,"message":"terminated"}`))
	})

	env, err := client.Terminate(context.Background(), models.RunIdentity{WorkflowID: "a/b", RunID: "c"}, "user request")
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if gotPath != "/api/workflow-terminate/a%2Fb/c" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["reason"] != "user request" {
		t.Errorf("body = %v", gotBody)
	}
	if env.Message != "terminated" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestRetryStage_Rejected(t *testing.T) {
	var gotBody map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/retry-publish-script" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":false,"error":"stage is still running"}`))
	})

	_, err := client.RetryStage(context.Background(), models.RunIdentity{WorkflowID: "wf", RunID: "r"}, "publish_script")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
	if !strings.Contains(UserMessage(err), "stage is still running") {
		t.Errorf("UserMessage() = %q", UserMessage(err))
	}
	want := map[string]string{"workflow_id": "wf", "run_id": "r", "stage": "publish_script"}
	for k, v := range want {
		if gotBody[k] != v {
			t.Errorf("body[%s] = %q, want %q", k, gotBody[k], v)
		}
	}
}

func TestAPIKeysPassThrough(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api-keys":
			w.Write([]byte(`{"services":["openai"]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api-keys":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"success":true}`))
		case r.Method == http.MethodDelete:
			if r.URL.EscapedPath() != "/api-keys/"+url.PathEscape("my service") {
				t.Errorf("delete path = %q", r.URL.EscapedPath())
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	raw, err := client.ListAPIKeys(context.Background())
	if err != nil || string(raw) != `{"services":["openai"]}` {
		t.Errorf("ListAPIKeys() = %s, %v", raw, err)
	}
	if _, err := client.SetAPIKey(context.Background(), "openai", "k"); err != nil {
		t.Errorf("SetAPIKey: %v", err)
	}
	if err := client.DeleteAPIKey(context.Background(), "my service"); err != nil {
		t.Errorf("DeleteAPIKey: %v", err)
	}
}
