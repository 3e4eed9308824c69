package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", "json", &buf).With("component", "test")

	log.Debug("hidden")
	log.Info("service: snapshot built", "stages", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug should be filtered): %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["msg"] != "service: snapshot built" || entry["component"] != "test" || entry["stages"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Errorf("entry missing time key: %v", entry)
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("debug", "text", &buf).Warn("poller: fetch failed", "err", "boom")

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "poller: fetch failed") {
		t.Errorf("console output = %q", out)
	}
}

func TestContext(t *testing.T) {
	fallback := NewNop()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("FromContext() without a logger should return the fallback")
	}

	scoped := NewNop().With("request_id", "abc")
	ctx := WithContext(context.Background(), scoped)
	if got := FromContext(ctx, fallback); got != scoped {
		t.Error("FromContext() should return the stored logger")
	}
}
