package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawStageEvent is one stage-log entry as received from the backend. The
// backend may repeat a stage (retries, updates) and may omit any field.
type RawStageEvent struct {
	Stage     string   `json:"stage"`
	Status    string   `json:"status,omitempty"`
	Timestamp float64  `json:"timestamp"`
	Duration  *float64 `json:"duration,omitempty"`
	Error     *string  `json:"error,omitempty"`
	Output    any      `json:"output,omitempty"`
}

// UnmarshalJSON decodes an event without failing on loosely typed fields:
// numbers may arrive as strings, timestamps as RFC3339 text, errors as objects.
func (e *RawStageEvent) UnmarshalJSON(b []byte) error {
	var ev map[string]any
	if err := json.Unmarshal(b, &ev); err != nil {
		return fmt.Errorf("decode stage event: %w", err)
	}
	*e = stageEventFromMap(ev)
	return nil
}

func stageEventFromMap(ev map[string]any) RawStageEvent {
	e := RawStageEvent{
		Stage:     eventString(ev["stage"]),
		Status:    eventString(ev["status"]),
		Timestamp: eventTimestamp(ev["timestamp"]),
		Duration:  eventFloat(ev["duration"]),
		Output:    ev["output"],
	}
	if v, ok := ev["error"]; ok && v != nil {
		msg := eventText(v)
		e.Error = &msg
	}
	return e
}

// eventText is eventString, except objects and arrays keep their JSON form
func eventText(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		if encoded, err := json.Marshal(v); err == nil {
			return string(encoded)
		}
	}
	return eventString(v)
}

func eventString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func eventFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// eventTimestamp returns unix seconds, or 0 when the value is absent or unparseable
func eventTimestamp(v any) float64 {
	if f := eventFloat(v); f != nil {
		return *f
	}
	if ts := ParseTime(v); ts != nil {
		return float64(ts.UnixNano()) / float64(time.Second)
	}
	return 0
}

// ParseTime accepts unix seconds (number or numeric string) or RFC3339 text
func ParseTime(v any) *time.Time {
	if f := eventFloat(v); f != nil {
		if *f <= 0 {
			return nil
		}
		sec := int64(*f)
		ts := time.Unix(sec, int64((*f-float64(sec))*float64(time.Second))).UTC()
		return &ts
	}
	raw := eventString(v)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}
