package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/lei/runwatch/internal/backend"
	"github.com/lei/runwatch/internal/models"
	"github.com/lei/runwatch/internal/poller"
)

// SSE event names
const (
	EventConnected = "connected"
	EventSnapshot  = "snapshot"
	EventError     = "error"
	EventIdle      = "idle"
)

// streamError is the payload of an error event
type streamError struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// StreamEvents handles GET /v1/runs/{workflow_id}/{run_id}/events. Each
// client gets its own detail poller; the stream ends with an idle event once
// the run stops being active or a fetch fails.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	id, ok := runIdentity(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported by response writer")
		respondError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriber := uuid.NewString()
	requestID := GetRequestID(r.Context())
	log = log.With("subscriber", subscriber, "run", id.String())

	ctx := r.Context()
	results := make(chan poller.Result[*models.RunSnapshot], 1)
	p := h.service.NewDetailPoller(id, func(res poller.Result[*models.RunSnapshot]) {
		select {
		case results <- res:
		case <-ctx.Done():
		}
	})

	writeEvent(w, flusher, EventConnected, map[string]string{
		"request_id": requestID,
		"subscriber": subscriber,
	})
	log.Info("event stream opened")

	p.Start(ctx)
	defer p.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("event stream closed by client")
			return
		case res := <-results:
			if res.Err != nil {
				writeEvent(w, flusher, EventError, streamError{
					Message:   backend.UserMessage(res.Err),
					RequestID: requestID,
				})
			} else {
				writeEvent(w, flusher, EventSnapshot, res.Value)
			}

			if res.State == poller.StateIdle {
				writeEvent(w, flusher, EventIdle, map[string]any{"seq": res.Seq})
				log.Info("event stream completed", "seq", res.Seq)
				return
			}
		}
	}
}

// writeEvent sends one server-sent event. Marshal failures become error events.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		event = EventError
		data, _ = json.Marshal(streamError{Message: "failed to encode event"})
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
