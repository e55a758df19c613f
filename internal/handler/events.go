package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// StreamEvents handles GET /api/trips/{tripID}/events.
// It streams proposal lifecycle events for the trip as server-sent events
// until the client disconnects. Delivery is best-effort: a client that stops
// reading is dropped by the broadcaster rather than allowed to apply
// backpressure to the voting engine.
func (s *Server) StreamEvents(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "tripID")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid trip id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	events, cancel := s.events.Subscribe(tripID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				// Dropped by the broadcaster for falling behind.
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, payload)
			flusher.Flush()
		}
	}
}
