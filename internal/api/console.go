package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"labengine/internal/model"
)

// consoleResponse is the JSON response for GET /v1/instances/{id}/console.
type consoleResponse struct {
	InstanceID string                  `json:"instance_id"`
	Entries    []model.ConsoleLogEntry `json:"entries"`
}

func (s *Server) handleGetConsole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify the instance exists; the console itself lives in memory.
	if _, err := s.engine.GetInstance(r.Context(), id); err != nil {
		s.writeEngineError(w, "get console", err)
		return
	}

	entries := s.engine.Console().Snapshot(id)
	if entries == nil {
		entries = []model.ConsoleLogEntry{}
	}

	s.writeJSON(w, http.StatusOK, consoleResponse{
		InstanceID: id,
		Entries:    entries,
	})
}

func (s *Server) handleStreamConsole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inst, err := s.engine.GetInstance(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "stream console", err)
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// A terminated instance produces no further entries; emit the done event
	// immediately so clients fall back to the snapshot endpoint.
	if inst.State == model.StateTerminated {
		w.WriteHeader(http.StatusOK)
		_ = writeSSEEvent(w, "done", "stream complete")
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Safe even if the instance terminated between the state check above and
	// this call: subscribing to a closed console returns a closed channel and
	// the loop below exits immediately.
	ch, unsub := s.engine.Console().Subscribe(id)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case entry, ok := <-ch:
			if !ok {
				// Instance terminated; send explicit done event before closing.
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEEntry(w, entry); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// writeSSEEntry writes a console entry as a JSON-encoded SSE data event.
func writeSSEEntry(w http.ResponseWriter, entry model.ConsoleLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
