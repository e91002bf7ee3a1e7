package gateway

import (
	"encoding/json"
	"net/http"
)

// writeSSEEvent writes an SSE record with an optional event name and a JSON
// payload, flushing immediately so the caller's producer never buffers
// ahead of the client.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	if event != "" {
		if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	if flusher != nil {
		flusher.Flush()
	}
	return err
}

// writeSSEDone writes the OpenAI-style literal termination line.
func writeSSEDone(w http.ResponseWriter, flusher http.Flusher) error {
	if _, err := w.Write([]byte("data: [DONE]\n\n")); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// prepareSSE sets the headers an SSE response needs and returns the
// response writer's Flusher (nil if the underlying writer can't flush).
func prepareSSE(w http.ResponseWriter) http.Flusher {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return flusher
}
