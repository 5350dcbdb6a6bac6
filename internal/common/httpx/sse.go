package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventStreamContentType is the media type of server-sent event responses.
const EventStreamContentType = "text/event-stream"

// EventWriter writes server-sent events, flushing after each one.
type EventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewEventWriter returns an EventWriter for w. Fails if w cannot flush.
func NewEventWriter(w http.ResponseWriter) (*EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &EventWriter{w: w, flusher: flusher}, nil
}

// Send encodes v as JSON and writes it as a single "data:" event.
func (ew *EventWriter) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if _, err := fmt.Fprintf(ew.w, "data: %s\n\n", b); err != nil {
		return err
	}
	ew.flusher.Flush()
	return nil
}

// SetEventStreamHeaders sets the headers an event stream needs before the
// status line is written.
func SetEventStreamHeaders(h http.Header) {
	h.Set("Content-Type", EventStreamContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
