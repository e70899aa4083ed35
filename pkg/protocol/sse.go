package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// EventEncoder writes stream events as SSE data frames, one
// self-delimited "data: {json}\n\n" block per event. When the
// underlying writer is an http.Flusher each frame is flushed
// immediately so fragments reach the client as they are produced.
type EventEncoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEventEncoder creates an encoder writing to w.
func NewEventEncoder(w io.Writer) *EventEncoder {
	e := &EventEncoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Payload shapes per event type. Each frame carries exactly one of
// these objects.
type contentPayload struct {
	Content string `json:"content"`
}

type sourcesPayload struct {
	Sources []Source `json:"sources"`
}

type actionPayload struct {
	Action *ActionTraceEntry `json:"action"`
}

type errorPayload struct {
	Error string `json:"error"`
}

type donePayload struct {
	Done      bool               `json:"done"`
	ToolCalls []ActionTraceEntry `json:"tool_calls,omitempty"`
}

// Encode writes one event as a data frame. Unknown event types are
// rejected.
func (e *EventEncoder) Encode(event StreamEvent) error {
	var payload any
	switch event.Type {
	case StreamEventContent:
		payload = contentPayload{Content: event.Content}
	case StreamEventSources:
		sources := event.Sources
		if sources == nil {
			// Encode as [] rather than null.
			sources = []Source{}
		}
		payload = sourcesPayload{Sources: sources}
	case StreamEventAction:
		payload = actionPayload{Action: event.Action}
	case StreamEventError:
		payload = errorPayload{Error: event.Error}
	case StreamEventDone:
		payload = donePayload{Done: true, ToolCalls: event.ToolCalls}
	default:
		return fmt.Errorf("unknown stream event type: %q", event.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event.Type, err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
