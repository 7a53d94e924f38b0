package poe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var errStreamingUnsupported = errors.New("response writer does not support flushing")

// sseOutbound streams events to the host as server-sent events.
type sseOutbound struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEOutbound writes the stream headers and returns the outbound.
func newSSEOutbound(w http.ResponseWriter) (*sseOutbound, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	return &sseOutbound{w: w, flusher: flusher}, nil
}

func (o *sseOutbound) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeSSEEvent(o.w, string(ev.Kind), eventData(ev)); err != nil {
		return err
	}
	o.flusher.Flush()
	return nil
}

func eventData(ev Event) any {
	switch ev.Kind {
	case EventMeta:
		return map[string]any{
			"content_type":      "text/markdown",
			"linkify":           true,
			"suggested_replies": false,
		}
	case EventText, EventSuggestedReply:
		return map[string]string{"text": ev.Text}
	case EventError:
		return map[string]any{"text": ev.Text, "allow_retry": ev.AllowRetry}
	default:
		return map[string]any{}
	}
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write SSE event name: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}
