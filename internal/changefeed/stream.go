package changefeed

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type streamMessage struct {
	name    string
	payload []byte
}

// StreamHandler serves the change feed as server-sent events. Each snapshot
// is forwarded as a "snapshot" event; bursts are coalesced into a trailing
// "stats" event telling clients to refresh rollups.
type StreamHandler struct {
	hub      *Hub
	debounce time.Duration
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(hub *Hub, debounce time.Duration) *StreamHandler {
	return &StreamHandler{hub: hub, debounce: debounce}
}

// ServeHTTP handles GET /api/v1/stream?station_id=.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.hub == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	scope := strings.TrimSpace(r.URL.Query().Get("station_id"))
	if scope == "" {
		scope = ScopeAll
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan streamMessage, 16)
	offer := func(msg streamMessage) {
		select {
		case ch <- msg:
		default:
		}
	}
	debouncer := NewDebouncer(h.debounce)
	defer debouncer.Stop()
	statsPayload, _ := json.Marshal(map[string]string{"scope": scope})

	sub := h.hub.Subscribe(scope, func(event Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		offer(streamMessage{name: "snapshot", payload: payload})
		debouncer.Trigger(scope, func() {
			offer(streamMessage{name: "stats", payload: statsPayload})
		})
	})
	defer sub.Dispose()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case msg := <-ch:
			_, _ = w.Write([]byte("event: " + msg.name + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg.payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
