package changefeed

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStreamHandlerForwardsSnapshotsAndStats(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server := httptest.NewServer(NewStreamHandler(hub, 10*time.Millisecond))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"?station_id=16107", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				events <- strings.TrimPrefix(line, "event: ")
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case name := <-events:
			return name
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for stream event")
			return ""
		}
	}

	if name := next(); name != "ready" {
		t.Fatalf("expected ready event, got %q", name)
	}
	hub.Publish(Event{StationID: "42"})
	hub.Publish(Event{StationID: "16107"})
	hub.Publish(Event{StationID: "16107"})

	got := []string{next(), next(), next()}
	want := []string{"snapshot", "snapshot", "stats"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected subscription released after disconnect")
	}
}

func TestStreamHandlerRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStreamHandler(NewHub(zerolog.Nop()), 0).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/stream", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
