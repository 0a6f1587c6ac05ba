package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"velib-cloud/internal/changefeed"
	stations "velib-cloud/internal/stations/domain"
)

type stubResolver struct {
	mu    sync.Mutex
	calls []string
	bikes int
	err   error
}

func (s *stubResolver) ResolveOne(_ context.Context, stationID string) (*stations.StationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, stationID)
	if s.err != nil {
		return nil, s.err
	}
	return &stations.StationState{
		Station:  stations.Station{ID: stationID, Name: "station " + stationID, Capacity: 20},
		Snapshot: stations.AvailabilitySnapshot{StationID: stationID, Timestamp: time.Now().UTC(), BikesAvailable: s.bikes},
	}, nil
}

type recordingHandler struct {
	states chan stations.StationState
}

func (h *recordingHandler) HandleStationState(_ context.Context, state stations.StationState) error {
	h.states <- state
	return nil
}

func TestConsumerCoalescesBurstPerStation(t *testing.T) {
	hub := changefeed.NewHub(zerolog.Nop())
	resolver := &stubResolver{bikes: 6}
	handler := &recordingHandler{states: make(chan stations.StationState, 8)}
	consumer, err := NewConsumer(resolver, handler, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := consumer.Start(context.Background(), hub); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer consumer.Stop()

	for i := 0; i < 5; i++ {
		hub.Publish(changefeed.Event{StationID: "16107"})
	}
	hub.Publish(changefeed.Event{StationID: "42"})

	seen := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case state := <-handler.states:
			seen[state.Snapshot.StationID]++
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for evaluation")
		}
	}
	time.Sleep(50 * time.Millisecond)
	if seen["16107"] != 1 || seen["42"] != 1 || len(handler.states) != 0 {
		t.Fatalf("expected one evaluation per station, got %v (+%d)", seen, len(handler.states))
	}
}

func TestConsumerStopsAfterStop(t *testing.T) {
	hub := changefeed.NewHub(zerolog.Nop())
	resolver := &stubResolver{}
	handler := &recordingHandler{states: make(chan stations.StationState, 1)}
	consumer, _ := NewConsumer(resolver, handler, WithDebounce(10*time.Millisecond))
	_ = consumer.Start(context.Background(), hub)
	consumer.Stop()

	hub.Publish(changefeed.Event{StationID: "16107"})
	time.Sleep(40 * time.Millisecond)
	if hub.Subscribers() != 0 {
		t.Fatalf("expected subscription released")
	}
	if len(handler.states) != 0 {
		t.Fatalf("expected no evaluation after stop")
	}
}

func TestConsumerStopRacesWithPendingEvaluations(t *testing.T) {
	resolver := &stubResolver{err: errors.New("db down")}
	handler := &recordingHandler{states: make(chan stations.StationState, 1)}
	consumer, _ := NewConsumer(resolver, handler, WithDebounce(0))
	_ = consumer.Start(context.Background(), changefeed.NewHub(zerolog.Nop()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				consumer.HandleEvent(changefeed.Event{StationID: "16107"})
			}
		}()
	}
	consumer.Stop()

	resolver.mu.Lock()
	afterStop := len(resolver.calls)
	resolver.mu.Unlock()
	wg.Wait()

	consumer.HandleEvent(changefeed.Event{StationID: "16107"})
	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	if len(resolver.calls) != afterStop {
		t.Fatalf("expected no evaluation after stop, got %d more", len(resolver.calls)-afterStop)
	}
}

func TestConsumerSkipsOnResolveFailure(t *testing.T) {
	resolver := &stubResolver{err: errors.New("db down")}
	handler := &recordingHandler{states: make(chan stations.StationState, 1)}
	consumer, _ := NewConsumer(resolver, handler, WithDebounce(0))

	consumer.HandleEvent(changefeed.Event{StationID: "16107"})
	if len(handler.states) != 0 {
		t.Fatalf("expected no evaluation when resolve fails")
	}
	if len(resolver.calls) != 1 {
		t.Fatalf("expected one resolve attempt, got %d", len(resolver.calls))
	}
}
