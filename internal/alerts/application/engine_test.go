package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	alerts "velib-cloud/internal/alerts/domain"
	alertmem "velib-cloud/internal/alerts/infrastructure/memory"
	"velib-cloud/internal/auth"
	stations "velib-cloud/internal/stations/domain"
	stationmem "velib-cloud/internal/stations/infrastructure/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, notification Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, notification)
	return nil
}

func (d *recordingDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

var (
	baseTime = time.Date(2026, 5, 15, 8, 0, 0, 0, time.UTC)
	owner    = auth.Session{UserID: "user-1", Email: "owner@example.com", Role: auth.RoleUser}
	intruder = auth.Session{UserID: "user-2", Email: "other@example.com", Role: auth.RoleUser}
	admin    = auth.Session{UserID: "admin-1", Email: "admin@example.com", Role: auth.RoleAdmin}
)

type fixture struct {
	engine     *Engine
	states     *alertmem.StateRepository
	dispatcher *recordingDispatcher
	clock      *fakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := &fakeClock{now: baseTime}
	dispatcher := &recordingDispatcher{}
	states := alertmem.NewStateRepository()
	catalog := stationmem.NewCatalog(stations.Station{ID: "16107", Name: "Benjamin Godard - Victor Hugo", Capacity: 35})
	seq := 0
	engine, err := NewEngine(
		alertmem.NewAlertRepository(),
		states,
		WithDispatcher(dispatcher),
		WithCatalog(catalog),
		WithClock(clock),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("alert-%d", seq)
		}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return fixture{engine: engine, states: states, dispatcher: dispatcher, clock: clock}
}

func (f fixture) create(t *testing.T, input CreateInput) *alerts.Alert {
	t.Helper()
	alert, err := f.engine.Create(context.Background(), owner, input)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return alert
}

// observe advances the clock and feeds a snapshot taken at the new time.
func (f fixture) observe(t *testing.T, advance time.Duration, bikes int) error {
	t.Helper()
	f.clock.Advance(advance)
	state := stations.StationState{
		Station: stations.Station{ID: "16107", Name: "Benjamin Godard - Victor Hugo", Capacity: 35},
		Snapshot: stations.AvailabilitySnapshot{
			StationID:      "16107",
			Timestamp:      f.clock.Now(),
			BikesAvailable: bikes,
			DocksAvailable: 35 - bikes,
		},
	}
	return f.engine.HandleStationState(context.Background(), state)
}

func TestImmediateAlertFiresOncePerCrossing(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateInput{StationID: "16107", Type: alerts.TypeBikesAvailable, Threshold: 5})

	if err := f.observe(t, time.Minute, 6); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := f.observe(t, time.Minute, 7); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if f.dispatcher.Count() != 1 {
		t.Fatalf("expected 1 notification, got %d", f.dispatcher.Count())
	}
	sent := f.dispatcher.sent[0]
	if sent.Kind != KindAlert || sent.Value != 6 || sent.StationName != "Benjamin Godard - Victor Hugo" {
		t.Fatalf("unexpected notification: %+v", sent)
	}
	if sent.Alert.NotificationChannel != "owner@example.com" {
		t.Fatalf("expected default channel from session, got %q", sent.Alert.NotificationChannel)
	}
}

func TestHourlyAlertRearmFiresExactlyTwice(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateInput{StationID: "16107", Type: alerts.TypeBikesAvailable, Threshold: 5, Frequency: alerts.FrequencyHourly})

	steps := []struct {
		advance time.Duration
		bikes   int
	}{
		{time.Minute, 6},
		{10 * time.Minute, 2},
		{10 * time.Minute, 8},
		{2 * time.Hour, 9},
	}
	for _, step := range steps {
		if err := f.observe(t, step.advance, step.bikes); err != nil {
			t.Fatalf("observe %d: %v", step.bikes, err)
		}
	}
	// the second crossing is inside the hourly window and waits for it to elapse
	if f.dispatcher.Count() != 2 {
		t.Fatalf("expected 2 notifications, got %d", f.dispatcher.Count())
	}
	if err := f.observe(t, time.Minute, 10); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if f.dispatcher.Count() != 2 {
		t.Fatalf("expected no extra notification while holding, got %d", f.dispatcher.Count())
	}
}

func TestDuplicateObservationIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateInput{StationID: "16107", Type: alerts.TypeBikesAvailable, Threshold: 5})
	_ = f.observe(t, time.Minute, 6)

	// replay the same snapshot after a re-arm would have happened
	stale := stations.StationState{Snapshot: stations.AvailabilitySnapshot{StationID: "16107", Timestamp: f.clock.Now().Add(-time.Minute), BikesAvailable: 0}}
	if err := f.engine.HandleStationState(context.Background(), stale); err != nil {
		t.Fatalf("handle stale: %v", err)
	}
	_ = f.observe(t, time.Minute, 7)
	if f.dispatcher.Count() != 1 {
		t.Fatalf("expected stale snapshot not to re-arm, got %d notifications", f.dispatcher.Count())
	}
}

func TestDeliveryFailureKeepsAlertEligible(t *testing.T) {
	f := newFixture(t)
	alert := f.create(t, CreateInput{StationID: "16107", Type: alerts.TypeBikesAvailable, Threshold: 5})

	f.dispatcher.err = errors.New("smtp down")
	err := f.observe(t, time.Minute, 6)
	if !errors.Is(err, alerts.ErrDeliveryFailed) {
		t.Fatalf("expected delivery failure, got %v", err)
	}
	state, err := f.states.Get(context.Background(), alert.ID, "16107")
	if err != nil || state == nil {
		t.Fatalf("expected persisted state, got %v %v", state, err)
	}
	if state.Phase != alerts.PhaseEligible || !state.LastNotifiedAt.IsZero() {
		t.Fatalf("expected eligible state without notification, got %+v", state)
	}

	f.dispatcher.err = nil
	if err := f.observe(t, time.Minute, 7); err != nil {
		t.Fatalf("retry observe: %v", err)
	}
	if f.dispatcher.Count() != 1 {
		t.Fatalf("expected retry to deliver, got %d", f.dispatcher.Count())
	}
}

func TestInactiveAlertIsSkipped(t *testing.T) {
	f := newFixture(t)
	alert := f.create(t, CreateInput{StationID: "16107", Type: alerts.TypeBikesAvailable, Threshold: 5})
	if _, err := f.engine.SetActive(context.Background(), owner, alert.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_ = f.observe(t, time.Minute, 9)
	if f.dispatcher.Count() != 0 {
		t.Fatalf("expected no notification for inactive alert, got %d", f.dispatcher.Count())
	}
}

func TestSendTestLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	alert := f.create(t, CreateInput{StationID: "16107", Type: alerts.TypeBikesAvailable, Threshold: 5})

	if err := f.engine.SendTest(context.Background(), owner, alert.ID); err != nil {
		t.Fatalf("send test: %v", err)
	}
	if f.dispatcher.Count() != 1 || f.dispatcher.sent[0].Kind != KindTest {
		t.Fatalf("expected one test notification, got %+v", f.dispatcher.sent)
	}
	state, _ := f.states.Get(context.Background(), alert.ID, "16107")
	if state != nil {
		t.Fatalf("expected no evaluation state after test send, got %+v", state)
	}

	// the real crossing still fires
	_ = f.observe(t, time.Minute, 6)
	if f.dispatcher.Count() != 2 {
		t.Fatalf("expected crossing to fire after test send, got %d", f.dispatcher.Count())
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Create(ctx, auth.Session{}, CreateInput{StationID: "16107", Type: alerts.TypeBikesAvailable, Threshold: 1}); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := f.engine.Create(ctx, owner, CreateInput{StationID: "99999", Type: alerts.TypeBikesAvailable, Threshold: 1}); !errors.Is(err, stations.ErrStationNotFound) {
		t.Fatalf("expected station not found, got %v", err)
	}
	if _, err := f.engine.Create(ctx, owner, CreateInput{StationID: "16107", Type: "scooters", Threshold: 1}); !errors.Is(err, alerts.ErrInvalidType) {
		t.Fatalf("expected invalid type, got %v", err)
	}
	if _, err := f.engine.Create(ctx, owner, CreateInput{StationID: "16107", Type: alerts.TypeBikesAvailable, Threshold: 0}); !errors.Is(err, alerts.ErrInvalidThreshold) {
		t.Fatalf("expected invalid threshold, got %v", err)
	}
}

func TestOwnershipChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alert := f.create(t, CreateInput{StationID: "16107", Type: alerts.TypeDocksAvailable, Threshold: 3})

	if err := f.engine.Delete(ctx, intruder, alert.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	list, err := f.engine.List(ctx, intruder)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list for other user, got %v %v", list, err)
	}
	if _, err := f.engine.SetActive(ctx, admin, alert.ID, false); err != nil {
		t.Fatalf("admin set active: %v", err)
	}
	if err := f.engine.Delete(ctx, owner, alert.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if err := f.engine.Delete(ctx, owner, alert.ID); !errors.Is(err, alerts.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
