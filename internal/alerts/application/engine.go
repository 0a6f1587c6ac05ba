package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	alerts "velib-cloud/internal/alerts/domain"
	"velib-cloud/internal/observability/metrics"
	stations "velib-cloud/internal/stations/domain"
)

// Engine evaluates alerts against station states and manages the user-scoped
// alert table.
type Engine struct {
	alerts     AlertRepository
	states     StateRepository
	catalog    stations.Catalog
	dispatcher Dispatcher
	clock      Clock
	logger     zerolog.Logger
	newID      func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithDispatcher assigns the notification dispatcher.
func WithDispatcher(dispatcher Dispatcher) EngineOption {
	return func(e *Engine) {
		e.dispatcher = dispatcher
	}
}

// WithCatalog enables station existence checks and names in notifications.
func WithCatalog(catalog stations.Catalog) EngineOption {
	return func(e *Engine) {
		e.catalog = catalog
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine constructs an alert engine.
func NewEngine(alertRepo AlertRepository, stateRepo StateRepository, opts ...EngineOption) (*Engine, error) {
	if alertRepo == nil || stateRepo == nil {
		return nil, errors.New("alerts: nil repository")
	}
	e := &Engine{
		alerts: alertRepo,
		states: stateRepo,
		clock:  systemClock{},
		logger: zerolog.Nop(),
		newID:  func() string { return uuid.NewString() },
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// HandleStationState evaluates every active alert of the station against its
// latest state. Delivery failures are logged and returned joined; the alert
// stays eligible and is retried on the next observation.
func (e *Engine) HandleStationState(ctx context.Context, state stations.StationState) error {
	if e == nil {
		return errors.New("alerts: nil engine")
	}
	stationID := state.Snapshot.StationID
	if stationID == "" {
		stationID = state.Station.ID
	}
	if stationID == "" {
		return errors.New("alerts: station state missing station id")
	}

	lock := e.stationLock(stationID)
	lock.Lock()
	defer lock.Unlock()

	active, err := e.alerts.ListActiveByStation(ctx, stationID)
	if err != nil {
		return err
	}

	var failures []error
	for _, alert := range active {
		if err := e.evaluate(ctx, alert, state); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func (e *Engine) evaluate(ctx context.Context, alert alerts.Alert, state stations.StationState) error {
	stationID := state.Snapshot.StationID
	current, err := e.states.Get(ctx, alert.ID, stationID)
	if err != nil {
		return err
	}
	if current == nil {
		initial := alerts.NewAlertState(alert.ID, stationID)
		current = &initial
	}

	now := e.clock.Now().UTC()
	value := alert.Type.Gauge(state.Snapshot)
	next, decision := alerts.Evaluate(alert, *current, value, state.Snapshot.Timestamp.UTC(), now)
	metrics.IncAlertDecision(string(decision))

	switch decision {
	case alerts.DecisionStale:
		return nil
	case alerts.DecisionFire:
		notification := Notification{
			Kind:        KindAlert,
			Alert:       alert,
			StationName: stationName(state.Station),
			Value:       value,
			ObservedAt:  state.Snapshot.Timestamp.UTC(),
		}
		if err := e.dispatch(ctx, notification); err != nil {
			e.logger.Warn().
				Err(err).
				Str("alert_id", alert.ID).
				Str("station_id", stationID).
				Msg("alert delivery failed, will retry on next observation")
			if saveErr := e.states.Upsert(ctx, &next); saveErr != nil {
				return errors.Join(err, saveErr)
			}
			return err
		}
		next = next.MarkNotified(now)
		e.logger.Info().
			Str("alert_id", alert.ID).
			Str("station_id", stationID).
			Int("value", value).
			Int("threshold", alert.Threshold).
			Msg("alert notified")
	}
	return e.states.Upsert(ctx, &next)
}

func (e *Engine) dispatch(ctx context.Context, notification Notification) error {
	if e.dispatcher == nil {
		return fmt.Errorf("%w: no dispatcher configured", alerts.ErrDeliveryFailed)
	}
	if err := e.dispatcher.Dispatch(ctx, notification); err != nil {
		metrics.IncNotification(notification.Kind, metrics.ResultError)
		return fmt.Errorf("%w: %v", alerts.ErrDeliveryFailed, err)
	}
	metrics.IncNotification(notification.Kind, metrics.ResultSuccess)
	return nil
}

func (e *Engine) stationLock(stationID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[stationID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[stationID] = lock
	}
	return lock
}

func stationName(st stations.Station) string {
	if st.Name != "" {
		return st.Name
	}
	return st.ID
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
