package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	alerts "velib-cloud/internal/alerts/domain"
)

// AlertRepository is an in-memory alert table for demo/testing.
type AlertRepository struct {
	mu   sync.RWMutex
	data map[string]alerts.Alert
}

// NewAlertRepository constructs a repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{data: make(map[string]alerts.Alert)}
}

// Create inserts an alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	_ = ctx
	if alert == nil {
		return errors.New("memory alert repo: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[alert.ID]; exists {
		return errors.New("memory alert repo: duplicate id")
	}
	r.data[alert.ID] = *alert
	return nil
}

// Get loads an alert by id.
func (r *AlertRepository) Get(ctx context.Context, id string) (*alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	alert, ok := r.data[id]
	if !ok {
		return nil, alerts.ErrNotFound
	}
	return &alert, nil
}

// ListByUser returns a user's alerts, newest first.
func (r *AlertRepository) ListByUser(ctx context.Context, userID string) ([]alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]alerts.Alert, 0)
	for _, alert := range r.data {
		if alert.UserID == userID {
			result = append(result, alert)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// ListActiveByStation returns active alerts watching a station.
func (r *AlertRepository) ListActiveByStation(ctx context.Context, stationID string) ([]alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]alerts.Alert, 0)
	for _, alert := range r.data {
		if alert.StationID == stationID && alert.IsActive {
			result = append(result, alert)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// SetActive toggles the active flag.
func (r *AlertRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.data[id]
	if !ok {
		return alerts.ErrNotFound
	}
	alert.IsActive = active
	alert.UpdatedAt = at.UTC()
	r.data[id] = alert
	return nil
}

// Delete removes an alert.
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return alerts.ErrNotFound
	}
	delete(r.data, id)
	return nil
}

func sortNewestFirst(list []alerts.Alert) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// StateRepository is an in-memory evaluation state store.
type StateRepository struct {
	mu   sync.RWMutex
	data map[string]alerts.AlertState
}

// NewStateRepository constructs a repository.
func NewStateRepository() *StateRepository {
	return &StateRepository{data: make(map[string]alerts.AlertState)}
}

// Get fetches a state, or nil when none is stored.
func (r *StateRepository) Get(ctx context.Context, alertID, stationID string) (*alerts.AlertState, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.data[stateKey(alertID, stationID)]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// Upsert stores a state.
func (r *StateRepository) Upsert(ctx context.Context, state *alerts.AlertState) error {
	_ = ctx
	if state == nil {
		return errors.New("memory alert state repo: nil state")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[stateKey(state.AlertID, state.StationID)] = *state
	return nil
}

// DeleteByAlert removes every state of an alert.
func (r *StateRepository) DeleteByAlert(ctx context.Context, alertID string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, state := range r.data {
		if state.AlertID == alertID {
			delete(r.data, key)
		}
	}
	return nil
}

func stateKey(alertID, stationID string) string {
	return alertID + "|" + stationID
}
