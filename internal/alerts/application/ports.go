package application

import (
	"context"
	"time"

	alerts "velib-cloud/internal/alerts/domain"
)

// AlertRepository persists user alerts.
type AlertRepository interface {
	Create(ctx context.Context, alert *alerts.Alert) error
	Get(ctx context.Context, id string) (*alerts.Alert, error)
	ListByUser(ctx context.Context, userID string) ([]alerts.Alert, error)
	ListActiveByStation(ctx context.Context, stationID string) ([]alerts.Alert, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// StateRepository persists evaluation state per (alert, station).
type StateRepository interface {
	Get(ctx context.Context, alertID, stationID string) (*alerts.AlertState, error)
	Upsert(ctx context.Context, state *alerts.AlertState) error
	DeleteByAlert(ctx context.Context, alertID string) error
}

// Notification kinds.
const (
	KindAlert = "alert"
	KindTest  = "test"
)

// Notification is the payload handed to the dispatcher.
type Notification struct {
	Kind        string       `json:"kind"`
	Alert       alerts.Alert `json:"alert"`
	StationName string       `json:"station_name"`
	Value       int          `json:"value"`
	ObservedAt  time.Time    `json:"observed_at"`
}

// Dispatcher delivers notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, notification Notification) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}
