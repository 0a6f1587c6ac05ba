package application

import (
	"context"
	"errors"
	"strings"

	alerts "velib-cloud/internal/alerts/domain"
	"velib-cloud/internal/auth"
	stations "velib-cloud/internal/stations/domain"
)

// CreateInput carries the fields a user may set on a new alert.
type CreateInput struct {
	StationID           string
	Type                alerts.AlertType
	Threshold           int
	NotificationChannel string
	Frequency           alerts.Frequency
}

// Create stores a new active alert owned by the session user.
func (e *Engine) Create(ctx context.Context, session auth.Session, input CreateInput) (*alerts.Alert, error) {
	if err := session.Require(auth.RoleUser); err != nil {
		return nil, err
	}
	if e.catalog != nil {
		if _, err := e.catalog.Get(ctx, input.StationID); err != nil {
			return nil, err
		}
	}
	now := e.clock.Now().UTC()
	frequency := input.Frequency
	if frequency == "" {
		frequency = alerts.FrequencyImmediate
	}
	channel := strings.TrimSpace(input.NotificationChannel)
	if channel == "" {
		channel = session.Email
	}
	alert := &alerts.Alert{
		ID:                  e.newID(),
		UserID:              session.UserID,
		StationID:           input.StationID,
		Type:                input.Type,
		Threshold:           input.Threshold,
		NotificationChannel: channel,
		Frequency:           frequency,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	if err := e.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// List returns the session user's alerts.
func (e *Engine) List(ctx context.Context, session auth.Session) ([]alerts.Alert, error) {
	if err := session.Require(auth.RoleUser); err != nil {
		return nil, err
	}
	return e.alerts.ListByUser(ctx, session.UserID)
}

// Delete removes an alert and its evaluation state.
func (e *Engine) Delete(ctx context.Context, session auth.Session, id string) error {
	if _, err := e.owned(ctx, session, id); err != nil {
		return err
	}
	if err := e.alerts.Delete(ctx, id); err != nil {
		return err
	}
	return e.states.DeleteByAlert(ctx, id)
}

// SetActive switches an alert on or off.
func (e *Engine) SetActive(ctx context.Context, session auth.Session, id string, active bool) (*alerts.Alert, error) {
	alert, err := e.owned(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if alert.IsActive == active {
		return alert, nil
	}
	now := e.clock.Now().UTC()
	if err := e.alerts.SetActive(ctx, id, active, now); err != nil {
		return nil, err
	}
	alert.IsActive = active
	alert.UpdatedAt = now
	return alert, nil
}

// SendTest fires one notification for the alert regardless of its state.
// Evaluation state and throttling are left untouched.
func (e *Engine) SendTest(ctx context.Context, session auth.Session, id string) error {
	alert, err := e.owned(ctx, session, id)
	if err != nil {
		return err
	}
	notification := Notification{
		Kind:        KindTest,
		Alert:       *alert,
		StationName: alert.StationID,
		ObservedAt:  e.clock.Now().UTC(),
	}
	if e.catalog != nil {
		if st, err := e.catalog.Get(ctx, alert.StationID); err == nil && st != nil {
			notification.StationName = stationName(*st)
		} else if err != nil && !errors.Is(err, stations.ErrStationNotFound) {
			e.logger.Debug().Err(err).Str("station_id", alert.StationID).Msg("station lookup failed for test notification")
		}
	}
	return e.dispatch(ctx, notification)
}

func (e *Engine) owned(ctx context.Context, session auth.Session, id string) (*alerts.Alert, error) {
	if err := session.Require(auth.RoleUser); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, errors.New("alerts: alert id required")
	}
	alert, err := e.alerts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	if alert.UserID != session.UserID && !session.IsAdmin() {
		return nil, auth.ErrForbidden
	}
	return alert, nil
}
