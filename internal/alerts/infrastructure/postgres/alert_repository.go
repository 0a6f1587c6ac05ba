package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "velib-cloud/internal/alerts/domain"
)

// AlertRepository is a Postgres repository for user alerts.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts an alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return err
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = alert.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (
	id, user_id, station_id, alert_type, threshold, notification_channel,
	frequency, is_active, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10
)`, alert.ID, alert.UserID, alert.StationID, string(alert.Type), alert.Threshold,
		alert.NotificationChannel, string(alert.Frequency), alert.IsActive,
		alert.CreatedAt, alert.UpdatedAt)
	return err
}

// Get loads an alert by id.
func (r *AlertRepository) Get(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if id == "" {
		return nil, errors.New("alert repo: empty id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, station_id, alert_type, threshold, notification_channel,
	frequency, is_active, created_at, updated_at
FROM alerts
WHERE id = $1
LIMIT 1`, id)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, alerts.ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// ListByUser returns a user's alerts, newest first.
func (r *AlertRepository) ListByUser(ctx context.Context, userID string) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	return r.list(ctx, `
SELECT id, user_id, station_id, alert_type, threshold, notification_channel,
	frequency, is_active, created_at, updated_at
FROM alerts
WHERE user_id = $1
ORDER BY created_at DESC, id ASC`, userID)
}

// ListActiveByStation returns active alerts watching a station.
func (r *AlertRepository) ListActiveByStation(ctx context.Context, stationID string) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	return r.list(ctx, `
SELECT id, user_id, station_id, alert_type, threshold, notification_channel,
	frequency, is_active, created_at, updated_at
FROM alerts
WHERE station_id = $1 AND is_active = TRUE
ORDER BY created_at DESC, id ASC`, stationID)
}

// SetActive toggles the active flag.
func (r *AlertRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET is_active = $2, updated_at = $3
WHERE id = $1`, id, active, at.UTC())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes an alert.
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *AlertRepository) list(ctx context.Context, query string, args ...any) ([]alerts.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]alerts.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (alerts.Alert, error) {
	var (
		alert     alerts.Alert
		alertType string
		frequency string
	)
	if err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.StationID,
		&alertType,
		&alert.Threshold,
		&alert.NotificationChannel,
		&frequency,
		&alert.IsActive,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	); err != nil {
		return alerts.Alert{}, err
	}
	alert.Type = alerts.AlertType(alertType)
	alert.Frequency = alerts.Frequency(frequency)
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()
	return alert, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alerts.ErrNotFound
	}
	return nil
}
