package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "velib-cloud/internal/alerts/domain"
)

// StateRepository stores per (alert, station) evaluation state.
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository constructs a repository.
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get fetches a state, or nil when none is stored.
func (r *StateRepository) Get(ctx context.Context, alertID, stationID string) (*alerts.AlertState, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert state repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT alert_id, station_id, phase, last_notified_at, last_value, last_observed_at, updated_at
FROM alert_states
WHERE alert_id = $1 AND station_id = $2`, alertID, stationID)

	var (
		state        alerts.AlertState
		phase        string
		lastNotified sql.NullTime
		lastObserved sql.NullTime
		lastValue    sql.NullInt64
	)
	if err := row.Scan(
		&state.AlertID,
		&state.StationID,
		&phase,
		&lastNotified,
		&lastValue,
		&lastObserved,
		&state.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	state.Phase = alerts.Phase(phase)
	if lastNotified.Valid {
		state.LastNotifiedAt = lastNotified.Time.UTC()
	}
	if lastObserved.Valid {
		state.LastObservedAt = lastObserved.Time.UTC()
	}
	if lastValue.Valid {
		state.LastValue = int(lastValue.Int64)
	}
	state.UpdatedAt = state.UpdatedAt.UTC()
	return &state, nil
}

// Upsert inserts or updates a state.
func (r *StateRepository) Upsert(ctx context.Context, state *alerts.AlertState) error {
	if r == nil || r.db == nil {
		return errors.New("alert state repo: nil db")
	}
	if state == nil {
		return errors.New("alert state repo: nil state")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alert_states (
	alert_id, station_id, phase, last_notified_at, last_value, last_observed_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (alert_id, station_id)
DO UPDATE SET
	phase = EXCLUDED.phase,
	last_notified_at = EXCLUDED.last_notified_at,
	last_value = EXCLUDED.last_value,
	last_observed_at = EXCLUDED.last_observed_at,
	updated_at = EXCLUDED.updated_at`,
		state.AlertID,
		state.StationID,
		string(state.Phase),
		nullTime(state.LastNotifiedAt),
		sql.NullInt64{Int64: int64(state.LastValue), Valid: true},
		nullTime(state.LastObservedAt),
		state.UpdatedAt,
	)
	return err
}

// DeleteByAlert removes every state of an alert.
func (r *StateRepository) DeleteByAlert(ctx context.Context, alertID string) error {
	if r == nil || r.db == nil {
		return errors.New("alert state repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM alert_states WHERE alert_id = $1`, alertID)
	return err
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
