package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	stations "velib-cloud/internal/stations/domain"
)

const (
	defaultSnapshotsTable    = "station_snapshots"
	defaultHourlyMeansFunc   = "station_hourly_means"
	defaultAggregateTimezone = "Europe/Paris"
)

// SnapshotQuery reads station snapshots from Postgres.
type SnapshotQuery struct {
	db       DBTX
	table    string
	function string
	timezone string
}

// QueryOption configures the snapshot query.
type QueryOption func(*SnapshotQuery)

// WithSnapshotTable overrides the default table name.
func WithSnapshotTable(table string) QueryOption {
	return func(q *SnapshotQuery) {
		if table != "" {
			q.table = table
		}
	}
}

// WithHourlyMeansFunction overrides the pre-aggregation function name.
func WithHourlyMeansFunction(name string) QueryOption {
	return func(q *SnapshotQuery) {
		if name != "" {
			q.function = name
		}
	}
}

// WithAggregateTimezone sets the timezone used to derive hour-of-day.
func WithAggregateTimezone(tz string) QueryOption {
	return func(q *SnapshotQuery) {
		if tz != "" {
			q.timezone = tz
		}
	}
}

// NewSnapshotQuery constructs a query with default table name.
func NewSnapshotQuery(db DBTX, opts ...QueryOption) *SnapshotQuery {
	q := &SnapshotQuery{
		db:       db,
		table:    defaultSnapshotsTable,
		function: defaultHourlyMeansFunc,
		timezone: defaultAggregateTimezone,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// ListSince returns snapshots in [since, until), newest first.
func (q *SnapshotQuery) ListSince(ctx context.Context, filter stations.SnapshotFilter) ([]stations.AvailabilitySnapshot, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("snapshot query: nil db")
	}

	var (
		where []string
		args  []any
	)
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		where = append(where, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until.UTC())
		where = append(where, fmt.Sprintf("ts < $%d", len(args)))
	}
	if len(filter.StationIDs) > 0 {
		args = append(args, filter.StationIDs)
		where = append(where, fmt.Sprintf("station_id = ANY($%d)", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, "\n\tAND ")
	}

	query := fmt.Sprintf(`
SELECT seq, station_id, ts, bikes_available, docks_available, mechanical_bikes, electric_bikes,
	installed, renting, returning
FROM %s
%s
ORDER BY ts DESC, seq DESC`, q.table, clause)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]stations.AvailabilitySnapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LatestByStation returns the newest snapshot for a station at or after since.
func (q *SnapshotQuery) LatestByStation(ctx context.Context, stationID string, since time.Time) (*stations.AvailabilitySnapshot, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("snapshot query: nil db")
	}
	if stationID == "" {
		return nil, errors.New("snapshot query: empty station id")
	}

	query := fmt.Sprintf(`
SELECT seq, station_id, ts, bikes_available, docks_available, mechanical_bikes, electric_bikes,
	installed, renting, returning
FROM %s
WHERE station_id = $1 AND ts >= $2
ORDER BY ts DESC, seq DESC
LIMIT 1`, q.table)

	if since.IsZero() {
		since = time.Unix(0, 0)
	}
	snap, err := scanSnapshot(q.db.QueryRowContext(ctx, query, stationID, since.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// HourlyMeans calls the pre-aggregation function. A missing function or table
// is reported as stations.ErrAggregateUnsupported.
func (q *SnapshotQuery) HourlyMeans(ctx context.Context, from, to time.Time) ([]stations.HourlyMean, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("snapshot query: nil db")
	}
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return nil, errors.New("snapshot query: invalid hourly window")
	}

	query := fmt.Sprintf(`
SELECT hour_of_day, avg_bikes, avg_docks, avg_mechanical, avg_electric
FROM %s($1, $2, $3)
ORDER BY hour_of_day ASC`, q.function)

	rows, err := q.db.QueryContext(ctx, query, from.UTC(), to.UTC(), q.timezone)
	if err != nil {
		if isUndefinedObject(err) {
			return nil, stations.ErrAggregateUnsupported
		}
		return nil, err
	}
	defer rows.Close()

	var result []stations.HourlyMean
	for rows.Next() {
		var (
			mean                               stations.HourlyMean
			bikes, docks, mechanical, electric sql.NullFloat64
		)
		if err := rows.Scan(&mean.Hour, &bikes, &docks, &mechanical, &electric); err != nil {
			return nil, err
		}
		mean.BikesAvailable = bikes.Float64
		mean.DocksAvailable = docks.Float64
		mean.MechanicalBikes = mechanical.Float64
		mean.ElectricBikes = electric.Float64
		result = append(result, mean)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (stations.AvailabilitySnapshot, error) {
	var (
		snap                      stations.AvailabilitySnapshot
		mechanical, electric      sql.NullInt64
		installed, renting, retOK sql.NullBool
	)
	if err := row.Scan(
		&snap.Seq,
		&snap.StationID,
		&snap.Timestamp,
		&snap.BikesAvailable,
		&snap.DocksAvailable,
		&mechanical,
		&electric,
		&installed,
		&renting,
		&retOK,
	); err != nil {
		return stations.AvailabilitySnapshot{}, err
	}
	snap.Timestamp = snap.Timestamp.UTC()
	snap.MechanicalBikes = int(mechanical.Int64)
	snap.ElectricBikes = int(electric.Int64)
	snap.Installed = installed.Bool
	snap.Renting = renting.Bool
	snap.Returning = retOK.Bool
	return snap, nil
}
