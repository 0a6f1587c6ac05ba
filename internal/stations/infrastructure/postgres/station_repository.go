package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	stations "velib-cloud/internal/stations/domain"
)

const defaultStationsTable = "stations"

// StationRepository is a Postgres implementation of the station catalog.
type StationRepository struct {
	db    DBTX
	table string
}

// StationOption configures the repository.
type StationOption func(*StationRepository)

// WithStationTable overrides the default table name.
func WithStationTable(table string) StationOption {
	return func(repo *StationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewStationRepository constructs a repository.
func NewStationRepository(db DBTX, opts ...StationOption) *StationRepository {
	repo := &StationRepository{db: db, table: defaultStationsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads a station by id.
func (r *StationRepository) Get(ctx context.Context, id string) (*stations.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if id == "" {
		return nil, errors.New("station repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, name, capacity, lat, lon, region
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	station, err := scanStation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stations.ErrStationNotFound
		}
		return nil, err
	}
	return &station, nil
}

// List returns stations matching the filter ordered by id.
func (r *StationRepository) List(ctx context.Context, filter stations.CatalogFilter) ([]stations.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}

	var (
		where []string
		args  []any
	)
	if len(filter.StationIDs) > 0 {
		args = append(args, filter.StationIDs)
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if filter.Bounds != nil {
		b := filter.Bounds
		args = append(args, b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
		n := len(args)
		where = append(where, fmt.Sprintf("lat BETWEEN $%d AND $%d AND lon BETWEEN $%d AND $%d", n-3, n-2, n-1, n))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
SELECT id, name, capacity, lat, lon, region
FROM %s
%s
ORDER BY id ASC`, r.table, clause)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []stations.Station
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a station.
func (r *StationRepository) Save(ctx context.Context, station *stations.Station) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if station == nil {
		return errors.New("station repo: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, name, capacity, lat, lon, region)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	capacity = EXCLUDED.capacity,
	lat = EXCLUDED.lat,
	lon = EXCLUDED.lon,
	region = EXCLUDED.region,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		station.ID,
		station.Name,
		station.Capacity,
		station.Lat,
		station.Lon,
		station.Region,
	)
	return err
}

func scanStation(row rowScanner) (stations.Station, error) {
	var (
		station  stations.Station
		capacity sql.NullInt64
		region   sql.NullString
	)
	if err := row.Scan(&station.ID, &station.Name, &capacity, &station.Lat, &station.Lon, &region); err != nil {
		return stations.Station{}, err
	}
	station.Capacity = int(capacity.Int64)
	if region.Valid {
		station.Region = region.String
	}
	return station, nil
}
