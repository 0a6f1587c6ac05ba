package stations

import (
	"context"
	"errors"
	"time"
)

// AvailabilitySnapshot is one immutable reading of a station's gauges.
type AvailabilitySnapshot struct {
	StationID       string    `json:"station_id"`
	Seq             int64     `json:"seq"`
	Timestamp       time.Time `json:"timestamp"`
	BikesAvailable  int       `json:"bikes_available"`
	DocksAvailable  int       `json:"docks_available"`
	MechanicalBikes int       `json:"mechanical_bikes"`
	ElectricBikes   int       `json:"electric_bikes"`
	Installed       bool      `json:"installed"`
	Renting         bool      `json:"renting"`
	Returning       bool      `json:"returning"`
}

// Validate checks snapshot invariants. The mechanical + electric == bikes
// relation is advisory and not checked here.
func (s AvailabilitySnapshot) Validate() error {
	if s.StationID == "" {
		return errors.New("snapshot: empty station id")
	}
	if s.Timestamp.IsZero() {
		return errors.New("snapshot: zero timestamp")
	}
	if s.BikesAvailable < 0 || s.DocksAvailable < 0 || s.MechanicalBikes < 0 || s.ElectricBikes < 0 {
		return errors.New("snapshot: negative gauge")
	}
	return nil
}

// NewerThan reports whether s supersedes other. Later timestamps win; equal
// timestamps fall back to the insertion sequence.
func (s AvailabilitySnapshot) NewerThan(other AvailabilitySnapshot) bool {
	if s.Timestamp.Equal(other.Timestamp) {
		return s.Seq > other.Seq
	}
	return s.Timestamp.After(other.Timestamp)
}

// SelectLatest keeps the newest snapshot per station in a single pass.
func SelectLatest(snapshots []AvailabilitySnapshot) map[string]AvailabilitySnapshot {
	latest := make(map[string]AvailabilitySnapshot)
	for _, snap := range snapshots {
		if snap.StationID == "" {
			continue
		}
		current, ok := latest[snap.StationID]
		if !ok || snap.NewerThan(current) {
			latest[snap.StationID] = snap
		}
	}
	return latest
}

// StationState is the latest snapshot of a station joined with its attributes.
type StationState struct {
	Station  Station              `json:"station"`
	Snapshot AvailabilitySnapshot `json:"snapshot"`
}

// HourlyMean is one row of the pre-aggregated hourly query.
type HourlyMean struct {
	Hour            int
	BikesAvailable  float64
	DocksAvailable  float64
	MechanicalBikes float64
	ElectricBikes   float64
}

// SnapshotFilter scopes a raw snapshot scan.
type SnapshotFilter struct {
	StationIDs []string
	Since      time.Time
	Until      time.Time
}

// SnapshotReader reads the append-only snapshot table. ListSince returns rows
// newest first.
type SnapshotReader interface {
	ListSince(ctx context.Context, filter SnapshotFilter) ([]AvailabilitySnapshot, error)
	LatestByStation(ctx context.Context, stationID string, since time.Time) (*AvailabilitySnapshot, error)
}

// HourlyAggregateReader is the optional pre-aggregated hourly capability.
type HourlyAggregateReader interface {
	HourlyMeans(ctx context.Context, from, to time.Time) ([]HourlyMean, error)
}
