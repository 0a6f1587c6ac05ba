package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	stations "velib-cloud/internal/stations/domain"
)

// SnapshotStore is an in-memory append-only snapshot table for demo/testing.
// It does not implement the pre-aggregated hourly capability.
type SnapshotStore struct {
	mu       sync.RWMutex
	seq      int64
	byID     map[string][]stations.AvailabilitySnapshot
	count    int
	onAppend func(stations.AvailabilitySnapshot)
}

// StoreOption configures the snapshot store.
type StoreOption func(*SnapshotStore)

// WithAppendHook registers a callback invoked after each appended snapshot.
// It runs outside the store lock.
func WithAppendHook(hook func(stations.AvailabilitySnapshot)) StoreOption {
	return func(s *SnapshotStore) {
		s.onAppend = hook
	}
}

// NewSnapshotStore constructs a store.
func NewSnapshotStore(opts ...StoreOption) *SnapshotStore {
	s := &SnapshotStore{byID: make(map[string][]stations.AvailabilitySnapshot)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append stores snapshots, assigning insertion sequence numbers.
func (s *SnapshotStore) Append(ctx context.Context, snapshots ...stations.AvailabilitySnapshot) error {
	_ = ctx
	for _, snap := range snapshots {
		if err := snap.Validate(); err != nil {
			return err
		}
	}
	stored := make([]stations.AvailabilitySnapshot, 0, len(snapshots))
	s.mu.Lock()
	for _, snap := range snapshots {
		s.seq++
		snap.Seq = s.seq
		snap.Timestamp = snap.Timestamp.UTC()
		s.byID[snap.StationID] = append(s.byID[snap.StationID], snap)
		s.count++
		stored = append(stored, snap)
	}
	hook := s.onAppend
	s.mu.Unlock()

	if hook != nil {
		for _, snap := range stored {
			hook(snap)
		}
	}
	return nil
}

// Len returns the number of stored snapshots.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// ListSince returns snapshots matching the filter, newest first.
func (s *SnapshotStore) ListSince(ctx context.Context, filter stations.SnapshotFilter) ([]stations.AvailabilitySnapshot, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	if len(filter.StationIDs) > 0 {
		ids = filter.StationIDs
	} else {
		ids = make([]string, 0, len(s.byID))
		for id := range s.byID {
			ids = append(ids, id)
		}
	}

	result := make([]stations.AvailabilitySnapshot, 0)
	for _, id := range ids {
		for _, snap := range s.byID[id] {
			if !filter.Since.IsZero() && snap.Timestamp.Before(filter.Since) {
				continue
			}
			if !filter.Until.IsZero() && !snap.Timestamp.Before(filter.Until) {
				continue
			}
			result = append(result, snap)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NewerThan(result[j]) })
	return result, nil
}

// LatestByStation returns the newest snapshot of a station at or after since.
func (s *SnapshotStore) LatestByStation(ctx context.Context, stationID string, since time.Time) (*stations.AvailabilitySnapshot, error) {
	_ = ctx
	if stationID == "" {
		return nil, errors.New("memory snapshot store: empty station id")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest stations.AvailabilitySnapshot
		found  bool
	)
	for _, snap := range s.byID[stationID] {
		if !since.IsZero() && snap.Timestamp.Before(since) {
			continue
		}
		if !found || snap.NewerThan(latest) {
			latest = snap
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	return &latest, nil
}

// Catalog is an in-memory station catalog.
type Catalog struct {
	mu   sync.RWMutex
	data map[string]stations.Station
}

// NewCatalog constructs a catalog seeded with stations.
func NewCatalog(seed ...stations.Station) *Catalog {
	c := &Catalog{data: make(map[string]stations.Station, len(seed))}
	for _, st := range seed {
		c.data[st.ID] = st
	}
	return c
}

// Save upserts a station.
func (c *Catalog) Save(ctx context.Context, station *stations.Station) error {
	_ = ctx
	if station == nil {
		return errors.New("memory catalog: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[station.ID] = *station
	return nil
}

// Get loads a station by id.
func (c *Catalog) Get(ctx context.Context, id string) (*stations.Station, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.data[id]
	if !ok {
		return nil, stations.ErrStationNotFound
	}
	return &st, nil
}

// List returns stations matching the filter ordered by id.
func (c *Catalog) List(ctx context.Context, filter stations.CatalogFilter) ([]stations.Station, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()

	var wanted map[string]struct{}
	if len(filter.StationIDs) > 0 {
		wanted = make(map[string]struct{}, len(filter.StationIDs))
		for _, id := range filter.StationIDs {
			wanted[id] = struct{}{}
		}
	}

	result := make([]stations.Station, 0, len(c.data))
	for id, st := range c.data {
		if wanted != nil {
			if _, ok := wanted[id]; !ok {
				continue
			}
		}
		if filter.Bounds != nil && !filter.Bounds.Contains(st.Lat, st.Lon) {
			continue
		}
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
