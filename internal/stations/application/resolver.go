package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"velib-cloud/internal/observability/metrics"
	stations "velib-cloud/internal/stations/domain"
)

const defaultConcurrency = 8

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Query scopes a latest-state resolution. Zero values mean no restriction.
type Query struct {
	StationIDs []string
	Limit      int
	Bounds     *stations.BoundingBox
}

// LatestStateResolver joins the newest snapshot of each station with its
// catalog attributes.
type LatestStateResolver struct {
	snapshots   stations.SnapshotReader
	catalog     stations.Catalog
	concurrency int
	lookback    time.Duration
	clock       Clock
	logger      zerolog.Logger
}

// ResolverOption customizes the resolver.
type ResolverOption func(*LatestStateResolver)

// WithConcurrency bounds the number of parallel per-station fetches.
func WithConcurrency(limit int) ResolverOption {
	return func(r *LatestStateResolver) {
		if limit > 0 {
			r.concurrency = limit
		}
	}
}

// WithLookback ignores snapshots older than the window. Zero scans the full history.
func WithLookback(window time.Duration) ResolverOption {
	return func(r *LatestStateResolver) {
		if window > 0 {
			r.lookback = window
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ResolverOption {
	return func(r *LatestStateResolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *LatestStateResolver) {
		r.logger = logger
	}
}

// NewLatestStateResolver constructs a resolver.
func NewLatestStateResolver(snapshots stations.SnapshotReader, catalog stations.Catalog, opts ...ResolverOption) (*LatestStateResolver, error) {
	if snapshots == nil {
		return nil, errors.New("resolver: nil snapshot reader")
	}
	if catalog == nil {
		return nil, errors.New("resolver: nil catalog")
	}
	r := &LatestStateResolver{
		snapshots:   snapshots,
		catalog:     catalog,
		concurrency: defaultConcurrency,
		clock:       systemClock{},
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns at most one state per station, ordered by station id.
// Stations without any snapshot are omitted. A store failure yields an empty
// result and an error wrapping stations.ErrFetchFailed.
func (r *LatestStateResolver) Resolve(ctx context.Context, q Query) ([]stations.StationState, error) {
	if r == nil {
		return []stations.StationState{}, errors.New("resolver: nil resolver")
	}
	start := time.Now()
	states, err := r.resolve(ctx, q)
	if err != nil {
		metrics.ObserveResolve(metrics.ResultError, time.Since(start))
		r.logger.Warn().Err(err).Int("stations", len(q.StationIDs)).Msg("latest state resolution failed")
		return []stations.StationState{}, fmt.Errorf("%w: %v", stations.ErrFetchFailed, err)
	}
	metrics.ObserveResolve(metrics.ResultSuccess, time.Since(start))
	return states, nil
}

// ResolveOne returns the latest state of a single station, or nil when the
// station has never reported.
func (r *LatestStateResolver) ResolveOne(ctx context.Context, stationID string) (*stations.StationState, error) {
	if r == nil {
		return nil, errors.New("resolver: nil resolver")
	}
	if stationID == "" {
		return nil, errors.New("resolver: empty station id")
	}
	station, err := r.catalog.Get(ctx, stationID)
	if err != nil {
		if errors.Is(err, stations.ErrStationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", stations.ErrFetchFailed, err)
	}
	snap, err := r.snapshots.LatestByStation(ctx, stationID, r.since())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stations.ErrFetchFailed, err)
	}
	if snap == nil {
		return nil, nil
	}
	return &stations.StationState{Station: *station, Snapshot: *snap}, nil
}

func (r *LatestStateResolver) resolve(ctx context.Context, q Query) ([]stations.StationState, error) {
	if q.Bounds != nil && !q.Bounds.Valid() {
		return nil, errors.New("resolver: invalid bounds")
	}
	catalog, err := r.catalog.List(ctx, stations.CatalogFilter{StationIDs: q.StationIDs, Bounds: q.Bounds})
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return []stations.StationState{}, nil
	}

	since := r.since()
	found := make([]*stations.AvailabilitySnapshot, len(catalog))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for i := range catalog {
		i := i
		group.Go(func() error {
			snap, err := r.snapshots.LatestByStation(gctx, catalog[i].ID, since)
			if err != nil {
				return fmt.Errorf("station %s: %w", catalog[i].ID, err)
			}
			found[i] = snap
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	states := make([]stations.StationState, 0, len(catalog))
	for i, snap := range found {
		if snap == nil {
			continue
		}
		states = append(states, stations.StationState{Station: catalog[i], Snapshot: *snap})
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Station.ID < states[j].Station.ID
	})
	if q.Limit > 0 && len(states) > q.Limit {
		states = states[:q.Limit]
	}
	return states, nil
}

func (r *LatestStateResolver) since() time.Time {
	if r.lookback <= 0 {
		return time.Time{}
	}
	return r.clock.Now().UTC().Add(-r.lookback)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
