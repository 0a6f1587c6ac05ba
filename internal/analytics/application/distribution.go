package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"velib-cloud/internal/analytics/domain/rollup"
	"velib-cloud/internal/observability/metrics"
	stations "velib-cloud/internal/stations/domain"
)

const defaultRecencyWindow = 2 * time.Hour

// DistributionAggregator summarizes recently reporting stations by region.
type DistributionAggregator struct {
	snapshots stations.SnapshotReader
	catalog   stations.Catalog
	window    time.Duration
	topN      int
	clock     Clock
	logger    zerolog.Logger
}

// DistributionOption customizes the aggregator.
type DistributionOption func(*DistributionAggregator)

// WithRecencyWindow overrides the 2 hour recency window.
func WithRecencyWindow(window time.Duration) DistributionOption {
	return func(a *DistributionAggregator) {
		if window > 0 {
			a.window = window
		}
	}
}

// WithTopRegions overrides the number of regions returned.
func WithTopRegions(n int) DistributionOption {
	return func(a *DistributionAggregator) {
		if n > 0 {
			a.topN = n
		}
	}
}

// WithDistributionClock assigns a clock.
func WithDistributionClock(clock Clock) DistributionOption {
	return func(a *DistributionAggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithDistributionLogger assigns a logger.
func WithDistributionLogger(logger zerolog.Logger) DistributionOption {
	return func(a *DistributionAggregator) {
		a.logger = logger
	}
}

// NewDistributionAggregator constructs an aggregator.
func NewDistributionAggregator(snapshots stations.SnapshotReader, catalog stations.Catalog, opts ...DistributionOption) (*DistributionAggregator, error) {
	if snapshots == nil {
		return nil, errors.New("distribution: nil snapshot reader")
	}
	if catalog == nil {
		return nil, errors.New("distribution: nil catalog")
	}
	a := &DistributionAggregator{
		snapshots: snapshots,
		catalog:   catalog,
		window:    defaultRecencyWindow,
		topN:      rollup.DefaultTopRegions,
		clock:     systemClock{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Summarize returns per-region totals for stations reporting inside the
// recency window. Stale stations are excluded. Any query error yields an
// empty list and an error wrapping stations.ErrFetchFailed.
func (a *DistributionAggregator) Summarize(ctx context.Context) ([]rollup.RegionSummary, error) {
	started := time.Now()
	result, err := a.summarize(ctx)
	if err != nil {
		metrics.ObserveDistribution(metrics.ResultError, time.Since(started))
		a.logger.Warn().Err(err).Msg("regional distribution failed")
		return []rollup.RegionSummary{}, fmt.Errorf("%w: %v", stations.ErrFetchFailed, err)
	}
	metrics.ObserveDistribution(metrics.ResultSuccess, time.Since(started))
	return result, nil
}

func (a *DistributionAggregator) summarize(ctx context.Context) ([]rollup.RegionSummary, error) {
	since := a.clock.Now().UTC().Add(-a.window)
	snaps, err := a.snapshots.ListSince(ctx, stations.SnapshotFilter{Since: since})
	if err != nil {
		return nil, err
	}
	latest := stations.SelectLatest(snaps)
	if len(latest) == 0 {
		return []rollup.RegionSummary{}, nil
	}

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	catalog, err := a.catalog.List(ctx, stations.CatalogFilter{StationIDs: ids})
	if err != nil {
		return nil, err
	}
	known := make(map[string]stations.Station, len(catalog))
	for _, st := range catalog {
		known[st.ID] = st
	}

	states := make([]stations.StationState, 0, len(latest))
	for id, snap := range latest {
		st, ok := known[id]
		if !ok {
			st = stations.Station{ID: id}
		}
		states = append(states, stations.StationState{Station: st, Snapshot: snap})
	}
	return rollup.SummarizeRegions(states, a.topN), nil
}
