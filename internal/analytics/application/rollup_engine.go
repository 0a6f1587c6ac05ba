package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"velib-cloud/internal/analytics/domain/rollup"
	"velib-cloud/internal/observability/metrics"
	stations "velib-cloud/internal/stations/domain"
)

const (
	pipelineHourly = "hourly"
	pipelineDaily  = "daily"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// WindowRollupEngine computes hourly trends and daily usage over a lookback
// window.
type WindowRollupEngine struct {
	snapshots  stations.SnapshotReader
	catalog    stations.Catalog
	aggregates stations.HourlyAggregateReader
	breaker    *gobreaker.CircuitBreaker[[]stations.HourlyMean]
	breakerCfg BreakerConfig
	location   *time.Location
	clock      Clock
	logger     zerolog.Logger
}

// EngineOption customizes the engine.
type EngineOption func(*WindowRollupEngine)

// WithAggregateReader enables the pre-aggregated hourly path.
func WithAggregateReader(reader stations.HourlyAggregateReader) EngineOption {
	return func(e *WindowRollupEngine) {
		e.aggregates = reader
	}
}

// WithBreakerConfig overrides the circuit breaker settings.
func WithBreakerConfig(cfg BreakerConfig) EngineOption {
	return func(e *WindowRollupEngine) {
		e.breakerCfg = cfg
	}
}

// WithLocation sets the timezone used for hour-of-day and calendar dates.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *WindowRollupEngine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) EngineOption {
	return func(e *WindowRollupEngine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *WindowRollupEngine) {
		e.logger = logger
	}
}

// NewWindowRollupEngine constructs an engine.
func NewWindowRollupEngine(snapshots stations.SnapshotReader, catalog stations.Catalog, opts ...EngineOption) (*WindowRollupEngine, error) {
	if snapshots == nil {
		return nil, errors.New("rollup: nil snapshot reader")
	}
	if catalog == nil {
		return nil, errors.New("rollup: nil catalog")
	}
	e := &WindowRollupEngine{
		snapshots:  snapshots,
		catalog:    catalog,
		breakerCfg: DefaultBreakerConfig(),
		location:   time.UTC,
		clock:      systemClock{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.aggregates != nil {
		e.breaker = newAggregateBreaker(e.breakerCfg, e.logger)
	}
	return e, nil
}

// HourlyTrend returns exactly 24 buckets. The pre-aggregated path is tried
// first; an error, an unsupported capability or an empty result falls back to
// a raw scan. Only a failed raw scan is reported, alongside 24 zero buckets.
func (e *WindowRollupEngine) HourlyTrend(ctx context.Context, r rollup.TimeRange) ([]rollup.HourlyBucket, error) {
	started := time.Now()
	now := e.clock.Now().UTC()
	from := r.Start(now)

	if e.breaker != nil {
		means, err := e.breaker.Execute(func() ([]stations.HourlyMean, error) {
			return e.aggregates.HourlyMeans(ctx, from, now)
		})
		if err == nil && len(means) > 0 {
			metrics.ObserveRollup(pipelineHourly, metrics.PathAggregate, metrics.ResultSuccess, time.Since(started))
			return rollup.HourlyFromMeans(means), nil
		}
		reason := fallbackReason(err)
		metrics.IncRollupFallback(reason)
		e.logger.Debug().Err(err).Str("range", r.String()).Str("reason", reason).Msg("hourly aggregate unavailable, scanning raw snapshots")
	}

	snaps, err := e.snapshots.ListSince(ctx, stations.SnapshotFilter{Since: from})
	if err != nil {
		metrics.ObserveRollup(pipelineHourly, metrics.PathRawScan, metrics.ResultError, time.Since(started))
		e.logger.Warn().Err(err).Str("range", r.String()).Msg("hourly trend raw scan failed")
		return rollup.ZeroHourly(), fmt.Errorf("%w: %v", stations.ErrFetchFailed, err)
	}
	metrics.ObserveRollup(pipelineHourly, metrics.PathRawScan, metrics.ResultSuccess, time.Since(started))
	return rollup.HourlyBuckets(snaps, e.location), nil
}

// DailyUsage returns at most seven calendar-day buckets ordered by date. With
// no snapshots in the window it returns seven zero buckets ending today.
func (e *WindowRollupEngine) DailyUsage(ctx context.Context, r rollup.TimeRange) ([]rollup.DailyBucket, error) {
	started := time.Now()
	now := e.clock.Now().UTC()

	buckets, err := e.dailyUsage(ctx, r.Start(now))
	if err != nil {
		metrics.ObserveRollup(pipelineDaily, metrics.PathRawScan, metrics.ResultError, time.Since(started))
		e.logger.Warn().Err(err).Str("range", r.String()).Msg("daily usage scan failed")
		return rollup.EmptyDailySeries(now, e.location), fmt.Errorf("%w: %v", stations.ErrFetchFailed, err)
	}
	metrics.ObserveRollup(pipelineDaily, metrics.PathRawScan, metrics.ResultSuccess, time.Since(started))
	if len(buckets) == 0 {
		return rollup.EmptyDailySeries(now, e.location), nil
	}
	return buckets, nil
}

func (e *WindowRollupEngine) dailyUsage(ctx context.Context, since time.Time) ([]rollup.DailyBucket, error) {
	snaps, err := e.snapshots.ListSince(ctx, stations.SnapshotFilter{Since: since})
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	catalog, err := e.catalog.List(ctx, stations.CatalogFilter{StationIDs: distinctStationIDs(snaps)})
	if err != nil {
		return nil, err
	}
	capacity := make(map[string]int, len(catalog))
	for _, st := range catalog {
		capacity[st.ID] = st.Capacity
	}
	samples := make([]rollup.DailySample, 0, len(snaps))
	for _, snap := range snaps {
		samples = append(samples, rollup.DailySample{Snapshot: snap, Capacity: capacity[snap.StationID]})
	}
	return rollup.DailyBuckets(samples, e.location), nil
}

func distinctStationIDs(snaps []stations.AvailabilitySnapshot) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, snap := range snaps {
		if _, ok := seen[snap.StationID]; ok {
			continue
		}
		seen[snap.StationID] = struct{}{}
		ids = append(ids, snap.StationID)
	}
	return ids
}

func fallbackReason(err error) string {
	switch {
	case err == nil:
		return "empty"
	case errors.Is(err, stations.ErrAggregateUnsupported):
		return "unsupported"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		return "error"
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
