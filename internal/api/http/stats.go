package apihttp

import (
	"context"
	"errors"
	"net/http"

	"velib-cloud/internal/analytics/domain/rollup"
)

// RollupService computes the windowed series.
type RollupService interface {
	HourlyTrend(ctx context.Context, r rollup.TimeRange) ([]rollup.HourlyBucket, error)
	DailyUsage(ctx context.Context, r rollup.TimeRange) ([]rollup.DailyBucket, error)
}

// DistributionService summarizes active stations per region.
type DistributionService interface {
	Summarize(ctx context.Context) ([]rollup.RegionSummary, error)
}

// StatsHandler serves the rollup endpoints. Store failures still return the
// zero-filled series with a 503 so charts always get a complete shape.
type StatsHandler struct {
	rollups      RollupService
	distribution DistributionService
}

// NewStatsHandler constructs a handler.
func NewStatsHandler(rollups RollupService, distribution DistributionService) (*StatsHandler, error) {
	if rollups == nil || distribution == nil {
		return nil, errors.New("stats handler: nil service")
	}
	return &StatsHandler{rollups: rollups, distribution: distribution}, nil
}

// Hourly handles GET /api/v1/stats/hourly?range=.
func (h *StatsHandler) Hourly(w http.ResponseWriter, r *http.Request) {
	timeRange, err := rollup.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	buckets, err := h.rollups.HourlyTrend(r.Context(), timeRange)
	respondSeries(w, timeRange, buckets, err)
}

// Daily handles GET /api/v1/stats/daily?range=.
func (h *StatsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	timeRange, err := rollup.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	buckets, err := h.rollups.DailyUsage(r.Context(), timeRange)
	respondSeries(w, timeRange, buckets, err)
}

// Distribution handles GET /api/v1/stats/distribution.
func (h *StatsHandler) Distribution(w http.ResponseWriter, r *http.Request) {
	regions, err := h.distribution.Summarize(r.Context())
	if regions == nil {
		regions = []rollup.RegionSummary{}
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Data: regions, Error: "station store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: regions})
}

func respondSeries(w http.ResponseWriter, timeRange rollup.TimeRange, data any, err error) {
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Range: timeRange.String(), Data: data, Error: "station store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Range: timeRange.String(), Data: data})
}
