package apihttp

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"velib-cloud/internal/analytics/domain/rollup"
	"velib-cloud/internal/exports"
)

// ExportHandler serves GET /api/v1/exports/daily-usage.{format}.
type ExportHandler struct {
	rollups      RollupService
	distribution DistributionService
	now          func() time.Time
	logger       zerolog.Logger
}

// NewExportHandler constructs a handler.
func NewExportHandler(rollups RollupService, distribution DistributionService, now func() time.Time, logger zerolog.Logger) (*ExportHandler, error) {
	if rollups == nil || distribution == nil {
		return nil, errors.New("export handler: nil service")
	}
	if now == nil {
		now = time.Now
	}
	return &ExportHandler{rollups: rollups, distribution: distribution, now: now, logger: logger}, nil
}

func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	timeRange, err := rollup.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	daily, err := h.rollups.DailyUsage(r.Context(), timeRange)
	if err != nil {
		h.logger.Warn().Err(err).Str("range", timeRange.String()).Msg("export daily usage failed")
		http.Error(w, "station store unavailable", http.StatusServiceUnavailable)
		return
	}
	regions, err := h.distribution.Summarize(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("export distribution failed")
		http.Error(w, "station store unavailable", http.StatusServiceUnavailable)
		return
	}

	out, err := exports.Render(format, exports.DailyUsageReport{
		Range:       timeRange,
		GeneratedAt: h.now().UTC(),
		Daily:       daily,
		Regions:     regions,
	})
	if errors.Is(err, exports.ErrUnsupportedFormat) {
		http.Error(w, "unsupported format", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("format", format).Msg("render export failed")
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", exports.ContentType(format))
	w.Header().Set("Content-Disposition", `attachment; filename="daily-usage-`+timeRange.String()+`.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
