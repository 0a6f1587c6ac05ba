package apihttp

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"velib-cloud/internal/audit"
	"velib-cloud/internal/auth"
)

// RouteMounter registers extra routes, e.g. the alerts handler.
type RouteMounter interface {
	Routes(r chi.Router)
}

// Deps are the collaborators served by the router. Sync, Audit, Stream and
// Alerts are optional.
type Deps struct {
	Resolver     StateResolver
	Rollups      RollupService
	Distribution DistributionService
	Sync         SyncTrigger
	Audit        audit.Logger
	Stream       http.Handler
	Alerts       RouteMounter
	Auth         *auth.Middleware
	CORSOrigins  []string
	Now          func() time.Time
	Logger       zerolog.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(deps Deps) (http.Handler, error) {
	stationsHandler, err := NewStationsHandler(deps.Resolver)
	if err != nil {
		return nil, err
	}
	statsHandler, err := NewStatsHandler(deps.Rollups, deps.Distribution)
	if err != nil {
		return nil, err
	}
	exportHandler, err := NewExportHandler(deps.Rollups, deps.Distribution, deps.Now, deps.Logger)
	if err != nil {
		return nil, err
	}
	if deps.Auth == nil {
		return nil, errors.New("router: nil auth middleware")
	}

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(deps.Auth.Wrap)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/v1/stations/latest", stationsHandler.Latest)
	r.Get("/api/v1/stations/{id}/latest", stationsHandler.One)
	r.Get("/api/v1/stats/hourly", statsHandler.Hourly)
	r.Get("/api/v1/stats/daily", statsHandler.Daily)
	r.Get("/api/v1/stats/distribution", statsHandler.Distribution)
	r.Method(http.MethodGet, "/api/v1/exports/daily-usage.{format}", exportHandler)
	r.Method(http.MethodPost, "/api/v1/admin/sync", NewSyncHandler(deps.Sync, deps.Audit, deps.Logger))
	if deps.Stream != nil {
		r.Method(http.MethodGet, "/api/v1/stream", deps.Stream)
	}
	if deps.Alerts != nil {
		deps.Alerts.Routes(r)
	}
	return r, nil
}

func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
