package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	alertapp "velib-cloud/internal/alerts/application"
	alertmem "velib-cloud/internal/alerts/infrastructure/memory"
	alertrepo "velib-cloud/internal/alerts/infrastructure/postgres"
	alertfeed "velib-cloud/internal/alerts/interfaces/feed"
	alerthttp "velib-cloud/internal/alerts/interfaces/http"
	"velib-cloud/internal/alerts/notify"
	analyticsapp "velib-cloud/internal/analytics/application"
	apihttp "velib-cloud/internal/api/http"
	"velib-cloud/internal/audit"
	"velib-cloud/internal/auth"
	"velib-cloud/internal/changefeed"
	"velib-cloud/internal/config"
	"velib-cloud/internal/ingestsync"
	"velib-cloud/internal/logging"
	"velib-cloud/internal/observability/metrics"
	stationapp "velib-cloud/internal/stations/application"
	stations "velib-cloud/internal/stations/domain"
	stationmem "velib-cloud/internal/stations/infrastructure/memory"
	stationrepo "velib-cloud/internal/stations/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	logger := logging.New(cfg.Logging)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	hub := changefeed.NewHub(logging.Component(logger, "changefeed"))

	st, err := openStores(ctx, cfg, hub, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store error")
	}
	defer st.close()

	resolver, err := stationapp.NewLatestStateResolver(st.snapshots, st.catalog,
		stationapp.WithConcurrency(cfg.Resolver.Concurrency),
		stationapp.WithLookback(cfg.Resolver.Lookback),
		stationapp.WithLogger(logging.Component(logger, "resolver")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolver error")
	}

	breaker := analyticsapp.DefaultBreakerConfig()
	if cfg.Rollup.Breaker.FailureThreshold > 0 {
		breaker.FailureThreshold = cfg.Rollup.Breaker.FailureThreshold
	}
	if cfg.Rollup.Breaker.Timeout > 0 {
		breaker.Timeout = cfg.Rollup.Breaker.Timeout
	}
	rollupOpts := []analyticsapp.EngineOption{
		analyticsapp.WithBreakerConfig(breaker),
		analyticsapp.WithLocation(cfg.Location()),
		analyticsapp.WithLogger(logging.Component(logger, "rollup")),
	}
	if st.aggregates != nil {
		rollupOpts = append(rollupOpts, analyticsapp.WithAggregateReader(st.aggregates))
	}
	rollups, err := analyticsapp.NewWindowRollupEngine(st.snapshots, st.catalog, rollupOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("rollup engine error")
	}
	distribution, err := analyticsapp.NewDistributionAggregator(st.snapshots, st.catalog,
		analyticsapp.WithRecencyWindow(cfg.Distribution.RecencyWindow),
		analyticsapp.WithTopRegions(cfg.Distribution.TopN),
		analyticsapp.WithDistributionLogger(logging.Component(logger, "distribution")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("distribution aggregator error")
	}

	dispatcher, err := buildDispatcher(cfg.Alerts, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("alert dispatcher error")
	}
	alertEngine, err := alertapp.NewEngine(st.alerts, st.alertStates,
		alertapp.WithDispatcher(dispatcher),
		alertapp.WithCatalog(st.catalog),
		alertapp.WithLogger(logging.Component(logger, "alerts")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("alert engine error")
	}
	alertHandler, err := alerthttp.NewHandler(alertEngine)
	if err != nil {
		logger.Fatal().Err(err).Msg("alert handler error")
	}

	consumer, err := alertfeed.NewConsumer(resolver, alertEngine,
		alertfeed.WithDebounce(cfg.Changefeed.Debounce),
		alertfeed.WithLogger(logging.Component(logger, "alert-feed")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("alert consumer error")
	}
	if err := consumer.Start(ctx, hub); err != nil {
		logger.Fatal().Err(err).Msg("alert consumer start error")
	}
	defer consumer.Stop()

	if cfg.Store.Driver == config.DriverPostgres {
		listener, err := changefeed.NewPgListener(cfg.Store.DSN, hub,
			changefeed.WithChannel(cfg.Changefeed.Channel),
			changefeed.WithRetryDelay(cfg.Changefeed.RetryDelay),
			changefeed.WithListenerLogger(logging.Component(logger, "pg-listener")),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("change feed listener error")
		}
		go func() {
			_ = listener.Run(ctx)
		}()
	}

	var syncClient apihttp.SyncTrigger
	if cfg.Sync.BaseURL != "" {
		client, err := ingestsync.NewClient(cfg.Sync.BaseURL, cfg.Sync.Token,
			ingestsync.WithPath(cfg.Sync.Path),
			ingestsync.WithMinInterval(cfg.Sync.MinInterval),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("sync client error")
		}
		syncClient = client
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("AUTH_JWT_SECRET not set; authenticated routes will reject every request")
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	router, err := apihttp.NewRouter(apihttp.Deps{
		Resolver:     resolver,
		Rollups:      rollups,
		Distribution: distribution,
		Sync:         syncClient,
		Audit:        st.audit,
		Stream:       changefeed.NewStreamHandler(hub, cfg.Changefeed.Debounce),
		Alerts:       alertHandler,
		Auth:         auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy),
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		Logger:       logging.Component(logger, "http"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("router error")
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.HTTP.Addr).Str("store", cfg.Store.Driver).Msg("http listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

type stores struct {
	snapshots   stations.SnapshotReader
	aggregates  stations.HourlyAggregateReader
	catalog     stations.Catalog
	alerts      alertapp.AlertRepository
	alertStates alertapp.StateRepository
	audit       audit.Logger
	close       func()
}

func openStores(ctx context.Context, cfg config.Config, hub *changefeed.Hub, logger zerolog.Logger) (stores, error) {
	if cfg.Store.Driver == config.DriverMemory {
		snapshots := stationmem.NewSnapshotStore(stationmem.WithAppendHook(func(snap stations.AvailabilitySnapshot) {
			hub.Publish(changefeed.Event{StationID: snap.StationID, Seq: snap.Seq, Timestamp: snap.Timestamp, Source: "memory"})
		}))
		catalog := stationmem.NewCatalog()
		if err := seedDemo(ctx, snapshots, catalog); err != nil {
			return stores{}, err
		}
		logger.Info().Int("snapshots", snapshots.Len()).Msg("in-memory store seeded")
		return stores{
			snapshots:   snapshots,
			catalog:     catalog,
			alerts:      alertmem.NewAlertRepository(),
			alertStates: alertmem.NewStateRepository(),
			audit:       audit.NewMemoryLog(500),
			close:       func() {},
		}, nil
	}

	db, err := sql.Open("pgx", cfg.Store.DSN)
	if err != nil {
		return stores{}, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return stores{}, err
	}
	query := stationrepo.NewSnapshotQuery(db, stationrepo.WithAggregateTimezone(cfg.Rollup.Timezone))
	return stores{
		snapshots:   query,
		aggregates:  query,
		catalog:     stationrepo.NewStationRepository(db),
		alerts:      alertrepo.NewAlertRepository(db),
		alertStates: alertrepo.NewStateRepository(db),
		audit:       audit.NewRepository(db),
		close:       func() { _ = db.Close() },
	}, nil
}

func buildDispatcher(cfg config.AlertsConfig, logger zerolog.Logger) (alertapp.Dispatcher, error) {
	var tpl *notify.Template
	if cfg.Template != "" {
		parsed, err := notify.NewTemplate(cfg.Template)
		if err != nil {
			return nil, err
		}
		tpl = parsed
	}

	logNotifier, err := notify.NewNotifier(notify.NewLogChannel(logging.Component(logger, "notify")), tpl)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookURL == "" {
		return logNotifier, nil
	}
	channel, err := notify.NewWebhookChannel(cfg.WebhookURL, notify.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}))
	if err != nil {
		return nil, err
	}
	webhook, err := notify.NewNotifier(channel, tpl, notify.WithRequestTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}
	return notify.NewMultiDispatcher(webhook, logNotifier), nil
}

// seedDemo loads a handful of stations so the memory driver serves a
// non-empty dashboard.
func seedDemo(ctx context.Context, snapshots *stationmem.SnapshotStore, catalog *stationmem.Catalog) error {
	demo := []stations.Station{
		{ID: "16107", Name: "Benjamin Godard - Victor Hugo", Capacity: 35, Lat: 48.865983, Lon: 2.275725, Region: "Paris"},
		{ID: "31104", Name: "Mairie de Rosny-sous-Bois", Capacity: 30, Lat: 48.871256, Lon: 2.486581, Region: "Rosny-sous-Bois"},
		{ID: "9020", Name: "Toudouze - Clauzel", Capacity: 21, Lat: 48.879296, Lon: 2.33736, Region: "Paris"},
	}
	now := time.Now().UTC().Truncate(time.Minute)
	for i := range demo {
		if err := catalog.Save(ctx, &demo[i]); err != nil {
			return err
		}
		bikes := demo[i].Capacity / (i + 2)
		if err := snapshots.Append(ctx, stations.AvailabilitySnapshot{
			StationID:       demo[i].ID,
			Timestamp:       now,
			BikesAvailable:  bikes,
			DocksAvailable:  demo[i].Capacity - bikes,
			MechanicalBikes: bikes / 2,
			ElectricBikes:   bikes - bikes/2,
			Installed:       true,
			Renting:         true,
			Returning:       true,
		}); err != nil {
			return err
		}
	}
	return nil
}
