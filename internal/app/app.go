package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-agent/internal/domain/catalog"
	"github.com/xenking/order-agent/internal/domain/extraction"
	"github.com/xenking/order-agent/internal/domain/fulfillment"
	"github.com/xenking/order-agent/internal/domain/inventory"
	"github.com/xenking/order-agent/internal/domain/pricing"
	"github.com/xenking/order-agent/internal/domain/shipment"
	"github.com/xenking/order-agent/internal/events"
	"github.com/xenking/order-agent/internal/handler"
	"github.com/xenking/order-agent/internal/jobs"
	"github.com/xenking/order-agent/internal/storage/postgres"
	"github.com/xenking/order-agent/pkg/health"
	"github.com/xenking/order-agent/pkg/httpmiddleware"
)

// Telemetry provides tracer and meter providers. Implemented by
// *app.Telemetry from go-faster/sdk.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

var _ Telemetry = (*app.Telemetry)(nil)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Catalog: in memory, optionally backed by PostgreSQL.
	store := catalog.NewStore(catalog.Template())
	var repo catalog.Repository
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		repo = postgres.NewCatalogRepository(pool)
	} else {
		lg.Warn("No database configured, catalog changes will not survive a restart")
	}

	catalogSvc := catalog.NewService(store, repo)
	if repo != nil {
		if err := catalogSvc.EnsureSeeded(ctx); err != nil {
			return errors.Wrap(err, "seed catalog")
		}
		n, err := catalogSvc.Reload(ctx)
		if err != nil {
			return errors.Wrap(err, "load catalog")
		}
		lg.Info("Catalog loaded", zap.Int("items", n))

		syncJob := jobs.NewCatalogSyncJob(catalogSvc, cfg.Catalog.SyncSchedule, lg)
		if err := syncJob.Start(); err != nil {
			return errors.Wrap(err, "start catalog sync")
		}
		defer syncJob.Stop()
		healthSvc.AddReadinessCheck("catalog_sync", time.Second, syncJob.Check)
	}
	healthSvc.AddReadinessCheck("catalog", time.Second, func(context.Context) error {
		if store.Len() == 0 {
			return catalog.ErrEmpty
		}
		return nil
	})

	// Run observers.
	progress := handler.NewProgressTracker()
	observers := []fulfillment.Observer{fulfillment.LogObserver{}, progress}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg.Named("kafka")))
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Error("Close kafka publisher", zap.Error(err))
			}
		}()
		observers = append(observers, publisher)
		lg.Info("Publishing run events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Order agent and its collaborators.
	formula, err := cfg.Pricing.Formula()
	if err != nil {
		return errors.Wrap(err, "pricing formula")
	}
	calc, err := pricing.NewCalculator(formula)
	if err != nil {
		return errors.Wrap(err, "create pricing calculator")
	}
	agent, err := fulfillment.NewAgent(
		extraction.NewParser(),
		inventory.NewResolver(catalogSvc),
		calc,
		shipment.NewSimulator(cfg.Shipment.Simulator()),
		fulfillment.WithApprovalPolicy(cfg.Approval.Policy()),
		fulfillment.WithObserver(observers...),
		fulfillment.WithTracerProvider(m.TracerProvider()),
		fulfillment.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create agent")
	}

	h := handler.NewHandler(agent, catalogSvc, progress)

	// Router: health endpoints + API on one server.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes())

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Order submission returns once shipping finishes.
		WriteTimeout:   time.Minute,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Instrument("order-agent", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.Recovery(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
