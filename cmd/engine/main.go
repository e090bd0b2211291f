package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/config"
	"github.com/Victor-armando18/offer-engine/internal/domain/experiment"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/catalog"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/jsonlogic"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/kafka"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/postgres"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/redis"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/sqlite"
	"github.com/Victor-armando18/offer-engine/internal/interfaces"
	"github.com/Victor-armando18/offer-engine/internal/telemetry"
	"github.com/Victor-armando18/offer-engine/internal/usecase"
	"github.com/Victor-armando18/offer-engine/internal/usecase/conversion"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type source interface {
	interfaces.OfferCatalog
	interfaces.ExperimentSource
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var src source
	switch cfg.Catalog.Source {
	case config.CatalogPostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: cfg.Catalog.PostgresDSN})
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := postgres.NewCatalog(pool, logger)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		src = pg
	default:
		src = infrastructure.NewFileCatalog(cfg.Catalog.Path, logger)
	}

	poller := catalog.NewPoller(src, src, cfg.Catalog.RefreshInterval, logger)
	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer poller.Stop()

	sink, store, closeSinks, err := openSinks(cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	events := telemetry.NewLogger(sink, telemetry.Config{
		QueueSize:      cfg.Telemetry.QueueSize,
		BatchSize:      cfg.Telemetry.BatchSize,
		WriteTimeout:   cfg.Telemetry.WriteTimeout,
		DedupeVisitors: cfg.Telemetry.DedupeVisitors,
		DedupeTTL:      cfg.Telemetry.DedupeTTL,
	}, logger)

	registry := experiment.NewRegistryWithConfig(experiment.RegistryConfig{
		MaxVisitors: cfg.Engine.AssignmentVisitors,
		IdleTTL:     cfg.Engine.AssignmentTTL,
	})
	svc := usecase.NewEngineService(poller, jsonlogic.NewExecutor(),
		usecase.WithExperimentSource(poller),
		usecase.WithExposureLogger(events),
		usecase.WithRegistry(registry),
		usecase.WithLogger(logger),
	)

	srv := &server{
		svc:         svc,
		preview:     svc.WithoutExposures(),
		conversions: &conversion.UseCase{Assignments: svc, Logger: events},
		catalog:     poller,
		experiments: poller,
		store:       store,
		caps:        cfg.Engine.Caps,
		currency:    cfg.Engine.CurrencySymbol,
		logger:      logger,
		now:         time.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodPost, http.MethodPatch, http.MethodOptions, http.MethodGet},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAccept, sessionHeader},
		ExposeHeaders: []string{sessionHeader},
	}))
	srv.routes(e)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine listening", "addr", cfg.Server.Addr, "catalog", cfg.Catalog.Source)
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := events.Close(shutdownCtx); err != nil {
		logger.Warn("telemetry flush incomplete", "error", err)
	}
	return serveErr
}

// openSinks builds every configured telemetry sink. With none configured,
// events are kept in memory.
func openSinks(cfg config.TelemetryConfig, logger *slog.Logger) (interfaces.TelemetrySink, *sqlite.Store, func(), error) {
	var (
		sinks   telemetry.MultiSink
		closers []func() error
		store   *sqlite.Store
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing telemetry sink", "error", err)
			}
		}
	}

	if cfg.SQLitePath != "" {
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, closeAll, err
		}
		store = st
		sinks = append(sinks, st)
		closers = append(closers, st.Close)
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaExposures, cfg.KafkaConversions)
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		sinks = append(sinks, pub)
		closers = append(closers, pub.Close)
	}
	if cfg.RedisAddr != "" {
		rs, err := redis.NewSink(redis.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Prefix:    cfg.RedisPrefix,
			DedupeTTL: cfg.RedisDedupeTTL,
		})
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		sinks = append(sinks, rs)
		closers = append(closers, rs.Close)
	}

	if len(sinks) == 0 {
		logger.Info("no telemetry sink configured, keeping events in memory")
		return telemetry.NewMemorySink(), nil, closeAll, nil
	}
	return sinks, store, closeAll, nil
}
