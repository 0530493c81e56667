package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sifan077/tinylink/config"
	apprepository "github.com/sifan077/tinylink/internal/app/repository"
	appserver "github.com/sifan077/tinylink/internal/app/server"
	appservice "github.com/sifan077/tinylink/internal/app/service"
	"github.com/sifan077/tinylink/internal/app/shortcode"
	inthttp "github.com/sifan077/tinylink/internal/http/handler"
	"github.com/sifan077/tinylink/internal/http/middleware"
	"github.com/sifan077/tinylink/internal/infra/logger"
	infraNATS "github.com/sifan077/tinylink/internal/infra/nats"
	infraPostgres "github.com/sifan077/tinylink/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/tinylink/internal/infra/prometheus"
	infraRedis "github.com/sifan077/tinylink/internal/infra/redis"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.MustInit(logger.FromConfig(cfg.App, cfg.Log))
	defer func() { _ = logger.Sync() }()

	log.Info("Configuration loaded successfully",
		zap.String("addr", cfg.Server.Addr),
		zap.String("base_url", cfg.App.BaseURL),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("nats", cfg.NATS.Enabled),
		zap.Bool("postgres", cfg.Postgres.Enabled),
		zap.Bool("prometheus", cfg.Prometheus.Enabled),
	)

	metrics := infraPrometheus.NewMetrics(prom.DefaultRegisterer)
	if cfg.Prometheus.Enabled {
		promServer := infraPrometheus.NewServer(cfg.Prometheus, prom.DefaultGatherer)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.String("addr", promServer.Addr))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	}

	fs := afero.NewOsFs()
	registry, err := apprepository.NewLinkRegistry(fs, filepath.Join(cfg.Storage.DataDir, cfg.Storage.LinksFile), apprepository.RegistryOptions{
		Generator:     shortcode.New(shortcode.WithMaxAttempts(cfg.Links.MaxGenerateAttempts)),
		CodeLength:    cfg.Links.CodeLength,
		ExpectedLinks: uint(cfg.Links.ExpectedLinks),
		Logger:        logger.Named(logger.Registry),
	})
	if err != nil {
		log.Fatal("Failed to load link registry", zap.Error(err))
	}
	ledger := apprepository.NewClickLedger(fs, filepath.Join(cfg.Storage.DataDir, cfg.Storage.ClicksDir), logger.Named(logger.Ledger), metrics)

	healthChecks := map[string]inthttp.HealthCheck{}
	deps := appserver.Dependencies{
		Logger:       logger.Named(logger.HTTP),
		BaseURL:      cfg.App.BaseURL,
		ListLimit:    cfg.Links.ListLimit,
		HealthChecks: healthChecks,
	}

	if cfg.Redis.Enabled {
		redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Connected to Redis successfully")

		window, err := cfg.RateLimit.WindowDuration()
		if err != nil {
			log.Fatal("Invalid rate limit window", zap.String("window", cfg.RateLimit.Window), zap.Error(err))
		}
		deps.RateLimiter = redisClient
		deps.RateLimit = middleware.RateLimitConfig{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      window,
		}
		healthChecks["redis"] = infraRedis.Ping(redisClient)
	}

	var (
		mirror  appservice.ClickMirror
		archive apprepository.ClickArchiveRepository
	)
	if cfg.NATS.Enabled {
		natsConn, js, err := infraNATS.Connect(cfg.NATS, logger.Named(logger.NATS))
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()
		if err := appservice.EnsureStream(js); err != nil {
			log.Fatal("Failed to prepare click stream", zap.Error(err))
		}
		log.Info("Connected to NATS successfully")

		mirror = appservice.NewClickPublisher(js)
		healthChecks["nats"] = func(context.Context) error {
			return infraNATS.Ready(natsConn)
		}

		if cfg.Postgres.Enabled {
			gormDB, err := infraPostgres.NewGorm(cfg.Postgres, logger.Named(logger.Archiver))
			if err != nil {
				log.Fatal("Failed to open GORM connection", zap.Error(err))
			}
			sqlDB, err := gormDB.DB()
			if err != nil {
				log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
			}
			defer sqlDB.Close()

			if err := infraPostgres.AutoMigrate(ctx, gormDB, &apprepository.ArchivedClick{}); err != nil {
				log.Fatal("Failed to run database migrations", zap.Error(err))
			}

			archive = apprepository.NewClickArchiveRepository(gormDB)
			consumer := appservice.NewClickConsumer(js, logger.Named(logger.Archiver), archive)
			if err := consumer.Start(ctx); err != nil {
				log.Fatal("Failed to start click archiver", zap.Error(err))
			}
		}
	} else if cfg.Postgres.Enabled {
		log.Warn("Postgres click archive needs NATS; archive disabled")
	}

	if cfg.Postgres.Enabled {
		pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		defer pool.Close()
		log.Info("Connected to Postgres successfully")
		healthChecks["postgres"] = pool.Ping
	}

	var linkOpts []appservice.LinkServiceOption
	if archive != nil {
		linkOpts = append(linkOpts, appservice.WithClickArchive(archive, logger.Named(logger.Archiver)))
	}
	deps.Links = appservice.NewLinkService(registry, ledger, metrics, linkOpts...)
	deps.Redirects = appservice.NewRedirectService(appservice.RedirectDeps{
		Logger:  logger.Named(logger.Redirect),
		Links:   registry,
		Clicks:  ledger,
		Mirror:  mirror,
		Metrics: metrics,
	})

	server := appserver.New(deps)

	go func() {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Fiber shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Tiny Link started", zap.Int("links", registry.Len()), zap.String("addr", cfg.Server.Addr))
	if err := server.Listen(cfg.Server.Addr); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
