package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/ergo-monitor/internal/application/analytics"
	"github.com/bimakw/ergo-monitor/internal/application/notification"
	"github.com/bimakw/ergo-monitor/internal/application/services"
	"github.com/bimakw/ergo-monitor/internal/config"
	"github.com/bimakw/ergo-monitor/internal/domain/entities"
	"github.com/bimakw/ergo-monitor/internal/domain/repositories"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/cache"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/database"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/discord"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/ergo"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/messaging"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/metrics"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/registry"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/telegram"
	"github.com/bimakw/ergo-monitor/internal/presentation/handlers"
	"github.com/bimakw/ergo-monitor/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	logger.Info("Starting ergo-monitor",
		zap.String("explorer_url", cfg.Explorer.BaseURL),
		zap.String("channel", cfg.Monitor.Channel),
		zap.Duration("poll_interval", cfg.Monitor.PollInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Monitor exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("Monitor stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	monitorMetrics := metrics.NewMonitorMetrics(prometheus.DefaultRegisterer)
	httpMetrics := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer)

	// Explorer client
	explorer := ergo.NewClient(cfg.Explorer, logger)
	defer explorer.Close()

	// Connect to Redis cache (optional)
	var balanceCache services.BalanceCache
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(cfg.Redis, cfg.Monitor.BalanceCacheTTL, logger)
		if err != nil {
			logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		} else {
			defer rc.Close()
			redisCache = rc
			balanceCache = rc
		}
	}

	// Address registry
	addressRegistry, db, err := setupRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// Notification handlers
	notifiers, err := setupHandlers(cfg, monitorMetrics, logger)
	if err != nil {
		return err
	}

	// Analytics pipeline
	flows := analytics.NewFlowTracker()
	sinks := []analytics.Sink{flows}

	var publisher *messaging.Publisher
	if cfg.NATS.Enabled {
		p, err := messaging.NewPublisher(cfg.NATS, logger)
		if err != nil {
			logger.Warn("Failed to connect to NATS, running without event bus", zap.Error(err))
		} else {
			defer p.Close()
			publisher = p
			sinks = append(sinks, p)
		}
	}

	dispatcher := analytics.NewDispatcher(cfg.Monitor.AnalyticsQueue, sinks, monitorMetrics, logger)
	// Queued events are still delivered after shutdown starts
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Stop()

	// Create services
	balances := services.NewBalanceService(explorer, balanceCache, monitorMetrics, logger)
	monitor := services.NewMonitorService(
		explorer,
		balances,
		notifiers,
		dispatcher,
		cfg.Monitor,
		cfg.Explorer.FeeAddress,
		monitorMetrics,
		logger,
	)

	if err := monitor.LoadAddresses(ctx, addressRegistry); err != nil {
		return err
	}
	if len(monitor.Addresses()) == 0 {
		logger.Warn("No addresses to watch; set MONITOR_WATCH or populate the registry")
	}

	// Create handlers
	addressHandler := handlers.NewAddressHandler(monitor, balances, flows, logger)
	healthHandler := handlers.NewHealthHandler(monitor, explorer)
	if redisCache != nil {
		healthHandler.AddOptional("cache", redisCache)
	}
	if db != nil {
		healthHandler.AddOptional("database", db)
	}
	if publisher != nil {
		healthHandler.AddOptional("nats", publisher)
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(httpMetrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		addressHandler.RegisterRoutes(r)
	})

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}
	metricsServer := newMetricsServer(cfg.Monitor.MetricsPort)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return monitor.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("API server starting", zap.String("addr", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting metrics server", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// setupRegistry returns the database registry when enabled, seeded with the
// configured watch list, and the static registry otherwise
func setupRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.AddressRegistry, *database.PostgresDB, error) {
	static, err := registry.NewStaticRegistry(cfg.Monitor)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Database.Enabled {
		return static, nil, nil
	}

	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}

	repo := database.NewAddressRepo(db.DB(), cfg.Monitor.LookbackHours)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	seed, err := static.LoadWatched(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to load seed addresses: %w", err)
	}
	for _, w := range seed {
		if err := repo.Upsert(ctx, w); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to seed address %s: %w", w.Address, err)
		}
	}
	if len(seed) > 0 {
		logger.Info("Seeded address registry", zap.Int("addresses", len(seed)))
	}

	return repo, db, nil
}

func setupHandlers(cfg *config.Config, m *metrics.MonitorMetrics, logger *zap.Logger) ([]notification.Handler, error) {
	notifiers := []notification.Handler{notification.NewLogHandler(logger)}
	formatter := notification.NewFormatter(cfg.Explorer.WebURL)

	switch cfg.Monitor.Channel {
	case "telegram":
		client := telegram.NewClient(cfg.Telegram, logger)
		notifiers = append(notifiers, notification.NewChannelHandler(
			"telegram", client, formatter, defaultDestination(cfg.Telegram.DefaultChatID), m, logger,
		))
	case "discord":
		client, err := discord.NewClient(cfg.Discord, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notification.NewChannelHandler(
			"discord", client, formatter, defaultDestination(cfg.Discord.DefaultChannelID), m, logger,
		))
	case "", "none":
	default:
		return nil, fmt.Errorf("unknown notification channel %q", cfg.Monitor.Channel)
	}

	return notifiers, nil
}

func defaultDestination(channelID string) *entities.Destination {
	if channelID == "" {
		return nil
	}
	return &entities.Destination{ChannelID: channelID}
}

func setupLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoding := "json"
	encoderConfig := zap.NewProductionEncoderConfig()
	if format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	return logger
}

func newMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
