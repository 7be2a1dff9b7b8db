package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tejusbharadwaj/eloverblik/internal/api"
	"github.com/tejusbharadwaj/eloverblik/internal/config"
	"github.com/tejusbharadwaj/eloverblik/internal/database"
	server "github.com/tejusbharadwaj/eloverblik/internal/grpc"
	"github.com/tejusbharadwaj/eloverblik/internal/scheduler"
	"github.com/tejusbharadwaj/eloverblik/pkg/eloverblik"
)

// syncTimeout bounds one sync run, including every API call it makes.
const syncTimeout = 10 * time.Minute

// Command eloverblik syncs meter data from the Eloverblik customer API into
// PostgreSQL and serves it over gRPC.
//
// The service supports:
//   - Scheduled syncs of time series and meter readings
//   - Discovery of the metering points linked to the refresh token
//   - A gRPC query service with health checking
//   - Prometheus metrics
//
// Usage:
//
//	eloverblik [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
//	-once
//	      run a single sync of the lookback window and exit
func main() {
	// Parse command line flags
	flags := parseFlags()

	// Load configuration
	appConfig, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize structured logger
	logger, err := appConfig.Logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := eloverblik.New(appConfig.API.RefreshToken, clientOptions(appConfig.API, logger, registry)...)
	if err != nil {
		logger.Fatalf("Failed to create API client: %v", err)
	}
	logger.WithField("base_url", client.BaseURL()).Info("Eloverblik client ready")

	// Create repository using the connection string from the config
	repo, err := database.NewPostgresRepo(appConfig.Database.ConnectionString())
	if err != nil {
		logger.Fatalf("Failed to create repository: %v", err)
	}

	// Create a context that will be canceled on shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatalf("Failed to create schema: %v", err)
	}

	seriesFetcher := api.NewSeriesFetcher(client, repo, api.FetcherConfig{
		MeteringPoints: appConfig.Sync.MeteringPoints,
		IncludeAll:     appConfig.Sync.IncludeAll,
		Aggregation:    appConfig.Sync.ParsedAggregation(),
		MeterReadings:  appConfig.Sync.MeterReadings,
		Lookback:       time.Duration(appConfig.Sync.LookbackDays) * 24 * time.Hour,
	}, logger)

	if flags.Once {
		runOnce(ctx, seriesFetcher, repo, logger)
		return
	}

	// Create and setup gRPC server
	serverConfig := server.ServerConfig{
		CacheSize:      appConfig.Server.CacheSize,
		RateLimit:      appConfig.Server.RateLimit,
		RateLimitBurst: appConfig.Server.RateLimitBurst,
	}

	srv, err := server.SetupServer(repo, serverConfig, logger, registry)
	if err != nil {
		logger.Fatalf("Failed to setup server: %v", err)
	}

	// Start listening
	addr := fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatalf("Failed to listen: %v", err)
	}

	sched := scheduler.NewScheduler(ctx, seriesFetcher, appConfig.Sync.Schedule, syncTimeout, logger)
	sched.OnSync(srv.Cache.Purge)

	// Start background services
	errChan := make(chan error, 2)

	// Bootstrap the lookback window in a goroutine
	go func() {
		bootstrapCtx, cancel := context.WithTimeout(ctx, syncTimeout)
		defer cancel()
		if err := seriesFetcher.BootstrapHistoricalData(bootstrapCtx); err != nil {
			logger.WithError(err).Error("Bootstrap sync failed")
			return
		}
		srv.Cache.Purge()
	}()

	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	metricsServer := startMetricsServer(appConfig.Server, registry, logger, errChan)

	logger.WithFields(logrus.Fields{
		"addr": addr,
	}).Info("Starting gRPC server")

	go func() {
		if err := srv.Serve(lis); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for a signal or an error from background services
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errChan:
		logger.WithError(err).Error("Service error")
	}

	handleShutdown(srv, sched, metricsServer, repo, logger)
}

type Flags struct {
	ConfigPath string
	Once       bool
}

func parseFlags() *Flags {
	flags := &Flags{}

	flag.StringVar(&flags.ConfigPath, "config", "config.yaml", "Path to the config file")
	flag.BoolVar(&flags.Once, "once", false, "Run a single sync of the lookback window and exit")

	flag.Parse()

	return flags
}

func clientOptions(cfg config.APIConfig, logger *logrus.Logger, reg prometheus.Registerer) []eloverblik.Option {
	opts := []eloverblik.Option{
		eloverblik.WithLogger(logger),
		eloverblik.WithMetrics(eloverblik.NewMetrics(reg)),
		eloverblik.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.Preproduction {
		opts = append(opts, eloverblik.WithPreproduction())
	}
	if cfg.BaseURL != "" {
		opts = append(opts, eloverblik.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, eloverblik.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst))
	}
	return opts
}

func runOnce(ctx context.Context, fetcher *api.SeriesFetcher, repo database.MeterDataRepository, logger *logrus.Logger) {
	defer repo.Close()

	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	result, err := fetcher.SyncRecent(ctx)
	if err != nil {
		logger.WithError(err).Error("Sync failed")
		repo.Close()
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{
		"metering_points": result.MeteringPoints,
		"points":          result.Points,
		"readings":        result.Readings,
	}).Info("Sync complete")
}

// startMetricsServer serves /metrics on its own port. A zero port disables it.
func startMetricsServer(cfg config.ServerConfig, reg *prometheus.Registry, logger *logrus.Logger, errChan chan<- error) *http.Server {
	if cfg.MetricsPort == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", metricsServer.Addr).Info("Starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	return metricsServer
}

// Handle graceful shutdown
func handleShutdown(srv *server.Server, sched *scheduler.Scheduler, metricsServer *http.Server, repo database.MeterDataRepository, logger *logrus.Logger) {
	logger.Info("Gracefully stopping server...")
	srv.Health.Shutdown()

	// Let a running sync finish before the repository goes away
	sched.Stop()
	srv.GracefulStop()

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}

	// Clean up the repository
	if err := repo.Close(); err != nil {
		logger.WithError(err).Warn("Repository close failed")
	}
	logger.Info("Server stopped")
}
