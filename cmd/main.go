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
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/currency"
	"github.com/tejusbharadwaj/spotprice/internal/database"
	"github.com/tejusbharadwaj/spotprice/internal/fallback"
	server "github.com/tejusbharadwaj/spotprice/internal/grpc"
	"github.com/tejusbharadwaj/spotprice/internal/logging"
	"github.com/tejusbharadwaj/spotprice/internal/pipeline"
	"github.com/tejusbharadwaj/spotprice/internal/scheduler"
	"github.com/tejusbharadwaj/spotprice/internal/source"
	"github.com/tejusbharadwaj/spotprice/internal/store"
)

// Command spotprice keeps per-interval electricity spot prices for a set of
// price areas and serves them over gRPC.
//
// The service:
//   - Fetches day-ahead prices from prioritized sources with fallback
//   - Converts them to each area's currency, unit, VAT and timezone
//   - Caches today and tomorrow per area and rolls over at local midnight
//   - Persists snapshots to memory, PostgreSQL, SQLite or Redis
//   - Exposes Prometheus metrics and gRPC health per area
//
// Usage:
//
//	spotprice [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
//	-env string
//	      optional dotenv file loaded before the config (default ".env")
func main() {
	flags := parseFlags()

	if err := godotenv.Load(flags.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load %s: %v", flags.EnvFile, err)
	}

	appConfig, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(appConfig.Logging)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := database.Open(ctx, appConfig.Storage)
	if err != nil {
		logger.Fatalf("Failed to open %s storage: %v", appConfig.Storage.Driver, err)
	}

	coordinator, err := buildCoordinator(appConfig, repo, logger)
	if err != nil {
		logger.Fatalf("Failed to build pipeline: %v", err)
	}

	if _, err := coordinator.Warm(ctx); err != nil {
		logger.WithError(err).Warn("Starting with an empty price cache")
	}

	srv, health, err := server.SetupServer(coordinator, server.ServerConfig{
		CacheSize:      appConfig.Server.CacheSize,
		CacheTTL:       appConfig.Server.CacheTTL,
		RateLimit:      appConfig.Server.RateLimit,
		RateLimitBurst: appConfig.Server.RateBurst,
	}, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatalf("Failed to setup server: %v", err)
	}
	coordinator.OnResult = health.Observe

	sched := scheduler.NewScheduler(ctx, coordinator, appConfig.Schedule, 2*appConfig.Pipeline.FetchTimeout, logger)

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port))
	if err != nil {
		logger.Fatalf("Failed to listen: %v", err)
	}

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", appConfig.Server.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		if err := sched.Start(); err != nil {
			errChan <- fmt.Errorf("scheduler error: %w", err)
			return
		}
		sched.Refresh()
	}()

	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	go handleShutdown(ctx, srv, metricsSrv, sched, repo, logger)

	logger.WithFields(logrus.Fields{
		"port":         appConfig.Server.Port,
		"metrics_port": appConfig.Server.MetricsPort,
		"areas":        coordinator.Areas(),
		"storage":      appConfig.Storage.Driver,
	}).Info("Starting gRPC server")

	go func() {
		if err := srv.Serve(lis); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	if err := <-errChan; err != nil {
		logger.Fatalf("Service error: %v", err)
	}
}

type Flags struct {
	ConfigPath string
	EnvFile    string
}

func parseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "config.yaml", "Path to the config file")
	flag.StringVar(&f.EnvFile, "env", ".env", "Optional dotenv file")

	flag.Parse()

	return f
}

// buildCoordinator wires sources, rates, fallback and metrics into the
// pipeline.
func buildCoordinator(cfg *config.Config, repo database.SnapshotRepository, logger *logrus.Logger) (*pipeline.Coordinator, error) {
	client := &http.Client{Timeout: cfg.Pipeline.FetchTimeout}

	sources, err := source.NewRegistry(cfg.Sources, client, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Pipeline.CacheSize, cfg.Pipeline.CacheTTL, logger)
	if err != nil {
		return nil, err
	}

	return pipeline.NewCoordinator(cfg, pipeline.Deps{
		Store:   st,
		Gate:    pipeline.NewFetchGate(cfg.Pipeline.MinFetchInterval, cfg.Pipeline.MaxBackoffExponent),
		Sources: sources,
		Rates:   rateProvider(cfg.Exchange, client, logger),
		Orchestrator: fallback.New(fallback.Config{
			Mode:       fallback.Mode(strings.ToLower(cfg.Pipeline.Mode)),
			MaxWorkers: cfg.Pipeline.MaxWorkers,
			Timeout:    cfg.Pipeline.FetchTimeout,
		}, logger),
		Repository: repo,
		Metrics:    pipeline.NewMetrics(prometheus.DefaultRegisterer),
		Logger:     logger,
	})
}

func rateProvider(cfg config.ExchangeConfig, client *http.Client, logger *logrus.Logger) currency.RateProvider {
	if strings.EqualFold(cfg.Provider, "ecb") {
		return currency.NewECBProvider(cfg.ECBURL, cfg.RefreshTTL, client, logger)
	}
	return currency.NewStaticRates(cfg.Base, cfg.Rates)
}

// Handle graceful shutdown
func handleShutdown(ctx context.Context, srv *grpc.Server, metricsSrv *http.Server, sched *scheduler.Scheduler, repo database.SnapshotRepository, logger *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("Context canceled, initiating shutdown")
	case sig := <-sigChan:
		logger.Infof("Received signal %v, initiating shutdown", sig)
	}

	sched.Stop()

	logger.Info("Gracefully stopping server...")
	srv.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Metrics server shutdown failed")
	}

	if err := repo.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close storage")
	}
	logger.Info("Server stopped")
	os.Exit(0)
}
