// main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/fbriol/hydrosheds/watermask"
)

const appName = "watermask-service"

var (
	grpcHealthServer  *grpc.Server
	httpMetricsServer *http.Server
	httpAPIServer     *http.Server
)

// Config holds all configuration for the application, loaded from
// environment variables.
type Config struct {
	LogLevel        string   `env:"LOG_LEVEL" envDefault:"INFO"`
	HTTPPort        int      `env:"HTTP_PORT" envDefault:"8080"`
	HealthPort      int      `env:"HEALTH_PORT" envDefault:"6666"`
	HTTPMetricsPort int      `env:"METRICS_PORT" envDefault:"8888"`
	MaskPaths       []string `env:"MASK_PATHS" envSeparator:","`
	EPSGCode        int      `env:"EPSG_CODE" envDefault:"4326"`
	TileSize        int      `env:"TILE_SIZE" envDefault:"256"`
	CacheTiles      int      `env:"CACHE_TILES" envDefault:"4096"`
	QueryThreads    int      `env:"QUERY_THREADS" envDefault:"0"`
	SharedCacheSize int64    `env:"SHARED_CACHE_SIZE" envDefault:"0"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		fmt.Printf("failed to parse config: %+v\n", err)
		os.Exit(1)
	}

	logger := createLogger(cfg, appName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	dataset, err := setupDataset(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize mask dataset, shutting down", "error", err)
		os.Exit(1)
	}
	defer dataset.Close()

	healthServer := health.NewServer()

	// gRPC Health Server
	g.Go(func() error {
		return startHealthServer(logger, cfg, healthServer)
	})

	// HTTP Metrics Server (Prometheus)
	g.Go(func() error {
		return startMetricsServer(logger, cfg)
	})

	// HTTP API Server
	g.Go(func() error {
		return startAPIServer(logger, cfg, dataset)
	})

	healthServer.SetServingStatus(appName, healthpb.HealthCheckResponse_SERVING)

	// Wait for termination signal or an error from one of the services
	select {
	case <-interrupt:
		slog.Warn("received termination signal, starting graceful shutdown")
		cancel()
	case <-ctx.Done():
		slog.Warn("context cancelled, starting graceful shutdown")
	}

	// Graceful Shutdown
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if httpMetricsServer != nil {
		if err := httpMetricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP metrics server shutdown error", "error", err)
		}
	}
	if httpAPIServer != nil {
		if err := httpAPIServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP API server shutdown error", "error", err)
		}
	}
	if grpcHealthServer != nil {
		grpcHealthServer.GracefulStop()
	}

	// Wait for all services in the errgroup to finish
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server group returned an error", "error", err)
		os.Exit(2)
	}
}

func startHealthServer(logger *slog.Logger, cfg Config, healthServer *health.Server) error {
	addr := fmt.Sprintf(":%d", cfg.HealthPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gRPC health server failed to listen: %w", err)
	}

	grpcHealthServer = grpc.NewServer()
	healthpb.RegisterHealthServer(grpcHealthServer, healthServer)
	logger.Info("gRPC health server listening", "address", addr)
	return grpcHealthServer.Serve(lis)
}

func startMetricsServer(logger *slog.Logger, cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.HTTPMetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	httpMetricsServer = &http.Server{Addr: addr, Handler: mux}
	logger.Info("HTTP metrics server listening", "address", addr)

	if err := httpMetricsServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP metrics server failed: %w", err)
	}
	return nil
}

func startAPIServer(logger *slog.Logger, cfg Config, dataset *watermask.Dataset) error {
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	mux := http.NewServeMux()

	mux.HandleFunc("/isWater/", isWaterHandler(dataset))
	mux.HandleFunc("/query", queryHandler(dataset, cfg.QueryThreads))

	httpAPIServer = &http.Server{Addr: addr, Handler: mux}
	logger.Info("HTTP API server listening", "address", addr)

	if err := httpAPIServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP API server failed: %w", err)
	}
	return nil
}

func isWaterHandler(dataset *watermask.Dataset) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/isWater/"), "/")
		if len(pathParts) != 2 {
			http.Error(w, "Invalid URL format", http.StatusBadRequest)
			return
		}
		lat, err := strconv.ParseFloat(pathParts[0], 64)
		if err != nil {
			http.Error(w, "Invalid latitude", http.StatusBadRequest)
			return
		}
		lng, err := strconv.ParseFloat(pathParts[1], 64)
		if err != nil {
			http.Error(w, "Invalid longitude", http.StatusBadRequest)
			return
		}
		water, err := dataset.IsWaterAt(lng, lat)
		if err != nil {
			http.Error(w, fmt.Sprintf("Could not answer query: %v", err), http.StatusInternalServerError)
			return
		}
		response := map[string]interface{}{"latitude": lat, "longitude": lng, "water": water}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func queryHandler(dataset *watermask.Dataset, numThreads int) http.HandlerFunc {
	type batchRequest struct {
		Lon []float64 `json:"lon"`
		Lat []float64 `json:"lat"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		water, err := dataset.IsWater(req.Lon, req.Lat, numThreads)
		if err != nil {
			if errors.Is(err, watermask.ErrSizeMismatch) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, fmt.Sprintf("Could not answer query: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"water": water})
	}
}

func setupDataset(cfg Config, logger *slog.Logger) (*watermask.Dataset, error) {
	if len(cfg.MaskPaths) == 0 {
		return nil, errors.New("MASK_PATHS must list at least one mask raster")
	}
	logger.Info("initializing mask dataset",
		"paths", cfg.MaskPaths,
		"epsg", cfg.EPSGCode,
		"tile_size", cfg.TileSize,
		"cache_tiles", cfg.CacheTiles,
	)
	opts := []watermask.Option{
		watermask.WithEPSG(cfg.EPSGCode),
		watermask.WithTileSize(cfg.TileSize),
		watermask.WithCacheTiles(cfg.CacheTiles),
		watermask.WithLogger(logger),
	}
	if cfg.SharedCacheSize > 0 {
		logger.Info("using shared tile cache", "max_size", cfg.SharedCacheSize)
		opts = append(opts, watermask.WithSharedCache(cfg.SharedCacheSize, 64))
	}
	return watermask.Open(cfg.MaskPaths, opts...)
}

func createLogger(cfg Config, appName string) *slog.Logger {
	var programLevel slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		programLevel = slog.LevelDebug
	case "INFO":
		programLevel = slog.LevelInfo
	case "WARN":
		programLevel = slog.LevelWarn
	case "ERROR":
		programLevel = slog.LevelError
	default:
		programLevel = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     programLevel,
		AddSource: programLevel <= slog.LevelDebug,
	}).WithAttrs([]slog.Attr{slog.String("app", appName)})
	return slog.New(handler)
}
