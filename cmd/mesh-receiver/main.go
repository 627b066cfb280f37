package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meshhub/database"
	"meshhub/internal/config"
	"meshhub/internal/export"
	"meshhub/internal/microservices/http-api/handler"
	"meshhub/internal/microservices/http-api/service"
	"meshhub/internal/microservices/tcp"
	"meshhub/internal/protocol"
	"meshhub/internal/scene"
	"meshhub/internal/viewport"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup happens before os.Exit
func run() int {
	// Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Setup structured logging
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Scene the received mesh lands in
	sc := scene.NewScene(cfg.MaxEntities, scene.NewMaterialLibrary())
	sc.SetLogger(logger)

	// Asset registry (optional)
	db, err := database.ConnectDB(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("database_connect_failed", "error", err.Error())
		return 1
	}
	defer database.Close(db)
	var registry export.AssetRepository
	if db != nil {
		registry = export.NewAssetPostgresRepo(db)
	}

	// Exporter (optional)
	var exporter scene.Exporter
	nameHint := ""
	if cfg.ExportEnabled {
		store, err := export.NewFileStore(cfg.ExportDir)
		if err != nil {
			logger.Error("export_store_failed", "dir", cfg.ExportDir, "error", err.Error())
			return 1
		}
		hx := export.NewHybridExporter(store, registry, cfg.ExportRatePerSec)
		hx.SetLogger(logger)
		restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := hx.Restore(restoreCtx, cfg.TargetTag); err != nil {
			logger.Warn("export_restore_failed", "tag", cfg.TargetTag, "error", err.Error())
		}
		restoreCancel()
		exporter = hx
		nameHint = cfg.ExportNameHint
	}

	// Viewport mirror (optional); Redis being down is not fatal
	if cfg.RedisURL != "" {
		pub, err := viewport.NewRedisPublisher(cfg.RedisAddr(), cfg.RedisPassword, sc, cfg.TargetTag)
		if err != nil {
			logger.Warn("viewport_publisher_disabled", "redis_addr", cfg.RedisAddr(), "error", err.Error())
		} else {
			sc.AddRefreshListener(pub)
			defer pub.Close()
		}
	}

	sync := scene.NewMeshSync(sc, scene.SyncOptions{
		Tag:           cfg.TargetTag,
		Label:         cfg.TargetLabel,
		NameHint:      nameHint,
		ExportTimeout: cfg.ExportTimeout,
		Exporter:      exporter,
		Logger:        logger,
	})

	// Ingestion listener
	metrics := tcp.NewMetrics(prometheus.DefaultRegisterer)
	server := tcp.NewServer(sync, tcp.ServerOptions{
		Addr:         cfg.MeshAddr(),
		PollInterval: cfg.PollInterval,
		AcceptWait:   cfg.AcceptWait,
		Handler: tcp.HandlerOptions{
			Limits: protocol.Limits{
				MaxVertexFloats: int32(cfg.MaxVertexFloats),
				MaxIndices:      int32(cfg.MaxIndices),
			},
			ReadTimeout:     cfg.ReadTimeout,
			RejectNonFinite: cfg.RejectNonFinite,
		},
		Metrics: metrics,
		Logger:  logger,
	})
	if err := server.Open(); err != nil {
		logger.Error("mesh_listener_failed", "error", err.Error())
		return 1
	}

	// Admin API
	var metricsHandler http.Handler
	if cfg.PrometheusEnabled {
		metricsHandler = promhttp.Handler()
	}
	router := handler.NewRouter(handler.RouterOptions{
		Target:    handler.NewTargetHandler(service.NewTargetService(sc, cfg.TargetTag, exporter, nameHint, registry)),
		Listening: server.Listening,
		Metrics:   metricsHandler,
		Logger:    logger,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting_mesh_receiver",
		"mesh_addr", cfg.MeshAddr(),
		"http_addr", httpServer.Addr,
		"target_tag", cfg.TargetTag,
		"export_enabled", cfg.ExportEnabled,
		"registry_enabled", db != nil,
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start servers in goroutines
	errChan := make(chan error, 2)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		if err := server.Run(ctx); err != nil {
			errChan <- err
		}
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("received_shutdown_signal")
	case err := <-errChan:
		logger.Error("server_error", "error", err.Error())
		exitCode = 1
	}

	// cancelling aborts an in-flight read, then the loop exits
	cancel()
	<-pollDone
	server.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", "error", err.Error())
	}
	sc.WaitRefreshes()
	logger.Info("server_stopped_gracefully", "refreshes", sc.RefreshCount())

	return exitCode
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
