package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mr1hm/severe-weather-dashboard/internal/api"
	"github.com/mr1hm/severe-weather-dashboard/internal/ingestion"
	"github.com/mr1hm/severe-weather-dashboard/internal/logging"
	"github.com/mr1hm/severe-weather-dashboard/internal/notify"
	"github.com/mr1hm/severe-weather-dashboard/internal/observability"
	"github.com/mr1hm/severe-weather-dashboard/internal/outlook"
	"github.com/mr1hm/severe-weather-dashboard/internal/repository"
)

func addServeCmd(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the pollers and the HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			serve()
		},
	})
}

func serve() {
	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
		logging.Fatalf("Failed to create database directory: %v", err)
	}
	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Render events for the SSE stream
	broadcaster := notify.NewBroadcaster()

	deps, err := pipelineDeps(cfg, broadcaster)
	if err != nil {
		logging.Fatalf("Failed to build pipeline: %v", err)
	}
	deps.Notifications = db
	deps.Metrics = metrics

	if cfg.Kafka.Enabled {
		publisher := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		deps.Publisher = publisher
		slog.Info("publishing notifications to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	if cfg.Redis.Enabled {
		store, err := repository.NewRedisSnapshot(cfg.Redis.URL, cfg.Redis.SnapshotTTL)
		if err != nil {
			logging.Fatalf("Failed to connect to redis: %v", err)
		}
		defer store.Close()
		deps.Snapshots = store
		slog.Info("mirroring alert snapshot to redis", "ttl", cfg.Redis.SnapshotTTL)
	}

	mgr := ingestion.NewManager(cfg, deps)
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(mgr, db, broadcaster, outlook.NewSelector(cfg.Outlook.SPCBaseURL), metrics)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	broadcaster.Close() // Ends open event streams

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete", "stream_events_dropped", broadcaster.Dropped())
}
