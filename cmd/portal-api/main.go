package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/app"
	"github.com/Zorrojurro/project-aarna/internal/archive"
	"github.com/Zorrojurro/project-aarna/internal/auth"
	"github.com/Zorrojurro/project-aarna/internal/config"
	"github.com/Zorrojurro/project-aarna/internal/export"
	"github.com/Zorrojurro/project-aarna/internal/notifications"
	"github.com/Zorrojurro/project-aarna/internal/registry"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	demoIdentity := flag.String("identity", "", "demo identity label to connect at startup")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := cfg.Logging.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	portal, err := app.New(ctx, cfg, app.Options{WebSocket: true, Registerer: metricsRegistry}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize portal", zap.Error(err))
	}
	defer func() {
		if err := portal.Close(); err != nil {
			logger.Warn("Failed to release resources", zap.Error(err))
		}
	}()

	if err := portal.ConnectFromConfig(*demoIdentity); err != nil {
		logger.Fatal("Failed to connect identity", zap.Error(err))
	}
	if err := portal.Registry.Load(ctx); err != nil {
		logger.Fatal("Failed to load registry", zap.Error(err))
	}

	var poller *registry.Poller
	if cfg.Reconcile.Enabled {
		poller = registry.NewPoller(portal.Registry, cfg.Reconcile.Schedule, logger)
		if err := poller.Start(ctx); err != nil {
			logger.Fatal("Failed to start registry poller", zap.Error(err))
		}
	}

	var exports *export.Scheduler
	if cfg.Export.Schedule != "" && portal.Objects != nil {
		exports = export.NewScheduler(portal.Registry, portal.Objects, export.SchedulerConfig{
			Schedule: cfg.Export.Schedule,
			Bucket:   portal.ExportBucket(),
			Prefix:   cfg.Export.Prefix,
			Formats:  cfg.Export.Formats,
		}, logger)
		if err := exports.Start(ctx); err != nil {
			logger.Fatal("Failed to start export scheduler", zap.Error(err))
		}
	}

	// Handlers
	issuer := auth.NewTokenIssuer(cfg.Security.JWTSecret, 0)
	registryHandler := registry.NewHandler(portal.Registry, logger)
	sessionHandler := auth.NewHandler(portal.Session, issuer, cfg.Session.Demo,
		cfg.Session.KeystorePath, logger)
	notificationsHandler := notifications.NewHandler(portal.Notifications, historyReader(portal), portal.WS, logger)
	exportHandler := export.NewHandler(portal.Registry, logger)
	evidenceHandler := archive.NewHandler(portal.Evidence, logger)

	// Setup Router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	api.Use(auth.Middleware(issuer, portal.Session, logger, auth.ConnectPath, "/api/v1/ws"))
	{
		sessionHandler.RegisterRoutes(api)
		registryHandler.RegisterRoutes(api)
		notificationsHandler.RegisterRoutes(api)
		exportHandler.RegisterRoutes(api)
		evidenceHandler.RegisterRoutes(api)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})))

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		snap := portal.Registry.Snapshot()
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"app_id":    snap.AppID,
			"busy":      snap.Busy,
			"clients":   portal.WS.GetConnectionCount(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", srv.Addr),
		zap.Bool("demo", cfg.Session.Demo),
		zap.Bool("simulated_ledger", cfg.UseSimulatedLedger()))

	// Graceful Shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	if poller != nil {
		poller.Stop()
	}
	if exports != nil {
		exports.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

// historyReader avoids handing a typed nil repository to the handler.
func historyReader(portal *app.App) notifications.HistoryReader {
	if portal.History == nil {
		return nil
	}
	return portal.History
}
