package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // the wipe timezone must resolve on minimal images

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"

	"taboon/internal/api"
	"taboon/internal/chat"
	"taboon/internal/config"
	"taboon/internal/database"
	"taboon/internal/events"
	"taboon/internal/lifecycle"
	"taboon/internal/llm"
	"taboon/internal/monitoring"
	"taboon/internal/realtime"
	"taboon/internal/retention"
	"taboon/internal/store"
)

var (
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort > 0 {
		cfg.Metrics.Port = *metricsPort
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		return err
	}
	orders := store.NewOrders(db)
	customers := store.NewCustomers(db)

	metrics := monitoring.NewMetrics()
	monitor := monitoring.NewMonitor()

	// Initialize LLM
	provider, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	prompt := chat.DefaultSystemPrompt()
	if cfg.LLM.SystemPromptFile != "" {
		if prompt, err = chat.LoadSystemPrompt(cfg.LLM.SystemPromptFile); err != nil {
			return err
		}
	}

	publisher, err := events.NewPublisher(cfg.Events)
	if err != nil {
		return fmt.Errorf("failed to connect event publisher: %w", err)
	}
	defer publisher.Close()

	registry := realtime.NewRegistry(logger, metrics)
	lifecycleSvc := lifecycle.NewService(orders, registry, logger,
		lifecycle.WithPublisher(publisher),
		lifecycle.WithMetrics(metrics),
	)
	extractor := chat.NewExtractor(orders, customers, logger,
		chat.WithEvents(publisher),
		chat.WithExtractorMetrics(metrics),
	)
	assistant := chat.NewAssistant(provider, extractor, customers, logger,
		chat.WithSystemPrompt(prompt),
		chat.WithTimeout(cfg.LLM.Timeout),
		chat.WithAssistantMetrics(metrics),
	)

	scheduler, err := retention.NewScheduler(orders, cfg.Retention, logger,
		retention.WithMetrics(metrics),
		retention.WithMonitor(monitor),
	)
	if err != nil {
		return err
	}
	go scheduler.Run(ctx)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.New(api.Deps{
		Orders:          orders,
		Customers:       customers,
		Assistant:       assistant,
		Lifecycle:       lifecycleSvc,
		Registry:        registry,
		Retention:       scheduler,
		Publisher:       publisher,
		Metrics:         metrics,
		Monitor:         monitor,
		Logger:          logger,
		Location:        scheduler.Location(),
		CustomerSiteDir: cfg.Server.CustomerSiteDir,
		StaffSiteDir:    cfg.Server.StaffSiteDir,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router,
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics, metrics, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server",
			"port", cfg.Server.Port, "provider", provider.Name(), "database", cfg.Database.Driver)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down servers")
	case err := <-errCh:
		return fmt.Errorf("API server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	return nil
}

func startMetricsServer(cfg config.MetricsConfig, metrics *monitoring.Metrics, logger *slog.Logger) *http.Server {
	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET(cfg.Path, gin.WrapH(metrics.Handler()))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: metricsRouter,
	}

	go func() {
		logger.Info("starting metrics server", "port", cfg.Port, "path", cfg.Path)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return metricsServer
}
