package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"mint-sentry/agent/internal/bot"
	"mint-sentry/agent/internal/handlers"
	"mint-sentry/agent/internal/registry"
	"mint-sentry/agent/internal/services"
	"mint-sentry/agent/internal/tests"
	"mint-sentry/shared/config"
	"mint-sentry/shared/env"
	"mint-sentry/shared/logger"
	"mint-sentry/shared/notifications"
)

func startHeartbeat(ctx context.Context, appLogger *logger.Logger) {
	go func() {
		ticker := time.NewTicker(8 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				appLogger.Info("Heartbeat: Program running...")
			}
		}
	}()
}

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Fatalf("FATAL: Failed to load environment variables: %v", err)
	}
	log.Println("INFO: Environment variables loaded via shared/env.")

	cfg, err := config.LoadConfig("agent/config.yaml")
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	config.SetGlobalConfig(cfg)

	loggerCfg := logger.Config{
		Level:          cfg.Logging.Level,
		Environment:    cfg.App.Environment,
		EnableTelegram: cfg.Logging.EnableTelegram && env.TelegramBotToken != "" && env.TelegramGroupID != 0,
	}
	appLogger, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info("Application logger initialized successfully.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := notifications.InitTelegramBot(); err != nil {
		appLogger.Fatal("Failed to initialize Telegram bot", "error", err)
	}
	appLogger.Info("Telegram notifications initialized.")

	nfts := registry.NewNFTRegistry()
	collections := registry.NewCollectionRegistry()

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)
	market := services.NewMarketplaceClient(cfg, appLogger)
	metadata := services.NewMetadataService(market, appLogger)
	quotes := services.NewSolPriceService(appLogger)
	sink := notifications.NewSink()

	evaluator := services.NewAlertEvaluator(nfts, market, sink, metrics, time.Duration(cfg.Alerts.CheckIntervalSeconds)*time.Second, appLogger)
	poller := services.NewCollectionPoller(collections, nfts, market, sink, metrics, time.Duration(cfg.Collections.PollIntervalMinutes)*time.Minute, appLogger)
	sales := services.NewSaleWatcher(market, metadata, sink, metrics, cfg, appLogger)

	tgBot, err := bot.InitializeBot(bot.Dependencies{
		NFTs:        nfts,
		Collections: collections,
		Stats:       market,
		Metadata:    metadata,
		Sales:       sales,
		Refresher:   poller,
		Quotes:      quotes,
		Metrics:     metrics,
		Config:      cfg,
	}, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize Telegram Bot listener", "error", err)
	}
	appLogger.Info("Telegram Bot command listener initialized.")

	appLogger.Info("Setting up web server...")
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestLogger(appLogger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))
	appLogger.Info("CORS middleware configured.")

	handlers.RegisterRoutes(router, appLogger)
	handlers.RegisterAPIRoutes(router, appLogger, nfts, collections)
	appLogger.Info("Web server and API routes registered.")

	appLogger.Info("Starting background services...")
	go evaluator.Run(ctx)
	go poller.Run(ctx)
	go sales.RunScheduled(ctx)
	go tgBot.StartListening(ctx)

	go func() {
		serverAddr := ":" + cfg.App.Port
		appLogger.Info("Starting web server", "address", serverAddr)
		if err := router.Run(serverAddr); err != nil {
			appLogger.Fatal("Could not start web server.", "error", err)
		}
	}()

	go tests.RunStartupChecks(ctx, cfg, appLogger)

	startHeartbeat(ctx, appLogger)

	appLogger.Info("Application startup complete. Waiting for events...")
	<-ctx.Done()

	appLogger.Info("Shutdown signal received. Stopping...")
	// Give the listener and loop goroutines a moment to log their exits.
	time.Sleep(time.Second)
	appLogger.Info("Shutdown complete.")
}
