package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap/zapcore"
	"norelock.dev/nowplaying/bot/internal/api"
	"norelock.dev/nowplaying/bot/internal/api/handlers"
	"norelock.dev/nowplaying/bot/internal/auth"
	"norelock.dev/nowplaying/bot/internal/bot"
	"norelock.dev/nowplaying/bot/internal/cache"
	"norelock.dev/nowplaying/bot/internal/config"
	"norelock.dev/nowplaying/bot/internal/db/mongo"
	"norelock.dev/nowplaying/bot/internal/db/mongo/repositories"
	"norelock.dev/nowplaying/bot/internal/db/redis"
	"norelock.dev/nowplaying/bot/internal/db/redis/managers"
	"norelock.dev/nowplaying/bot/internal/platform/telegram"
	"norelock.dev/nowplaying/bot/internal/services/fulfillment"
	"norelock.dev/nowplaying/bot/internal/services/inline"
	"norelock.dev/nowplaying/bot/internal/services/placeholder"
	"norelock.dev/nowplaying/bot/internal/services/provider"
	"norelock.dev/nowplaying/bot/internal/services/resolver"
	"norelock.dev/nowplaying/bot/internal/services/system"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// convert logger level to zapcore.Level
func hLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func main() {
	// Create a context that will be canceled on interrupt signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("Received shutdown signal")
		cancel()
	}()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerOptions := utils.LoggerOptions{
		Development:      cfg.Environment == "development",
		Level:            hLevel(cfg.Logging.Level),
		OutputPaths:      cfg.Logging.OutputPaths,
		ErrorOutputPaths: cfg.Logging.ErrorOutputPaths,
	}
	logger := utils.NewLogger(loggerOptions)
	logger.Info("Starting nowplaying bot", "environment", cfg.Environment)

	// Initialize MongoDB client
	mongoClient, err := mongo.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error("Failed to disconnect from MongoDB", err)
		}
	}()

	if err := mongo.EnsureIndexes(ctx, mongoClient); err != nil {
		logger.Fatal("Failed to ensure MongoDB indexes", err)
	}

	// Initialize Redis client
	redisClient, err := redis.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", err)
	}
	defer redisClient.Close()

	// Initialize MongoDB repositories
	trackRepo := repositories.NewTrackRepository(mongoClient.Database(), logger)
	accountRepo := repositories.NewAccountRepository(mongoClient.Database(), logger)

	// Initialize Redis managers
	recentsMgr := managers.NewRecentsManager(redisClient, cfg.Cache.RecentsTTL)

	// Initialize system services
	metricsService := system.NewMetricsService(logger)
	healthService := system.NewHealthService(mongoClient.Client(), redisClient, logger)

	// Initialize listening providers
	registry := provider.NewRegistry()
	var spotifyProvider *provider.SpotifyProvider
	if cfg.Providers.Spotify.ClientID != "" {
		spotifyProvider = provider.NewSpotifyProvider(
			cfg.Providers.Spotify.ClientID,
			cfg.Providers.Spotify.ClientSecret,
			cfg.Providers.Spotify.RedirectURL,
			logger,
		)
		registry.Register(spotifyProvider)
	}
	lastFMEnabled := cfg.Providers.LastFM.APIKey != ""
	if lastFMEnabled {
		registry.Register(provider.NewLastFMProvider(cfg.Providers.LastFM.APIKey, logger))
	}

	// Initialize audio resolution
	searcher := resolver.NewYouTubeSearcher(cfg.Resolver.YouTubeAPIKey, logger)
	downloader := resolver.NewYouTubeDownloader(logger)
	audioResolver := resolver.NewResolver(searcher, downloader, resolver.Options{
		ScoreThreshold: cfg.Resolver.ScoreThreshold,
		MaxCandidates:  cfg.Resolver.MaxCandidates,
		MaxDuration:    cfg.Resolver.MaxDuration,
	}, logger)

	// Initialize Telegram client and placeholder manager
	tgClient := telegram.NewClient(cfg, logger)
	placeholders := placeholder.NewManager(tgClient, metricsService, cfg.Cache.CoverVariants, logger)

	// Initialize inline query cache and fulfillment pipeline
	queryCache := cache.NewQueryCache(cfg.Cache.QueryCapacity)
	pipeline := fulfillment.NewPipeline(
		queryCache,
		trackRepo,
		audioResolver,
		tgClient,
		metricsService,
		fulfillment.Options{
			ResolveTimeout: cfg.Fulfillment.ResolveTimeout,
			PerTrackLock:   cfg.Fulfillment.PerTrackLock,
		},
		logger,
	)

	// Initialize inline service
	inlineService := inline.NewService(
		accountRepo,
		trackRepo,
		registry,
		recentsMgr,
		placeholders,
		queryCache,
		pipeline,
		tgClient,
		metricsService,
		logger,
	)

	// Initialize account linking
	stateSigner := auth.NewStateSigner(cfg.Auth.StateSecret, cfg.Auth.StateExpiry, logger)

	// Initialize API router
	healthHandler := handlers.NewHealthHandler(healthService, logger)
	var linkHandler *handlers.LinkHandler
	if spotifyProvider != nil {
		linkHandler = handlers.NewLinkHandler(spotifyProvider.OAuthConfig(), stateSigner, accountRepo, tgClient, logger)
	}
	router := api.NewRouter(healthHandler, linkHandler, metricsService, logger)

	// Create HTTP server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         apiAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", "address", apiAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", err)
		}
	}()

	// Initialize and run the bot update loop
	botOptions := bot.Options{
		LastFMEnabled: lastFMEnabled,
	}
	if spotifyProvider != nil {
		botOptions.SpotifyOAuth = spotifyProvider.OAuthConfig()
	}
	b := bot.New(tgClient, inlineService, accountRepo, stateSigner, metricsService, botOptions, logger)

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := b.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Update loop stopped", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutting down bot")
	<-botDone

	// Create a context with timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Fulfillment.DrainTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", err)
	}

	// Wait for in-flight fulfillments to finish
	if err := pipeline.Drain(shutdownCtx); err != nil {
		logger.Error("Fulfillment drain interrupted", err)
	}

	logger.Info("Bot stopped")
	logger.Sync()
}
