package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"coldreach/config"
	"coldreach/engine"
	"coldreach/inbox"
	"coldreach/middleware"
	"coldreach/personalize"
	"coldreach/routes"
	"coldreach/utils"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.Warnf("sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := config.ConnectDB(cfg)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}

	redisClient, err := config.ConnectRedis(cfg)
	if err != nil {
		logger.Warnf("redis unavailable, website cache disabled: %v", err)
	}

	cipher := utils.NewCipher(cfg.EncryptionKey)
	tracker := utils.NewTracker(cfg.BaseURL, cfg.TrackingKey)
	google := utils.OAuthCredentials{ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret}
	microsoft := utils.OAuthCredentials{ClientID: cfg.Microsoft.ClientID, ClientSecret: cfg.Microsoft.ClientSecret}

	mailer := utils.NewMailer(cipher, google, microsoft)
	fetcher := personalize.NewFetcher(redisClient, logger)

	scheduler := engine.NewScheduler(db, logger)
	dispatcher := engine.NewDispatcher(db, mailer, tracker, cipher, fetcher, logger)
	matcher := inbox.NewMatcher(db, logger)
	poller := inbox.NewPoller(db, cipher, matcher, logger, google, microsoft)
	orchestrator := engine.NewOrchestrator(db, scheduler, dispatcher, poller, logger, cfg.TickInterval, cfg.MaxParallelSenders)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orchestrator.Start(ctx)

	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, db, tracker, logger)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Graceful shutdown: stop the orchestrator, let in-flight sends finish.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
		_ = app.Shutdown()
	}()

	logger.Infof("server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("failed to start server: %v", err)
	}
}
