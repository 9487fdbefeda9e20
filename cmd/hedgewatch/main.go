package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/hedgewatch/hedgewatch/internal/alert"
	"github.com/hedgewatch/hedgewatch/internal/config"
	"github.com/hedgewatch/hedgewatch/internal/engine"
	"github.com/hedgewatch/hedgewatch/internal/equity"
	"github.com/hedgewatch/hedgewatch/internal/hyperliquid"
	"github.com/hedgewatch/hedgewatch/internal/logger"
	"github.com/hedgewatch/hedgewatch/internal/models"
	"github.com/hedgewatch/hedgewatch/internal/storage"
	"github.com/hedgewatch/hedgewatch/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	venueClient := hyperliquid.NewClient(
		cfg.Hyperliquid.InfoURL,
		cfg.Hyperliquid.Dex,
		cfg.Hyperliquid.Timeout,
		hyperliquid.ClientConfig{
			MaxRetries:     cfg.Hyperliquid.MaxRetries,
			RetryDelayBase: cfg.Hyperliquid.RetryDelayBase,
			RateLimitRPS:   cfg.Hyperliquid.RateLimitRPS,
			RateLimitBurst: cfg.Hyperliquid.RateLimitBurst,
		},
	)

	listings := equity.NewDirectory(
		cfg.Equity.NasdaqListedURL,
		cfg.Equity.OtherListedURL,
		cfg.Equity.Timeout,
		cfg.Equity.CacheTTL,
		cfg.Equity.RetryTTL,
	)
	quotes := equity.NewQuoteClient(cfg.Equity.QuoteURL, cfg.Equity.Timeout)

	var notifier alert.Notifier
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.CriticalRetries,
			cfg.Telegram.RetryDelayBase,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	governor := alert.NewGovernor(store, notifier, alert.Config{
		OpportunityDedupe: cfg.Engine.OpportunityDedupe,
		OpportunityRefire: models.APR(cfg.Engine.OpportunityRefire),
		CriticalResend:    cfg.Engine.CriticalResend,
		InfoDedupe:        cfg.Engine.InfoDedupe,
	})

	eng := engine.New(store, venueClient, listings, quotes, governor, cfg.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	if _, err := scheduler.AddFunc("@every "+cfg.Engine.RefreshInterval.String(), func() {
		if err := eng.RefreshSnapshots(ctx); err != nil {
			logger.Warn("Snapshot refresh failed: %v", err)
		}
	}); err != nil {
		logger.Fatal("Failed to schedule snapshot refresh: %v", err)
	}

	consecutiveFailures := 0
	runDecisionCycle := func() {
		err := eng.RunCycle(ctx)
		switch {
		case err == nil:
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		case errors.Is(err, engine.ErrCycleLeaseHeld):
			logger.Debug("Decision cycle skipped: %v", err)
		case errors.Is(err, engine.ErrConfigIncomplete):
			// Routine until the operator fills in NAV; not a failure.
			logger.Info("Decision cycle blocked: %v", err)
		default:
			consecutiveFailures++
			logger.Error("Decision cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
		}
	}

	if _, err := scheduler.AddFunc("@every "+cfg.Engine.CycleInterval.String(), runDecisionCycle); err != nil {
		logger.Fatal("Failed to schedule decision cycle: %v", err)
	}

	logger.Info("Starting hedge advisor (refresh: %v, cycle: %v, focus set: %d)",
		cfg.Engine.RefreshInterval, cfg.Engine.CycleInterval, cfg.Engine.FocusSetSize)

	// Prime both pipelines before the scheduler takes over.
	if err := eng.RefreshSnapshots(ctx); err != nil {
		logger.Warn("Initial snapshot refresh failed: %v", err)
	}
	runDecisionCycle()

	scheduler.Start()

	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")
	cancel()
	<-scheduler.Stop().Done()
	logger.Info("Service stopped")
}
