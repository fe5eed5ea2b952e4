package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockchain/bitcoin-exchange-client/internal/api"
	"github.com/blockchain/bitcoin-exchange-client/internal/config"
	"github.com/blockchain/bitcoin-exchange-client/internal/database"
	"github.com/blockchain/bitcoin-exchange-client/internal/engine"
	"github.com/blockchain/bitcoin-exchange-client/internal/exchange"
	"github.com/blockchain/bitcoin-exchange-client/internal/logger"
	"github.com/blockchain/bitcoin-exchange-client/internal/partner"
	"github.com/blockchain/bitcoin-exchange-client/internal/wallet"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Blockchain detection: explorer polling plus websocket push
	explorer := wallet.NewExplorer(cfg.Wallet.ExplorerURL, log)
	watcher := wallet.NewWatcher(cfg.Wallet.WebsocketURL, log)
	if err := watcher.Start(); err != nil {
		log.Fatal("Failed to connect to notification service", zap.Error(err))
	}
	defer watcher.Stop()

	delegate := wallet.NewDelegate(db, explorer, watcher, log)

	// Partner API client and integration
	apiClient := api.NewClient(&cfg.Partner, log)
	partnerClient := partner.NewClient(apiClient, &cfg.Partner, log)

	ex, err := exchange.New(partnerClient, delegate, log)
	if err != nil {
		log.Fatal("Failed to initialize exchange", zap.Error(err))
	}
	delegate.BindTrades(ex.Trades)
	ex.SetDebug(cfg.Partner.Sandbox)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the sync engine
	syncEngine := engine.NewEngine(log, &cfg, ex)
	syncEngine.Run(ctx)

	log.Info("Watcher has been shut down.")
}
