package engine

import (
	"context"
	"time"

	"github.com/blockchain/bitcoin-exchange-client/internal/config"
	"github.com/blockchain/bitcoin-exchange-client/internal/exchange"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine drives the trade lifecycle: on every tick it reconciles the local
// cache against the partner and (re)starts payment monitoring over it. The
// tick is the external scheduler the poll channel relies on for retries.
type Engine struct {
	UUID      string
	StartTime time.Time

	log *zap.Logger
	cfg *config.Config
	ex  *exchange.Exchange
}

// NewEngine creates a sync engine.
func NewEngine(log *zap.Logger, cfg *config.Config, ex *exchange.Exchange) *Engine {
	return &Engine{
		UUID:      uuid.NewString(),
		StartTime: time.Now(),
		log:       log,
		cfg:       cfg,
		ex:        ex,
	}
}

// Run starts the sync loop and blocks until the context is cancelled. A
// failed sync is logged and retried on the next tick.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.Monitor.PollInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("Starting trade sync loop",
		zap.String("engine_id", e.UUID),
		zap.Duration("interval", interval),
	)

	// Initial sweep before the first tick so monitoring starts promptly.
	if err := e.sync(ctx); err != nil {
		e.log.Error("Initial sync failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			e.log.Info("Stopping trade sync loop...")
			return
		case <-ticker.C:
			if err := e.sync(ctx); err != nil {
				e.log.Error("Sync failed", zap.Error(err))
			}
		}
	}
}

// sync runs one reconcile-and-monitor round.
func (e *Engine) sync(ctx context.Context) error {
	trades, err := e.ex.GetTrades(ctx)
	if err != nil {
		return err
	}

	active := exchange.FilteredTrades(trades)
	e.log.Info("Trade cache reconciled",
		zap.Int("total", len(trades)),
		zap.Int("active", len(active)),
	)

	e.ex.MonitorPayments(ctx)
	return nil
}
