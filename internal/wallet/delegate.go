package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockchain/bitcoin-exchange-client/internal/exchange"
	"github.com/blockchain/bitcoin-exchange-client/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Delegate provides the wallet-side capabilities the exchange core
// consumes: trade persistence, the reservable receive-address pool, and
// the two on-chain detection primitives (one-shot explorer check, push
// websocket subscription).
type Delegate struct {
	db       *gorm.DB
	explorer *Explorer
	watcher  *Watcher
	log      *zap.Logger
	debug    bool

	// trades supplies the live cache to persist; bound after the exchange
	// is constructed so neither side holds a constructor-time reference to
	// the other.
	trades func() []*exchange.Trade
}

// ensure Delegate implements the core's capability set
var _ exchange.Delegate = (*Delegate)(nil)

// NewDelegate creates a wallet delegate.
func NewDelegate(db *gorm.DB, explorer *Explorer, watcher *Watcher, log *zap.Logger) *Delegate {
	return &Delegate{db: db, explorer: explorer, watcher: watcher, log: log}
}

// BindTrades installs the source of the trade cache to persist.
func (d *Delegate) BindTrades(source func() []*exchange.Trade) {
	d.trades = source
}

// SetDebug toggles sandbox behavior; recorded on persisted rows.
func (d *Delegate) SetDebug(v bool) { d.debug = v }

// Save persists the current trade cache, one row per trade keyed by the
// partner identifier.
func (d *Delegate) Save(ctx context.Context) error {
	if d.trades == nil {
		return nil
	}
	for _, t := range d.trades() {
		if t.ID() == "" {
			continue
		}
		row := models.TradeRow{
			TradeID:           string(t.ID()),
			State:             string(t.State()),
			InCurrency:        t.InCurrency(),
			OutCurrency:       t.OutCurrency(),
			InAmount:          t.InAmount(),
			OutAmount:         t.OutAmount(),
			OutAmountExpected: t.OutAmountExpected(),
			Medium:            t.Medium(),
			ReceiveAddress:    t.ReceiveAddress(),
			TxHash:            t.TxHash(),
			Confirmations:     t.Confirmations(),
			Confirmed:         t.Confirmed(),
			IsSimulation:      t.Debug(),
			Timestamp:         t.CreatedAt().Unix(),
		}

		var existing models.TradeRow
		err := d.db.WithContext(ctx).Where("trade_id = ?", row.TradeID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to save trade %s: %w", row.TradeID, err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up trade %s: %w", row.TradeID, err)
		default:
			row.ID = existing.ID
			row.CreatedAt = existing.CreatedAt
			if err := d.db.WithContext(ctx).Save(&row).Error; err != nil {
				return fmt.Errorf("failed to update trade %s: %w", row.TradeID, err)
			}
		}
	}
	return nil
}

// ReserveReceiveAddress claims the first free address from the pool.
func (d *Delegate) ReserveReceiveAddress() (*exchange.AddressReservation, error) {
	var entry models.PoolAddress
	err := d.db.Where("reserved = ? AND committed = ?", false, false).
		Order("account_index asc").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("receive address pool exhausted")
		}
		return nil, fmt.Errorf("failed to reserve receive address: %w", err)
	}

	if err := d.db.Model(&entry).Update("reserved", true).Error; err != nil {
		return nil, fmt.Errorf("failed to mark address reserved: %w", err)
	}

	d.log.Debug("Reserved receive address",
		zap.String("address", entry.Address),
		zap.Int("account_index", entry.AccountIndex),
	)

	return &exchange.AddressReservation{
		ReceiveAddress: entry.Address,
		AccountIndex:   entry.AccountIndex,
		Commit: func() {
			if err := d.db.Model(&models.PoolAddress{}).
				Where("address = ?", entry.Address).
				Update("committed", true).Error; err != nil {
				d.log.Error("Failed to commit receive address", zap.String("address", entry.Address), zap.Error(err))
			}
		},
	}, nil
}

// ReleaseReceiveAddress returns an uncommitted address to the pool. A no-op
// when the address is unknown or not currently reserved.
func (d *Delegate) ReleaseReceiveAddress(address string) error {
	if address == "" {
		return nil
	}
	result := d.db.Model(&models.PoolAddress{}).
		Where("address = ? AND reserved = ? AND committed = ?", address, true, false).
		Update("reserved", false)
	if result.Error != nil {
		return fmt.Errorf("failed to release receive address %s: %w", address, result.Error)
	}
	if result.RowsAffected > 0 {
		d.log.Debug("Released receive address", zap.String("address", address))
	}
	return nil
}

// CheckAddress asks the explorer for a deposit on the address once.
func (d *Delegate) CheckAddress(ctx context.Context, address string) (*exchange.Transaction, error) {
	return d.explorer.CheckAddress(ctx, address)
}

// MonitorAddress subscribes the websocket watcher to the address.
func (d *Delegate) MonitorAddress(address string, callback func(hash string, confirmations int)) error {
	return d.watcher.Subscribe(address, callback)
}

// PurgeStale removes persisted rows older than the retention window that
// belong to dead trades; the in-memory cache is append-only, the database
// need not be.
func (d *Delegate) PurgeStale(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention).Unix()
	err := d.db.WithContext(ctx).
		Where("timestamp < ? AND state IN ?", cutoff, []string{"cancelled", "rejected", "expired"}).
		Delete(&models.TradeRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to purge stale trades: %w", err)
	}
	return nil
}
