package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Exchange orchestrates one partner integration: it issues quotes, keeps
// the local trade cache reconciled with the partner's authoritative list,
// and drives payment monitoring over the cache.
//
// The cache only grows. Trades transitioning to a terminal state stay in it
// and simply stop receiving monitoring; server records are merged into the
// existing instances rather than replacing them, so any in-flight watch
// armed on a cached trade survives a reconciliation.
type Exchange struct {
	mu     sync.Mutex
	trades []*Trade

	partner   Partner
	delegate  Delegate
	log       *zap.Logger
	debug     bool
	autoLogin bool
}

// New wires an exchange from its collaborators.
func New(partner Partner, delegate Delegate, log *zap.Logger) (*Exchange, error) {
	if partner == nil {
		return nil, errors.New("partner integration required")
	}
	if delegate == nil {
		return nil, errors.New("exchange delegate required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Exchange{partner: partner, delegate: delegate, log: log}, nil
}

// Trades returns a snapshot of the local trade cache.
func (e *Exchange) Trades() []*Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

func (e *Exchange) Delegate() Delegate { return e.delegate }

func (e *Exchange) Debug() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.debug
}

// SetDebug propagates the debug flag to the delegate (when it supports it)
// and to every cached trade.
func (e *Exchange) SetDebug(v bool) {
	e.mu.Lock()
	e.debug = v
	e.mu.Unlock()
	if d, ok := e.delegate.(interface{ SetDebug(bool) }); ok {
		d.SetDebug(v)
	}
	for _, t := range e.Trades() {
		t.SetDebug(v)
	}
}

func (e *Exchange) AutoLogin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoLogin
}

// SetAutoLogin records the auto-login preference and persists it.
func (e *Exchange) SetAutoLogin(ctx context.Context, v bool) error {
	e.mu.Lock()
	e.autoLogin = v
	e.mu.Unlock()
	return e.delegate.Save(ctx)
}

// GetBuyQuote requests a quote for buying; the amount is negated, per the
// sign convention that spending the base currency is negative. A fiat base
// currency implies BTC as the quote currency; a BTC base requires the quote
// currency to be explicit.
func (e *Exchange) GetBuyQuote(ctx context.Context, amount int64, baseCurrency, quoteCurrency string) (*Quote, error) {
	if baseCurrency == "" {
		return nil, errors.New("base currency required")
	}
	if baseCurrency == "BTC" && quoteCurrency == "" {
		return nil, ErrQuoteCurrencyRequired
	}
	if baseCurrency != "BTC" {
		quoteCurrency = "BTC"
	}

	params, err := e.partner.FetchQuote(ctx, -amount, baseCurrency, quoteCurrency)
	if err != nil {
		return nil, fmt.Errorf("fetch quote: %w", err)
	}
	q := NewQuote(params, e.partner, e.delegate)
	q.SetDebug(e.Debug())
	q.registerTrade = e.registerTrade
	return q, nil
}

// GetSellQuote is GetBuyQuote with the amount sign flipped.
func (e *Exchange) GetSellQuote(ctx context.Context, amount int64, baseCurrency, quoteCurrency string) (*Quote, error) {
	return e.GetBuyQuote(ctx, -amount, baseCurrency, quoteCurrency)
}

// GetBuyMethods lists payment mediums paying out BTC.
func (e *Exchange) GetBuyMethods(ctx context.Context) ([]*PaymentMedium, error) {
	return e.partner.FetchMediums(ctx, "", "BTC")
}

// GetSellMethods lists payment mediums taking BTC in.
func (e *Exchange) GetSellMethods(ctx context.Context) ([]*PaymentMedium, error) {
	return e.partner.FetchMediums(ctx, "BTC", "")
}

// GetTrades fetches the authoritative trade list, merges it into the local
// cache, processes every cached trade and persists. Within one invocation
// the merge completes before any Process call, and all Process calls
// complete before persistence.
func (e *Exchange) GetTrades(ctx context.Context) ([]*Trade, error) {
	records, err := e.partner.FetchTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}

	e.mu.Lock()
	for _, rec := range records {
		t := e.findLocked(rec.ID)
		if t == nil {
			t = NewTrade(nil, e.partner, e.delegate)
			t.SetDebug(e.debug)
			e.trades = append(e.trades, t)
		}
		t.SetFromRecord(rec)
	}
	trades := make([]*Trade, len(e.trades))
	copy(trades, e.trades)
	e.mu.Unlock()

	for _, t := range trades {
		if err := t.Process(); err != nil {
			e.log.Warn("Trade post-processing failed", zap.String("trade_id", string(t.ID())), zap.Error(err))
		}
	}

	if err := e.delegate.Save(ctx); err != nil {
		return nil, fmt.Errorf("persist trades: %w", err)
	}
	return trades, nil
}

// findLocked matches a cached trade by identifier, case-insensitively.
func (e *Exchange) findLocked(id TradeID) *Trade {
	for _, t := range e.trades {
		if t.ID().Equal(id) {
			return t
		}
	}
	return nil
}

// registerTrade adds a freshly placed trade to the cache and persists;
// handed to quotes so placement does not need a back-reference to the
// exchange.
func (e *Exchange) registerTrade(ctx context.Context, t *Trade) error {
	e.mu.Lock()
	e.trades = append(e.trades, t)
	e.mu.Unlock()
	return e.delegate.Save(ctx)
}

// MonitorPayments starts the confirmation channels over the live cache.
func (e *Exchange) MonitorPayments(ctx context.Context) {
	MonitorPayments(ctx, e.Trades(), e.delegate, e.log)
}
