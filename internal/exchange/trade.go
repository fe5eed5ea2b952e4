package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Trade is one buy or sell order, tracked from creation until the
// customer's deposit is confirmed on-chain. A trade is created either
// locally at placement time or from a server-fetched record during
// reconciliation; once loaded into a cache it is updated in place and never
// replaced, so in-flight watch subscriptions stay valid.
//
// The state field changes only through server-sourced updates. The
// transaction hash and confirmation count are locally discovered
// enrichments of the same logical state: the first observed hash for a
// trade is authoritative and is never overwritten.
type Trade struct {
	mu sync.Mutex

	id                TradeID
	createdAt         time.Time
	inCurrency        string
	outCurrency       string
	inAmount          int64
	sendAmount        int64
	outAmount         int64
	outAmountExpected int64
	medium            string
	state             State
	receiveAddress    string
	accountIndex      int
	txHash            string
	confirmations     int
	confirmed         bool
	debug             bool
	addressReleased   bool
	monitorArmed      bool

	bankAccountNumber string
	kycReference      string

	// watchResolve is armed by WatchAddress and closed exactly once, on the
	// first hash assignment.
	watchResolve chan struct{}

	partner  Partner
	delegate Delegate
}

// NewTrade builds a trade from a server record, or speculatively when the
// record is nil: the identifier stays unassigned until the first
// SetFromRecord.
func NewTrade(record *TradeRecord, partner Partner, delegate Delegate) *Trade {
	t := &Trade{
		createdAt: time.Now(),
		partner:   partner,
		delegate:  delegate,
	}
	if record != nil {
		t.SetFromRecord(record)
	}
	return t
}

func (t *Trade) ID() TradeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

func (t *Trade) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Trade) CreatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createdAt
}

func (t *Trade) InCurrency() string  { t.mu.Lock(); defer t.mu.Unlock(); return t.inCurrency }
func (t *Trade) OutCurrency() string { t.mu.Lock(); defer t.mu.Unlock(); return t.outCurrency }
func (t *Trade) InAmount() int64     { t.mu.Lock(); defer t.mu.Unlock(); return t.inAmount }
func (t *Trade) SendAmount() int64   { t.mu.Lock(); defer t.mu.Unlock(); return t.sendAmount }
func (t *Trade) OutAmount() int64    { t.mu.Lock(); defer t.mu.Unlock(); return t.outAmount }
func (t *Trade) Medium() string      { t.mu.Lock(); defer t.mu.Unlock(); return t.medium }

func (t *Trade) OutAmountExpected() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outAmountExpected
}

func (t *Trade) ReceiveAddress() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receiveAddress
}

func (t *Trade) AccountIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accountIndex
}

func (t *Trade) TxHash() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txHash
}

func (t *Trade) Confirmations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.confirmations
}

// BitcoinReceived reports whether a deposit transaction has been observed.
func (t *Trade) BitcoinReceived() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txHash != ""
}

// Confirmed reports whether the observed deposit has reached the partner's
// confirmation threshold.
func (t *Trade) Confirmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.confirmed || (t.txHash != "" && t.confirmations >= t.partner.ConfirmationThreshold())
}

func (t *Trade) Debug() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.debug
}

func (t *Trade) SetDebug(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debug = v
}

func (t *Trade) BankAccountNumber() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bankAccountNumber
}

func (t *Trade) KYCReference() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kycReference
}

// SetFromRecord updates the trade in place from a server record. The
// identifier is assigned on first contact and never changes afterwards; a
// server-supplied transaction hash goes through the same first-hash-wins
// assignment as locally observed ones.
func (t *Trade) SetFromRecord(rec *TradeRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.id == "" {
		t.id = rec.ID
	}
	if !rec.CreatedAt.IsZero() {
		t.createdAt = rec.CreatedAt
	}
	t.state = rec.State
	t.inCurrency = rec.InCurrency
	t.outCurrency = rec.OutCurrency
	t.inAmount = rec.InAmount
	t.sendAmount = rec.SendAmount
	t.outAmount = rec.OutAmount
	t.outAmountExpected = rec.OutAmountExpected
	t.medium = rec.Medium
	if rec.ReceiveAddress != "" {
		t.receiveAddress = rec.ReceiveAddress
		t.accountIndex = rec.AccountIndex
	}
	if rec.BankAccountNumber != "" {
		t.bankAccountNumber = rec.BankAccountNumber
	}
	if rec.KYCReference != "" {
		t.kycReference = rec.KYCReference
	}
	if rec.TxHash != "" {
		t.applyTransactionLocked(Transaction{Hash: rec.TxHash, Confirmations: rec.Confirmations})
	}
}

// Process applies post-reconciliation housekeeping. A trade the partner has
// cancelled, rejected or expired no longer needs its receive address, so it
// goes back to the pool; a trade still awaiting its transfer keeps the
// address since a deposit may yet arrive. Safe to call repeatedly: the
// release happens at most once per trade.
func (t *Trade) Process() error {
	t.mu.Lock()
	switch t.state {
	case StateCancelled, StateRejected, StateExpired:
	default:
		t.mu.Unlock()
		return nil
	}
	if t.addressReleased {
		t.mu.Unlock()
		return nil
	}
	t.addressReleased = true
	address := t.receiveAddress
	t.mu.Unlock()

	if err := t.delegate.ReleaseReceiveAddress(address); err != nil {
		return fmt.Errorf("release receive address for trade %s: %w", t.ID(), err)
	}
	return nil
}

// Refresh re-fetches this trade's record from the partner and applies it in
// place. The confirmation channels use it to re-check the state before
// treating a detected transaction as authoritative.
func (t *Trade) Refresh(ctx context.Context) error {
	id := t.ID()
	rec, err := t.partner.FetchTrade(ctx, string(id))
	if err != nil {
		return fmt.Errorf("refresh trade %s: %w", id, err)
	}
	t.SetFromRecord(rec)
	return nil
}

// WatchAddress arms a one-shot channel that becomes ready the first time a
// transaction hash is assigned to this trade. When a hash is already known
// the returned channel is nil: there is nothing left to watch, and a nil
// channel never becomes ready, so callers must not wait on it.
func (t *Trade) WatchAddress() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.txHash != "" {
		return nil
	}
	if t.watchResolve == nil {
		t.watchResolve = make(chan struct{})
	}
	return t.watchResolve
}

// SetTransactionHash records an observed deposit. The first hash wins
// forever; a later observation only moves the confirmation count, and only
// when it reports the same transaction. The armed watch channel resolves
// exactly once, on first assignment, for real and simulated completions
// alike.
func (t *Trade) SetTransactionHash(tx Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyTransactionLocked(tx)
}

func (t *Trade) applyTransactionLocked(tx Transaction) {
	if t.txHash == "" {
		t.txHash = tx.Hash
		if t.watchResolve != nil {
			close(t.watchResolve)
			t.watchResolve = nil
		}
	}
	if t.txHash != tx.Hash {
		// A second, different hash for the same trade is left alone. This
		// can happen when the poll and push channels race across a reorg.
		return
	}
	t.confirmations = tx.Confirmations
	if t.confirmations >= t.partner.ConfirmationThreshold() {
		t.confirmed = true
	}
}

// Buy places a buy order against the quote, paying through the given
// medium. The quote is validated before any request is issued; on placement
// failure the reserved receive address goes back to the pool and no trade
// is constructed.
func Buy(ctx context.Context, quote *Quote, medium string) (*Trade, error) {
	if quote == nil {
		return nil, ErrQuoteMissing
	}
	if quote.Expired() {
		return nil, ErrQuoteExpired
	}

	reservation, err := quote.delegate.ReserveReceiveAddress()
	if err != nil {
		return nil, fmt.Errorf("reserve receive address: %w", err)
	}

	rec, err := quote.partner.PlaceBuy(ctx, quote, medium, reservation.ReceiveAddress)
	if err != nil {
		_ = quote.delegate.ReleaseReceiveAddress(reservation.ReceiveAddress)
		return nil, fmt.Errorf("place buy: %w", err)
	}
	if reservation.Commit != nil {
		reservation.Commit()
	}

	t := NewTrade(rec, quote.partner, quote.delegate)
	t.mu.Lock()
	if t.receiveAddress == "" {
		t.receiveAddress = reservation.ReceiveAddress
		t.accountIndex = reservation.AccountIndex
	}
	t.debug = quote.debug
	t.mu.Unlock()

	// A failed subscription is tolerated here: the poll channel still
	// covers this trade.
	_ = t.monitorAddress(ctx)

	if quote.registerTrade != nil {
		if err := quote.registerTrade(ctx, t); err != nil {
			return t, err
		}
	}
	return t, nil
}

// Sell places a sell order against the quote, paying out to the given bank
// account. Like Buy, an expired quote fails before any request is issued.
func Sell(ctx context.Context, quote *Quote, bankAccountID string) (*Trade, error) {
	if quote == nil {
		return nil, ErrQuoteMissing
	}
	if quote.Expired() {
		return nil, ErrQuoteExpired
	}
	if bankAccountID == "" {
		return nil, errors.New("bank account id required")
	}

	rec, err := quote.partner.PlaceSell(ctx, quote, bankAccountID)
	if err != nil {
		return nil, fmt.Errorf("place sell: %w", err)
	}

	t := NewTrade(rec, quote.partner, quote.delegate)
	t.SetDebug(quote.debug)

	_ = t.monitorAddress(ctx)

	if quote.registerTrade != nil {
		if err := quote.registerTrade(ctx, t); err != nil {
			return t, err
		}
	}
	return t, nil
}

// monitorAddress subscribes the delegate's push channel for this trade's
// receive address. Observations go through onAddressNotification. At most
// one subscription per trade: monitoring rounds re-arm the same trades
// every sweep, and a second subscription would only duplicate dispatches.
func (t *Trade) monitorAddress(ctx context.Context) error {
	t.mu.Lock()
	if t.monitorArmed {
		t.mu.Unlock()
		return nil
	}
	t.monitorArmed = true
	address := t.receiveAddress
	t.mu.Unlock()

	// Notifications arrive long after the placing call has returned; its
	// cancellation must not take the refresh/save path down with it.
	cbCtx := context.WithoutCancel(ctx)
	err := t.delegate.MonitorAddress(address, func(hash string, confirmations int) {
		t.onAddressNotification(cbCtx, Transaction{Hash: hash, Confirmations: confirmations})
	})
	if err != nil {
		t.mu.Lock()
		t.monitorArmed = false
		t.mu.Unlock()
	}
	return err
}

// onAddressNotification handles one push observation. A trade still marked
// awaiting_transfer_in is refreshed first: the state may have advanced
// server-side before monitoring started. If it is still awaiting after the
// refresh the observation is not trusted yet; the next one, or the poll
// sweep, will pick it up once the server has caught up.
func (t *Trade) onAddressNotification(ctx context.Context, tx Transaction) {
	t.mu.Lock()
	if t.txHash != "" {
		t.applyTransactionLocked(tx)
		t.mu.Unlock()
		return
	}
	state := t.state
	t.mu.Unlock()

	if state == StateAwaitingTransferIn {
		if err := t.Refresh(ctx); err != nil {
			return
		}
		if t.State() == StateAwaitingTransferIn {
			return
		}
	}

	t.SetTransactionHash(tx)
	_ = t.delegate.Save(ctx)
}
