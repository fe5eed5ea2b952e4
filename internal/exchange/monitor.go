package exchange

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Payment-confirmation monitoring runs two redundant detection channels
// over the same working set of trades: a one-shot poll sweep and a push
// subscription per trade. Either channel may observe the deposit first, and
// both may report the same transaction; first-hash-wins idempotence in
// SetTransactionHash is what makes running both safe.

// FilteredTrades returns the trades whose state indicates a payment may
// still arrive or still needs to be recorded. Cancelled and otherwise dead
// trades are excluded; they will never see a deposit.
func FilteredTrades(trades []*Trade) []*Trade {
	working := make([]*Trade, 0, len(trades))
	for _, t := range trades {
		if t.State().MayReceivePayment() {
			working = append(working, t)
		}
	}
	return working
}

// CheckOnce sweeps each trade's receive address once through the delegate.
// A found transaction is recorded via SetTransactionHash, after a refresh
// when the trade still reads awaiting_transfer_in, so a stale local state
// does not suppress a legitimate completion side effect. An empty trade set
// is an immediate no-op.
//
// Failed checks are not retried here; the sweep is expected to be
// re-invoked periodically by an external scheduler, and the next sweep is
// the retry.
func CheckOnce(ctx context.Context, trades []*Trade, delegate Delegate) error {
	var errs []error
	for _, t := range trades {
		tx, err := delegate.CheckAddress(ctx, t.ReceiveAddress())
		if err != nil {
			errs = append(errs, fmt.Errorf("check address for trade %s: %w", t.ID(), err))
			continue
		}
		if tx == nil {
			continue
		}
		if t.State() == StateAwaitingTransferIn {
			if err := t.Refresh(ctx); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		t.SetTransactionHash(*tx)
	}
	return errors.Join(errs...)
}

// MonitorWebSockets arms the push subscription for every trade accepted by
// the filter.
func MonitorWebSockets(ctx context.Context, trades []*Trade, filter func(*Trade) bool) {
	for _, t := range trades {
		if filter(t) {
			_ = t.monitorAddress(ctx)
		}
	}
}

// MonitorPayments starts both confirmation channels over the working set.
// Fire and forget: the poll sweep runs on its own goroutine and its
// failures are logged, not returned, since the next scheduled invocation
// retries them.
func MonitorPayments(ctx context.Context, trades []*Trade, delegate Delegate, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	working := FilteredTrades(trades)

	go func() {
		if err := CheckOnce(ctx, working, delegate); err != nil {
			log.Warn("Address sweep reported failures", zap.Error(err))
		}
	}()

	MonitorWebSockets(ctx, working, func(*Trade) bool { return true })
}
