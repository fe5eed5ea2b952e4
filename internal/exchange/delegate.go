package exchange

import "context"

// Transaction is an on-chain deposit observed on a trade's receive address,
// reported either by a one-shot address check or by a push notification.
type Transaction struct {
	Hash          string
	Confirmations int
}

// AddressReservation is a receive address claimed from the wallet's pool.
// Commit marks the address as permanently in use once a trade has actually
// been placed against it; an uncommitted reservation can be released back.
type AddressReservation struct {
	ReceiveAddress string
	AccountIndex   int
	Commit         func()
}

// Delegate is the capability set the wallet application provides to the
// exchange core: persistence, the receive-address pool, and the two
// blockchain detection primitives. The delegate is a shared collaborator;
// trades hold a reference but never own it.
type Delegate interface {
	// Save persists the current trade cache. It must be invoked after every
	// merge that changes cache contents.
	Save(ctx context.Context) error

	// ReserveReceiveAddress claims an unused address from the pool.
	ReserveReceiveAddress() (*AddressReservation, error)

	// ReleaseReceiveAddress returns an address to the pool. It is a no-op
	// when the address is not currently reserved.
	ReleaseReceiveAddress(address string) error

	// CheckAddress looks for a deposit on the address once. It returns nil
	// when no transaction has been seen.
	CheckAddress(ctx context.Context, address string) (*Transaction, error)

	// MonitorAddress subscribes to push notifications for the address. The
	// callback supplies the transaction hash and confirmation count of every
	// observation.
	MonitorAddress(address string, callback func(hash string, confirmations int)) error
}

// Partner is the context object giving the core access to one exchange
// partner's remote operations. Concrete integrations implement it on top of
// the authenticated HTTP client; the core never touches the wire format.
type Partner interface {
	// FetchQuote requests a priced offer. A negative amount means spending
	// the base currency to acquire the quote currency (a buy).
	FetchQuote(ctx context.Context, amount int64, baseCurrency, quoteCurrency string) (QuoteParams, error)

	// FetchMediums lists the payment rails available for a currency pair.
	// Either currency may be empty to leave that side unconstrained.
	FetchMediums(ctx context.Context, inCurrency, outCurrency string) ([]*PaymentMedium, error)

	// FetchTrades returns the authoritative list of the user's trades.
	FetchTrades(ctx context.Context) ([]*TradeRecord, error)

	// FetchTrade returns the current server-side record for one trade.
	FetchTrade(ctx context.Context, id string) (*TradeRecord, error)

	// PlaceBuy registers a buy order for the quote, paying through the given
	// medium, with the deposit sent to receiveAddress.
	PlaceBuy(ctx context.Context, quote *Quote, medium, receiveAddress string) (*TradeRecord, error)

	// PlaceSell registers a sell order for the quote, paying out to the
	// given bank account.
	PlaceSell(ctx context.Context, quote *Quote, bankAccountID string) (*TradeRecord, error)

	// ConfirmationThreshold is the number of confirmations after which this
	// partner considers a deposit final.
	ConfirmationThreshold() int
}
