package exchange

import "context"

// PaymentMedium is one payment rail (bank transfer, card, blockchain
// transfer) a partner offers for a currency pair, with its fee schedule.
// Thin value object; fees default to zero when the partner omits them.
type PaymentMedium struct {
	InMedium  string `json:"inMedium"`
	OutMedium string `json:"outMedium"`
	// FiatMedium is the medium identifier used when placing a trade.
	FiatMedium string `json:"fiatMedium"`

	InCurrencies  []string `json:"inCurrencies"`
	OutCurrencies []string `json:"outCurrencies"`
	InCurrency    string   `json:"inCurrency"`
	OutCurrency   string   `json:"outCurrency"`

	InFixedFee       int64            `json:"inFixedFee"`
	OutFixedFee      int64            `json:"outFixedFee"`
	InPercentageFee  float64          `json:"inPercentageFee"`
	OutPercentageFee float64          `json:"outPercentageFee"`
	MinimumInAmounts map[string]int64 `json:"minimumInAmounts"`

	Fee   int64 `json:"fee"`
	Total int64 `json:"total"`

	Accounts []*PaymentAccount `json:"accounts"`

	// quote is attached when the medium list was fetched for a specific
	// quote; required to place a trade through this medium.
	quote *Quote
}

// Quote returns the quote this medium was listed for, nil for a bare
// medium listing.
func (m *PaymentMedium) Quote() *Quote { return m.quote }

// Buy places a buy through this medium. Depending on the partner, buying
// happens on the medium itself (e.g. an unregistered bank transfer) or on
// one of its registered accounts; this is the medium-level path.
func (m *PaymentMedium) Buy(ctx context.Context) (*Trade, error) {
	if m.quote == nil {
		return nil, ErrQuoteMissing
	}
	return Buy(ctx, m.quote, m.FiatMedium)
}

// PaymentAccount is a registered account on a payment medium, for partners
// that require trades to name the specific account.
type PaymentAccount struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FiatMedium string `json:"fiatMedium"`

	quote *Quote
}

// NewPaymentAccount attaches an account to a quote so trades can be placed
// on it.
func NewPaymentAccount(id, name, fiatMedium string, quote *Quote) *PaymentAccount {
	return &PaymentAccount{ID: id, Name: name, FiatMedium: fiatMedium, quote: quote}
}

// Buy places a buy paying in from this account.
func (a *PaymentAccount) Buy(ctx context.Context) (*Trade, error) {
	if a.quote == nil {
		return nil, ErrQuoteMissing
	}
	return Buy(ctx, a.quote, a.FiatMedium)
}

// Sell places a sell paying out to this account.
func (a *PaymentAccount) Sell(ctx context.Context) (*Trade, error) {
	if a.quote == nil {
		return nil, ErrQuoteMissing
	}
	return Sell(ctx, a.quote, a.ID)
}
