package exchange

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// expirySafetyMargin is subtracted from a quote's remaining lifetime so a
// value that still looks valid client-side is never one the server would
// already reject.
const expirySafetyMargin = time.Second

// QuoteParams carries the fields of a partner quote response.
type QuoteParams struct {
	ID            string
	BaseCurrency  string
	QuoteCurrency string
	BaseAmount    int64
	QuoteAmount   int64
	FeeCurrency   string
	FeeAmount     int64
	ExpiresAt     time.Time
}

// Quote is a priced, time-bounded offer to exchange one currency for
// another. Amounts are signed integers in minor units (cents or satoshi);
// a negative base amount means spending the base currency to acquire the
// quote currency. A quote is immutable except for its lazily populated
// payment-medium cache.
type Quote struct {
	id            string
	baseCurrency  string
	quoteCurrency string
	baseAmount    int64
	quoteAmount   int64
	feeCurrency   string
	feeAmount     int64
	timeOfRequest time.Time
	expiresAt     time.Time
	debug         bool

	partner  Partner
	delegate Delegate

	// registerTrade, when set, adds a trade placed against this quote to the
	// owning cache and persists it. A function reference instead of a
	// back-pointer keeps the entity free of an edge to the collection.
	registerTrade func(ctx context.Context, t *Trade) error

	mu             sync.Mutex
	paymentMediums []*PaymentMedium
}

// NewQuote builds a quote from a partner response. The time of request is
// taken as now.
func NewQuote(p QuoteParams, partner Partner, delegate Delegate) *Quote {
	return &Quote{
		id:            p.ID,
		baseCurrency:  p.BaseCurrency,
		quoteCurrency: p.QuoteCurrency,
		baseAmount:    p.BaseAmount,
		quoteAmount:   p.QuoteAmount,
		feeCurrency:   p.FeeCurrency,
		feeAmount:     p.FeeAmount,
		timeOfRequest: time.Now(),
		expiresAt:     p.ExpiresAt,
		partner:       partner,
		delegate:      delegate,
	}
}

func (q *Quote) ID() string            { return q.id }
func (q *Quote) BaseCurrency() string  { return q.baseCurrency }
func (q *Quote) QuoteCurrency() string { return q.quoteCurrency }
func (q *Quote) BaseAmount() int64     { return q.baseAmount }
func (q *Quote) QuoteAmount() int64    { return q.quoteAmount }
func (q *Quote) FeeCurrency() string   { return q.feeCurrency }
func (q *Quote) FeeAmount() int64      { return q.feeAmount }

func (q *Quote) TimeOfRequest() time.Time { return q.timeOfRequest }
func (q *Quote) ExpiresAt() time.Time     { return q.expiresAt }

func (q *Quote) Debug() bool        { return q.debug }
func (q *Quote) SetDebug(v bool)    { q.debug = v }
func (q *Quote) Delegate() Delegate { return q.delegate }

// TimeToExpiration is the remaining client-side validity of the quote, one
// safety margin short of the server-side window.
func (q *Quote) TimeToExpiration() time.Duration {
	return q.expiresAt.Sub(q.timeOfRequest) - expirySafetyMargin
}

// Expired reports whether the quote can no longer be used to place a trade.
func (q *Quote) Expired() bool {
	return !q.expiresAt.After(time.Now())
}

// PaymentMediums returns the cached medium list, nil until the first fetch.
func (q *Quote) PaymentMediums() []*PaymentMedium {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paymentMediums
}

// GetQuote converts a minor-unit amount to a display string for the base
// currency: 8 decimals when the base currency is BTC (satoshi), 2 decimals
// for fiat (cents). It fails when either currency is absent from the
// supported set, regardless of amount.
func GetQuote(amount int64, baseCurrency, quoteCurrency string, supportedCurrencies []string) (string, error) {
	if !slices.Contains(supportedCurrencies, baseCurrency) {
		return "", ErrBaseCurrencyNotSupported
	}
	if !slices.Contains(supportedCurrencies, quoteCurrency) {
		return "", ErrQuoteCurrencyNotSupported
	}
	if baseCurrency == "BTC" {
		return decimal.New(amount, -8).StringFixed(8), nil
	}
	return decimal.New(amount, -2).StringFixed(2), nil
}

// mediumPair selects the in/out currency pair for a medium listing. Selling
// BTC (positive BTC base amount) means fiat comes in and BTC goes out; any
// other quote moves the base currency in.
func (q *Quote) mediumPair() (inCurrency, outCurrency string) {
	inCurrency, outCurrency = q.baseCurrency, q.quoteCurrency
	if q.baseCurrency == "BTC" && q.baseAmount > 0 {
		inCurrency, outCurrency = q.quoteCurrency, q.baseCurrency
	}
	return inCurrency, outCurrency
}

// GetPaymentMediums returns the payment rails eligible for this quote. The
// list is fetched once and cached; repeat calls never touch the network.
func (q *Quote) GetPaymentMediums(ctx context.Context) ([]*PaymentMedium, error) {
	q.mu.Lock()
	if q.paymentMediums != nil {
		mediums := q.paymentMediums
		q.mu.Unlock()
		return mediums, nil
	}
	q.mu.Unlock()
	inCurrency, outCurrency := q.mediumPair()
	return q.fetchMediums(ctx, inCurrency, outCurrency)
}

// GetPayoutMediums lists the rails for the payout side of this quote: the
// base currency pays in and the quote currency pays out, without the sell
// swap the payment listing applies. It refreshes the cache on every call.
func (q *Quote) GetPayoutMediums(ctx context.Context) ([]*PaymentMedium, error) {
	return q.fetchMediums(ctx, q.baseCurrency, q.quoteCurrency)
}

func (q *Quote) fetchMediums(ctx context.Context, inCurrency, outCurrency string) ([]*PaymentMedium, error) {
	mediums, err := q.partner.FetchMediums(ctx, inCurrency, outCurrency)
	if err != nil {
		return nil, err
	}
	for _, m := range mediums {
		m.quote = q
	}
	q.mu.Lock()
	q.paymentMediums = mediums
	q.mu.Unlock()
	return mediums, nil
}
