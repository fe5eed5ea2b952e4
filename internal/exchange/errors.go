package exchange

import "errors"

var (
	// ErrBaseCurrencyNotSupported is returned when a quote is requested with
	// a base currency the partner does not trade.
	ErrBaseCurrencyNotSupported = errors.New("base_currency_not_supported")
	// ErrQuoteCurrencyNotSupported is returned when a quote is requested with
	// a quote currency the partner does not trade.
	ErrQuoteCurrencyNotSupported = errors.New("quote_currency_not_supported")
	// ErrQuoteExpired is returned by Buy and Sell before any partner request
	// is issued when the quote's validity window has passed.
	ErrQuoteExpired = errors.New("quote expired")
	// ErrQuoteMissing is returned when a payment medium or account is asked
	// to place a trade without a quote attached.
	ErrQuoteMissing = errors.New("QUOTE_MISSING")
	// ErrQuoteCurrencyRequired is returned when a BTC-based quote is
	// requested without an explicit quote currency.
	ErrQuoteCurrencyRequired = errors.New("quote currency required for BTC base currency")
)
