package partner

import (
	"context"
	"fmt"
	"time"

	"github.com/blockchain/bitcoin-exchange-client/internal/api"
	"github.com/blockchain/bitcoin-exchange-client/internal/config"
	"github.com/blockchain/bitcoin-exchange-client/internal/exchange"
	"go.uber.org/zap"
)

// Client is a concrete partner integration implementing exchange.Partner
// on top of the authenticated API client.
type Client struct {
	api                   *api.Client
	log                   *zap.Logger
	confirmationThreshold int
}

// ensure Client implements the partner contract
var _ exchange.Partner = (*Client)(nil)

// NewClient creates a partner integration.
func NewClient(apiClient *api.Client, cfg *config.Partner, log *zap.Logger) *Client {
	return &Client{
		api:                   apiClient,
		log:                   log,
		confirmationThreshold: cfg.ConfirmationThreshold,
	}
}

// ConfirmationThreshold is the confirmation count at which this partner
// considers a deposit final.
func (c *Client) ConfirmationThreshold() int { return c.confirmationThreshold }

// quoteResponse is the partner's quote payload.
type quoteResponse struct {
	ID            string `json:"id"`
	BaseCurrency  string `json:"baseCurrency"`
	QuoteCurrency string `json:"quoteCurrency"`
	BaseAmount    int64  `json:"baseAmount"`
	QuoteAmount   int64  `json:"quoteAmount"`
	FeeCurrency   string `json:"feeCurrency"`
	FeeAmount     int64  `json:"feeAmount"`
	ExpiryTime    string `json:"expiryTime"`
}

// FetchQuote requests a priced offer from the partner.
func (c *Client) FetchQuote(ctx context.Context, amount int64, baseCurrency, quoteCurrency string) (exchange.QuoteParams, error) {
	body := map[string]any{
		"baseCurrency":  baseCurrency,
		"quoteCurrency": quoteCurrency,
		"baseAmount":    amount,
	}

	var resp quoteResponse
	if err := c.api.AuthPost(ctx, "/quotes", body, &resp); err != nil {
		return exchange.QuoteParams{}, fmt.Errorf("failed to fetch quote: %w", err)
	}

	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiryTime)
	if err != nil {
		return exchange.QuoteParams{}, fmt.Errorf("failed to parse quote expiry %q: %w", resp.ExpiryTime, err)
	}

	return exchange.QuoteParams{
		ID:            resp.ID,
		BaseCurrency:  resp.BaseCurrency,
		QuoteCurrency: resp.QuoteCurrency,
		BaseAmount:    resp.BaseAmount,
		QuoteAmount:   resp.QuoteAmount,
		FeeCurrency:   resp.FeeCurrency,
		FeeAmount:     resp.FeeAmount,
		ExpiresAt:     expiresAt,
	}, nil
}

// FetchMediums lists the payment rails for a currency pair. Empty
// currencies leave that side unconstrained.
func (c *Client) FetchMediums(ctx context.Context, inCurrency, outCurrency string) ([]*exchange.PaymentMedium, error) {
	query := map[string]string{}
	if inCurrency != "" {
		query["inCurrency"] = inCurrency
	}
	if outCurrency != "" {
		query["outCurrency"] = outCurrency
	}

	var mediums []*exchange.PaymentMedium
	if err := c.api.AuthGet(ctx, "/mediums", query, &mediums); err != nil {
		return nil, fmt.Errorf("failed to fetch payment mediums: %w", err)
	}
	return mediums, nil
}

// FetchTrades returns the authoritative list of the user's trades.
func (c *Client) FetchTrades(ctx context.Context) ([]*exchange.TradeRecord, error) {
	var records []*exchange.TradeRecord
	if err := c.api.AuthGet(ctx, "/trades", nil, &records); err != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}
	return records, nil
}

// FetchTrade returns the current record for one trade.
func (c *Client) FetchTrade(ctx context.Context, id string) (*exchange.TradeRecord, error) {
	var record exchange.TradeRecord
	if err := c.api.AuthGet(ctx, "/trades/"+id, nil, &record); err != nil {
		return nil, fmt.Errorf("failed to fetch trade %s: %w", id, err)
	}
	return &record, nil
}

// PlaceBuy registers a buy order with the partner.
func (c *Client) PlaceBuy(ctx context.Context, quote *exchange.Quote, medium, receiveAddress string) (*exchange.TradeRecord, error) {
	body := map[string]any{
		"quoteId":        quote.ID(),
		"medium":         medium,
		"receiveAddress": receiveAddress,
	}

	var record exchange.TradeRecord
	if err := c.api.AuthPost(ctx, "/trades", body, &record); err != nil {
		c.log.Error("Failed to place buy order",
			zap.String("quote_id", quote.ID()),
			zap.String("medium", medium),
			zap.Error(err),
		)
		return nil, err
	}
	c.log.Info("Placed buy order",
		zap.String("trade_id", string(record.ID)),
		zap.String("state", string(record.State)),
	)
	return &record, nil
}

// PlaceSell registers a sell order with the partner.
func (c *Client) PlaceSell(ctx context.Context, quote *exchange.Quote, bankAccountID string) (*exchange.TradeRecord, error) {
	body := map[string]any{
		"quoteId": quote.ID(),
		"transferOut": map[string]any{
			"medium":        "bank",
			"bankAccountId": bankAccountID,
		},
	}

	var record exchange.TradeRecord
	if err := c.api.AuthPost(ctx, "/trades", body, &record); err != nil {
		c.log.Error("Failed to place sell order",
			zap.String("quote_id", quote.ID()),
			zap.Error(err),
		)
		return nil, err
	}
	c.log.Info("Placed sell order",
		zap.String("trade_id", string(record.ID)),
		zap.String("state", string(record.State)),
	)
	return &record, nil
}
