package partner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/blockchain/bitcoin-exchange-client/internal/api"
	"github.com/blockchain/bitcoin-exchange-client/internal/config"
	"github.com/blockchain/bitcoin-exchange-client/internal/exchange"
)

func newTestPartner(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	cfg := &config.Partner{
		BaseURL:               server.URL,
		RateLimit:             1000,
		RateLimitBurst:        1000,
		ConfirmationThreshold: 6,
	}
	apiClient := api.NewClient(cfg, zap.NewNop())
	return NewClient(apiClient, cfg, zap.NewNop()), server
}

func TestClient_FetchQuote_ParsesExpiry(t *testing.T) {
	// Arrange
	client, server := newTestPartner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/quotes", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(-50000), body["baseAmount"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "q-1",
			"baseCurrency": "EUR",
			"quoteCurrency": "BTC",
			"baseAmount": -50000,
			"quoteAmount": 86957,
			"expiryTime": "2026-08-31T12:00:30Z"
		}`))
	}))
	defer server.Close()

	// Act
	params, err := client.FetchQuote(context.Background(), -50000, "EUR", "BTC")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "q-1", params.ID)
	assert.Equal(t, int64(86957), params.QuoteAmount)
	assert.Equal(t, time.Date(2026, 8, 31, 12, 0, 30, 0, time.UTC), params.ExpiresAt)
}

func TestClient_FetchQuote_RejectsUnparsableExpiry(t *testing.T) {
	client, server := newTestPartner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "q-1", "expiryTime": "soon"}`))
	}))
	defer server.Close()

	_, err := client.FetchQuote(context.Background(), -50000, "EUR", "BTC")

	assert.ErrorContains(t, err, "parse quote expiry")
}

func TestClient_FetchMediums_ConstrainsGivenSidesOnly(t *testing.T) {
	// Arrange
	client, server := newTestPartner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mediums", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("outCurrency"))
		assert.False(t, r.URL.Query().Has("inCurrency"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"inMedium": "bank", "outMedium": "blockchain", "inFixedFee": 500}]`))
	}))
	defer server.Close()

	// Act
	mediums, err := client.FetchMediums(context.Background(), "", "BTC")

	// Assert
	assert.NoError(t, err)
	assert.Len(t, mediums, 1)
	assert.Equal(t, "bank", mediums[0].InMedium)
	assert.Equal(t, int64(500), mediums[0].InFixedFee)
}

func TestClient_FetchTrades_DecodesNumericIdentifiers(t *testing.T) {
	// Arrange: some partners send numeric trade ids.
	client, server := newTestPartner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 1142, "state": "awaiting_transfer_in"},
			{"id": "ab-12", "state": "completed", "txHash": "abcdef", "confirmations": 6}
		]`))
	}))
	defer server.Close()

	// Act
	records, err := client.FetchTrades(context.Background())

	// Assert
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, exchange.TradeID("1142"), records[0].ID)
	assert.Equal(t, exchange.StateAwaitingTransferIn, records[0].State)
	assert.Equal(t, exchange.TradeID("ab-12"), records[1].ID)
	assert.Equal(t, "abcdef", records[1].TxHash)
}

func TestClient_FetchTrade_UsesIdentifierPath(t *testing.T) {
	// Arrange
	client, server := newTestPartner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades/1142", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 1142, "state": "processing"}`))
	}))
	defer server.Close()

	// Act
	record, err := client.FetchTrade(context.Background(), "1142")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, exchange.StateProcessing, record.State)
}

func TestClient_PlaceBuy_SendsQuoteMediumAndAddress(t *testing.T) {
	// Arrange
	client, server := newTestPartner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/trades", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "q-1", body["quoteId"])
		assert.Equal(t, "bank", body["medium"])
		assert.Equal(t, "1abcd", body["receiveAddress"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 1142, "state": "awaiting_transfer_in", "receiveAddress": "1abcd"}`))
	}))
	defer server.Close()
	quote := exchange.NewQuote(exchange.QuoteParams{ID: "q-1"}, client, nil)

	// Act
	record, err := client.PlaceBuy(context.Background(), quote, "bank", "1abcd")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, exchange.TradeID("1142"), record.ID)
	assert.Equal(t, "1abcd", record.ReceiveAddress)
}

func TestClient_PlaceSell_SendsBankTransferOut(t *testing.T) {
	// Arrange
	client, server := newTestPartner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "q-2", body["quoteId"])
		transferOut, ok := body["transferOut"].(map[string]any)
		assert.True(t, ok)
		assert.Equal(t, "bank", transferOut["medium"])
		assert.Equal(t, "bank-1", transferOut["bankAccountId"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "sell-7", "state": "awaiting_transfer_in"}`))
	}))
	defer server.Close()
	quote := exchange.NewQuote(exchange.QuoteParams{ID: "q-2"}, client, nil)

	// Act
	record, err := client.PlaceSell(context.Background(), quote, "bank-1")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, exchange.TradeID("sell-7"), record.ID)
}
