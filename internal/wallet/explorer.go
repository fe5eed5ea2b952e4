package wallet

import (
	"context"
	"fmt"

	"github.com/blockchain/bitcoin-exchange-client/internal/exchange"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Explorer checks receive addresses against a block-explorer REST API.
// This is the polling half of confirmation detection; the websocket
// watcher is the push half.
type Explorer struct {
	client *resty.Client
	log    *zap.Logger
}

// NewExplorer creates an explorer client for the given base URL.
func NewExplorer(baseURL string, log *zap.Logger) *Explorer {
	return &Explorer{
		client: resty.New().SetBaseURL(baseURL),
		log:    log,
	}
}

// addressTx is one transaction touching an address, as the explorer
// reports it.
type addressTx struct {
	Hash          string `json:"hash"`
	Confirmations int    `json:"confirmations"`
}

// CheckAddress returns the first transaction seen on the address, or nil
// when the address has not received anything yet.
func (e *Explorer) CheckAddress(ctx context.Context, address string) (*exchange.Transaction, error) {
	var txs []addressTx

	resp, err := e.client.R().
		SetContext(ctx).
		SetResult(&txs).
		Get("/address/" + address + "/txs")
	if err != nil {
		return nil, fmt.Errorf("explorer request for %s failed: %w", address, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("explorer responded %d for %s: %s", resp.StatusCode(), address, resp.String())
	}

	if len(txs) == 0 {
		return nil, nil
	}

	e.log.Debug("Deposit observed on address",
		zap.String("address", address),
		zap.String("tx_hash", txs[0].Hash),
		zap.Int("confirmations", txs[0].Confirmations),
	)

	return &exchange.Transaction{
		Hash:          txs[0].Hash,
		Confirmations: txs[0].Confirmations,
	}, nil
}
