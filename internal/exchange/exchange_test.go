package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newTestExchange(t *testing.T, partner Partner, delegate Delegate) *Exchange {
	ex, err := New(partner, delegate, zap.NewNop())
	assert.NoError(t, err)
	return ex
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, newStubDelegate(), nil)
	assert.ErrorContains(t, err, "partner")

	_, err = New(newMockPartner(), nil, nil)
	assert.ErrorContains(t, err, "delegate")
}

func TestExchange_GetBuyQuote_NegatesAmount(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	ex := newTestExchange(t, partner, newStubDelegate())
	partner.On("FetchQuote", mock.Anything, int64(-50000), "EUR", "BTC").
		Return(QuoteParams{ID: "q-1", BaseCurrency: "EUR", QuoteCurrency: "BTC", BaseAmount: -50000, ExpiresAt: time.Now().Add(30 * time.Second)}, nil)

	// Act
	quote, err := ex.GetBuyQuote(context.Background(), 50000, "EUR", "")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, "q-1", quote.ID())
	assert.NotNil(t, quote.registerTrade)
	partner.AssertExpectations(t)
}

func TestExchange_GetBuyQuote_FiatBaseImpliesBTCQuoteCurrency(t *testing.T) {
	// Arrange: quote currency GBP is overridden to BTC for a fiat base.
	partner := newMockPartner()
	ex := newTestExchange(t, partner, newStubDelegate())
	partner.On("FetchQuote", mock.Anything, int64(-50000), "DKK", "BTC").
		Return(QuoteParams{ID: "q-1"}, nil)

	// Act
	_, err := ex.GetBuyQuote(context.Background(), 50000, "DKK", "GBP")

	// Assert
	assert.NoError(t, err)
	partner.AssertExpectations(t)
}

func TestExchange_GetBuyQuote_BTCBaseRequiresQuoteCurrency(t *testing.T) {
	ex := newTestExchange(t, newMockPartner(), newStubDelegate())

	_, err := ex.GetBuyQuote(context.Background(), 100000000, "BTC", "")

	assert.ErrorIs(t, err, ErrQuoteCurrencyRequired)
}

func TestExchange_GetSellQuote_FlipsSign(t *testing.T) {
	// Arrange: selling 1 BTC sends a positive base amount, the inverse of
	// the buy convention.
	partner := newMockPartner()
	ex := newTestExchange(t, partner, newStubDelegate())
	partner.On("FetchQuote", mock.Anything, int64(100000000), "BTC", "EUR").
		Return(QuoteParams{ID: "q-2", BaseCurrency: "BTC", QuoteCurrency: "EUR", BaseAmount: 100000000}, nil)

	// Act
	quote, err := ex.GetSellQuote(context.Background(), 100000000, "BTC", "EUR")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, int64(100000000), quote.BaseAmount())
}

func TestExchange_GetBuyAndSellMethods(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	ex := newTestExchange(t, partner, newStubDelegate())
	buyMediums := []*PaymentMedium{{InMedium: "bank"}}
	sellMediums := []*PaymentMedium{{InMedium: "blockchain"}}
	partner.On("FetchMediums", mock.Anything, "", "BTC").Return(buyMediums, nil)
	partner.On("FetchMediums", mock.Anything, "BTC", "").Return(sellMediums, nil)

	// Act
	gotBuy, errBuy := ex.GetBuyMethods(context.Background())
	gotSell, errSell := ex.GetSellMethods(context.Background())

	// Assert
	assert.NoError(t, errBuy)
	assert.NoError(t, errSell)
	assert.Equal(t, buyMediums, gotBuy)
	assert.Equal(t, sellMediums, gotSell)
}

func TestExchange_GetTrades_PopulatesCache(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	delegate := newStubDelegate()
	ex := newTestExchange(t, partner, delegate)
	partner.On("FetchTrades", mock.Anything).Return([]*TradeRecord{
		{ID: "1142", State: StateAwaitingTransferIn},
		{ID: "1143", State: StateCompleted},
	}, nil)

	// Act
	trades, err := ex.GetTrades(context.Background())

	// Assert
	assert.NoError(t, err)
	assert.Len(t, trades, 2)
	assert.Len(t, ex.Trades(), 2)
	assert.Equal(t, 1, delegate.savedCount())
}

func TestExchange_GetTrades_UpdatesExistingInstanceInPlace(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	ex := newTestExchange(t, partner, newStubDelegate())
	partner.On("FetchTrades", mock.Anything).Return([]*TradeRecord{
		{ID: "1142", State: StateAwaitingTransferIn},
	}, nil).Once()

	first, err := ex.GetTrades(context.Background())
	assert.NoError(t, err)

	partner.On("FetchTrades", mock.Anything).Return([]*TradeRecord{
		{ID: "1142", State: StateProcessing},
	}, nil).Once()

	// Act
	second, err := ex.GetTrades(context.Background())

	// Assert: same instance, new state; watches armed on it stay valid.
	assert.NoError(t, err)
	assert.Same(t, first[0], second[0])
	assert.Equal(t, StateProcessing, first[0].State())
}

func TestExchange_GetTrades_MatchesIdentifiersCaseInsensitively(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	ex := newTestExchange(t, partner, newStubDelegate())
	partner.On("FetchTrades", mock.Anything).Return([]*TradeRecord{
		{ID: "ab-12", State: StateAwaitingTransferIn},
	}, nil).Once()
	_, err := ex.GetTrades(context.Background())
	assert.NoError(t, err)

	partner.On("FetchTrades", mock.Anything).Return([]*TradeRecord{
		{ID: "AB-12", State: StateCompleted},
	}, nil).Once()

	// Act
	_, err = ex.GetTrades(context.Background())

	// Assert
	assert.NoError(t, err)
	trades := ex.Trades()
	assert.Len(t, trades, 1)
	assert.Equal(t, StateCompleted, trades[0].State())
}

func TestExchange_GetTrades_ReleasesAddressOfCancelledTrade(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	delegate := newStubDelegate()
	ex := newTestExchange(t, partner, delegate)
	partner.On("FetchTrades", mock.Anything).Return([]*TradeRecord{
		{ID: "1142", State: StateCancelled, ReceiveAddress: "1dead"},
	}, nil)

	// Act
	_, err := ex.GetTrades(context.Background())

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, []string{"1dead"}, delegate.releasedAddresses)
}

func TestExchange_GetTrades_IsIdempotent(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	delegate := newStubDelegate()
	ex := newTestExchange(t, partner, delegate)
	partner.On("FetchTrades", mock.Anything).Return([]*TradeRecord{
		{ID: "1142", State: StateCancelled, ReceiveAddress: "1dead"},
	}, nil)

	// Act
	_, err := ex.GetTrades(context.Background())
	assert.NoError(t, err)
	_, err = ex.GetTrades(context.Background())

	// Assert: no duplicate cache entries, no second release.
	assert.NoError(t, err)
	assert.Len(t, ex.Trades(), 1)
	assert.Equal(t, 1, delegate.releasedCount())
	assert.Equal(t, 2, delegate.savedCount())
}

func TestExchange_GetTrades_FetchFailureLeavesCacheUntouched(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	delegate := newStubDelegate()
	ex := newTestExchange(t, partner, delegate)
	partner.On("FetchTrades", mock.Anything).Return(nil, errors.New("gateway timeout"))

	// Act
	trades, err := ex.GetTrades(context.Background())

	// Assert
	assert.Nil(t, trades)
	assert.ErrorContains(t, err, "fetch trades")
	assert.Empty(t, ex.Trades())
	assert.Equal(t, 0, delegate.savedCount())
}

func TestExchange_RegisterTrade_AddsToCacheAndPersists(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	delegate := newStubDelegate()
	ex := newTestExchange(t, partner, delegate)
	partner.On("FetchQuote", mock.Anything, int64(-50000), "EUR", "BTC").
		Return(QuoteParams{ID: "q-1", BaseCurrency: "EUR", QuoteCurrency: "BTC", BaseAmount: -50000, ExpiresAt: time.Now().Add(30 * time.Second)}, nil)
	partner.On("PlaceBuy", mock.Anything, mock.Anything, "bank", "1abcd").
		Return(&TradeRecord{ID: "1142", State: StateAwaitingTransferIn}, nil)

	quote, err := ex.GetBuyQuote(context.Background(), 50000, "EUR", "")
	assert.NoError(t, err)

	// Act
	trade, err := Buy(context.Background(), quote, "bank")

	// Assert
	assert.NoError(t, err)
	cached := ex.Trades()
	assert.Len(t, cached, 1)
	assert.Same(t, trade, cached[0])
	assert.Equal(t, 1, delegate.savedCount())
}

func TestExchange_SetDebug_PropagatesToCachedTrades(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	ex := newTestExchange(t, partner, newStubDelegate())
	partner.On("FetchTrades", mock.Anything).Return([]*TradeRecord{
		{ID: "1142", State: StateAwaitingTransferIn},
	}, nil)
	trades, err := ex.GetTrades(context.Background())
	assert.NoError(t, err)

	// Act
	ex.SetDebug(true)

	// Assert
	assert.True(t, ex.Debug())
	assert.True(t, trades[0].Debug())
}

func TestExchange_FlagAccessAcrossGoroutines(t *testing.T) {
	// Arrange
	partner := newMockPartner()
	ex := newTestExchange(t, partner, newStubDelegate())
	partner.On("FetchTrades", mock.Anything).Return([]*TradeRecord{
		{ID: "1142", State: StateAwaitingTransferIn},
	}, nil)

	// Act: flag setters interleave with reconciliation; run under -race.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex.SetDebug(true)
			_ = ex.Debug()
			_ = ex.SetAutoLogin(context.Background(), true)
			_, _ = ex.GetTrades(context.Background())
		}()
	}
	wg.Wait()

	// Assert
	assert.True(t, ex.Debug())
	assert.True(t, ex.AutoLogin())
	assert.Len(t, ex.Trades(), 1)
}

func TestExchange_SetAutoLogin_Persists(t *testing.T) {
	// Arrange
	delegate := newStubDelegate()
	ex := newTestExchange(t, newMockPartner(), delegate)

	// Act
	err := ex.SetAutoLogin(context.Background(), true)

	// Assert
	assert.NoError(t, err)
	assert.True(t, ex.AutoLogin())
	assert.Equal(t, 1, delegate.savedCount())
}
