package exchange

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockPartner is a mock implementation of the Partner interface.
type MockPartner struct {
	mock.Mock
}

func (m *MockPartner) FetchQuote(ctx context.Context, amount int64, baseCurrency, quoteCurrency string) (QuoteParams, error) {
	args := m.Called(ctx, amount, baseCurrency, quoteCurrency)
	return args.Get(0).(QuoteParams), args.Error(1)
}

func (m *MockPartner) FetchMediums(ctx context.Context, inCurrency, outCurrency string) ([]*PaymentMedium, error) {
	args := m.Called(ctx, inCurrency, outCurrency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*PaymentMedium), args.Error(1)
}

func (m *MockPartner) FetchTrades(ctx context.Context) ([]*TradeRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*TradeRecord), args.Error(1)
}

func (m *MockPartner) FetchTrade(ctx context.Context, id string) (*TradeRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TradeRecord), args.Error(1)
}

func (m *MockPartner) PlaceBuy(ctx context.Context, quote *Quote, medium, receiveAddress string) (*TradeRecord, error) {
	args := m.Called(ctx, quote, medium, receiveAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TradeRecord), args.Error(1)
}

func (m *MockPartner) PlaceSell(ctx context.Context, quote *Quote, bankAccountID string) (*TradeRecord, error) {
	args := m.Called(ctx, quote, bankAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TradeRecord), args.Error(1)
}

func (m *MockPartner) ConfirmationThreshold() int {
	args := m.Called()
	return args.Int(0)
}

// newMockPartner returns a partner mock with the confirmation threshold
// pre-wired, since hash assignment consults it on every observation.
func newMockPartner() *MockPartner {
	m := new(MockPartner)
	m.On("ConfirmationThreshold").Return(6).Maybe()
	return m
}

// stubDelegate is a hand-rolled Delegate with explicit call-count fields,
// so tests assert side effects without shared spy state. Behavior hooks
// default to benign no-ops.
type stubDelegate struct {
	mu sync.Mutex

	saveCalls  int
	saveErr    error
	saveCtxErr error

	reserveCalls int
	reserveErr   error
	reservation  AddressReservation
	commits      int

	releaseCalls      int
	releasedAddresses []string
	releaseErr        error

	checkCalls       int
	checkedAddresses []string
	checkFn          func(address string) (*Transaction, error)

	monitorCalls       int
	monitoredAddresses []string
	monitorCallbacks   map[string]func(hash string, confirmations int)
	monitorErr         error
}

func newStubDelegate() *stubDelegate {
	d := &stubDelegate{
		monitorCallbacks: make(map[string]func(hash string, confirmations int)),
	}
	d.reservation = AddressReservation{
		ReceiveAddress: "1abcd",
		AccountIndex:   0,
		Commit: func() {
			d.mu.Lock()
			d.commits++
			d.mu.Unlock()
		},
	}
	return d
}

func (d *stubDelegate) Save(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saveCalls++
	d.saveCtxErr = ctx.Err()
	return d.saveErr
}

func (d *stubDelegate) ReserveReceiveAddress() (*AddressReservation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reserveCalls++
	if d.reserveErr != nil {
		return nil, d.reserveErr
	}
	r := d.reservation
	return &r, nil
}

func (d *stubDelegate) ReleaseReceiveAddress(address string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseCalls++
	d.releasedAddresses = append(d.releasedAddresses, address)
	return d.releaseErr
}

func (d *stubDelegate) CheckAddress(ctx context.Context, address string) (*Transaction, error) {
	d.mu.Lock()
	d.checkCalls++
	d.checkedAddresses = append(d.checkedAddresses, address)
	fn := d.checkFn
	d.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(address)
}

func (d *stubDelegate) MonitorAddress(address string, callback func(hash string, confirmations int)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.monitorCalls++
	d.monitoredAddresses = append(d.monitoredAddresses, address)
	if d.monitorErr != nil {
		return d.monitorErr
	}
	d.monitorCallbacks[address] = callback
	return nil
}

func (d *stubDelegate) savedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveCalls
}

// lastSaveCtxErr reports the context state observed by the latest Save.
func (d *stubDelegate) lastSaveCtxErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveCtxErr
}

func (d *stubDelegate) releasedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseCalls
}

func (d *stubDelegate) monitoredCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.monitorCalls
}

func (d *stubDelegate) checkedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkCalls
}

// notify simulates a push event on a monitored address.
func (d *stubDelegate) notify(address, hash string, confirmations int) bool {
	d.mu.Lock()
	cb, ok := d.monitorCallbacks[address]
	d.mu.Unlock()
	if !ok {
		return false
	}
	cb(hash, confirmations)
	return true
}
