package exchange

import (
	"encoding/json"
	"strings"
	"time"
)

// TradeID is a partner-assigned trade identifier. Partners use numeric as
// well as alphanumeric ids; either way two ids denote the same trade when
// they match case-insensitively.
type TradeID string

// Equal reports whether two identifiers denote the same trade.
func (id TradeID) Equal(other TradeID) bool {
	return strings.EqualFold(string(id), string(other))
}

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *TradeID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = TradeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = TradeID(n.String())
	return nil
}

// State is a trade's lifecycle state as reported by the partner. The set of
// values is partner-defined; the core only distinguishes the states below
// and carries anything else opaquely.
type State string

const (
	StatePending            State = "pending"
	StateAwaitingTransferIn State = "awaiting_transfer_in"
	StateProcessing         State = "processing"
	StateReviewing          State = "reviewing"
	StateCompleted          State = "completed"
	// StateCompletedTest is a sandbox completion, simulated by the partner.
	StateCompletedTest State = "completed_test"
	StateCancelled     State = "cancelled"
	StateRejected      State = "rejected"
	StateExpired       State = "expired"
)

// MayReceivePayment reports whether a deposit could still appear, or still
// needs to be recorded, for a trade in this state. Cancelled and otherwise
// dead trades will never see one; completed trades are included so a hash
// the wallet has not picked up yet is still recorded.
func (s State) MayReceivePayment() bool {
	switch s {
	case StateAwaitingTransferIn, StateProcessing, StateReviewing, StateCompleted, StateCompletedTest:
		return true
	}
	return false
}

// TradeRecord is one trade as returned by the partner API.
type TradeRecord struct {
	ID                TradeID   `json:"id"`
	State             State     `json:"state"`
	CreatedAt         time.Time `json:"createdAt"`
	InCurrency        string    `json:"inCurrency"`
	OutCurrency       string    `json:"outCurrency"`
	InAmount          int64     `json:"inAmount"`
	SendAmount        int64     `json:"sendAmount"`
	OutAmount         int64     `json:"outAmount"`
	OutAmountExpected int64     `json:"outAmountExpected"`
	Medium            string    `json:"medium"`
	ReceiveAddress    string    `json:"receiveAddress"`
	AccountIndex      int       `json:"accountIndex"`
	TxHash            string    `json:"txHash"`
	Confirmations     int       `json:"confirmations"`

	// Partner-specific fields, carried without interpretation.
	BankAccountNumber string `json:"bankAccountNumber"`
	KYCReference      string `json:"kycReference"`
}
