package models

import "gorm.io/gorm"

// TradeRow mirrors one tracked trade in the database. The in-memory cache
// in the exchange core is the working copy; rows exist for the status UI
// and to survive restarts.
type TradeRow struct {
	gorm.Model
	TradeID           string `json:"trade_id" gorm:"uniqueIndex"`
	State             string `json:"state"`
	InCurrency        string `json:"in_currency"`
	OutCurrency       string `json:"out_currency"`
	InAmount          int64  `json:"in_amount"`
	OutAmount         int64  `json:"out_amount"`
	OutAmountExpected int64  `json:"out_amount_expected"`
	Medium            string `json:"medium"`
	ReceiveAddress    string `json:"receive_address"`
	TxHash            string `json:"tx_hash"`
	Confirmations     int    `json:"confirmations"`
	Confirmed         bool   `json:"confirmed"`
	IsSimulation      bool   `json:"is_simulation"`
	Timestamp         int64  `json:"timestamp"`
}
