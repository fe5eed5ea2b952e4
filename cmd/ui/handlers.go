package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/blockchain/bitcoin-exchange-client/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db}
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// TradesHandler returns all tracked trades.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	var trades []models.TradeRow
	// Order by most recent first
	if err := h.db.Order("timestamp desc").Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	TotalTrades     int64 `json:"total_trades"`
	AwaitingPayment int64 `json:"awaiting_payment"`
	Completed       int64 `json:"completed"`
	Cancelled       int64 `json:"cancelled"`
	Confirmed       int64 `json:"confirmed"`
	Simulated       int64 `json:"simulated"`
}

// StatisticsHandler summarizes the tracked trade set by lifecycle state.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	var allTrades []models.TradeRow
	if err := h.db.Find(&allTrades).Error; err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	response := StatisticsResponse{}
	for _, trade := range allTrades {
		response.TotalTrades++
		switch trade.State {
		case "awaiting_transfer_in":
			response.AwaitingPayment++
		case "completed", "completed_test":
			response.Completed++
		case "cancelled", "rejected", "expired":
			response.Cancelled++
		}
		if trade.Confirmed {
			response.Confirmed++
		}
		if trade.IsSimulation {
			response.Simulated++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
