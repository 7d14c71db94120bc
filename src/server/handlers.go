package server

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradeengine/src/model"
	"tradeengine/src/queue"
	"tradeengine/src/risk"
)

type signalQueue interface {
	Push(sig *model.Signal) bool
	Pending() []model.Signal
	Stats() queue.Stats
}

type positionBook interface {
	OpenPositions() []model.Position
	ForceCloseAll(ctx context.Context, reason string) int
}

type riskSummary interface {
	Snapshot() risk.DayState
}

type injectSignalRequest struct {
	Strategy    string  `json:"strategy"`
	Symbol      string  `json:"symbol"`
	Direction   string  `json:"direction"`
	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`
	Quantity    int64   `json:"quantity"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// InjectSignalHandler accepts an operator-submitted signal and queues it
// like any strategy-produced one.
func InjectSignalHandler(q signalQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req injectSignalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if req.Strategy == "" || req.Symbol == "" || req.Quantity <= 0 {
			http.Error(w, "strategy, symbol and a positive quantity are required", http.StatusBadRequest)
			return
		}

		dir := model.Direction(req.Direction)
		if dir != model.DirectionLong && dir != model.DirectionShort {
			http.Error(w, "direction must be LONG or SHORT", http.StatusBadRequest)
			return
		}

		sig := model.NewSignal(req.Strategy, req.Symbol, dir,
			req.EntryPrice, req.StopPrice, req.TargetPrice, req.Quantity, req.Confidence)
		sig.Reason = req.Reason

		if !q.Push(sig) {
			http.Error(w, "signal rejected: duplicate or symbol slot taken", http.StatusConflict)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(sig); err != nil {
			logger.WithError(err).Error("failed to encode inject signal response")
		}
	}
}

// PendingSignalsHandler lists queued signals in priority order plus queue
// counters.
func PendingSignalsHandler(q signalQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			Signals []model.Signal `json:"signals"`
			Stats   queue.Stats    `json:"stats"`
		}{
			Signals: q.Pending(),
			Stats:   q.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.WithError(err).Error("failed to encode pending signals response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// OpenPositionsHandler lists open positions with their protective orders.
func OpenPositionsHandler(book positionBook) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(book.OpenPositions()); err != nil {
			logger.WithError(err).Error("failed to encode positions response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// RiskSummaryHandler returns the day's risk state.
func RiskSummaryHandler(gate riskSummary) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(gate.Snapshot()); err != nil {
			logger.WithError(err).Error("failed to encode risk summary response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// CloseAllHandler force-closes every open position at market.
func CloseAllHandler(book positionBook) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reason := r.URL.Query().Get("reason")
		if reason == "" {
			reason = "operator close-all"
		}

		closed := book.ForceCloseAll(r.Context(), reason)
		logger.WithFields(map[string]interface{}{
			"closed": closed,
			"reason": reason,
		}).Warn("close-all executed")

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]int{"closed": closed}); err != nil {
			logger.WithError(err).Error("failed to encode close-all response")
		}
	}
}
