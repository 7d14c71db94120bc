package model

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

type SignalStatus string

const (
	SignalStatusPending  SignalStatus = "PENDING"
	SignalStatusApproved SignalStatus = "APPROVED"
	SignalStatusRejected SignalStatus = "REJECTED"
	SignalStatusExecuted SignalStatus = "EXECUTED"
	SignalStatusExpired  SignalStatus = "EXPIRED"
)

// signalIDBucket groups signals emitted by the same strategy for the same
// symbol within one bucket under a single stable id.
const signalIDBucket = time.Minute

// Signal is a candidate trade emitted by a strategy, not yet risk-checked.
type Signal struct {
	ID                string       `json:"id"`
	StrategySource    string       `json:"strategy_source"`
	Symbol            string       `json:"symbol"`
	Direction         Direction    `json:"direction"`
	EntryPrice        float64      `json:"entry_price"`
	StopPrice         float64      `json:"stop_price"`
	TargetPrice       float64      `json:"target_price"`
	RequestedQuantity int64        `json:"requested_quantity"`
	Confidence        float64      `json:"confidence"` // 0-100
	PriorityScore     float64      `json:"priority_score"`
	Reason            string       `json:"reason,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	Status            SignalStatus `json:"status"`
}

// NewSignal builds a pending signal with a stable id derived from the
// strategy, symbol and a timestamp bucket.
func NewSignal(strategy, symbol string, dir Direction, entry, stop, target float64, qty int64, confidence float64) *Signal {
	now := time.Now().UTC()
	return &Signal{
		ID:                SignalID(strategy, symbol, now),
		StrategySource:    strategy,
		Symbol:            symbol,
		Direction:         dir,
		EntryPrice:        entry,
		StopPrice:         stop,
		TargetPrice:       target,
		RequestedQuantity: qty,
		Confidence:        confidence,
		CreatedAt:         now,
		Status:            SignalStatusPending,
	}
}

func SignalID(strategy, symbol string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s", strategy, symbol, at.Truncate(signalIDBucket).Format("20060102150405"))
}

// RiskPerShare is the per-share distance between entry and stop, positive
// when the stop is on the losing side of the entry.
func (s *Signal) RiskPerShare() float64 {
	if s.Direction == DirectionShort {
		return s.StopPrice - s.EntryPrice
	}
	return s.EntryPrice - s.StopPrice
}

func (s *Signal) RewardPerShare() float64 {
	if s.Direction == DirectionShort {
		return s.EntryPrice - s.TargetPrice
	}
	return s.TargetPrice - s.EntryPrice
}

// RiskRewardRatio returns 0 for degenerate stop placement (risk <= 0).
func (s *Signal) RiskRewardRatio() float64 {
	risk := s.RiskPerShare()
	if risk <= 0 {
		return 0
	}
	return s.RewardPerShare() / risk
}

func (s *Signal) RiskAmount() float64 {
	return s.RiskPerShare() * float64(s.RequestedQuantity)
}

func (s *Signal) PotentialProfit() float64 {
	return s.RewardPerShare() * float64(s.RequestedQuantity)
}

// Terminal reports whether the status is final; terminal signals are
// immutable and live in the queue history, not the pending set.
func (st SignalStatus) Terminal() bool {
	switch st {
	case SignalStatusRejected, SignalStatusExecuted, SignalStatusExpired:
		return true
	}
	return false
}
