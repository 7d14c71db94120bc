package model

import "time"

type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Close reasons recorded on a position when it leaves the open set.
const (
	CloseReasonStopLoss  = "stop_loss"
	CloseReasonTarget    = "target"
	CloseReasonAnomaly   = "anomaly"
	CloseReasonForced    = "forced"
	CloseReasonCancelled = "cancelled_externally"
)

// Position is one open exposure. At most one open position exists per
// symbol; while open, the moment one of stop/target fills the other must be
// cancelled before the position is marked closed.
type Position struct {
	Symbol      string         `json:"symbol"`
	SignalID    string         `json:"signal_id"`
	Direction   Direction      `json:"direction"`
	Quantity    int64          `json:"quantity"`
	EntryPrice  float64        `json:"entry_price"`
	EntryOrder  *Order         `json:"entry_order"`
	StopOrder   *Order         `json:"stop_order,omitempty"`
	TargetOrder *Order         `json:"target_order,omitempty"`
	OpenedAt    time.Time      `json:"opened_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	RealizedPnl float64        `json:"realized_pnl"`
	Status      PositionStatus `json:"status"`
	CloseReason string         `json:"close_reason,omitempty"`
	Anomaly     bool           `json:"anomaly,omitempty"`
}

// RealizedPnlAt computes the realized P&L for an exit at the given price.
func (p *Position) RealizedPnlAt(exitPrice float64) float64 {
	if p.Direction == DirectionShort {
		return (p.EntryPrice - exitPrice) * float64(p.Quantity)
	}
	return (exitPrice - p.EntryPrice) * float64(p.Quantity)
}
