package model

import "time"

const (
	TradeRecordKindEntry = "entry"
	TradeRecordKindExit  = "exit"
)

// TradeRecord is the audit row written by the trade journal for every entry
// and exit. Best-effort persistence: a failed write never rolls back an
// already-placed order.
type TradeRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SignalID    string    `gorm:"size:120;index" json:"signal_id"`
	Symbol      string    `gorm:"size:40;index" json:"symbol"`
	Direction   string    `gorm:"size:10" json:"direction"`
	Kind        string    `gorm:"size:10;not null" json:"kind"` // entry, exit
	Quantity    int64     `json:"quantity"`
	Price       float64   `json:"price"`
	StopPrice   float64   `json:"stop_price"`
	TargetPrice float64   `json:"target_price"`
	Pnl         float64   `json:"pnl"`
	Reason      string    `gorm:"size:80" json:"reason,omitempty"`
	Mode        string    `gorm:"size:20" json:"mode,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
