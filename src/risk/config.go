package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Limits carries the admission policy. Percentages are of trading capital.
type Limits struct {
	Capital            float64 `envconfig:"TRADING_CAPITAL" default:"10000"`
	MaxRiskPerTradePct float64 `envconfig:"MAX_RISK_PER_TRADE_PERCENT" default:"2"`
	MaxDailyLossPct    float64 `envconfig:"MAX_DAILY_LOSS_PERCENT" default:"3"`
	MaxOpenPositions   int     `envconfig:"MAX_OPEN_POSITIONS" default:"3"`
	MaxTradesPerDay    int     `envconfig:"MAX_TRADES_PER_DAY" default:"10"`
	MinRiskReward      float64 `envconfig:"MIN_RISK_REWARD" default:"1.5"`
	MinNetProfit       float64 `envconfig:"MIN_NET_PROFIT" default:"20"`
	BrokeragePerOrder  float64 `envconfig:"BROKERAGE_PER_ORDER" default:"20"`
	TurnoverFeePercent float64 `envconfig:"TURNOVER_FEE_PERCENT" default:"0.1"`
}

func GetLimits() Limits {
	var limits Limits
	if err := envconfig.Process("", &limits); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return limits
}

func (l Limits) MaxRiskPerTrade() float64 {
	return l.Capital * l.MaxRiskPerTradePct / 100
}

func (l Limits) MaxDailyLoss() float64 {
	return l.Capital * l.MaxDailyLossPct / 100
}
