package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeengine/src/model"
)

// Reason codes reported on rejected signals. Every rejection carries one for
// the audit trail; none are retried.
const (
	ReasonDailyLossLimit    = "daily loss limit"
	ReasonMaxTradesPerDay   = "max trades per day"
	ReasonMaxOpenPositions  = "max open positions"
	ReasonPositionOpen      = "position already open"
	ReasonInsufficientFunds = "insufficient funds"
	ReasonRiskRewardTooLow  = "risk reward below minimum"
	ReasonNotProfitable     = "not profitable after costs"
	ReasonDegenerateStop    = "invalid stop placement"
)

// Decision is the result of one admission check. Ephemeral: produced and
// consumed within a single Validate call.
type Decision struct {
	Approved         bool   `json:"approved"`
	ReasonCode       string `json:"reason_code,omitempty"`
	AdjustedQuantity int64  `json:"adjusted_quantity,omitempty"`
}

// DayState is the daily risk snapshot: reset only by an explicit Rollover
// call, mutated on approval (capacity reserved optimistically) and on
// closure (realized P&L finalized).
type DayState struct {
	Date          string  `json:"date"`
	TradesCount   int     `json:"trades_count"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	RealizedPnl   float64 `json:"realized_pnl"`
	OpenPositions int     `json:"open_positions"`
	MaxDrawdown   float64 `json:"max_drawdown"`
}

// PositionBook is the ledger view the gate needs for its no-pyramiding and
// open-position checks.
type PositionBook interface {
	HasOpenPosition(symbol string) bool
	OpenPositionCount() int
}

// bookView is a point-in-time read of the position book taken before the
// gate lock is acquired.
type bookView struct {
	openCount int
	hasOpen   bool
}

// Gate is the stateful admission controller. Both of its mutators
// (RecordApproval from the admission path, RecordClosure from
// reconciliation) run under the same lock so reserved and finalized exposure
// stay consistent.
type Gate struct {
	mu     sync.Mutex
	limits Limits
	book   PositionBook
	day    DayState
	now    func() time.Time
}

func NewGate(limits Limits, book PositionBook) *Gate {
	g := &Gate{
		limits: limits,
		book:   book,
		now:    time.Now,
	}
	g.day = DayState{Date: dayKey(g.now())}

	logger.WithFields(map[string]interface{}{
		"capital":        limits.Capital,
		"max_risk_trade": limits.MaxRiskPerTrade(),
		"max_daily_loss": limits.MaxDailyLoss(),
		"max_positions":  limits.MaxOpenPositions,
	}).Info("risk gate initialized")

	return g
}

// Validate runs the ordered check battery, short-circuiting on the first
// hard failure. A quantity reduction is not a rejection; only a degenerate
// stop (zero or negative risk per share) forces one.
func (g *Gate) Validate(sig *model.Signal, availableFunds float64) Decision {
	// Read the position book before taking the gate lock: the ledger calls
	// back into RecordClosure under its own lock, so the two locks must
	// never nest in both directions.
	book := bookView{
		openCount: g.book.OpenPositionCount(),
		hasOpen:   g.book.HasOpenPosition(sig.Symbol),
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	checks := []func(*model.Signal, float64, bookView) (bool, string){
		g.checkDailyLoss,
		g.checkTradesPerDay,
		g.checkOpenPositions,
		g.checkDuplicatePosition,
		g.checkAvailableFunds,
		g.checkRiskReward,
		g.checkProfitability,
	}

	for _, check := range checks {
		if ok, reason := check(sig, availableFunds, book); !ok {
			logger.WithFields(map[string]interface{}{
				"signal_id": sig.ID,
				"symbol":    sig.Symbol,
				"reason":    reason,
			}).Warn("risk check failed")
			return Decision{Approved: false, ReasonCode: reason}
		}
	}

	qty, ok := g.positionSize(sig, availableFunds)
	if !ok {
		logger.WithField("signal_id", sig.ID).Warn("risk check failed: degenerate stop")
		return Decision{Approved: false, ReasonCode: ReasonDegenerateStop}
	}

	if qty != sig.RequestedQuantity {
		logger.WithFields(map[string]interface{}{
			"signal_id": sig.ID,
			"requested": sig.RequestedQuantity,
			"adjusted":  qty,
		}).Info("quantity adjusted to risk limits")
	}

	return Decision{Approved: true, AdjustedQuantity: qty}
}

func (g *Gate) checkDailyLoss(_ *model.Signal, _ float64, _ bookView) (bool, string) {
	if g.day.RealizedPnl <= -g.limits.MaxDailyLoss() {
		return false, ReasonDailyLossLimit
	}
	return true, ""
}

func (g *Gate) checkTradesPerDay(_ *model.Signal, _ float64, _ bookView) (bool, string) {
	if g.day.TradesCount >= g.limits.MaxTradesPerDay {
		return false, ReasonMaxTradesPerDay
	}
	return true, ""
}

func (g *Gate) checkOpenPositions(_ *model.Signal, _ float64, book bookView) (bool, string) {
	if book.openCount >= g.limits.MaxOpenPositions {
		return false, ReasonMaxOpenPositions
	}
	return true, ""
}

func (g *Gate) checkDuplicatePosition(_ *model.Signal, _ float64, book bookView) (bool, string) {
	if book.hasOpen {
		return false, ReasonPositionOpen
	}
	return true, ""
}

func (g *Gate) checkAvailableFunds(sig *model.Signal, funds float64, _ bookView) (bool, string) {
	required := sig.EntryPrice * float64(sig.RequestedQuantity)
	if required > funds {
		return false, ReasonInsufficientFunds
	}
	return true, ""
}

func (g *Gate) checkRiskReward(sig *model.Signal, _ float64, _ bookView) (bool, string) {
	if sig.RiskRewardRatio() < g.limits.MinRiskReward {
		return false, ReasonRiskRewardTooLow
	}
	return true, ""
}

// checkProfitability models flat brokerage on entry and exit plus a
// percentage fee on round-trip turnover, and requires the remaining expected
// profit to clear a fixed floor.
func (g *Gate) checkProfitability(sig *model.Signal, _ float64, _ bookView) (bool, string) {
	brokerage := decimal.NewFromFloat(g.limits.BrokeragePerOrder).Mul(decimal.NewFromInt(2))
	turnover := decimal.NewFromFloat(sig.EntryPrice).
		Mul(decimal.NewFromInt(sig.RequestedQuantity)).
		Mul(decimal.NewFromInt(2))
	fees := turnover.Mul(decimal.NewFromFloat(g.limits.TurnoverFeePercent)).Div(decimal.NewFromInt(100))

	net := decimal.NewFromFloat(sig.PotentialProfit()).Sub(brokerage).Sub(fees)
	if net.LessThan(decimal.NewFromFloat(g.limits.MinNetProfit)) {
		return false, ReasonNotProfitable
	}
	return true, ""
}

// positionSize caps the requested quantity by per-trade risk and available
// funds: max(1, min(requested, maxRisk/riskPerShare, funds/entry)).
func (g *Gate) positionSize(sig *model.Signal, funds float64) (int64, bool) {
	riskPerShare := decimal.NewFromFloat(sig.RiskPerShare())
	if riskPerShare.LessThanOrEqual(decimal.Zero) {
		return 0, false
	}

	entry := decimal.NewFromFloat(sig.EntryPrice)
	if entry.LessThanOrEqual(decimal.Zero) {
		return 0, false
	}

	maxByRisk := decimal.NewFromFloat(g.limits.MaxRiskPerTrade()).Div(riskPerShare).IntPart()
	maxByFunds := decimal.NewFromFloat(funds).Div(entry).IntPart()

	qty := sig.RequestedQuantity
	if maxByRisk < qty {
		qty = maxByRisk
	}
	if maxByFunds < qty {
		qty = maxByFunds
	}
	if qty < 1 {
		qty = 1
	}
	return qty, true
}

// RecordApproval reserves daily capacity for an admitted signal so the
// approved-but-not-yet-filled exposure counts against the day's limits.
func (g *Gate) RecordApproval(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.day.TradesCount++
	g.day.OpenPositions++

	logger.WithFields(map[string]interface{}{
		"symbol":       symbol,
		"trades_today": g.day.TradesCount,
		"open":         g.day.OpenPositions,
	}).Info("daily capacity reserved")
}

// RecordClosure finalizes a closed position's realized P&L in the day state.
func (g *Gate) RecordClosure(symbol string, pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.day.RealizedPnl += pnl
	if g.day.OpenPositions > 0 {
		g.day.OpenPositions--
	}
	if pnl > 0 {
		g.day.Wins++
	} else {
		g.day.Losses++
	}
	if g.day.RealizedPnl < g.day.MaxDrawdown {
		g.day.MaxDrawdown = g.day.RealizedPnl
	}

	logger.WithFields(map[string]interface{}{
		"symbol":    symbol,
		"pnl":       pnl,
		"daily_pnl": g.day.RealizedPnl,
	}).Info("position closure recorded")
}

// Rollover resets the day state when the trading day changes. Callers drive
// it explicitly; the gate never rolls over on its own clock mid-operation.
func (g *Gate) Rollover(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := dayKey(now)
	if g.day.Date == key {
		return
	}

	logger.WithFields(map[string]interface{}{
		"previous": g.day.Date,
		"current":  key,
	}).Info("trading day rollover")

	g.day = DayState{Date: key}
}

// Snapshot returns a copy of the current day state.
func (g *Gate) Snapshot() DayState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.day
}

// Summary returns a one-line daily digest for notifications.
func (g *Gate) Summary() string {
	s := g.Snapshot()
	return fmt.Sprintf("trades %d/%d, pnl %.2f, open %d/%d",
		s.TradesCount, g.limits.MaxTradesPerDay, s.RealizedPnl, s.OpenPositions, g.limits.MaxOpenPositions)
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
