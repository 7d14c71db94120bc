package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradeengine/src/broker"
	"tradeengine/src/metrics"
	"tradeengine/src/model"
	"tradeengine/src/notify"
)

// riskReporter receives realized closures so the daily risk state stays
// consistent with the open set.
type riskReporter interface {
	RecordClosure(symbol string, pnl float64)
}

// tradeJournal is the best-effort audit sink.
type tradeJournal interface {
	RecordExit(ctx context.Context, pos *model.Position)
}

// Ledger tracks open positions and their paired protective orders, enforces
// one-cancels-other on reconciliation and reports closures back to the risk
// gate. One ledger-wide lock guards the position set; the admission loop and
// the reconciliation loop both run against it.
type Ledger struct {
	mu        sync.Mutex
	adapter   broker.Adapter
	risk      riskReporter
	journal   tradeJournal
	notifier  notify.Notifier
	positions map[string]*model.Position // symbol -> open position
	archived  []*model.Position
	now       func() time.Time
}

func New(adapter broker.Adapter, risk riskReporter, journal tradeJournal, notifier notify.Notifier) *Ledger {
	if notifier == nil {
		notifier = notify.NullNotifier{}
	}
	return &Ledger{
		adapter:   adapter,
		risk:      risk,
		journal:   journal,
		notifier:  notifier,
		positions: map[string]*model.Position{},
		now:       time.Now,
	}
}

// BindRiskReporter attaches the closure sink after construction. The ledger
// and the risk gate reference each other, so one side binds late.
func (l *Ledger) BindRiskReporter(r riskReporter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.risk = r
}

// Track registers a new open position. At most one open position may exist
// per symbol.
func (l *Ledger) Track(pos *model.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.positions[pos.Symbol]; exists {
		return fmt.Errorf("position already open for %s", pos.Symbol)
	}

	pos.Status = model.PositionStatusOpen
	l.positions[pos.Symbol] = pos
	metrics.SetOpenPositions(len(l.positions))

	logger.WithFields(map[string]interface{}{
		"symbol": pos.Symbol,
		"qty":    pos.Quantity,
		"entry":  pos.EntryPrice,
	}).Info("position tracked")

	return nil
}

func (l *Ledger) HasOpenPosition(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[symbol]
	return ok
}

func (l *Ledger) OpenPositionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// OpenPositions returns copies of all open positions.
func (l *Ledger) OpenPositions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// Reconcile synchronizes every open position with the broker: re-places
// missing protective orders, applies OCO when one exit filled, and closes
// anomalies (both exits resolved) rather than leaving an unprotected
// position open. Closed positions leave the open set, so a second pass over
// the same state is a no-op.
func (l *Ledger) Reconcile(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, pos := range l.positions {
		l.reconcilePositionLocked(ctx, pos)
	}
	metrics.SetOpenPositions(len(l.positions))
}

func (l *Ledger) reconcilePositionLocked(ctx context.Context, pos *model.Position) {
	log := logger.WithField("symbol", pos.Symbol)

	// A protective order can be missing when its placement failed at entry
	// time. The position stays tracked; we keep retrying here until the
	// bracket is complete or an operator steps in.
	l.replaceMissingProtectiveLocked(ctx, pos)

	stopState, stopErr := l.queryExitLocked(ctx, pos.StopOrder)
	targetState, targetErr := l.queryExitLocked(ctx, pos.TargetOrder)
	if stopErr != nil || targetErr != nil {
		// Unknown outcome: resolved on the next pass.
		log.WithFields(map[string]interface{}{
			"stop_err":   stopErr,
			"target_err": targetErr,
		}).Warn("exit status unavailable, deferring to next reconcile pass")
		return
	}

	applyState(pos.StopOrder, stopState)
	applyState(pos.TargetOrder, targetState)

	stopFilled := pos.StopOrder != nil && pos.StopOrder.Status == model.OrderStatusFilled
	targetFilled := pos.TargetOrder != nil && pos.TargetOrder.Status == model.OrderStatusFilled
	stopCancelled := pos.StopOrder != nil && pos.StopOrder.Status == model.OrderStatusCancelled
	targetCancelled := pos.TargetOrder != nil && pos.TargetOrder.Status == model.OrderStatusCancelled

	switch {
	case stopFilled && targetFilled:
		// Race artifact: both exits triggered between passes. Close on the
		// earlier fill and flag for manual review.
		first := pos.StopOrder
		if earlierFill(pos.TargetOrder, pos.StopOrder) {
			first = pos.TargetOrder
		}
		pos.Anomaly = true
		metrics.IncAnomaly()
		l.closeLocked(ctx, pos, pos.RealizedPnlAt(first.FilledPrice), model.CloseReasonAnomaly)
		l.notifier.NotifyError("reconcile", fmt.Errorf("both exits filled for %s, closed on earlier fill", pos.Symbol))

	case stopFilled:
		l.cancelSiblingLocked(ctx, pos, pos.TargetOrder)
		l.closeLocked(ctx, pos, pos.RealizedPnlAt(pos.StopOrder.FilledPrice), model.CloseReasonStopLoss)

	case targetFilled:
		l.cancelSiblingLocked(ctx, pos, pos.StopOrder)
		l.closeLocked(ctx, pos, pos.RealizedPnlAt(pos.TargetOrder.FilledPrice), model.CloseReasonTarget)

	case stopCancelled && targetCancelled:
		// Both exits cancelled externally with no fill: nothing protects the
		// position anymore, so close it out of the book and escalate.
		pos.Anomaly = true
		metrics.IncAnomaly()
		l.closeLocked(ctx, pos, 0, model.CloseReasonCancelled)
		l.notifier.NotifyError("reconcile", fmt.Errorf("both exits cancelled externally for %s", pos.Symbol))
	}
}

// replaceMissingProtectiveLocked retries placement of protective orders that
// failed at execution time.
func (l *Ledger) replaceMissingProtectiveLocked(ctx context.Context, pos *model.Position) {
	if pos.StopOrder != nil && pos.StopOrder.Status == model.OrderStatusPending {
		l.placeProtectiveLocked(ctx, pos, pos.StopOrder, broker.OrderTypeStop)
	}
	if pos.TargetOrder != nil && pos.TargetOrder.Status == model.OrderStatusPending {
		l.placeProtectiveLocked(ctx, pos, pos.TargetOrder, broker.OrderTypeLimit)
	}
}

func (l *Ledger) placeProtectiveLocked(ctx context.Context, pos *model.Position, order *model.Order, typ broker.OrderType) {
	orderID, err := l.adapter.PlaceOrder(ctx, broker.OrderRequest{
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      order.Quantity,
		Type:          typ,
		Price:         order.Price,
	})
	if err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"symbol": pos.Symbol,
			"role":   order.Role,
		}).Error("failed to re-place protective order")
		return
	}

	order.OrderID = orderID
	order.Status = model.OrderStatusPlaced
	logger.WithFields(map[string]interface{}{
		"symbol":   pos.Symbol,
		"role":     order.Role,
		"order_id": orderID,
	}).Info("protective order placed on reconcile")
}

func (l *Ledger) queryExitLocked(ctx context.Context, order *model.Order) (broker.OrderState, error) {
	if order == nil || order.OrderID == "" {
		return broker.OrderState{}, nil
	}
	if order.Status.Terminal() {
		return broker.OrderState{
			OrderID:     order.OrderID,
			Status:      order.Status,
			FilledPrice: order.FilledPrice,
			FilledAt:    order.FilledAt,
		}, nil
	}

	state, err := broker.QueryOrderStatus(ctx, l.adapter, order.OrderID)
	if errors.Is(err, broker.ErrOrderNotFound) {
		// The broker has no record of it; treat as still resting and let a
		// later pass decide.
		return broker.OrderState{OrderID: order.OrderID, Status: order.Status}, nil
	}
	return state, err
}

// cancelSiblingLocked cancels the surviving exit order. Failure because the
// order already filled or was already cancelled is the expected race when
// both exits could trigger near-simultaneously, so it is logged, not raised.
func (l *Ledger) cancelSiblingLocked(ctx context.Context, pos *model.Position, sibling *model.Order) {
	if sibling == nil || sibling.OrderID == "" || sibling.Status.Terminal() {
		return
	}

	if err := l.adapter.CancelOrder(ctx, sibling.OrderID); err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"symbol":   pos.Symbol,
			"order_id": sibling.OrderID,
		}).Warn("could not cancel sibling exit order")
		return
	}
	sibling.Status = model.OrderStatusCancelled
}

func (l *Ledger) closeLocked(ctx context.Context, pos *model.Position, pnl float64, reason string) {
	now := l.now().UTC()
	pos.Status = model.PositionStatusClosed
	pos.ClosedAt = &now
	pos.RealizedPnl = pnl
	pos.CloseReason = reason

	delete(l.positions, pos.Symbol)
	l.archived = append(l.archived, pos)

	metrics.IncExitReason(reason)
	metrics.SetOpenPositions(len(l.positions))

	if l.risk != nil {
		l.risk.RecordClosure(pos.Symbol, pnl)
	}
	if l.journal != nil {
		l.journal.RecordExit(ctx, pos)
	}
	l.notifier.NotifyExit(pos)

	logger.WithFields(map[string]interface{}{
		"symbol": pos.Symbol,
		"pnl":    pnl,
		"reason": reason,
	}).Info("position closed")
}

// ForceCloseAll is the emergency liquidation hook: cancel every protective
// order best-effort, exit each position at market and close it with the
// given reason.
func (l *Ledger) ForceCloseAll(ctx context.Context, reason string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	closed := 0
	for _, pos := range l.positions {
		l.cancelSiblingLocked(ctx, pos, pos.StopOrder)
		l.cancelSiblingLocked(ctx, pos, pos.TargetOrder)

		exitPrice := pos.EntryPrice
		orderID, err := l.adapter.PlaceOrder(ctx, broker.OrderRequest{
			ClientOrderID: pos.SignalID + "-forced-exit",
			Symbol:        pos.Symbol,
			Side:          model.ExitSide(pos.Direction),
			Quantity:      pos.Quantity,
			Type:          broker.OrderTypeMarket,
		})
		if err != nil {
			logger.WithError(err).WithField("symbol", pos.Symbol).Error("forced exit placement failed")
			l.notifier.NotifyError("force close", fmt.Errorf("exit for %s failed: %w", pos.Symbol, err))
		} else if state, serr := broker.QueryOrderStatus(ctx, l.adapter, orderID); serr == nil && state.Status == model.OrderStatusFilled {
			exitPrice = state.FilledPrice
		}

		l.closeLocked(ctx, pos, pos.RealizedPnlAt(exitPrice), model.CloseReasonForced)
		closed++
	}

	if closed > 0 {
		l.notifier.NotifyStatus(fmt.Sprintf("force-closed %d position(s): %s", closed, reason))
	}

	logger.WithFields(map[string]interface{}{
		"closed": closed,
		"reason": reason,
	}).Warn("forced close of all positions")

	return closed
}

// Archived returns copies of closed positions, most recent last.
func (l *Ledger) Archived() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Position, 0, len(l.archived))
	for _, pos := range l.archived {
		out = append(out, *pos)
	}
	return out
}

func applyState(order *model.Order, state broker.OrderState) {
	if order == nil || state.OrderID == "" || order.Status.Terminal() {
		return
	}
	order.Status = state.Status
	if state.Status == model.OrderStatusFilled {
		order.FilledPrice = state.FilledPrice
		order.FilledAt = state.FilledAt
	}
}

func earlierFill(a, b *model.Order) bool {
	if a == nil || a.FilledAt == nil {
		return false
	}
	if b == nil || b.FilledAt == nil {
		return true
	}
	return a.FilledAt.Before(*b.FilledAt)
}
