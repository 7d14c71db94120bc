package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradeengine/src/broker"
	"tradeengine/src/metrics"
	"tradeengine/src/model"
	"tradeengine/src/notify"
)

type positionTracker interface {
	Track(pos *model.Position) error
	HasOpenPosition(symbol string) bool
}

type riskReporter interface {
	RecordApproval(symbol string)
}

type tradeJournal interface {
	RecordEntry(ctx context.Context, pos *model.Position, mode string)
}

// Coordinator drives the order lifecycle for one admitted signal at a time:
// entry placement, fill confirmation and bracket creation, dispatched by
// execution mode.
type Coordinator struct {
	mode     Mode
	adapter  broker.Adapter
	ledger   positionTracker
	risk     riskReporter
	journal  tradeJournal
	notifier notify.Notifier

	brokerTimeout    time.Duration
	fillPollAttempts int
	fillPollDelay    time.Duration

	staged []broker.OrderRequest // manual-confirm holds entries here
	now    func() time.Time
}

func NewCoordinator(
	mode Mode,
	adapter broker.Adapter,
	ledger positionTracker,
	risk riskReporter,
	journal tradeJournal,
	notifier notify.Notifier,
	cfg Config,
) *Coordinator {
	if notifier == nil {
		notifier = notify.NullNotifier{}
	}
	return &Coordinator{
		mode:             mode,
		adapter:          adapter,
		ledger:           ledger,
		risk:             risk,
		journal:          journal,
		notifier:         notifier,
		brokerTimeout:    cfg.BrokerTimeout,
		fillPollAttempts: cfg.FillPollAttempts,
		fillPollDelay:    cfg.FillPollDelay,
		now:              time.Now,
	}
}

// Execute runs one admitted signal through the configured mode and returns
// the signal's terminal status. Exactly one entry attempt is made: a
// rejected entry is never retried, a fresh signal is expected instead.
func (c *Coordinator) Execute(ctx context.Context, sig *model.Signal, qty int64) model.SignalStatus {
	switch c.mode {
	case ModeSimulate:
		return c.simulate(ctx, sig, qty)
	case ModeNotifyOnly:
		return c.notifyOnly(sig)
	case ModeManualConfirm:
		return c.manualConfirm(sig, qty)
	case ModeLive:
		return c.live(ctx, sig, qty)
	}
	logger.WithField("mode", c.mode).Error("unknown execution mode")
	return model.SignalStatusRejected
}

// simulate synthesizes an immediate entry fill with no broker call, but the
// protective orders go through the paper adapter so OCO reconciliation runs
// exactly as it would live.
func (c *Coordinator) simulate(ctx context.Context, sig *model.Signal, qty int64) model.SignalStatus {
	now := c.now().UTC()
	entry := &model.Order{
		OrderID:       "SIM-" + uuid.NewString(),
		ClientOrderID: uuid.NewString(),
		Role:          model.OrderRoleEntry,
		Symbol:        sig.Symbol,
		Side:          model.EntrySide(sig.Direction),
		Quantity:      qty,
		Price:         sig.EntryPrice,
		Status:        model.OrderStatusFilled,
		FilledPrice:   sig.EntryPrice,
		FilledAt:      &now,
	}

	pos := c.buildPosition(sig, entry, qty)
	c.placeBracket(ctx, sig, pos)
	metrics.IncOrder(string(model.OrderRoleEntry), c.mode.String())

	if err := c.ledger.Track(pos); err != nil {
		logger.WithError(err).WithField("symbol", sig.Symbol).Error("failed to track simulated position")
		return model.SignalStatusRejected
	}

	c.risk.RecordApproval(sig.Symbol)
	c.journal.RecordEntry(ctx, pos, c.mode.String())
	c.notifier.NotifyEntry(pos)

	logger.WithFields(map[string]interface{}{
		"symbol": sig.Symbol,
		"side":   entry.Side,
		"qty":    qty,
		"entry":  sig.EntryPrice,
	}).Info("[simulate] entry filled")

	return model.SignalStatusExecuted
}

// notifyOnly emits the signal without committing capital.
func (c *Coordinator) notifyOnly(sig *model.Signal) model.SignalStatus {
	c.notifier.NotifySignal(sig)
	logger.WithFields(map[string]interface{}{
		"symbol": sig.Symbol,
		"entry":  sig.EntryPrice,
		"stop":   sig.StopPrice,
		"target": sig.TargetPrice,
	}).Info("[notify-only] signal emitted")
	return model.SignalStatusApproved
}

// manualConfirm notifies and stages the entry parameters for a
// human-triggered follow-up; nothing is placed.
func (c *Coordinator) manualConfirm(sig *model.Signal, qty int64) model.SignalStatus {
	c.notifier.NotifySignal(sig)
	c.staged = append(c.staged, broker.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        sig.Symbol,
		Side:          model.EntrySide(sig.Direction),
		Quantity:      qty,
		Type:          broker.OrderTypeLimit,
		Price:         sig.EntryPrice,
	})
	logger.WithField("symbol", sig.Symbol).Info("[manual-confirm] order staged for operator")
	return model.SignalStatusApproved
}

// StagedOrders returns the entries staged by manual-confirm mode.
func (c *Coordinator) StagedOrders() []broker.OrderRequest {
	out := make([]broker.OrderRequest, len(c.staged))
	copy(out, c.staged)
	return out
}

func (c *Coordinator) live(ctx context.Context, sig *model.Signal, qty int64) model.SignalStatus {
	// The gate checked pyramiding at admission time; re-verify right before
	// placement to close the race between admission and execution.
	if c.ledger.HasOpenPosition(sig.Symbol) {
		logger.WithField("symbol", sig.Symbol).Warn("position opened since admission, dropping signal")
		return model.SignalStatusRejected
	}

	entry := &model.Order{
		ClientOrderID: uuid.NewString(),
		Role:          model.OrderRoleEntry,
		Symbol:        sig.Symbol,
		Side:          model.EntrySide(sig.Direction),
		Quantity:      qty,
		Price:         sig.EntryPrice,
		Status:        model.OrderStatusPending,
	}

	placeCtx, cancel := context.WithTimeout(ctx, c.brokerTimeout)
	orderID, err := c.adapter.PlaceOrder(placeCtx, broker.OrderRequest{
		ClientOrderID: entry.ClientOrderID,
		Symbol:        entry.Symbol,
		Side:          entry.Side,
		Quantity:      entry.Quantity,
		Type:          broker.OrderTypeLimit,
		Price:         entry.Price,
	})
	cancel()

	if err != nil {
		if errors.Is(err, broker.ErrOrderRejected) {
			logger.WithError(err).WithField("symbol", sig.Symbol).Error("entry rejected by broker")
			c.notifier.NotifyError("entry", err)
			return model.SignalStatusRejected
		}
		// Timeout or transport failure: the outcome is unknown. The client
		// order id makes the attempt traceable; escalate instead of
		// retrying a write blind.
		logger.WithError(err).WithFields(map[string]interface{}{
			"symbol":          sig.Symbol,
			"client_order_id": entry.ClientOrderID,
		}).Error("entry outcome unknown, escalating for manual reconciliation")
		c.notifier.NotifyError("entry", fmt.Errorf("outcome unknown for %s (client order %s): %w",
			sig.Symbol, entry.ClientOrderID, err))
		return model.SignalStatusRejected
	}

	entry.OrderID = orderID
	entry.Status = model.OrderStatusPlaced
	metrics.IncOrder(string(model.OrderRoleEntry), c.mode.String())

	if !c.waitForFill(ctx, entry) {
		// Not confirmed filled within the poll budget: withdraw the entry so
		// no untracked position can appear later.
		cancelCtx, cancelFn := context.WithTimeout(ctx, c.brokerTimeout)
		if cerr := c.adapter.CancelOrder(cancelCtx, entry.OrderID); cerr != nil {
			logger.WithError(cerr).WithField("order_id", entry.OrderID).Warn("could not cancel unfilled entry")
			c.notifier.NotifyError("entry", fmt.Errorf("unfilled entry %s not cancelled: %w", entry.OrderID, cerr))
		}
		cancelFn()
		logger.WithField("symbol", sig.Symbol).Warn("entry not filled within poll budget")
		return model.SignalStatusRejected
	}

	pos := c.buildPosition(sig, entry, qty)
	c.placeBracket(ctx, sig, pos)

	// The position is tracked even when a protective placement failed: an
	// unprotected but tracked position can be repaired by reconciliation,
	// an untracked one cannot.
	if err := c.ledger.Track(pos); err != nil {
		logger.WithError(err).WithField("symbol", sig.Symbol).Error("failed to track live position")
		c.notifier.NotifyError("ledger", err)
		return model.SignalStatusRejected
	}

	c.risk.RecordApproval(sig.Symbol)
	c.journal.RecordEntry(ctx, pos, c.mode.String())
	c.notifier.NotifyEntry(pos)

	logger.WithFields(map[string]interface{}{
		"symbol":   sig.Symbol,
		"order_id": entry.OrderID,
		"qty":      qty,
	}).Info("[live] entry filled, bracket placed")

	return model.SignalStatusExecuted
}

// waitForFill polls the entry order status with a bounded budget. Status
// reads are idempotent, so transient errors inside QueryOrderStatus retry.
func (c *Coordinator) waitForFill(ctx context.Context, entry *model.Order) bool {
	for attempt := 0; attempt < c.fillPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(c.fillPollDelay):
			}
		}

		pollCtx, cancel := context.WithTimeout(ctx, c.brokerTimeout)
		state, err := broker.QueryOrderStatus(pollCtx, c.adapter, entry.OrderID)
		cancel()
		if err != nil {
			logger.WithError(err).WithField("order_id", entry.OrderID).Warn("entry status poll failed")
			continue
		}

		switch state.Status {
		case model.OrderStatusFilled:
			entry.Status = model.OrderStatusFilled
			entry.FilledPrice = state.FilledPrice
			entry.FilledAt = state.FilledAt
			return true
		case model.OrderStatusRejected, model.OrderStatusCancelled:
			entry.Status = state.Status
			return false
		}
	}
	return false
}

func (c *Coordinator) buildPosition(sig *model.Signal, entry *model.Order, qty int64) *model.Position {
	entryPrice := entry.FilledPrice
	if entryPrice == 0 {
		entryPrice = sig.EntryPrice
	}

	exitSide := model.ExitSide(sig.Direction)
	return &model.Position{
		Symbol:     sig.Symbol,
		SignalID:   sig.ID,
		Direction:  sig.Direction,
		Quantity:   qty,
		EntryPrice: entryPrice,
		EntryOrder: entry,
		StopOrder: &model.Order{
			ClientOrderID: uuid.NewString(),
			Role:          model.OrderRoleStop,
			Symbol:        sig.Symbol,
			Side:          exitSide,
			Quantity:      qty,
			Price:         sig.StopPrice,
			Status:        model.OrderStatusPending,
		},
		TargetOrder: &model.Order{
			ClientOrderID: uuid.NewString(),
			Role:          model.OrderRoleTarget,
			Symbol:        sig.Symbol,
			Side:          exitSide,
			Quantity:      qty,
			Price:         sig.TargetPrice,
			Status:        model.OrderStatusPending,
		},
		OpenedAt: c.now().UTC(),
		Status:   model.PositionStatusOpen,
	}
}

// placeBracket places the stop and target orders. A failure leaves the
// order PENDING for reconciliation to retry and raises an operator alert;
// it never prevents the position from being tracked.
func (c *Coordinator) placeBracket(ctx context.Context, sig *model.Signal, pos *model.Position) {
	c.placeProtective(ctx, sig, pos.StopOrder, broker.OrderTypeStop)
	c.placeProtective(ctx, sig, pos.TargetOrder, broker.OrderTypeLimit)
}

func (c *Coordinator) placeProtective(ctx context.Context, sig *model.Signal, order *model.Order, typ broker.OrderType) {
	placeCtx, cancel := context.WithTimeout(ctx, c.brokerTimeout)
	defer cancel()

	orderID, err := c.adapter.PlaceOrder(placeCtx, broker.OrderRequest{
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      order.Quantity,
		Type:          typ,
		Price:         order.Price,
	})
	if err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"symbol": sig.Symbol,
			"role":   order.Role,
		}).Error("protective order placement failed, position will be unprotected until reconcile")
		c.notifier.NotifyError("bracket", fmt.Errorf("%s order for %s failed: %w", order.Role, sig.Symbol, err))
		return
	}

	order.OrderID = orderID
	order.Status = model.OrderStatusPlaced
	metrics.IncOrder(string(order.Role), c.mode.String())
}
