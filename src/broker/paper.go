package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradeengine/src/model"
)

// PaperAdapter is an in-memory broker used by simulate mode and tests. Limit
// and stop orders rest as PLACED until MarkFilled is called; market orders
// fill immediately at the symbol's mark price.
type PaperAdapter struct {
	mu     sync.Mutex
	seq    int
	funds  float64
	orders map[string]*paperOrder
	marks  map[string]float64
	now    func() time.Time
}

type paperOrder struct {
	req   OrderRequest
	state OrderState
}

func NewPaperAdapter(funds float64) *PaperAdapter {
	return &PaperAdapter{
		funds:  funds,
		orders: map[string]*paperOrder{},
		marks:  map[string]float64{},
		now:    time.Now,
	}
}

func (p *PaperAdapter) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	id := fmt.Sprintf("PAPER-%d", p.seq)

	order := &paperOrder{
		req:   req,
		state: OrderState{OrderID: id, Status: model.OrderStatusPlaced},
	}

	if req.Type == OrderTypeMarket {
		price := p.marks[req.Symbol]
		if price == 0 {
			price = req.Price
		}
		at := p.now().UTC()
		order.state.Status = model.OrderStatusFilled
		order.state.FilledPrice = price
		order.state.FilledQuantity = req.Quantity
		order.state.FilledAt = &at
	}

	p.orders[id] = order

	logger.WithFields(map[string]interface{}{
		"order_id": id,
		"symbol":   req.Symbol,
		"side":     req.Side,
		"type":     req.Type,
	}).Debug("paper order placed")

	return id, nil
}

func (p *PaperAdapter) CancelOrder(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.state.Status.Terminal() {
		return fmt.Errorf("order %s already %s", orderID, order.state.Status)
	}
	order.state.Status = model.OrderStatusCancelled
	return nil
}

func (p *PaperAdapter) GetOrderStatus(_ context.Context, orderID string) (OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return OrderState{}, ErrOrderNotFound
	}
	return order.state, nil
}

func (p *PaperAdapter) GetAvailableFunds(_ context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.funds, nil
}

// SetMarkPrice sets the fill price used for market orders on a symbol.
func (p *PaperAdapter) SetMarkPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

// MarkFilled forces a resting order to FILLED at the given price, emulating
// a broker-side fill between reconciliation passes.
func (p *PaperAdapter) MarkFilled(orderID string, price float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.state.Status.Terminal() {
		return fmt.Errorf("order %s already %s", orderID, order.state.Status)
	}

	at := p.now().UTC()
	order.state.Status = model.OrderStatusFilled
	order.state.FilledPrice = price
	order.state.FilledQuantity = order.req.Quantity
	order.state.FilledAt = &at
	return nil
}

// AdjustFunds shifts the simulated cash balance by delta.
func (p *PaperAdapter) AdjustFunds(delta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.funds += delta
}
