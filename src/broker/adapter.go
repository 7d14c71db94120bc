package broker

import (
	"context"
	"errors"
	"time"

	"tradeengine/src/model"
)

// ErrOrderRejected marks an explicit broker-side rejection (invalid price,
// insufficient margin, ...). Hard failure: the order is terminal, no retry.
var ErrOrderRejected = errors.New("order rejected by broker")

// ErrOrderNotFound is returned by status queries for unknown order ids.
var ErrOrderNotFound = errors.New("order not found")

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// OrderRequest describes one order placement. ClientOrderID is a
// caller-supplied idempotency key so an outcome lost to a timeout can be
// resolved by reconciliation instead of a blind retry.
type OrderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          model.OrderSide `json:"side"`
	Quantity      int64           `json:"quantity"`
	Type          OrderType       `json:"type"`
	Price         float64         `json:"price,omitempty"` // limit price or stop trigger
}

// OrderState is the broker-reported view of an order.
type OrderState struct {
	OrderID        string            `json:"order_id"`
	Status         model.OrderStatus `json:"status"`
	FilledPrice    float64           `json:"filled_price"`
	FilledQuantity int64             `json:"filled_quantity"`
	FilledAt       *time.Time        `json:"filled_at,omitempty"`
}

// Adapter is the abstract broker the engine trades through. All calls are
// synchronous and must respect the deadline on ctx; a timed-out call is an
// unknown outcome, never assumed failed or succeeded.
type Adapter interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (OrderState, error)
	GetAvailableFunds(ctx context.Context) (float64, error)
}

const (
	statusRetryAttempts  = 3
	statusRetryBaseDelay = 500 * time.Millisecond
)

// QueryOrderStatus retries the (idempotent) status read a bounded number of
// times with linear backoff. Write operations get no such helper: place and
// cancel are never auto-retried here.
func QueryOrderStatus(ctx context.Context, a Adapter, orderID string) (OrderState, error) {
	var lastErr error
	for attempt := 0; attempt < statusRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return OrderState{}, ctx.Err()
			case <-time.After(statusRetryBaseDelay * time.Duration(attempt)):
			}
		}

		state, err := a.GetOrderStatus(ctx, orderID)
		if err == nil {
			return state, nil
		}
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderRejected) {
			return OrderState{}, err
		}
		lastErr = err
	}
	return OrderState{}, lastErr
}
