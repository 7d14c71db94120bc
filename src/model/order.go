package model

import "time"

type OrderRole string

const (
	OrderRoleEntry  OrderRole = "ENTRY"
	OrderRoleStop   OrderRole = "STOP"
	OrderRoleTarget OrderRole = "TARGET"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPlaced          OrderStatus = "PLACED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

func (st OrderStatus) Terminal() bool {
	switch st {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is one broker-facing order. It is owned exclusively by the position
// it belongs to: created by the execution coordinator, mutated only by
// ledger reconciliation.
type Order struct {
	OrderID       string      `json:"order_id"` // broker-assigned once placed
	ClientOrderID string      `json:"client_order_id"`
	Role          OrderRole   `json:"role"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	Quantity      int64       `json:"quantity"`
	Price         float64     `json:"price"` // limit or trigger price by role
	Status        OrderStatus `json:"status"`
	FilledPrice   float64     `json:"filled_price,omitempty"`
	FilledAt      *time.Time  `json:"filled_at,omitempty"`
}

// EntrySide maps a trade direction to the side of its entry order.
func EntrySide(d Direction) OrderSide {
	if d == DirectionShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ExitSide maps a trade direction to the side of its protective orders.
func ExitSide(d Direction) OrderSide {
	if d == DirectionShort {
		return OrderSideBuy
	}
	return OrderSideSell
}
