// Package exchange defines the narrow interface the core uses to
// talk to an exchange (spec.md §6) and a reference REST/WebSocket
// implementation of it. The core never imports a concrete exchange
// SDK directly — only this interface.
package exchange

import (
	"context"
	"time"

	"github.com/kalshi-arb/arbcore/internal/domain"
)

// OrderStatus mirrors the exchange's lifecycle for a placed order.
type OrderStatus string

const (
	OrderLive      OrderStatus = "live"
	OrderFilled    OrderStatus = "filled"
	OrderPartial   OrderStatus = "partial"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
)

// PlaceOrderRequest is everything needed to submit one leg.
type PlaceOrderRequest struct {
	Ticker         string
	Side           domain.Side
	Action         domain.Action
	Count          int
	LimitPriceCent int
	ExpirationTime time.Time
	IdempotencyKey string
}

// OrderReport is the current known state of a submitted order.
type OrderReport struct {
	OrderID       string
	Status        OrderStatus
	FilledCount   int
	AvgPriceCent  int
}

// Client is the exchange adapter contract consumed by the execution
// engine, the market cache's ingestion path, and the risk governor's
// reconciliation loop.
type Client interface {
	ListOpenMarkets(ctx context.Context, cursor string) (markets []domain.Market, nextCursor string, err error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetOrderbook(ctx context.Context, ticker string) (domain.Quote, error)

	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (orderID string, err error)
	GetOrder(ctx context.Context, orderID string) (OrderReport, error)
	CancelOrder(ctx context.Context, orderID string) error

	ListPositions(ctx context.Context) (map[string]int, error)
}
