package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOverfill  = errors.New("fill exceeds unfilled quantity")
	ErrEmptyFill = errors.New("fill amount must be positive")
)

// Side is the domain order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Type is the domain order type.
type Type string

const (
	TypeLimit  Type = "LIMIT"
	TypeMarket Type = "MARKET"
)

// PositionEffect says whether an order opens or closes a position.
type PositionEffect string

const (
	EffectOpen       PositionEffect = "OPEN"
	EffectClose      PositionEffect = "CLOSE"
	EffectCloseToday PositionEffect = "CLOSE_TODAY"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPendingNew      Status = "PENDING_NEW"
	StatusActive          Status = "ACTIVE"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// IsFinal reports whether no further transition is possible.
func (s Status) IsFinal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// rank orders the non-final states so transitions can only move forward.
func (s Status) rank() int {
	switch s {
	case StatusPendingNew:
		return 0
	case StatusActive:
		return 1
	case StatusPartiallyFilled:
		return 2
	default:
		return 3
	}
}

// Order is a local order owned by the strategy/broker side. Only the transition
// methods below mutate its state; identity never changes after creation.
type Order struct {
	ID              string
	OrderBookID     string
	Side            Side
	Type            Type
	PositionEffect  PositionEffect
	Price           float64
	Quantity        float64
	FilledQuantity  float64
	AvgPrice        float64
	TransactionCost float64
	Status          Status
	Message         string
	CreatedAt       time.Time
	TradingTime     time.Time
}

// New creates a pending order with a fresh id.
func New(orderBookID string, side Side, typ Type, effect PositionEffect, price, qty float64) *Order {
	now := time.Now()
	return &Order{
		ID:             uuid.NewString(),
		OrderBookID:    orderBookID,
		Side:           side,
		Type:           typ,
		PositionEffect: effect,
		Price:          price,
		Quantity:       qty,
		Status:         StatusPendingNew,
		CreatedAt:      now,
		TradingTime:    now,
	}
}

// NewLimit creates a pending limit order.
func NewLimit(orderBookID string, side Side, effect PositionEffect, price, qty float64) *Order {
	return New(orderBookID, side, TypeLimit, effect, price, qty)
}

// IsFinal reports whether the order reached a terminal state.
func (o *Order) IsFinal() bool {
	return o.Status.IsFinal()
}

// Unfilled returns the quantity still working.
func (o *Order) Unfilled() float64 {
	return o.Quantity - o.FilledQuantity
}

// Activate moves a pending order to ACTIVE. It reports whether the state changed.
func (o *Order) Activate() bool {
	if o.Status != StatusPendingNew {
		return false
	}
	o.Status = StatusActive
	return true
}

// MarkRejected terminates a live order as rejected.
func (o *Order) MarkRejected(reason string) bool {
	return o.terminate(StatusRejected, reason)
}

// MarkCancelled terminates a live order as cancelled.
func (o *Order) MarkCancelled(reason string) bool {
	return o.terminate(StatusCancelled, reason)
}

func (o *Order) terminate(s Status, reason string) bool {
	if o.IsFinal() {
		return false
	}
	o.Status = s
	o.Message = reason
	return true
}

// Fill applies a trade to the order, advancing filled quantity, average price and
// transaction cost. A live order moves to PARTIALLY_FILLED or FILLED; a cancelled
// or rejected order still books a late fill but keeps its terminal status.
func (o *Order) Fill(t *Trade) error {
	if t.Amount <= 0 {
		return ErrEmptyFill
	}
	if t.Amount > o.Unfilled()+1e-9 {
		return fmt.Errorf("fill %.4f on order %s with %.4f unfilled: %w", t.Amount, o.ID, o.Unfilled(), ErrOverfill)
	}

	filled := o.FilledQuantity + t.Amount
	o.AvgPrice = (o.AvgPrice*o.FilledQuantity + t.Price*t.Amount) / filled
	o.FilledQuantity = filled
	o.TransactionCost += t.Commission + t.Tax

	if o.IsFinal() {
		return nil
	}
	next := StatusPartiallyFilled
	if o.Unfilled() <= 1e-9 {
		next = StatusFilled
	}
	if next.rank() >= o.Status.rank() {
		o.Status = next
	}
	return nil
}
