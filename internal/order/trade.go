package order

import (
	"time"

	"github.com/google/uuid"
)

// Trade ties an order to one execution. Economic fields are fixed at creation;
// commission and tax are attached once through WithCosts.
type Trade struct {
	ID               string
	GatewayTradeID   string
	OrderID          string
	OrderBookID      string
	Side             Side
	PositionEffect   PositionEffect
	Price            float64
	Amount           float64
	CloseTodayAmount float64
	Commission       float64
	Tax              float64
	CalendarTime     time.Time
	TradingTime      time.Time

	costed bool
}

// NewTrade creates the trade fact for a fill of o.
func NewTrade(o *Order, gatewayTradeID string, price, amount, closeTodayAmount float64, tradingTime time.Time) *Trade {
	return &Trade{
		ID:               uuid.NewString(),
		GatewayTradeID:   gatewayTradeID,
		OrderID:          o.ID,
		OrderBookID:      o.OrderBookID,
		Side:             o.Side,
		PositionEffect:   o.PositionEffect,
		Price:            price,
		Amount:           amount,
		CloseTodayAmount: closeTodayAmount,
		CalendarTime:     o.TradingTime,
		TradingTime:      tradingTime,
	}
}

// WithCosts attaches commission and tax. Later calls are ignored.
func (t *Trade) WithCosts(commission, tax float64) *Trade {
	if t.costed {
		return t
	}
	t.Commission = commission
	t.Tax = tax
	t.costed = true
	return t
}

// Costed reports whether commission and tax were attached.
func (t *Trade) Costed() bool {
	return t.costed
}

// Notional is price times amount (before contract multiplier).
func (t *Trade) Notional() float64 {
	return t.Price * t.Amount
}
