package broker

import (
	"math"

	"futures-bridge/internal/order"
)

// Position tracks futures holdings for one instrument. Holdings opened before the
// current trading day are "old"; the rest are "today".
type Position struct {
	OrderBookID string

	BuyOld    float64
	BuyToday  float64
	SellOld   float64
	SellToday float64

	BuyAvgPrice  float64
	SellAvgPrice float64
}

func (p *Position) BuyQuantity() float64  { return p.BuyOld + p.BuyToday }
func (p *Position) SellQuantity() float64 { return p.SellOld + p.SellToday }

// CloseTodayAmount is the part of a fill of qty on side that closes holdings
// opened today: whatever exceeds the old holding on the opposite side.
func (p *Position) CloseTodayAmount(qty float64, side order.Side) float64 {
	old := p.SellOld
	if side == order.SideSell {
		old = p.BuyOld
	}
	return math.Max(qty-old, 0)
}

func (p *Position) apply(t *order.Trade) {
	switch t.PositionEffect {
	case order.EffectOpen:
		if t.Side == order.SideBuy {
			p.BuyAvgPrice = weighted(p.BuyAvgPrice, p.BuyQuantity(), t.Price, t.Amount)
			p.BuyToday += t.Amount
		} else {
			p.SellAvgPrice = weighted(p.SellAvgPrice, p.SellQuantity(), t.Price, t.Amount)
			p.SellToday += t.Amount
		}
	case order.EffectClose, order.EffectCloseToday:
		today := t.CloseTodayAmount
		if t.PositionEffect == order.EffectCloseToday {
			today = t.Amount
		}
		old := t.Amount - today
		// selling closes longs, buying closes shorts
		if t.Side == order.SideSell {
			p.BuyOld = math.Max(p.BuyOld-old, 0)
			p.BuyToday = math.Max(p.BuyToday-today, 0)
		} else {
			p.SellOld = math.Max(p.SellOld-old, 0)
			p.SellToday = math.Max(p.SellToday-today, 0)
		}
	}
}

func weighted(avg, qty, price, amount float64) float64 {
	total := qty + amount
	if total == 0 {
		return 0
	}
	return (avg*qty + price*amount) / total
}
