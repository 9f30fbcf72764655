package broker

import (
	"github.com/shopspring/decimal"

	"futures-bridge/internal/order"
	"futures-bridge/pkg/config"
)

// CommissionDecider prices a trade by money: notional times the rate for its
// position effect. The close-today share of a closing trade uses its own rate.
type CommissionDecider struct {
	table config.CommissionTable
}

func NewCommissionDecider(table config.CommissionTable) *CommissionDecider {
	return &CommissionDecider{table: table}
}

// Commission returns the fee for t rounded to cents.
func (d *CommissionDecider) Commission(t *order.Trade) float64 {
	r := d.table.Rate(t.OrderBookID)
	mult := r.Multiplier
	if mult == 0 {
		mult = 1
	}
	price := decimal.NewFromFloat(t.Price).Mul(decimal.NewFromFloat(mult))

	var fee decimal.Decimal
	switch t.PositionEffect {
	case order.EffectOpen:
		fee = price.Mul(decimal.NewFromFloat(t.Amount)).Mul(decimal.NewFromFloat(r.Open))
	case order.EffectCloseToday:
		fee = price.Mul(decimal.NewFromFloat(t.Amount)).Mul(decimal.NewFromFloat(r.CloseToday))
	default:
		today := decimal.NewFromFloat(t.CloseTodayAmount)
		old := decimal.NewFromFloat(t.Amount).Sub(today)
		fee = price.Mul(today).Mul(decimal.NewFromFloat(r.CloseToday)).
			Add(price.Mul(old).Mul(decimal.NewFromFloat(r.CloseYesterday)))
	}
	v, _ := fee.Round(2).Float64()
	return v
}

// TaxDecider prices taxes on a trade.
type TaxDecider interface {
	Tax(t *order.Trade) float64
}

// FuturesTax charges nothing: exchange-traded futures carry no stamp duty.
type FuturesTax struct{}

func (FuturesTax) Tax(*order.Trade) float64 { return 0 }
