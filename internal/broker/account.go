package broker

import (
	"sort"
	"sync"

	"futures-bridge/internal/order"
)

// AccountType classifies an account by the instruments it trades.
type AccountType string

const (
	AccountFuture AccountType = "FUTURE"
	AccountStock  AccountType = "STOCK"
)

// Account owns the order book and positions of one account type.
type Account struct {
	typ        AccountType
	commission *CommissionDecider
	tax        TaxDecider

	mu        sync.RWMutex
	orders    []*order.Order
	positions map[string]*Position
	cash      float64
}

func newAccount(typ AccountType, commission *CommissionDecider, tax TaxDecider) *Account {
	return &Account{
		typ:        typ,
		commission: commission,
		tax:        tax,
		positions:  make(map[string]*Position),
	}
}

func (a *Account) Type() AccountType { return a.typ }

// AppendOrder adds an order to the account's book.
func (a *Account) AppendOrder(o *order.Order) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders = append(a.orders, o)
}

// Orders returns the order book in submission order.
func (a *Account) Orders() []*order.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*order.Order(nil), a.orders...)
}

// CloseTodayAmount computes the close-today allocation of a prospective fill.
func (a *Account) CloseTodayAmount(orderBookID string, side order.Side, qty float64) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.positions[orderBookID]
	if !ok {
		return (&Position{}).CloseTodayAmount(qty, side)
	}
	return p.CloseTodayAmount(qty, side)
}

func (a *Account) Commission(t *order.Trade) float64 { return a.commission.Commission(t) }

func (a *Account) Tax(t *order.Trade) float64 { return a.tax.Tax(t) }

// ApplyTrade updates holdings and charges the trade's costs to cash. The engine
// calls it for every trade fact before the trade is published.
func (a *Account) ApplyTrade(t *order.Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[t.OrderBookID]
	if !ok {
		p = &Position{OrderBookID: t.OrderBookID}
		a.positions[t.OrderBookID] = p
	}
	p.apply(t)
	a.cash -= t.Commission + t.Tax
}

// Position returns a copy of the holdings for an instrument.
func (a *Account) Position(orderBookID string) (Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.positions[orderBookID]
	if !ok {
		return Position{OrderBookID: orderBookID}, false
	}
	return *p, true
}

// Positions returns copies of every position, sorted by instrument.
func (a *Account) Positions() []Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderBookID < out[j].OrderBookID })
	return out
}

// Cash is the account balance after costs charged by this process.
func (a *Account) Cash() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash
}

func (a *Account) reset(cash float64, positions map[string]*Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = cash
	a.positions = positions
}
