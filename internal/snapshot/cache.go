// Package snapshot accumulates position and account pushes from the gateway and
// archives order/trade events seen before live reconciliation starts.
package snapshot

import (
	"sync"
	"time"

	exchange "futures-bridge/pkg/exchanges/common"
)

// PositionKey identifies a folded position row.
type PositionKey struct {
	OrderBookID string
	Direction   exchange.Direction
}

// State is the consolidated view handed to the broker at warm start.
type State struct {
	Account    *exchange.Account
	Positions  map[PositionKey]exchange.Position
	HistOrders []exchange.OrderEcho
	HistTrades []exchange.TradeFill
	UpdatedAt  time.Time
}

// Cache folds snapshots in memory. There is no eviction; a cache lives as long as
// its gateway connection.
type Cache struct {
	mu         sync.RWMutex
	account    *exchange.Account
	positions  map[PositionKey]exchange.Position
	histOrders map[string]exchange.OrderEcho
	orderSeq   []string
	histTrades []exchange.TradeFill
	lastUpdate time.Time
}

func NewCache() *Cache {
	return &Cache{
		positions:  make(map[PositionKey]exchange.Position),
		histOrders: make(map[string]exchange.OrderEcho),
	}
}

// RecordPosition folds a position push; the latest push per instrument and
// direction wins.
func (c *Cache) RecordPosition(orderBookID string, p exchange.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[PositionKey{OrderBookID: orderBookID, Direction: p.Direction}] = p
	c.lastUpdate = time.Now()
}

// RecordAccount keeps the latest account push.
func (c *Cache) RecordAccount(a exchange.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account = &a
	c.lastUpdate = time.Now()
}

// InsertHistOrder archives an order echo. Later echoes of the same gateway order
// replace earlier ones but keep their original position in the history.
func (c *Cache) InsertHistOrder(o exchange.OrderEcho) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.histOrders[o.GatewayOrderID]; !ok {
		c.orderSeq = append(c.orderSeq, o.GatewayOrderID)
	}
	c.histOrders[o.GatewayOrderID] = o
	c.lastUpdate = time.Now()
}

// InsertHistTrade archives a trade fill.
func (c *Cache) InsertHistTrade(t exchange.TradeFill) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histTrades = append(c.histTrades, t)
	c.lastUpdate = time.Now()
}

// Position returns the folded position for an instrument and direction.
func (c *Cache) Position(orderBookID string, d exchange.Direction) (exchange.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[PositionKey{OrderBookID: orderBookID, Direction: d}]
	return p, ok
}

// State returns a copy of everything accumulated so far.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := State{
		Positions:  make(map[PositionKey]exchange.Position, len(c.positions)),
		HistOrders: make([]exchange.OrderEcho, 0, len(c.orderSeq)),
		HistTrades: append([]exchange.TradeFill(nil), c.histTrades...),
		UpdatedAt:  c.lastUpdate,
	}
	if c.account != nil {
		a := *c.account
		s.Account = &a
	}
	for k, p := range c.positions {
		s.Positions[k] = p
	}
	for _, id := range c.orderSeq {
		s.HistOrders = append(s.HistOrders, c.histOrders[id])
	}
	return s
}
