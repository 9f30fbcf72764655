package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "futures-bridge/pkg/exchanges/common"
)

func TestCacheFoldsPositionsByInstrumentAndDirection(t *testing.T) {
	c := NewCache()
	c.RecordPosition("RB1810", exchange.Position{Symbol: "rb1810", Direction: exchange.DirectionLong, Position: 2})
	c.RecordPosition("RB1810", exchange.Position{Symbol: "rb1810", Direction: exchange.DirectionShort, Position: 1})
	c.RecordPosition("RB1810", exchange.Position{Symbol: "rb1810", Direction: exchange.DirectionLong, Position: 5, YdPosition: 3})

	s := c.State()
	require.Len(t, s.Positions, 2)
	long := s.Positions[PositionKey{OrderBookID: "RB1810", Direction: exchange.DirectionLong}]
	assert.Equal(t, 5.0, long.Position)
	assert.Equal(t, 3.0, long.YdPosition)

	p, ok := c.Position("RB1810", exchange.DirectionShort)
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Position)
}

func TestCacheKeepsLatestAccount(t *testing.T) {
	c := NewCache()
	assert.Nil(t, c.State().Account)

	c.RecordAccount(exchange.Account{AccountID: "A1", Balance: 100})
	c.RecordAccount(exchange.Account{AccountID: "A1", Balance: 250})

	s := c.State()
	require.NotNil(t, s.Account)
	assert.Equal(t, 250.0, s.Account.Balance)
	assert.False(t, s.UpdatedAt.IsZero())
}

func TestCacheHistory(t *testing.T) {
	c := NewCache()
	c.InsertHistOrder(exchange.OrderEcho{GatewayOrderID: "CTP.1", Status: exchange.StatusNotTraded})
	c.InsertHistOrder(exchange.OrderEcho{GatewayOrderID: "CTP.2", Status: exchange.StatusNotTraded})
	c.InsertHistOrder(exchange.OrderEcho{GatewayOrderID: "CTP.1", Status: exchange.StatusAllTraded})
	c.InsertHistTrade(exchange.TradeFill{TradeID: "T1", GatewayOrderID: "CTP.1", TradeTime: time.Now()})

	s := c.State()
	require.Len(t, s.HistOrders, 2)
	assert.Equal(t, "CTP.1", s.HistOrders[0].GatewayOrderID)
	assert.Equal(t, exchange.StatusAllTraded, s.HistOrders[0].Status)
	require.Len(t, s.HistTrades, 1)

	// the returned state is a copy
	s.HistTrades[0].TradeID = "changed"
	assert.Equal(t, "T1", c.State().HistTrades[0].TradeID)
}
