package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-bridge/internal/order"
	"futures-bridge/internal/snapshot"
	"futures-bridge/pkg/config"
	exchange "futures-bridge/pkg/exchanges/common"
)

var table = config.CommissionTable{
	Default: config.CommissionRate{Open: 0.0001, CloseToday: 0.0003, CloseYesterday: 0.0001, Multiplier: 10},
}

func trade(side order.Side, effect order.PositionEffect, price, amount, closeToday float64) *order.Trade {
	o := order.NewLimit("RB1810", side, effect, price, amount)
	return order.NewTrade(o, "T", price, amount, closeToday, time.Now())
}

func TestCloseTodayAmount(t *testing.T) {
	p := &Position{BuyOld: 3, SellOld: 1}
	assert.Equal(t, 0.0, p.CloseTodayAmount(2, order.SideSell))
	assert.Equal(t, 2.0, p.CloseTodayAmount(5, order.SideSell))
	assert.Equal(t, 1.0, p.CloseTodayAmount(2, order.SideBuy))
}

func TestApplyTradeOpensAndCloses(t *testing.T) {
	b := New(table)
	acc, err := b.Account(AccountFuture)
	require.NoError(t, err)

	acc.ApplyTrade(trade(order.SideBuy, order.EffectOpen, 3800, 2, 0))
	acc.ApplyTrade(trade(order.SideBuy, order.EffectOpen, 3810, 2, 0))
	p, ok := acc.Position("RB1810")
	require.True(t, ok)
	assert.Equal(t, 4.0, p.BuyToday)
	assert.InDelta(t, 3805, p.BuyAvgPrice, 1e-9)

	ct := acc.CloseTodayAmount("RB1810", order.SideSell, 3)
	assert.Equal(t, 3.0, ct)
	acc.ApplyTrade(trade(order.SideSell, order.EffectClose, 3820, 3, ct))
	p, _ = acc.Position("RB1810")
	assert.Equal(t, 1.0, p.BuyToday)
	assert.Equal(t, 0.0, p.BuyOld)
}

func TestCommission(t *testing.T) {
	d := NewCommissionDecider(table)

	// 3800 * 10 * 2 * 0.0001
	assert.Equal(t, 7.6, d.Commission(trade(order.SideBuy, order.EffectOpen, 3800, 2, 0)))
	// 1 today at 0.0003 plus 1 old at 0.0001
	assert.Equal(t, 15.2, d.Commission(trade(order.SideSell, order.EffectClose, 3800, 2, 1)))
	assert.Equal(t, 22.8, d.Commission(trade(order.SideSell, order.EffectCloseToday, 3800, 2, 0)))
	assert.Equal(t, 0.0, FuturesTax{}.Tax(trade(order.SideSell, order.EffectClose, 3800, 2, 0)))
}

func TestUnknownAccount(t *testing.T) {
	_, err := New(table).Account(AccountStock)
	require.ErrorIs(t, err, ErrUnknownAccount)
}

func TestInitAccount(t *testing.T) {
	b := New(table)
	acc, _ := b.Account(AccountFuture)
	acc.ApplyTrade(trade(order.SideBuy, order.EffectOpen, 3800, 1, 0))

	b.InitAccount(nil)
	assert.True(t, b.Initialized())
	assert.Empty(t, acc.Positions())

	b.InitAccount(&snapshot.State{
		Account: &exchange.Account{Balance: 1_000_000},
		Positions: map[snapshot.PositionKey]exchange.Position{
			{OrderBookID: "RB1810", Direction: exchange.DirectionLong}:  {Position: 5, YdPosition: 3, Price: 3700},
			{OrderBookID: "RB1810", Direction: exchange.DirectionShort}: {Position: 2, YdPosition: 2},
		},
	})
	p, ok := acc.Position("RB1810")
	require.True(t, ok)
	assert.Equal(t, 3.0, p.BuyOld)
	assert.Equal(t, 2.0, p.BuyToday)
	assert.Equal(t, 2.0, p.SellOld)
	assert.Equal(t, 1_000_000.0, acc.Cash())
	assert.Equal(t, 0.0, acc.CloseTodayAmount("RB1810", order.SideSell, 3))
}

func TestInitAccountKeepsOrderBook(t *testing.T) {
	b := New(table)
	acc, _ := b.Account(AccountFuture)
	o := order.NewLimit("RB1810", order.SideBuy, order.EffectOpen, 3800, 1)
	acc.AppendOrder(o)

	b.InitAccount(&snapshot.State{Account: &exchange.Account{Balance: 10}})
	require.Len(t, acc.Orders(), 1)
	assert.Same(t, o, acc.Orders()[0])

	b.InitAccount(nil)
	assert.Len(t, acc.Orders(), 1)
}

func TestSequentialClosesSeeEarlierCloses(t *testing.T) {
	b := New(table)
	acc, _ := b.Account(AccountFuture)
	b.InitAccount(&snapshot.State{
		Positions: map[snapshot.PositionKey]exchange.Position{
			{OrderBookID: "RB1810", Direction: exchange.DirectionLong}: {Position: 3, YdPosition: 2},
		},
	})

	var got []float64
	for _, qty := range []float64{1, 2} {
		ct := acc.CloseTodayAmount("RB1810", order.SideSell, qty)
		got = append(got, ct)
		acc.ApplyTrade(trade(order.SideSell, order.EffectClose, 3800, qty, ct))
	}
	assert.Equal(t, []float64{0, 1}, got)
	p, _ := acc.Position("RB1810")
	assert.Zero(t, p.BuyQuantity())
}
