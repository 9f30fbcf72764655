package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, ApplyMigrations(database))
	return database
}

func TestApplyMigrationsIsRepeatable(t *testing.T) {
	database := openTest(t)
	require.NoError(t, ApplyMigrations(database))

	ok, err := columnExists(database.DB, "orders", "message")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpsertOrderNeverRegresses(t *testing.T) {
	database := openTest(t)
	ctx := context.Background()
	created := time.Date(2018, 7, 2, 9, 30, 0, 0, time.UTC)

	base := Order{
		ID: "o-1", Account: "FUTURE", OrderBookID: "RB1810", Side: "BUY", Type: "LIMIT",
		PositionEffect: "OPEN", Price: 3800, Qty: 2, Status: "ACTIVE", CreatedAt: created,
	}
	require.NoError(t, database.UpsertOrder(ctx, base))

	filled := base
	filled.FilledQty, filled.AvgPrice, filled.Status = 2, 3800, "FILLED"
	require.NoError(t, database.UpsertOrder(ctx, filled))

	// a stale snapshot arriving late is ignored
	require.NoError(t, database.UpsertOrder(ctx, base))

	got, err := database.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "FILLED", got.Status)
	assert.Equal(t, 2.0, got.FilledQty)
	assert.Equal(t, "RB1810", got.OrderBookID)
	assert.WithinDuration(t, created, got.CreatedAt, time.Second)

	_, err = database.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTradesInsertedOnce(t *testing.T) {
	database := openTest(t)
	ctx := context.Background()
	tr := Trade{
		ID: "t-1", GatewayTradeID: "CTP.T1", OrderID: "o-1", Account: "FUTURE", OrderBookID: "RB1810",
		Side: "BUY", PositionEffect: "OPEN", Price: 3800, Qty: 2, Commission: 7.6,
		TradingTime: time.Date(2018, 7, 2, 9, 31, 0, 0, time.UTC),
	}
	require.NoError(t, database.InsertTrade(ctx, tr))
	require.NoError(t, database.InsertTrade(ctx, tr))

	trades, err := database.ListTrades(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "CTP.T1", trades[0].GatewayTradeID)
	assert.Equal(t, 7.6, trades[0].Commission)
}

func TestListOrdersNewestFirst(t *testing.T) {
	database := openTest(t)
	ctx := context.Background()
	t0 := time.Date(2018, 7, 2, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, database.UpsertOrder(ctx, Order{
			ID: id, Account: "FUTURE", OrderBookID: "RB1810", Side: "BUY", Type: "LIMIT",
			PositionEffect: "OPEN", Price: 1, Qty: 1, Status: "PENDING_NEW",
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}
	orders, err := database.ListOrders(ctx, 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "c", orders[0].ID)
	assert.Equal(t, "b", orders[1].ID)
}
