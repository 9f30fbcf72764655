package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Order is the journaled state of a local order.
type Order struct {
	ID              string
	Account         string
	OrderBookID     string
	Side            string
	Type            string
	PositionEffect  string
	Price           float64
	Qty             float64
	FilledQty       float64
	AvgPrice        float64
	TransactionCost float64
	Status          string
	Message         string
	CreatedAt       time.Time
}

// Trade is one journaled fill.
type Trade struct {
	ID             string
	GatewayTradeID string
	OrderID        string
	Account        string
	OrderBookID    string
	Side           string
	PositionEffect string
	Price          float64
	Qty            float64
	CloseTodayQty  float64
	Commission     float64
	Tax            float64
	TradingTime    time.Time
}

// UpsertOrderSQL writes an order snapshot. Final rows are never overwritten and
// filled quantity never goes backwards, so snapshots may arrive out of order.
const UpsertOrderSQL = `
	INSERT INTO orders (
		id, account, order_book_id, side, type, position_effect, price, qty,
		filled_qty, avg_price, transaction_cost, status, message, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
		filled_qty = excluded.filled_qty,
		avg_price = excluded.avg_price,
		transaction_cost = excluded.transaction_cost,
		status = excluded.status,
		message = excluded.message,
		updated_at = CURRENT_TIMESTAMP
	WHERE orders.status NOT IN ('FILLED', 'CANCELLED', 'REJECTED')
		AND excluded.filled_qty >= orders.filled_qty
`

// InsertTradeSQL writes a trade once.
const InsertTradeSQL = `
	INSERT OR IGNORE INTO trades (
		id, gateway_trade_id, order_id, account, order_book_id, side, position_effect,
		price, qty, close_today_qty, commission, tax, trading_time
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// OrderArgs returns the UpsertOrderSQL arguments for o.
func OrderArgs(o Order) []any {
	return []any{
		o.ID, o.Account, o.OrderBookID, o.Side, o.Type, o.PositionEffect, o.Price, o.Qty,
		o.FilledQty, o.AvgPrice, o.TransactionCost, o.Status, o.Message, o.CreatedAt.UTC(),
	}
}

// TradeArgs returns the InsertTradeSQL arguments for t.
func TradeArgs(t Trade) []any {
	return []any{
		t.ID, t.GatewayTradeID, t.OrderID, t.Account, t.OrderBookID, t.Side, t.PositionEffect,
		t.Price, t.Qty, t.CloseTodayQty, t.Commission, t.Tax, t.TradingTime.UTC(),
	}
}

// UpsertOrder writes one order snapshot outside any batch.
func (d *Database) UpsertOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, UpsertOrderSQL, OrderArgs(o)...)
	return err
}

// InsertTrade writes one trade outside any batch.
func (d *Database) InsertTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, InsertTradeSQL, TradeArgs(t)...)
	return err
}

const orderColumns = `id, account, order_book_id, side, type, position_effect, price, qty,
	filled_qty, avg_price, transaction_cost, status, COALESCE(message, ''), created_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Account, &o.OrderBookID, &o.Side, &o.Type, &o.PositionEffect,
		&o.Price, &o.Qty, &o.FilledQty, &o.AvgPrice, &o.TransactionCost, &o.Status, &o.Message, &o.CreatedAt)
	return o, err
}

// GetOrder returns one order by local id.
func (d *Database) GetOrder(ctx context.Context, id string) (Order, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Order{}, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}

// ListOrders returns the newest orders first.
func (d *Database) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListTrades returns the trades of one order, oldest first.
func (d *Database) ListTrades(ctx context.Context, orderID string) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, gateway_trade_id, order_id, account, order_book_id, side, position_effect,
			price, qty, close_today_qty, commission, tax, trading_time
		FROM trades
		WHERE order_id = ?
		ORDER BY trading_time ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.GatewayTradeID, &t.OrderID, &t.Account, &t.OrderBookID, &t.Side,
			&t.PositionEffect, &t.Price, &t.Qty, &t.CloseTodayQty, &t.Commission, &t.Tax, &t.TradingTime); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
