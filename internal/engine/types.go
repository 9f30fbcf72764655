package engine

import (
	"math"
	"sort"
	"time"

	"futures-bridge/internal/market"
	"futures-bridge/internal/order"
	"futures-bridge/internal/snapshot"
	exchange "futures-bridge/pkg/exchanges/common"
)

// OrderView is the JSON shape of an order.
type OrderView struct {
	ID              string    `json:"id"`
	OrderBookID     string    `json:"order_book_id"`
	Side            string    `json:"side"`
	Type            string    `json:"type"`
	PositionEffect  string    `json:"position_effect"`
	Price           float64   `json:"price"`
	Quantity        float64   `json:"quantity"`
	FilledQuantity  float64   `json:"filled_quantity"`
	AvgPrice        float64   `json:"avg_price"`
	TransactionCost float64   `json:"transaction_cost"`
	Status          string    `json:"status"`
	Message         string    `json:"message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewOrderView(o order.Order) OrderView {
	return OrderView{
		ID:              o.ID,
		OrderBookID:     o.OrderBookID,
		Side:            string(o.Side),
		Type:            string(o.Type),
		PositionEffect:  string(o.PositionEffect),
		Price:           o.Price,
		Quantity:        o.Quantity,
		FilledQuantity:  o.FilledQuantity,
		AvgPrice:        o.AvgPrice,
		TransactionCost: o.TransactionCost,
		Status:          string(o.Status),
		Message:         o.Message,
		CreatedAt:       o.CreatedAt,
	}
}

// TradeView is the JSON shape of a trade.
type TradeView struct {
	ID               string    `json:"id"`
	GatewayTradeID   string    `json:"gateway_trade_id"`
	OrderID          string    `json:"order_id"`
	OrderBookID      string    `json:"order_book_id"`
	Side             string    `json:"side"`
	PositionEffect   string    `json:"position_effect"`
	Price            float64   `json:"price"`
	Amount           float64   `json:"amount"`
	CloseTodayAmount float64   `json:"close_today_amount"`
	Commission       float64   `json:"commission"`
	Tax              float64   `json:"tax"`
	TradingTime      time.Time `json:"trading_time"`
}

func NewTradeView(t order.Trade) TradeView {
	return TradeView{
		ID:               t.ID,
		GatewayTradeID:   t.GatewayTradeID,
		OrderID:          t.OrderID,
		OrderBookID:      t.OrderBookID,
		Side:             string(t.Side),
		PositionEffect:   string(t.PositionEffect),
		Price:            t.Price,
		Amount:           t.Amount,
		CloseTodayAmount: t.CloseTodayAmount,
		Commission:       t.Commission,
		Tax:              t.Tax,
		TradingTime:      t.TradingTime,
	}
}

// ContractView is a contract with its order book id.
type ContractView struct {
	OrderBookID string `json:"order_book_id"`
	exchange.Contract
}

// ContractViews flattens a contract table, sorted by order book id.
func ContractViews(contracts map[string]exchange.Contract) []ContractView {
	out := make([]ContractView, 0, len(contracts))
	for id, c := range contracts {
		out = append(out, ContractView{OrderBookID: id, Contract: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderBookID < out[j].OrderBookID })
	return out
}

// PositionView is one folded gateway position.
type PositionView struct {
	OrderBookID string `json:"order_book_id"`
	exchange.Position
}

// SnapshotView is the JSON shape of the snapshot cache.
type SnapshotView struct {
	Account    *exchange.Account    `json:"account"`
	Positions  []PositionView       `json:"positions"`
	HistOrders []exchange.OrderEcho `json:"hist_orders"`
	HistTrades []exchange.TradeFill `json:"hist_trades"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

func NewSnapshotView(s snapshot.State) SnapshotView {
	v := SnapshotView{
		Account:    s.Account,
		Positions:  make([]PositionView, 0, len(s.Positions)),
		HistOrders: s.HistOrders,
		HistTrades: s.HistTrades,
		UpdatedAt:  s.UpdatedAt,
	}
	for k, p := range s.Positions {
		v.Positions = append(v.Positions, PositionView{OrderBookID: k.OrderBookID, Position: p})
	}
	sort.Slice(v.Positions, func(i, j int) bool {
		if v.Positions[i].OrderBookID != v.Positions[j].OrderBookID {
			return v.Positions[i].OrderBookID < v.Positions[j].OrderBookID
		}
		return v.Positions[i].Direction < v.Positions[j].Direction
	})
	return v
}

// TickView is the JSON shape of a tick. Values the gateway did not supply are null.
type TickView struct {
	OrderBookID    string     `json:"order_book_id"`
	Datetime       time.Time  `json:"datetime"`
	Open           *float64   `json:"open"`
	High           *float64   `json:"high"`
	Low            *float64   `json:"low"`
	Last           *float64   `json:"last"`
	PrevClose      *float64   `json:"prev_close"`
	Volume         *float64   `json:"volume"`
	TotalTurnover  *float64   `json:"total_turnover"`
	OpenInterest   *float64   `json:"open_interest"`
	PrevSettlement *float64   `json:"prev_settlement"`
	LimitUp        *float64   `json:"limit_up"`
	LimitDown      *float64   `json:"limit_down"`
	BidPrices      []*float64 `json:"bid_prices"`
	BidVolumes     []*float64 `json:"bid_volumes"`
	AskPrices      []*float64 `json:"ask_prices"`
	AskVolumes     []*float64 `json:"ask_volumes"`
}

func NewTickView(t market.Tick) TickView {
	return TickView{
		OrderBookID:    t.OrderBookID,
		Datetime:       t.Datetime,
		Open:           supplied(t.Open),
		High:           supplied(t.High),
		Low:            supplied(t.Low),
		Last:           supplied(t.Last),
		PrevClose:      supplied(t.PrevClose),
		Volume:         supplied(t.Volume),
		TotalTurnover:  supplied(t.TotalTurnover),
		OpenInterest:   supplied(t.OpenInterest),
		PrevSettlement: supplied(t.PrevSettlement),
		LimitUp:        supplied(t.LimitUp),
		LimitDown:      supplied(t.LimitDown),
		BidPrices:      ladder(t.BidPrices),
		BidVolumes:     ladder(t.BidVolumes),
		AskPrices:      ladder(t.AskPrices),
		AskVolumes:     ladder(t.AskVolumes),
	}
}

func TickViews(ticks []market.Tick) []TickView {
	out := make([]TickView, 0, len(ticks))
	for _, t := range ticks {
		out = append(out, NewTickView(t))
	}
	return out
}

// supplied maps NaN to nil; JSON has no NaN.
func supplied(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func ladder(levels [market.Levels]float64) []*float64 {
	out := make([]*float64, len(levels))
	for i, v := range levels {
		out[i] = supplied(v)
	}
	return out
}
