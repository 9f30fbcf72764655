package events

import "futures-bridge/internal/order"

// Event enumerates high-level topics inside the bridge.
type Event string

const (
	EventOrderPendingNew       Event = "order.pending_new"
	EventOrderCreationPass     Event = "order.creation_pass"
	EventOrderCreationReject   Event = "order.creation_reject"
	EventOrderPendingCancel    Event = "order.pending_cancel"
	EventOrderCancellationPass Event = "order.cancellation_pass"
	EventTrade                 Event = "trade"
	EventPriceTick             Event = "price_tick"
	EventUniverseChanged       Event = "universe_changed"
)

// OrderNotice carries a copy of the order taken when the notice was published.
// Account is the owning account type.
type OrderNotice struct {
	Account string
	Order   order.Order
}

// TradeNotice carries the trade fact and the order state right after the fill.
type TradeNotice struct {
	Account string
	Order   order.Order
	Trade   order.Trade
}

// UniverseChange lists the instruments the strategy wants to trade.
type UniverseChange struct {
	OrderBookIDs []string
}
