package engine

import (
	"time"

	"futures-bridge/internal/market"
	"futures-bridge/internal/order"
	"futures-bridge/internal/snapshot"
	exchange "futures-bridge/pkg/exchanges/common"
)

// Service defines the read-only view of the engine.
// The API layer should only interact with the engine through this interface.
type Service interface {
	OpenOrders() []order.Order
	Contracts() map[string]exchange.Contract
	Snapshot() snapshot.State
	Cutover() (time.Time, bool)
}

var (
	_ Service           = (*Engine)(nil)
	_ market.TickSource = (*Engine)(nil)
)
