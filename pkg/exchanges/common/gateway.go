package common

import "context"

// Gateway abstracts the trading venue connectivity. Outbound calls are
// fire-and-forget from the caller's point of view: outcomes arrive later on Events.
type Gateway interface {
	Connect(ctx context.Context, settings Settings) error
	SendOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, req CancelRequest) error
	Subscribe(ctx context.Context, req SubscribeRequest) error
	Events() <-chan Event
	Close() error
}

// ChannelStatus is implemented by gateways that track market-data and trading
// channels separately.
type ChannelStatus interface {
	Connected() (md, td bool)
}

// Querier is implemented by gateways that can be asked for account and position
// snapshots. Results arrive as AccountEvent / PositionEvent.
type Querier interface {
	QueryAccount(ctx context.Context) error
	QueryPosition(ctx context.Context) error
}
