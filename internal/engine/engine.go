// Package engine reconciles local orders and trades against the asynchronous
// event stream of a futures trading gateway.
//
// Gateway order ids are the join key. An id is bound to its local order when the
// gateway accepts the submission. Order and trade events for unbound ids that
// arrive while a submission is in flight are parked and replayed once the id is
// bound, so no event for an id is handled before its binding. Before the
// warm-start cutover, order and trade events are archived into the snapshot
// cache rather than reconciled.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"futures-bridge/internal/broker"
	"futures-bridge/internal/events"
	"futures-bridge/internal/instrument"
	"futures-bridge/internal/market"
	"futures-bridge/internal/monitor"
	"futures-bridge/internal/order"
	"futures-bridge/internal/snapshot"
	exchange "futures-bridge/pkg/exchanges/common"
	"futures-bridge/pkg/logging"
)

// ErrUnknownOrder is returned when cancelling an order the gateway never echoed.
var ErrUnknownOrder = errors.New("no gateway echo recorded for order")

// maxHeld bounds the events parked while submissions are in flight.
const maxHeld = 1024

var (
	log        = logging.For("engine")
	gatewayLog = logging.For("gateway")
)

// Broker resolves the account owning an order.
type Broker interface {
	Account(t broker.AccountType) (*broker.Account, error)
}

// Config wires an Engine to its collaborators. Gateway, Broker, Contracts, Cache
// and Ticks are required; Bus and Metrics may be nil.
type Config struct {
	Gateway   exchange.Gateway
	Broker    Broker
	Bus       *events.Bus
	Contracts *instrument.Table
	Cache     *snapshot.Cache
	Ticks     *market.Queue
	Metrics   *monitor.Metrics
}

// Engine is the order/trade reconciliation state machine. Handlers run on the
// single dispatch loop; outbound calls may come from any goroutine.
type Engine struct {
	gw        exchange.Gateway
	broker    Broker
	bus       *events.Bus
	contracts *instrument.Table
	cache     *snapshot.Cache
	ticks     *market.Queue
	metrics   *monitor.Metrics

	// every order is booked to a single account type
	accountType broker.AccountType

	mu         sync.Mutex
	orders     map[string]*order.Order       // gateway order id -> local order, set by SendOrder
	echoes     map[string]exchange.OrderEcho // local order id -> latest echo, for cancel routing
	open       map[string]*order.Order       // gateway order id -> acknowledged, not yet final
	seenTrades map[string]struct{}           // gateway trade ids already applied
	early      map[string][]exchange.Event   // gateway order id -> events parked during submission
	held       int
	inflight   int
	cutoverAt  time.Time
	live       bool
}

func New(cfg Config) *Engine {
	return &Engine{
		gw:          cfg.Gateway,
		broker:      cfg.Broker,
		bus:         cfg.Bus,
		contracts:   cfg.Contracts,
		cache:       cfg.Cache,
		ticks:       cfg.Ticks,
		metrics:     cfg.Metrics,
		accountType: broker.AccountFuture,
		orders:      make(map[string]*order.Order),
		echoes:      make(map[string]exchange.OrderEcho),
		open:        make(map[string]*order.Order),
		seenTrades:  make(map[string]struct{}),
		early:       make(map[string][]exchange.Event),
	}
}

// Run drains gateway events until ctx is done or the gateway closes its stream.
func (e *Engine) Run(ctx context.Context) error {
	stream := e.gw.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				log.Info("gateway event stream closed")
				return nil
			}
			e.Dispatch(ev)
		}
	}
}

// Dispatch routes one gateway event to its handler. A panicking handler is
// logged and the event dropped.
func (e *Engine) Dispatch(ev exchange.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("kind", ev.Kind()).Errorf("handler panic: %v", r)
			e.metrics.DroppedEvent("panic")
		}
	}()
	e.metrics.GatewayEvent(string(ev.Kind()))

	switch v := ev.(type) {
	case exchange.OrderEvent:
		e.OnOrder(v.Order)
	case exchange.TradeEvent:
		e.OnTrade(v.Trade)
	case exchange.ContractEvent:
		e.OnContract(v.Contract)
	case exchange.TickEvent:
		e.OnTick(v.Tick)
	case exchange.PositionEvent:
		e.OnPosition(v.Position)
	case exchange.AccountEvent:
		e.OnAccount(v.Account)
	case exchange.LogEvent:
		e.OnLog(v.Log)
	}
}

// MarkCutover records the warm-start cutover. Only the first call has effect.
func (e *Engine) MarkCutover(at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live {
		return false
	}
	e.cutoverAt = at
	e.live = true
	log.WithField("cutover", at.Format(time.RFC3339Nano)).Info("live reconciliation started")
	return true
}

// Cutover returns the cutover time and whether it has happened.
func (e *Engine) Cutover() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cutoverAt, e.live
}

// OpenOrders returns copies of the acknowledged, non-final orders, oldest first.
func (e *Engine) OpenOrders() []order.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]order.Order, 0, len(e.open))
	for _, o := range e.open {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetTick blocks until a normalized tick is available or ctx is done.
func (e *Engine) GetTick(ctx context.Context) (market.Tick, error) {
	return e.ticks.Get(ctx)
}

// Contracts returns the known contracts keyed by order book id.
func (e *Engine) Contracts() map[string]exchange.Contract {
	return e.contracts.Snapshot()
}

// Snapshot returns the accumulated gateway account state.
func (e *Engine) Snapshot() snapshot.State {
	return e.cache.State()
}

func (e *Engine) account() (*broker.Account, error) {
	return e.broker.Account(e.accountType)
}

// publishOrder sends a copy of o so subscribers never share the live order.
func (e *Engine) publishOrder(topic events.Event, o *order.Order) {
	e.bus.Publish(topic, events.OrderNotice{Account: string(e.accountType), Order: *o})
}
