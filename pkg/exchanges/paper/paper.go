// Package paper is an in-process gateway that fills every order at its limit
// price. It is used for dry runs and local development.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	exchange "futures-bridge/pkg/exchanges/common"
	"futures-bridge/pkg/logging"
)

var (
	ErrClosed       = errors.New("paper gateway closed")
	ErrNotConnected = errors.New("paper gateway not connected")
	ErrBadVolume    = errors.New("order volume must be positive")
	ErrUnknownOrder = errors.New("paper gateway has no such order")
)

var log = logging.For("paper")

// Config controls the simulation.
type Config struct {
	Symbols      []string // contracts published on connect
	Exchange     string
	Balance      float64
	LatencyMin   time.Duration // delay before the order is acknowledged
	LatencyMax   time.Duration
	FillDelay    time.Duration // delay between acknowledgement and fill
	TickInterval time.Duration // 0 disables synthetic ticks
	StartPrice   float64
	Step         float64
	EventBuffer  int
}

type paperOrder struct {
	echo exchange.OrderEcho
}

type holding struct {
	today, old float64
}

// Gateway is the paper trading gateway.
type Gateway struct {
	cfg    Config
	events chan exchange.Event

	mu        sync.Mutex
	rng       *rand.Rand
	seq       int
	tradeSeq  int
	orders    map[string]*paperOrder // venue order id -> order
	subs      map[string]bool
	holdings  map[string]map[exchange.Direction]*holding
	prices    map[string]float64
	connected bool
	closed    bool

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ exchange.Gateway       = (*Gateway)(nil)
	_ exchange.ChannelStatus = (*Gateway)(nil)
	_ exchange.Querier       = (*Gateway)(nil)
)

func New(cfg Config) *Gateway {
	if cfg.Exchange == "" {
		cfg.Exchange = "PAPER"
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}
	if cfg.StartPrice == 0 {
		cfg.StartPrice = 3800
	}
	if cfg.Step == 0 {
		cfg.Step = 1
	}
	if cfg.LatencyMax < cfg.LatencyMin {
		cfg.LatencyMin, cfg.LatencyMax = cfg.LatencyMax, cfg.LatencyMin
	}
	return &Gateway{
		cfg:      cfg,
		events:   make(chan exchange.Event, cfg.EventBuffer),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		orders:   make(map[string]*paperOrder),
		subs:     make(map[string]bool),
		holdings: make(map[string]map[exchange.Direction]*holding),
		prices:   make(map[string]float64),
		done:     make(chan struct{}),
	}
}

// Connect publishes a contract for every configured symbol. Reconnecting only
// republishes them.
func (g *Gateway) Connect(_ context.Context, _ exchange.Settings) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	first := !g.connected
	g.connected = true
	g.mu.Unlock()

	g.emit(exchange.LogEvent{Log: exchange.LogLine{Time: time.Now().Format("15:04:05"), Content: "paper gateway connected"}})
	for _, sym := range g.cfg.Symbols {
		g.emit(exchange.ContractEvent{Contract: exchange.Contract{
			Symbol:      sym,
			Exchange:    g.cfg.Exchange,
			Name:        strings.ToUpper(sym),
			ProductType: exchange.ProductFutures,
			Size:        10,
			PriceTick:   1,
		}})
	}
	if first && g.cfg.TickInterval > 0 {
		g.goSafe(g.tickLoop)
	}
	return nil
}

func (g *Gateway) SendOrder(_ context.Context, req exchange.OrderRequest) (string, error) {
	if req.Volume <= 0 {
		return "", ErrBadVolume
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return "", ErrClosed
	}
	if !g.connected {
		g.mu.Unlock()
		return "", ErrNotConnected
	}

	g.seq++
	venueID := strconv.Itoa(g.seq)
	o := &paperOrder{echo: exchange.OrderEcho{
		GatewayOrderID: "PAPER." + venueID,
		OrderID:        venueID,
		SessionID:      1,
		FrontID:        1,
		Symbol:         req.Symbol,
		Exchange:       req.Exchange,
		Direction:      req.Direction,
		Offset:         req.Offset,
		Price:          req.Price,
		TotalVolume:    req.Volume,
		Status:         exchange.StatusNotTraded,
		OrderTime:      time.Now().Format("15:04:05"),
	}}
	g.orders[venueID] = o
	latency := g.latency()
	id := o.echo.GatewayOrderID
	g.mu.Unlock()

	g.goSafe(func() { g.work(o, latency) })
	return id, nil
}

// work acknowledges then fills an order unless it is cancelled in between.
func (g *Gateway) work(o *paperOrder, latency time.Duration) {
	if !g.sleep(latency) {
		return
	}
	g.mu.Lock()
	if o.echo.Status != exchange.StatusNotTraded {
		g.mu.Unlock()
		return
	}
	ack := o.echo
	g.mu.Unlock()
	g.emit(exchange.OrderEvent{Order: ack})

	if !g.sleep(g.cfg.FillDelay) {
		return
	}
	g.mu.Lock()
	if o.echo.Status != exchange.StatusNotTraded {
		g.mu.Unlock()
		return
	}
	g.tradeSeq++
	fill := exchange.TradeFill{
		TradeID:        "PAPER.T" + strconv.Itoa(g.tradeSeq),
		GatewayOrderID: o.echo.GatewayOrderID,
		Symbol:         o.echo.Symbol,
		Exchange:       o.echo.Exchange,
		Direction:      o.echo.Direction,
		Offset:         o.echo.Offset,
		Price:          o.echo.Price,
		Volume:         o.echo.TotalVolume,
		TradeTime:      time.Now(),
	}
	o.echo.TradedVolume = o.echo.TotalVolume
	o.echo.Status = exchange.StatusAllTraded
	done := o.echo
	g.applyFill(fill)
	g.mu.Unlock()

	g.emit(exchange.TradeEvent{Trade: fill})
	g.emit(exchange.OrderEvent{Order: done})
}

func (g *Gateway) applyFill(f exchange.TradeFill) {
	sym := f.Symbol
	if f.Offset == exchange.OffsetOpen {
		h := g.holding(sym, f.Direction)
		h.today += f.Volume
		return
	}
	// closing a long sells, closing a short buys
	held := exchange.DirectionShort
	if f.Direction == exchange.DirectionShort {
		held = exchange.DirectionLong
	}
	h := g.holding(sym, held)
	left := f.Volume
	if f.Offset != exchange.OffsetCloseToday {
		n := minf(left, h.old)
		h.old -= n
		left -= n
	}
	h.today -= minf(left, h.today)
}

func (g *Gateway) holding(sym string, d exchange.Direction) *holding {
	if g.holdings[sym] == nil {
		g.holdings[sym] = make(map[exchange.Direction]*holding)
	}
	h, ok := g.holdings[sym][d]
	if !ok {
		h = &holding{}
		g.holdings[sym][d] = h
	}
	return h
}

func (g *Gateway) CancelOrder(_ context.Context, req exchange.CancelRequest) error {
	g.mu.Lock()
	o, ok := g.orders[req.OrderID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOrder, req.OrderID)
	}
	if o.echo.Status != exchange.StatusNotTraded {
		g.mu.Unlock()
		return nil
	}
	o.echo.Status = exchange.StatusCancelled
	o.echo.CancelTime = time.Now().Format("15:04:05")
	echo := o.echo
	g.mu.Unlock()

	g.goSafe(func() { g.emit(exchange.OrderEvent{Order: echo}) })
	return nil
}

func (g *Gateway) Subscribe(_ context.Context, req exchange.SubscribeRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.subs[req.Symbol] = true
	return nil
}

// Subscribed reports whether market data was requested for a symbol.
func (g *Gateway) Subscribed(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subs[symbol]
}

func (g *Gateway) QueryAccount(context.Context) error {
	g.goSafe(func() {
		g.emit(exchange.AccountEvent{Account: exchange.Account{
			AccountID:  "paper",
			PreBalance: g.cfg.Balance,
			Balance:    g.cfg.Balance,
			Available:  g.cfg.Balance,
		}})
	})
	return nil
}

func (g *Gateway) QueryPosition(context.Context) error {
	g.mu.Lock()
	var out []exchange.Position
	for sym, byDir := range g.holdings {
		for d, h := range byDir {
			out = append(out, exchange.Position{
				Symbol:     sym,
				Exchange:   g.cfg.Exchange,
				Direction:  d,
				Position:   h.today + h.old,
				YdPosition: h.old,
			})
		}
	}
	g.mu.Unlock()

	g.goSafe(func() {
		for _, p := range out {
			g.emit(exchange.PositionEvent{Position: p})
		}
	})
	return nil
}

func (g *Gateway) Events() <-chan exchange.Event { return g.events }

// Connected reports both channels up once Connect has run.
func (g *Gateway) Connected() (md, td bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected, g.connected
}

// Close stops background work and closes the event stream. Safe to call twice.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		g.connected = false
		g.mu.Unlock()
		close(g.done)
		g.wg.Wait()
		close(g.events)
	})
	return nil
}

// tickLoop random-walks a price per subscribed symbol.
func (g *Gateway) tickLoop() {
	t := time.NewTicker(g.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-g.done:
			return
		case now := <-t.C:
			for _, tick := range g.nextTicks(now) {
				g.emit(exchange.TickEvent{Tick: tick})
			}
		}
	}
}

func (g *Gateway) nextTicks(now time.Time) []exchange.Tick {
	g.mu.Lock()
	defer g.mu.Unlock()
	ticks := make([]exchange.Tick, 0, len(g.subs))
	for sym := range g.subs {
		price, ok := g.prices[sym]
		if !ok {
			price = g.cfg.StartPrice
		}
		price += (g.rng.Float64()*2 - 1) * g.cfg.Step
		g.prices[sym] = price

		last, bid, ask := price, price-g.cfg.Step, price+g.cfg.Step
		tick := exchange.Tick{
			Symbol:    sym,
			Exchange:  g.cfg.Exchange,
			Date:      now.Format("20060102"),
			Time:      now.Format("15:04:05.000"),
			LastPrice: &last,
		}
		tick.BidPrices[0] = &bid
		tick.AskPrices[0] = &ask
		ticks = append(ticks, tick)
	}
	return ticks
}

func (g *Gateway) latency() time.Duration {
	span := g.cfg.LatencyMax - g.cfg.LatencyMin
	if span <= 0 {
		return g.cfg.LatencyMin
	}
	return g.cfg.LatencyMin + time.Duration(g.rng.Int63n(int64(span)+1))
}

// emit delivers an event unless the gateway is closing.
func (g *Gateway) emit(ev exchange.Event) {
	select {
	case g.events <- ev:
	case <-g.done:
		log.WithField("kind", ev.Kind()).Debug("event discarded on close")
	}
}

func (g *Gateway) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-g.done:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-g.done:
		return false
	}
}

// goSafe runs fn tracked by the close wait group. It is a no-op once closed.
// Callers must not hold g.mu.
func (g *Gateway) goSafe(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
