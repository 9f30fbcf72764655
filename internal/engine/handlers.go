package engine

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"futures-bridge/internal/events"
	"futures-bridge/internal/instrument"
	"futures-bridge/internal/market"
	"futures-bridge/internal/order"
	exchange "futures-bridge/pkg/exchanges/common"
)

const (
	reasonGatewayCancelled = "Order was cancelled by the gateway."
	reasonGatewayRejected  = "Order was rejected by the gateway."
)

// OnOrder reconciles an order status echo.
func (e *Engine) OnOrder(echo exchange.OrderEcho) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onOrder(echo)
}

func (e *Engine) onOrder(echo exchange.OrderEcho) {
	if e.hold(echo.GatewayOrderID, exchange.OrderEvent{Order: echo}) {
		return
	}
	if !e.live {
		e.cache.InsertHistOrder(echo)
		return
	}

	o, ok := e.orders[echo.GatewayOrderID]
	if !ok {
		log.WithFields(logrus.Fields{
			"gateway_order_id": echo.GatewayOrderID,
			"symbol":           echo.Symbol,
			"status":           echo.Status,
		}).Error("order echo for unknown gateway order id dropped")
		e.metrics.DroppedEvent("unknown_order")
		return
	}

	if o.Activate() {
		e.publishOrder(events.EventOrderCreationPass, o)
	}
	e.echoes[o.ID] = echo

	switch echo.Status {
	case exchange.StatusNotTraded, exchange.StatusPartTraded:
		if !o.IsFinal() {
			e.open[echo.GatewayOrderID] = o
		}
	case exchange.StatusAllTraded:
		delete(e.open, echo.GatewayOrderID)
	case exchange.StatusCancelled:
		delete(e.open, echo.GatewayOrderID)
		if o.MarkCancelled(reasonGatewayCancelled) {
			e.publishOrder(events.EventOrderCancellationPass, o)
		}
	case exchange.StatusRejected:
		delete(e.open, echo.GatewayOrderID)
		if o.MarkRejected(reasonGatewayRejected) {
			e.publishOrder(events.EventOrderCreationReject, o)
		}
	default:
		log.WithFields(logrus.Fields{
			"gateway_order_id": echo.GatewayOrderID,
			"status":           echo.Status,
		}).Debug("order echo with unhandled status")
	}
	e.metrics.SetOpenOrders(len(e.open))
}

// OnTrade turns a gateway fill into exactly one costed trade fact and applies it
// to the account before the trade notice is published.
func (e *Engine) OnTrade(fill exchange.TradeFill) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrade(fill)
}

func (e *Engine) onTrade(fill exchange.TradeFill) {
	if e.hold(fill.GatewayOrderID, exchange.TradeEvent{Trade: fill}) {
		return
	}
	if !e.live {
		e.cache.InsertHistTrade(fill)
	}

	fields := logrus.Fields{"trade_id": fill.TradeID, "gateway_order_id": fill.GatewayOrderID}
	if fill.TradeID != "" {
		if _, dup := e.seenTrades[fill.TradeID]; dup {
			log.WithFields(fields).Warn("duplicate trade event dropped")
			e.metrics.DroppedEvent("duplicate_trade")
			return
		}
	}

	origin := "known"
	o, ok := e.orders[fill.GatewayOrderID]
	if !ok {
		if !e.live || !fill.TradeTime.After(e.cutoverAt) {
			log.WithFields(fields).Debug("trade for unknown order before cutover left to history")
			e.metrics.DroppedEvent("pre_cutover_trade")
			return
		}
		var err error
		o, err = orderFromTrade(fill)
		if err != nil {
			log.WithFields(fields).WithError(err).Error("cannot synthesize order from trade")
			e.metrics.DroppedEvent(dropReason(err))
			return
		}
		origin = "synthesized"
		log.WithFields(fields).WithField("order_id", o.ID).Info("synthesized order for unmatched trade")
	}

	acc, err := e.account()
	if err != nil {
		log.WithFields(fields).WithError(err).Error("no account for trade")
		e.metrics.DroppedEvent("no_account")
		return
	}

	closeToday := acc.CloseTodayAmount(o.OrderBookID, o.Side, fill.Volume)
	t := order.NewTrade(o, fill.TradeID, fill.Price, fill.Volume, closeToday, fill.TradeTime)
	t.WithCosts(acc.Commission(t), acc.Tax(t))

	if err := o.Fill(t); err != nil {
		log.WithFields(fields).WithError(err).Error("fill refused by order")
		e.metrics.DroppedEvent("fill_refused")
		return
	}
	if fill.TradeID != "" {
		e.seenTrades[fill.TradeID] = struct{}{}
	}
	acc.ApplyTrade(t)
	if o.IsFinal() {
		delete(e.open, fill.GatewayOrderID)
		e.metrics.SetOpenOrders(len(e.open))
	}
	e.metrics.TradeApplied(origin)
	e.bus.Publish(events.EventTrade, events.TradeNotice{Account: string(e.accountType), Order: *o, Trade: *t})
}

// orderFromTrade builds a local order for a fill whose originating order this
// process never submitted.
func orderFromTrade(fill exchange.TradeFill) (*order.Order, error) {
	id, err := instrument.OrderBookID(fill.Symbol)
	if err != nil {
		return nil, err
	}
	side, err := order.SideFromGateway(fill.Direction)
	if err != nil {
		return nil, err
	}
	effect, err := order.PositionEffectFromGateway(fill.Offset)
	if err != nil {
		return nil, err
	}
	o := order.NewLimit(id, side, effect, fill.Price, fill.Volume)
	o.TradingTime = fill.TradeTime
	o.Activate()
	return o, nil
}

// OnContract records contract metadata, last write wins.
func (e *Engine) OnContract(c exchange.Contract) {
	if _, err := e.contracts.Upsert(c); err != nil {
		log.WithField("symbol", c.Symbol).WithError(err).Warn("contract dropped")
		e.metrics.DroppedEvent(dropReason(err))
	}
}

// OnTick normalizes a tick and hands it to the tick queue.
func (e *Engine) OnTick(raw exchange.Tick) {
	t, err := market.Normalize(raw)
	if err != nil {
		log.WithField("symbol", raw.Symbol).WithError(err).Warn("tick dropped")
		e.metrics.DroppedEvent(dropReason(err))
		return
	}
	if err := e.ticks.Put(context.Background(), t); err != nil {
		log.WithField("order_book_id", t.OrderBookID).WithError(err).Warn("tick not queued")
		e.metrics.DroppedEvent("tick_queue")
	}
	e.metrics.SetTickQueueDepth(e.ticks.Len())
}

// OnPosition folds a position push into the snapshot cache.
func (e *Engine) OnPosition(p exchange.Position) {
	id, err := instrument.OrderBookID(p.Symbol)
	if err != nil {
		log.WithField("symbol", p.Symbol).WithError(err).Warn("position dropped")
		e.metrics.DroppedEvent(dropReason(err))
		return
	}
	e.cache.RecordPosition(id, p)
}

// OnAccount keeps the latest account push.
func (e *Engine) OnAccount(a exchange.Account) {
	e.cache.RecordAccount(a)
}

// OnLog forwards gateway diagnostics.
func (e *Engine) OnLog(l exchange.LogLine) {
	gatewayLog.WithField("gateway_time", l.Time).Debug(l.Content)
}

// hold parks an order or trade event whose gateway id is not bound yet while a
// submission is in flight: the id may be the one SendOrder is about to bind.
func (e *Engine) hold(gatewayID string, ev exchange.Event) bool {
	if e.inflight == 0 || gatewayID == "" || e.held >= maxHeld {
		return false
	}
	if _, ok := e.orders[gatewayID]; ok {
		return false
	}
	e.early[gatewayID] = append(e.early[gatewayID], ev)
	e.held++
	return true
}

// release replays the events parked for gatewayID and, once no submission is in
// flight, every other parked event through the normal unknown-id path.
func (e *Engine) release(gatewayID string) {
	if gatewayID != "" {
		e.replay(gatewayID)
	}
	if e.inflight > 0 {
		return
	}
	for id := range e.early {
		e.replay(id)
	}
}

func (e *Engine) replay(gatewayID string) {
	evs := e.early[gatewayID]
	delete(e.early, gatewayID)
	e.held -= len(evs)
	for _, ev := range evs {
		switch v := ev.(type) {
		case exchange.OrderEvent:
			e.onOrder(v.Order)
		case exchange.TradeEvent:
			e.onTrade(v.Trade)
		}
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, instrument.ErrSymbolTooShort):
		return "short_symbol"
	case errors.Is(err, order.ErrUnmappedDirection), errors.Is(err, order.ErrUnmappedOffset):
		return "unmapped_enum"
	case errors.Is(err, market.ErrBadTimestamp):
		return "bad_timestamp"
	default:
		return "invalid"
	}
}
