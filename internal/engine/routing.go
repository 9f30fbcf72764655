package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"futures-bridge/internal/events"
	"futures-bridge/internal/order"
	exchange "futures-bridge/pkg/exchanges/common"
)

// SendOrder books o to its account and routes it to the gateway. An order whose
// instrument has no known contract is cancelled locally and never routed.
// A gateway submission failure rejects the order and is returned.
func (e *Engine) SendOrder(ctx context.Context, o *order.Order) error {
	acc, err := e.account()
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.publishOrder(events.EventOrderPendingNew, o)
	acc.AppendOrder(o)

	contract, ok := e.contracts.Get(o.OrderBookID)
	if !ok {
		log.WithField("order_book_id", o.OrderBookID).Error("no contract for order")
		if o.MarkCancelled(fmt.Sprintf("No contract exists whose order_book_id is %s", o.OrderBookID)) {
			e.publishOrder(events.EventOrderCancellationPass, o)
		}
		e.metrics.OrderRouted("no_contract")
	}
	if o.IsFinal() {
		e.mu.Unlock()
		return nil
	}

	req, err := orderRequest(o, contract)
	if err != nil {
		o.MarkRejected(err.Error())
		e.publishOrder(events.EventOrderCreationReject, o)
		e.metrics.OrderRouted("unmapped")
		e.mu.Unlock()
		return err
	}
	e.inflight++
	e.mu.Unlock()

	start := time.Now()
	gatewayID, err := e.gw.SendOrder(ctx, req)
	e.metrics.ObserveSend(start)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if err != nil {
		o.MarkRejected(err.Error())
		e.publishOrder(events.EventOrderCreationReject, o)
		e.metrics.OrderRouted("gateway_error")
		e.release("")
		return fmt.Errorf("send order %s: %w", o.ID, err)
	}
	e.orders[gatewayID] = o
	e.metrics.OrderRouted("sent")

	log.WithFields(logrus.Fields{
		"order_id":         o.ID,
		"gateway_order_id": gatewayID,
		"order_book_id":    o.OrderBookID,
		"side":             o.Side,
		"qty":              o.Quantity,
		"price":            o.Price,
	}).Info("order routed")
	e.release(gatewayID)
	return nil
}

func orderRequest(o *order.Order, c exchange.Contract) (exchange.OrderRequest, error) {
	direction, err := order.GatewayDirection(o.Side)
	if err != nil {
		return exchange.OrderRequest{}, err
	}
	priceType, err := order.GatewayPriceType(o.Type)
	if err != nil {
		return exchange.OrderRequest{}, err
	}
	offset, err := order.GatewayOffset(o.PositionEffect)
	if err != nil {
		return exchange.OrderRequest{}, err
	}
	return exchange.OrderRequest{
		Symbol:      c.Symbol,
		Exchange:    c.Exchange,
		Price:       o.Price,
		Volume:      o.Quantity,
		Direction:   direction,
		PriceType:   priceType,
		Offset:      offset,
		Currency:    exchange.CurrencyCNY,
		ProductType: exchange.ProductFutures,
	}, nil
}

// CancelOrder asks the gateway to cancel o. Local state only changes when the
// gateway later echoes the cancellation.
func (e *Engine) CancelOrder(ctx context.Context, o *order.Order) error {
	e.mu.Lock()
	e.publishOrder(events.EventOrderPendingCancel, o)
	echo, ok := e.echoes[o.ID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel order %s: %w", o.ID, ErrUnknownOrder)
	}

	req := exchange.CancelRequest{
		Symbol:    echo.Symbol,
		Exchange:  echo.Exchange,
		OrderID:   echo.OrderID,
		SessionID: echo.SessionID,
		FrontID:   echo.FrontID,
	}
	if err := e.gw.CancelOrder(ctx, req); err != nil {
		return fmt.Errorf("cancel order %s: %w", o.ID, err)
	}
	return nil
}

// Subscribe requests market data for an instrument. Unknown contracts are a
// no-op: definitions may not have arrived yet.
func (e *Engine) Subscribe(ctx context.Context, orderBookID string) error {
	c, ok := e.contracts.Get(orderBookID)
	if !ok {
		log.WithField("order_book_id", orderBookID).Debug("subscribe skipped, contract unknown")
		return nil
	}
	return e.gw.Subscribe(ctx, exchange.SubscribeRequest{
		Symbol:      c.Symbol,
		Exchange:    c.Exchange,
		Currency:    exchange.CurrencyCNY,
		ProductType: exchange.ProductFutures,
	})
}
