package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"futures-bridge/internal/broker"
	"futures-bridge/internal/engine"
	"futures-bridge/internal/events"
	"futures-bridge/internal/gateway"
	"futures-bridge/internal/instrument"
	"futures-bridge/internal/market"
	"futures-bridge/internal/order"
	"futures-bridge/internal/snapshot"
	"futures-bridge/pkg/config"
	"futures-bridge/pkg/exchanges/paper"
	"futures-bridge/pkg/logging"
)

// dry_run_demo drives a few order flows through the engine against the paper
// gateway. It does not touch a bridge or a database.
//
// Usage:
//   go run ./scripts/dry_run_demo
//
// It will:
//   1) open then close RB1810 and print the resulting position.
//   2) send an order for an instrument with no contract and show the rejection reason.
//   3) cancel a resting order before it fills.

var log = logging.For("demo")

func main() {
	logging.Setup("info", "text")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	commission := config.CommissionTable{
		Default: config.CommissionRate{Open: 0.0001, CloseToday: 0.0001, CloseYesterday: 0.0001, Multiplier: 10},
	}
	bus := events.NewBus()
	brk := broker.New(commission)
	gw := paper.New(paper.Config{Symbols: []string{"rb1810"}, Exchange: "SHFE", FillDelay: 100 * time.Millisecond})
	cache := snapshot.NewCache()
	eng := engine.New(engine.Config{
		Gateway:   gw,
		Broker:    brk,
		Bus:       bus,
		Contracts: instrument.NewTable(),
		Cache:     cache,
		Ticks:     market.NewQueue(64, 10*time.Millisecond),
	})
	session := gateway.NewSession(gw, eng, brk, cache, bus, gateway.Options{})
	session.Run(ctx)
	defer session.Exit()

	trades, unsub := bus.Subscribe(events.EventTrade, 16)
	defer unsub()

	if err := session.Connect(ctx); err != nil {
		log.WithError(err).Error("connect")
		os.Exit(1)
	}
	for len(eng.Contracts()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	log.Info("[SCENARIO 1] open then close RB1810")
	buy := order.NewLimit("RB1810", order.SideBuy, order.EffectOpen, 3800, 2)
	must(eng.SendOrder(ctx, buy))
	waitTrade(ctx, trades)
	sell := order.NewLimit("RB1810", order.SideSell, order.EffectCloseToday, 3810, 1)
	must(eng.SendOrder(ctx, sell))
	waitTrade(ctx, trades)

	log.Info("[SCENARIO 2] order for an unknown contract")
	ghost := order.NewLimit("CU1811", order.SideBuy, order.EffectOpen, 50000, 1)
	must(eng.SendOrder(ctx, ghost))
	log.WithField("status", ghost.Status).Info(ghost.Message)

	log.Info("[SCENARIO 3] cancel before fill")
	rest := order.NewLimit("RB1810", order.SideBuy, order.EffectOpen, 3700, 1)
	must(eng.SendOrder(ctx, rest))
	waitOpen(ctx, eng, rest.ID)
	if err := eng.CancelOrder(ctx, rest); err != nil {
		log.WithError(err).Info("cancel raced the fill")
	}
	time.Sleep(300 * time.Millisecond)

	acc, err := brk.Account(broker.AccountFuture)
	must(err)
	for _, p := range acc.Positions() {
		fmt.Printf("%s long=%.0f (today %.0f) short=%.0f\n", p.OrderBookID, p.BuyQuantity(), p.BuyToday, p.SellQuantity())
	}
	fmt.Printf("cash after costs: %.2f\n", acc.Cash())
}

func waitTrade(ctx context.Context, trades <-chan any) {
	select {
	case msg := <-trades:
		n := msg.(events.TradeNotice)
		log.WithField("commission", n.Trade.Commission).Infof("%s %s %.0f @ %.2f", n.Trade.OrderBookID, n.Trade.Side, n.Trade.Amount, n.Trade.Price)
	case <-ctx.Done():
		log.Warn("no trade before timeout")
	}
}

// waitOpen returns once the gateway acknowledged the order, so its echo is known.
func waitOpen(ctx context.Context, eng *engine.Engine, id string) {
	for ctx.Err() == nil {
		for _, o := range eng.OpenOrders() {
			if o.ID == id {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func must(err error) {
	if err != nil {
		log.WithError(err).Error("demo step failed")
		os.Exit(1)
	}
}
