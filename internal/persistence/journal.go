package persistence

import (
	"context"
	"sync"
	"time"

	"futures-bridge/internal/events"
	"futures-bridge/internal/order"
	"futures-bridge/pkg/db"
)

const journalBuffer = 1024

var journalTopics = []events.Event{
	events.EventOrderPendingNew,
	events.EventOrderCreationPass,
	events.EventOrderCreationReject,
	events.EventOrderPendingCancel,
	events.EventOrderCancellationPass,
	events.EventTrade,
}

// Journal records every order snapshot and trade published on the bus.
type Journal struct {
	bus    *events.Bus
	writer *BatchWriter

	wg     sync.WaitGroup
	cancel context.CancelFunc
	unsubs []func()
}

func NewJournal(bus *events.Bus, database *db.Database, batchSize int, interval time.Duration) *Journal {
	return &Journal{
		bus:    bus,
		writer: NewBatchWriter(database.DB, batchSize, interval),
	}
}

// Start subscribes to the lifecycle topics. Call Close to stop.
func (j *Journal) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	for _, topic := range journalTopics {
		ch, unsub := j.bus.Subscribe(topic, journalBuffer)
		j.unsubs = append(j.unsubs, unsub)
		j.wg.Add(1)
		go j.consume(ctx, ch)
	}
	log.WithField("topics", len(journalTopics)).Info("journal started")
}

func (j *Journal) consume(ctx context.Context, ch <-chan any) {
	defer j.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			j.record(msg)
		}
	}
}

func (j *Journal) record(msg any) {
	switch n := msg.(type) {
	case events.OrderNotice:
		j.writer.WriteQuery(db.UpsertOrderSQL, db.OrderArgs(orderRow(n.Account, n.Order))...)
	case events.TradeNotice:
		j.writer.WriteQuery(db.UpsertOrderSQL, db.OrderArgs(orderRow(n.Account, n.Order))...)
		j.writer.WriteQuery(db.InsertTradeSQL, db.TradeArgs(tradeRow(n.Account, n.Trade))...)
	default:
		log.Warnf("unexpected journal payload %T", msg)
	}
}

// Flush writes everything buffered so far.
func (j *Journal) Flush() error {
	return j.writer.Flush()
}

// Stats exposes the writer counters.
func (j *Journal) Stats() BatchWriterStats {
	return j.writer.Stats()
}

// Close unsubscribes, waits for the consumers and flushes the writer.
func (j *Journal) Close() error {
	if j.cancel != nil {
		j.cancel()
	}
	for _, unsub := range j.unsubs {
		unsub()
	}
	j.unsubs = nil
	j.wg.Wait()
	return j.writer.Close()
}

func orderRow(account string, o order.Order) db.Order {
	return db.Order{
		ID:              o.ID,
		Account:         account,
		OrderBookID:     o.OrderBookID,
		Side:            string(o.Side),
		Type:            string(o.Type),
		PositionEffect:  string(o.PositionEffect),
		Price:           o.Price,
		Qty:             o.Quantity,
		FilledQty:       o.FilledQuantity,
		AvgPrice:        o.AvgPrice,
		TransactionCost: o.TransactionCost,
		Status:          string(o.Status),
		Message:         o.Message,
		CreatedAt:       o.CreatedAt,
	}
}

func tradeRow(account string, t order.Trade) db.Trade {
	return db.Trade{
		ID:             t.ID,
		GatewayTradeID: t.GatewayTradeID,
		OrderID:        t.OrderID,
		Account:        account,
		OrderBookID:    t.OrderBookID,
		Side:           string(t.Side),
		PositionEffect: string(t.PositionEffect),
		Price:          t.Price,
		Qty:            t.Amount,
		CloseTodayQty:  t.CloseTodayAmount,
		Commission:     t.Commission,
		Tax:            t.Tax,
		TradingTime:    t.TradingTime,
	}
}
