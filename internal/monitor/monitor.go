package monitor

import (
	"context"
	"fmt"
	"time"

	"futures-bridge/internal/events"
	"futures-bridge/pkg/logging"
)

var log = logging.For("monitor")

// Monitor watches lifecycle notices that need an operator's attention: orders
// refused before reaching the gateway and orders cancelled by the gateway.
type Monitor struct {
	Bus     *events.Bus
	Sink    AlertSink
	Metrics *Metrics
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		log.Warn("monitor not fully configured; skipping")
		return
	}
	rejects, unsubRejects := m.Bus.Subscribe(events.EventOrderCreationReject, 50)
	cancels, unsubCancels := m.Bus.Subscribe(events.EventOrderCancellationPass, 50)
	go func() {
		defer unsubRejects()
		defer unsubCancels()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-rejects:
				if !ok {
					return
				}
				m.raise(events.EventOrderCreationReject, msg)
			case msg, ok := <-cancels:
				if !ok {
					return
				}
				m.raise(events.EventOrderCancellationPass, msg)
			}
		}
	}()
}

func (m *Monitor) raise(topic events.Event, msg any) {
	m.Metrics.Alert(string(topic))
	if err := m.Sink.Send(formatAlert(topic, msg)); err != nil {
		log.WithError(err).Warn("alert delivery failed")
	}
}

func formatAlert(topic events.Event, msg any) string {
	return "[" + time.Now().Format(time.RFC3339) + "] " + string(topic) + ": " + toString(msg)
}

func toString(v any) string {
	switch t := v.(type) {
	case events.OrderNotice:
		return fmt.Sprintf("order %s %s %s %.0f@%.2f %s (%s)",
			t.Order.ID, t.Order.OrderBookID, t.Order.Side, t.Order.Quantity, t.Order.Price, t.Order.Status, t.Order.Message)
	case string:
		return t
	default:
		return "alert triggered"
	}
}
