package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-bridge/internal/events"
	"futures-bridge/internal/order"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordingSink) Send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.GatewayEvent("order")
	m.DroppedEvent("unknown_order")
	m.OrderRouted("sent")
	m.TradeApplied("known")
	m.SetOpenOrders(3)
	m.SetTickQueueDepth(1)
	m.ObserveSend(time.Now())
	m.Alert("x")
}

func TestMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.GatewayEvent("trade")
	m.GatewayEvent("trade")
	m.DroppedEvent("short_symbol")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.gatewayEvents.WithLabelValues("trade")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedEvents.WithLabelValues("short_symbol")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMonitorRaisesAlerts(t *testing.T) {
	bus := events.NewBus()
	sink := &recordingSink{}
	m := &Monitor{Bus: bus, Sink: sink, Metrics: NewMetrics(prometheus.NewRegistry())}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	o := order.NewLimit("RB1810", order.SideBuy, order.EffectOpen, 3800, 1)
	o.MarkCancelled("no contract")
	require.Eventually(t, func() bool {
		bus.Publish(events.EventOrderCreationReject, events.OrderNotice{Account: "FUTURE", Order: *o})
		return sink.Len() > 0
	}, 2*time.Second, 20*time.Millisecond)

	sink.mu.Lock()
	assert.Contains(t, sink.msgs[0], "no contract")
	sink.mu.Unlock()
}
