package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "futures_bridge"

// Metrics are the bridge's prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatewayEvents  *prometheus.CounterVec
	droppedEvents  *prometheus.CounterVec
	ordersRouted   *prometheus.CounterVec
	tradesApplied  *prometheus.CounterVec
	openOrders     prometheus.Gauge
	tickQueueDepth prometheus.Gauge
	sendLatency    prometheus.Histogram
	alerts         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatewayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_events_total",
			Help:      "Gateway events dispatched, by kind.",
		}, []string{"kind"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Gateway events dropped without reconciliation, by reason.",
		}, []string{"reason"}),
		ordersRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_routed_total",
			Help:      "Outbound order requests, by outcome.",
		}, []string{"outcome"}),
		tradesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_applied_total",
			Help:      "Trades reconciled, by origin (known order or synthesized).",
		}, []string{"origin"}),
		openOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_orders",
			Help:      "Orders acknowledged by the gateway and not yet final.",
		}),
		tickQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tick_queue_depth",
			Help:      "Normalized ticks waiting for the consumer.",
		}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_order_seconds",
			Help:      "Time spent submitting an order to the gateway.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Operator alerts raised, by topic.",
		}, []string{"topic"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.gatewayEvents, m.droppedEvents, m.ordersRouted, m.tradesApplied,
			m.openOrders, m.tickQueueDepth, m.sendLatency, m.alerts,
		)
	}
	return m
}

func (m *Metrics) GatewayEvent(kind string) {
	if m == nil {
		return
	}
	m.gatewayEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) DroppedEvent(reason string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderRouted(outcome string) {
	if m == nil {
		return
	}
	m.ordersRouted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TradeApplied(origin string) {
	if m == nil {
		return
	}
	m.tradesApplied.WithLabelValues(origin).Inc()
}

func (m *Metrics) SetOpenOrders(n int) {
	if m == nil {
		return
	}
	m.openOrders.Set(float64(n))
}

func (m *Metrics) SetTickQueueDepth(n int) {
	if m == nil {
		return
	}
	m.tickQueueDepth.Set(float64(n))
}

// ObserveSend records how long a gateway submission took.
func (m *Metrics) ObserveSend(start time.Time) {
	if m == nil {
		return
	}
	m.sendLatency.Observe(time.Since(start).Seconds())
}

func (m *Metrics) Alert(topic string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(topic).Inc()
}
