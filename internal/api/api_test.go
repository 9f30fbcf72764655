package api

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"futures-bridge/internal/engine"
	"futures-bridge/internal/events"
	"futures-bridge/internal/market"
	"futures-bridge/internal/monitor"
	"futures-bridge/internal/order"
	"futures-bridge/internal/snapshot"
	"futures-bridge/pkg/db"
	exchange "futures-bridge/pkg/exchanges/common"
)

type fakeEngine struct {
	open      []order.Order
	contracts map[string]exchange.Contract
	state     snapshot.State
	cutover   time.Time
}

func (e *fakeEngine) OpenOrders() []order.Order                { return e.open }
func (e *fakeEngine) Contracts() map[string]exchange.Contract { return e.contracts }
func (e *fakeEngine) Snapshot() snapshot.State                 { return e.state }
func (e *fakeEngine) Cutover() (time.Time, bool)               { return e.cutover, !e.cutover.IsZero() }

type fakeTicks []market.Tick

func (f fakeTicks) Latest() []market.Tick { return f }

func sampleTick() market.Tick {
	nan := math.NaN()
	t := market.Tick{
		OrderBookID: "RB1810", Datetime: time.Date(2018, 7, 2, 9, 0, 0, 0, time.Local),
		Open: nan, High: nan, Low: nan, Last: 3800, PrevClose: nan,
		Volume: 12, TotalTurnover: nan, OpenInterest: nan, PrevSettlement: nan,
		LimitUp: nan, LimitDown: nan,
	}
	for i := range t.BidPrices {
		t.BidPrices[i], t.BidVolumes[i], t.AskPrices[i], t.AskVolumes[i] = nan, nan, nan, nan
	}
	t.BidPrices[0] = 3799
	return t
}

type fakeSession struct{ up atomic.Bool }

func (s *fakeSession) Connected() bool { return s.up.Load() }

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Engine == nil {
		deps.Engine = &fakeEngine{}
	}
	if deps.Session == nil {
		deps.Session = &fakeSession{}
	}
	return NewServer(deps, SystemMeta{GatewayType: "CTP", Universe: []string{"RB1810"}})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthFollowsSession(t *testing.T) {
	session := &fakeSession{}
	s := newTestServer(t, Deps{Session: session})

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	session.up.Store(true)
	rec = get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestOpenOrdersContractsSnapshot(t *testing.T) {
	o := order.NewLimit("RB1810", order.SideBuy, order.EffectOpen, 3800, 2)
	o.Activate()
	eng := &fakeEngine{
		open: []order.Order{*o},
		contracts: map[string]exchange.Contract{
			"RB1810": {Symbol: "rb1810", Exchange: "SHFE", ProductType: exchange.ProductFutures},
		},
		state: snapshot.State{
			Positions: map[snapshot.PositionKey]exchange.Position{
				{OrderBookID: "RB1810", Direction: exchange.DirectionLong}: {Symbol: "rb1810", Direction: exchange.DirectionLong, Position: 3},
			},
		},
		cutover: time.Now(),
	}
	s := newTestServer(t, Deps{Engine: eng})

	rec := get(t, s, "/api/orders/open")
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []engine.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
	assert.Equal(t, "ACTIVE", orders[0].Status)

	rec = get(t, s, "/api/contracts")
	require.Equal(t, http.StatusOK, rec.Code)
	var contracts []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contracts))
	require.Len(t, contracts, 1)
	assert.Equal(t, "RB1810", contracts[0]["order_book_id"])
	assert.Equal(t, "SHFE", contracts[0]["exchange"])

	rec = get(t, s, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap engine.SnapshotView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 3.0, snap.Positions[0].Position.Position)

	rec = get(t, s, "/api/system/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"open_orders":1`)
	assert.Contains(t, rec.Body.String(), `"cutover_at"`)
}

func TestOptionalDepsUnavailable(t *testing.T) {
	s := newTestServer(t, Deps{})
	for _, path := range []string{"/api/orders", "/api/orders/x/trades", "/api/positions", "/api/drift", "/api/ticks"} {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, s, path).Code, path)
	}
}

func TestJournalRoutes(t *testing.T) {
	database, err := db.New(":memory:")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.ApplyMigrations(database))

	ctx := context.Background()
	require.NoError(t, database.UpsertOrder(ctx, db.Order{
		ID: "o-1", Account: "FUTURE", OrderBookID: "RB1810", Side: "BUY", Type: "LIMIT",
		PositionEffect: "OPEN", Price: 3800, Qty: 1, Status: "FILLED", CreatedAt: time.Now(),
	}))
	require.NoError(t, database.InsertTrade(ctx, db.Trade{
		ID: "t-1", GatewayTradeID: "CTP.T1", OrderID: "o-1", Account: "FUTURE", OrderBookID: "RB1810",
		Side: "BUY", PositionEffect: "OPEN", Price: 3800, Qty: 1, TradingTime: time.Now(),
	}))

	s := newTestServer(t, Deps{DB: database})

	rec := get(t, s, "/api/orders?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"o-1"`)

	rec = get(t, s, "/api/orders/o-1/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"CTP.T1"`)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/orders/nope/trades").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/orders?limit=0").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	monitor.NewMetrics(reg).GatewayEvent("trade")
	s := newTestServer(t, Deps{Gatherer: reg})

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `futures_bridge_gateway_events_total{kind="trade"} 1`)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(newIPLimiters(1, 2, time.Hour)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestTradeStream(t *testing.T) {
	bus := events.NewBus()
	s := newTestServer(t, Deps{Bus: bus})
	srv := httptest.NewServer(s.Router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	o := order.NewLimit("RB1810", order.SideBuy, order.EffectOpen, 3800, 1)
	o.Activate()
	tr := order.NewTrade(o, "CTP.T1", 3800, 1, 0, time.Now())
	require.NoError(t, o.Fill(tr))

	// the handler subscribes after the upgrade completes
	received := make(chan tradeMessage, 1)
	go func() {
		var msg tradeMessage
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg
		}
	}()
	deadline := time.After(2 * time.Second)
	for {
		bus.Publish(events.EventTrade, events.TradeNotice{Account: "FUTURE", Order: *o, Trade: *tr})
		select {
		case msg := <-received:
			assert.Equal(t, "trade", msg.Type)
			assert.Equal(t, "FUTURE", msg.Account)
			assert.Equal(t, "CTP.T1", msg.Trade.GatewayTradeID)
			assert.Equal(t, "FILLED", msg.Order.Status)
			return
		case <-deadline:
			t.Fatal("no trade frame")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestLatestTicks(t *testing.T) {
	s := newTestServer(t, Deps{Ticks: fakeTicks{sampleTick()}})
	rec := get(t, s, "/api/ticks")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "RB1810", views[0]["order_book_id"])
	assert.Equal(t, 3800.0, views[0]["last"])
	assert.Nil(t, views[0]["open"])
	bids := views[0]["bid_prices"].([]any)
	require.Len(t, bids, market.Levels)
	assert.Equal(t, 3799.0, bids[0])
	assert.Nil(t, bids[1])
}

func TestTickStream(t *testing.T) {
	bus := events.NewBus()
	s := newTestServer(t, Deps{Bus: bus})
	srv := httptest.NewServer(s.Router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?ticks=1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan map[string]any, 1)
	go func() {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg
		}
	}()
	deadline := time.After(2 * time.Second)
	for {
		bus.Publish(events.EventPriceTick, sampleTick())
		select {
		case msg := <-received:
			assert.Equal(t, "tick", msg["type"])
			tick := msg["tick"].(map[string]any)
			assert.Equal(t, "RB1810", tick["order_book_id"])
			assert.Nil(t, tick["high"])
			return
		case <-deadline:
			t.Fatal("no tick frame")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestGRPCHealth(t *testing.T) {
	session := &fakeSession{}
	h := NewHealthServer(session, 10*time.Millisecond)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	status := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
		defer rcancel()
		resp, err := client.Check(rctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return grpc_health_v1.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	require.Eventually(t, func() bool {
		return status() == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	session.up.Store(true)
	require.Eventually(t, func() bool {
		return status() == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("health server did not stop")
	}
}
