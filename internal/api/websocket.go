package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"futures-bridge/internal/engine"
	"futures-bridge/internal/events"
	"futures-bridge/internal/market"
)

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// tradeMessage is a trade frame of the stream.
type tradeMessage struct {
	Type    string           `json:"type"`
	Account string           `json:"account"`
	Order   engine.OrderView `json:"order"`
	Trade   engine.TradeView `json:"trade"`
}

// tickMessage is a market data frame of the stream.
type tickMessage struct {
	Type string          `json:"type"`
	Tick engine.TickView `json:"tick"`
}

// websocket streams reconciled trades and, with ?ticks=1, normalized ticks until
// the client goes away.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade")
		return
	}
	defer conn.Close()

	if s.deps.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	stream, unsub := s.deps.Bus.Subscribe(events.EventTrade, 100)
	defer unsub()
	var tickStream <-chan any
	if c.Query("ticks") == "1" {
		ch, unsubTicks := s.deps.Bus.Subscribe(events.EventPriceTick, 256)
		defer unsubTicks()
		tickStream = ch
	}

	// the read side only detects the peer closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			n, ok := msg.(events.TradeNotice)
			if !ok {
				continue
			}
			if !write(conn, tradeMessage{
				Type:    "trade",
				Account: n.Account,
				Order:   engine.NewOrderView(n.Order),
				Trade:   engine.NewTradeView(n.Trade),
			}) {
				return
			}
		case msg, ok := <-tickStream:
			if !ok {
				return
			}
			t, ok := msg.(market.Tick)
			if !ok {
				continue
			}
			if !write(conn, tickMessage{Type: "tick", Tick: engine.NewTickView(t)}) {
				return
			}
		}
	}
}

func write(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(v); err != nil {
		log.WithError(err).Debug("ws write")
		return false
	}
	return true
}
