// Package bridge implements the gateway interface against an out-of-process
// gateway bridge that speaks JSON frames over a websocket.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	exchange "futures-bridge/pkg/exchanges/common"
	"futures-bridge/pkg/logging"
)

var (
	ErrClosed       = errors.New("bridge client closed")
	ErrNotConnected = errors.New("bridge not connected")
	ErrTimeout      = errors.New("bridge request timed out")
	ErrRemote       = errors.New("bridge returned error")
	ErrUnknownFrame = errors.New("unknown bridge frame")
	ErrEmptyOrderID = errors.New("bridge returned empty gateway order id")
)

var log = logging.For("bridge")

// Config holds bridge connection settings.
type Config struct {
	URL            string
	Gateway        string        // gateway type the bridge should drive, e.g. CTP
	RateLimit      float64       // outbound requests per second; 0 disables throttling
	RequestTimeout time.Duration // per request
	EventBuffer    int
	Header         http.Header
}

// Client is a gateway backed by a websocket connection to the bridge.
type Client struct {
	cfg     Config
	limiter *rate.Limiter
	dialer  *websocket.Dialer

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan reply

	events     chan exchange.Event
	md, td     atomic.Bool
	closeOnce  sync.Once
	closed     chan struct{}
	readerDone chan struct{}
	started    atomic.Bool
}

var (
	_ exchange.Gateway       = (*Client)(nil)
	_ exchange.ChannelStatus = (*Client)(nil)
	_ exchange.Querier       = (*Client)(nil)
)

func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 8192
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		cfg:        cfg,
		limiter:    limiter,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending:    make(map[string]chan reply),
		events:     make(chan exchange.Event, cfg.EventBuffer),
		closed:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// Connect dials the bridge on first use and asks it to log in to the gateway.
func (c *Client) Connect(ctx context.Context, settings exchange.Settings) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	_, err := c.call(ctx, opConnect, connectData{Gateway: c.cfg.Gateway, Settings: settings})
	return err
}

func (c *Client) dial(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if c.conn != nil {
		return nil
	}
	if c.started.Load() {
		// the reader already exited; the event stream is gone
		return ErrClosed
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", c.cfg.URL, err)
	}
	c.conn = conn
	c.started.Store(true)
	go c.readLoop(conn)
	log.WithField("url", c.cfg.URL).Info("bridge connected")
	return nil
}

func (c *Client) SendOrder(ctx context.Context, req exchange.OrderRequest) (string, error) {
	raw, err := c.call(ctx, opSendOrder, req)
	if err != nil {
		return "", err
	}
	var res sendOrderResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode send_order result: %w", err)
	}
	if res.GatewayOrderID == "" {
		return "", ErrEmptyOrderID
	}
	return res.GatewayOrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, req exchange.CancelRequest) error {
	_, err := c.call(ctx, opCancelOrder, req)
	return err
}

func (c *Client) Subscribe(ctx context.Context, req exchange.SubscribeRequest) error {
	_, err := c.call(ctx, opSubscribe, req)
	return err
}

func (c *Client) QueryAccount(ctx context.Context) error {
	_, err := c.call(ctx, opQueryAccount, nil)
	return err
}

func (c *Client) QueryPosition(ctx context.Context) error {
	_, err := c.call(ctx, opQueryPosition, nil)
	return err
}

func (c *Client) Events() <-chan exchange.Event { return c.events }

// Connected reports the market-data and trading channel state last pushed by
// the bridge.
func (c *Client) Connected() (md, td bool) {
	return c.md.Load(), c.td.Load()
}

// Close shuts the socket, fails pending requests and closes the event stream
// once the reader has exited. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.connMu.Lock()
		conn := c.conn
		started := c.started.Load()
		c.connMu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.writeMu.Unlock()
			err = conn.Close()
		}
		if started {
			<-c.readerDone
		} else {
			close(c.events)
		}
	})
	return err
}

func (c *Client) call(ctx context.Context, op string, data any) (json.RawMessage, error) {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}
	if conn == nil {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrTimeout)
	}

	id := uuid.NewString()
	ch := make(chan reply, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	}
	err := conn.WriteJSON(request{ID: id, Op: op, Data: data})
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", op, err)
	}

	select {
	case r := <-ch:
		if r.err != "" {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrRemote, r.err)
		}
		return r.result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ErrTimeout)
	case <-c.readerDone:
		return nil, fmt.Errorf("%s: %w", op, ErrClosed)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.md.Store(false)
		c.td.Store(false)
		close(c.events)
		close(c.readerDone)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				log.WithError(err).Error("bridge read failed")
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			log.WithError(err).Warn("bridge frame not decodable")
			continue
		}

		switch in.Type {
		case frameReply:
			c.resolve(in)
		case frameStatus:
			var st channelStatus
			if err := json.Unmarshal(in.Data, &st); err != nil {
				log.WithError(err).Warn("bridge status frame not decodable")
				continue
			}
			c.md.Store(st.MD)
			c.td.Store(st.TD)
		default:
			ev, err := decodeEvent(in.Type, in.Data)
			if err != nil {
				log.WithField("type", in.Type).WithError(err).Warn("bridge event dropped")
				continue
			}
			select {
			case c.events <- ev:
			case <-c.closed:
				return
			}
		}
	}
}

func (c *Client) resolve(in inbound) {
	c.pendingMu.Lock()
	ch, ok := c.pending[in.ID]
	c.pendingMu.Unlock()
	if !ok {
		log.WithField("id", in.ID).Debug("reply for unknown request")
		return
	}
	select {
	case ch <- reply{result: in.Result, err: in.Error}:
	default:
		// duplicate reply; the first one won
	}
}
