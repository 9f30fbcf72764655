package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-bridge/internal/broker"
	"futures-bridge/internal/engine"
	"futures-bridge/internal/events"
	"futures-bridge/internal/instrument"
	"futures-bridge/internal/market"
	"futures-bridge/internal/snapshot"
	"futures-bridge/pkg/config"
	exchange "futures-bridge/pkg/exchanges/common"
	"futures-bridge/pkg/exchanges/paper"
)

type fakeGateway struct {
	mu         sync.Mutex
	events     chan exchange.Event
	connectErr error
	connects   int
	closes     int
	md, td     bool
	positions  []exchange.Position
	account    exchange.Account
	closeOnce  sync.Once
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: make(chan exchange.Event, 16)}
}

func (g *fakeGateway) Connect(context.Context, exchange.Settings) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connects++
	return g.connectErr
}

func (g *fakeGateway) SendOrder(context.Context, exchange.OrderRequest) (string, error) {
	return "", errors.New("not used")
}
func (g *fakeGateway) CancelOrder(context.Context, exchange.CancelRequest) error { return nil }
func (g *fakeGateway) Subscribe(context.Context, exchange.SubscribeRequest) error {
	return nil
}
func (g *fakeGateway) Events() <-chan exchange.Event { return g.events }

func (g *fakeGateway) Close() error {
	g.mu.Lock()
	g.closes++
	g.mu.Unlock()
	g.closeOnce.Do(func() { close(g.events) })
	return nil
}

func (g *fakeGateway) Connected() (bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.md, g.td
}

func (g *fakeGateway) setChannels(md, td bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.md, g.td = md, td
}

func (g *fakeGateway) QueryAccount(context.Context) error {
	g.events <- exchange.AccountEvent{Account: g.account}
	return nil
}

func (g *fakeGateway) QueryPosition(context.Context) error {
	for _, p := range g.positions {
		g.events <- exchange.PositionEvent{Position: p}
	}
	return nil
}

type fakeEngine struct {
	mu      sync.Mutex
	cutover time.Time
	live    bool
	marks   int
	subs    []string
	subErr  map[string]error
}

func (e *fakeEngine) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (e *fakeEngine) Subscribe(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.subErr[id]; err != nil {
		return err
	}
	e.subs = append(e.subs, id)
	return nil
}

func (e *fakeEngine) MarkCutover(at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.marks++
	if e.live {
		return false
	}
	e.cutover, e.live = at, true
	return true
}

func (e *fakeEngine) Cutover() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cutover, e.live
}

func (e *fakeEngine) subscribed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.subs...)
}

type fakeInit struct {
	mu     sync.Mutex
	calls  int
	states []*snapshot.State
}

func (f *fakeInit) InitAccount(s *snapshot.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.states = append(f.states, s)
}

func TestConnectWarmStartOnce(t *testing.T) {
	gw := newFakeGateway()
	eng := &fakeEngine{}
	acct := &fakeInit{}
	s := NewSession(gw, eng, acct, snapshot.NewCache(), events.NewBus(), Options{})

	before := time.Now()
	require.NoError(t, s.Connect(context.Background()))
	at, ok := eng.Cutover()
	require.True(t, ok)
	assert.False(t, at.Before(before))
	require.Equal(t, 1, acct.calls)
	assert.Nil(t, acct.states[0])
	assert.True(t, s.Connected())

	// reconnect keeps the cutover and does not reinitialize the account
	require.NoError(t, s.Connect(context.Background()))
	again, _ := eng.Cutover()
	assert.Equal(t, at, again)
	assert.Equal(t, 1, acct.calls)
	assert.Equal(t, 1, eng.marks)
	assert.Equal(t, 2, gw.connects)
}

func TestConnectErrorSurfaces(t *testing.T) {
	gw := newFakeGateway()
	gw.connectErr = errors.New("front unreachable")
	eng := &fakeEngine{}
	s := NewSession(gw, eng, &fakeInit{}, nil, nil, Options{})

	err := s.Connect(context.Background())
	require.ErrorIs(t, err, gw.connectErr)
	_, ok := eng.Cutover()
	assert.False(t, ok)
	assert.False(t, s.Connected())
}

func TestWaitConnected(t *testing.T) {
	t.Run("both channels up", func(t *testing.T) {
		gw := newFakeGateway()
		eng := &fakeEngine{}
		s := NewSession(gw, eng, &fakeInit{}, nil, nil, Options{
			WaitConnected: true, ConnectTimeout: 2 * time.Second, PollInterval: 5 * time.Millisecond,
		})
		go func() {
			time.Sleep(20 * time.Millisecond)
			gw.setChannels(true, false)
			time.Sleep(20 * time.Millisecond)
			gw.setChannels(true, true)
		}()
		require.NoError(t, s.Connect(context.Background()))
		_, ok := eng.Cutover()
		assert.True(t, ok)
	})

	t.Run("timeout", func(t *testing.T) {
		gw := newFakeGateway()
		gw.setChannels(true, false)
		eng := &fakeEngine{}
		acct := &fakeInit{}
		s := NewSession(gw, eng, acct, nil, nil, Options{
			WaitConnected: true, ConnectTimeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond,
		})
		start := time.Now()
		require.NoError(t, s.Connect(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		_, ok := eng.Cutover()
		assert.True(t, ok, "a channel timeout stops waiting, it does not fail the warm start")
		assert.Equal(t, 1, acct.calls)
		require.ErrorIs(t, s.waitConnected(context.Background()), ErrConnectTimeout)
	})

	t.Run("context cancelled", func(t *testing.T) {
		gw := newFakeGateway()
		s := NewSession(gw, &fakeEngine{}, &fakeInit{}, nil, nil, Options{
			WaitConnected: true, ConnectTimeout: time.Minute, PollInterval: 5 * time.Millisecond,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, s.Connect(ctx), context.DeadlineExceeded)
	})
}

func TestOnUniverseChangedJoinsErrors(t *testing.T) {
	eng := &fakeEngine{subErr: map[string]error{"IF1809": errors.New("bridge down")}}
	s := NewSession(newFakeGateway(), eng, &fakeInit{}, nil, nil, Options{})

	err := s.OnUniverseChanged(context.Background(), []string{"RB1810", "IF1809", "CU1811"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IF1809")
	assert.Equal(t, []string{"RB1810", "CU1811"}, eng.subscribed())
}

func TestRunListensForUniverse(t *testing.T) {
	bus := events.NewBus()
	eng := &fakeEngine{}
	s := NewSession(newFakeGateway(), eng, &fakeInit{}, nil, bus, Options{})
	s.Run(context.Background())
	defer s.Exit()

	require.Eventually(t, func() bool {
		bus.Publish(events.EventUniverseChanged, events.UniverseChange{OrderBookIDs: []string{"RB1810"}})
		return len(eng.subscribed()) > 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "RB1810", eng.subscribed()[0])
}

func TestExitIsSafeAndIdempotent(t *testing.T) {
	gw := newFakeGateway()
	s := NewSession(gw, &fakeEngine{}, &fakeInit{}, nil, nil, Options{})
	require.NoError(t, s.Exit())
	require.NoError(t, s.Exit())
	assert.Equal(t, 1, gw.closes)

	// Run after Exit does nothing
	s.Run(context.Background())
	assert.False(t, s.Connected())
}

func TestExitStopsRunningEngine(t *testing.T) {
	gw := newFakeGateway()
	s := NewSession(gw, &fakeEngine{}, &fakeInit{}, nil, events.NewBus(), Options{})
	s.Run(context.Background())
	require.NoError(t, s.Connect(context.Background()))

	stopped := make(chan struct{})
	go func() {
		_ = s.Exit()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("exit did not return")
	}
	assert.False(t, s.Connected())
}

func newRealEngine(gw exchange.Gateway, b *broker.Broker, cache *snapshot.Cache, bus *events.Bus) *engine.Engine {
	return engine.New(engine.Config{
		Gateway:   gw,
		Broker:    b,
		Bus:       bus,
		Contracts: instrument.NewTable(),
		Cache:     cache,
		Ticks:     market.NewQueue(16, 10*time.Millisecond),
	})
}

func TestSeedFromSnapshot(t *testing.T) {
	gw := newFakeGateway()
	gw.account = exchange.Account{AccountID: "acc", Balance: 500000}
	gw.positions = []exchange.Position{
		{Symbol: "rb1810", Exchange: "SHFE", Direction: exchange.DirectionLong, Position: 5, YdPosition: 3, Price: 3800},
	}
	bus := events.NewBus()
	cache := snapshot.NewCache()
	b := broker.New(config.CommissionTable{})
	eng := newRealEngine(gw, b, cache, bus)

	s := NewSession(gw, eng, b, cache, bus, Options{SeedFromSnapshot: true, SnapshotSettle: 100 * time.Millisecond})
	s.Run(context.Background())
	defer s.Exit()
	require.NoError(t, s.Connect(context.Background()))

	acc, err := b.Account(broker.AccountFuture)
	require.NoError(t, err)
	assert.Equal(t, 500000.0, acc.Cash())
	p, ok := acc.Position("RB1810")
	require.True(t, ok)
	assert.Equal(t, 3.0, p.BuyOld)
	assert.Equal(t, 2.0, p.BuyToday)
	assert.True(t, s.Connected())
}

func TestPaperSessionEndToEnd(t *testing.T) {
	gw := paper.New(paper.Config{Symbols: []string{"rb1810"}, Exchange: "SHFE"})
	bus := events.NewBus()
	cache := snapshot.NewCache()
	b := broker.New(config.CommissionTable{})
	eng := newRealEngine(gw, b, cache, bus)

	s := NewSession(gw, eng, b, cache, bus, Options{WaitConnected: true, PollInterval: 5 * time.Millisecond})
	s.Run(context.Background())
	require.NoError(t, s.Connect(context.Background()))
	require.Eventually(t, func() bool { return len(eng.Contracts()) == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(events.EventUniverseChanged, events.UniverseChange{OrderBookIDs: []string{"RB1810"}})
	require.Eventually(t, func() bool { return gw.Subscribed("rb1810") }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Exit())
	assert.False(t, s.Connected())
}
