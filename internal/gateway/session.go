// Package gateway owns the gateway connection lifecycle: connect, the one-time
// warm-start cutover, subscription fan-out and shutdown.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"futures-bridge/internal/events"
	"futures-bridge/internal/snapshot"
	exchange "futures-bridge/pkg/exchanges/common"
	"futures-bridge/pkg/logging"
)

// ErrConnectTimeout reports gateway channels that did not come up in time.
// Connect logs it and carries on with the warm start.
var ErrConnectTimeout = errors.New("gateway channels not connected before timeout")

var log = logging.For("session")

// Engine is the part of the reconciliation engine the session drives.
type Engine interface {
	Run(ctx context.Context) error
	Subscribe(ctx context.Context, orderBookID string) error
	MarkCutover(at time.Time) bool
	Cutover() (time.Time, bool)
}

// AccountInitializer receives the warm-start account baseline.
type AccountInitializer interface {
	InitAccount(state *snapshot.State)
}

// Options tune the warm-start sequence.
type Options struct {
	Settings         exchange.Settings
	WaitConnected    bool
	ConnectTimeout   time.Duration
	PollInterval     time.Duration
	SeedFromSnapshot bool
	SnapshotSettle   time.Duration
}

// Session connects a gateway to the engine.
type Session struct {
	gw     exchange.Gateway
	engine Engine
	broker AccountInitializer
	cache  *snapshot.Cache
	bus    *events.Bus
	opts   Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	exitOnce sync.Once
	exited   atomic.Bool
}

func NewSession(gw exchange.Gateway, engine Engine, broker AccountInitializer, cache *snapshot.Cache, bus *events.Bus, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 300 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Session{
		gw:     gw,
		engine: engine,
		broker: broker,
		cache:  cache,
		bus:    bus,
		opts:   opts,
	}
}

// Run starts the engine dispatch loop and the universe listener. It returns
// immediately; Exit stops both.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.exited.Load() {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	var universe <-chan any
	unsub := func() {}
	if s.bus != nil {
		universe, unsub = s.bus.Subscribe(events.EventUniverseChanged, 16)
	}

	done := s.done
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.listenUniverse(ctx, universe)
		}()

		if err := s.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("engine stopped")
		}
		cancel()
		unsub()
		wg.Wait()
	}()
}

func (s *Session) listenUniverse(ctx context.Context, ch <-chan any) {
	if ch == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			change, ok := msg.(events.UniverseChange)
			if !ok {
				continue
			}
			if err := s.OnUniverseChanged(ctx, change.OrderBookIDs); err != nil {
				log.WithError(err).Warn("universe subscription incomplete")
			}
		}
	}
}

// Connect connects the gateway. The first successful connect performs the
// warm-start and records the cutover; later calls only reconnect.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.gw.Connect(ctx, s.opts.Settings); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}
	if at, ok := s.engine.Cutover(); ok {
		log.WithField("cutover", at).Info("gateway reconnected")
		return nil
	}

	if s.opts.WaitConnected {
		err := s.waitConnected(ctx)
		switch {
		case errors.Is(err, ErrConnectTimeout):
			log.WithError(err).Warn("proceeding with warm start")
		case err != nil:
			return err
		}
	}

	var state *snapshot.State
	if s.opts.SeedFromSnapshot {
		state = s.seed(ctx)
	}
	s.broker.InitAccount(state)

	now := time.Now()
	if s.engine.MarkCutover(now) {
		log.WithField("cutover", now).Info("warm start complete, reconciling live events")
	}
	return nil
}

// waitConnected polls until both market-data and trading channels are up.
func (s *Session) waitConnected(ctx context.Context) error {
	status, ok := s.gw.(exchange.ChannelStatus)
	if !ok {
		log.Debug("gateway does not report channel status")
		return nil
	}

	deadline := time.NewTimer(s.opts.ConnectTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(s.opts.PollInterval)
	defer poll.Stop()

	for {
		md, td := status.Connected()
		if md && td {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w (md=%t td=%t after %s)", ErrConnectTimeout, md, td, s.opts.ConnectTimeout)
		case <-poll.C:
		}
	}
}

// seed asks the gateway for account and positions and returns what the cache
// holds after the settle delay. Failures fall back to an empty baseline.
func (s *Session) seed(ctx context.Context) *snapshot.State {
	q, ok := s.gw.(exchange.Querier)
	if !ok || s.cache == nil {
		log.Warn("gateway cannot be queried, starting from an empty account")
		return nil
	}
	if err := q.QueryAccount(ctx); err != nil {
		log.WithError(err).Warn("query account failed, starting from an empty account")
		return nil
	}
	if err := q.QueryPosition(ctx); err != nil {
		log.WithError(err).Warn("query position failed, starting from an empty account")
		return nil
	}

	t := time.NewTimer(s.opts.SnapshotSettle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-t.C:
	}

	state := s.cache.State()
	log.WithField("positions", len(state.Positions)).Info("account seeded from gateway snapshot")
	return &state
}

// Subscribe requests market data for one instrument.
func (s *Session) Subscribe(ctx context.Context, orderBookID string) error {
	return s.engine.Subscribe(ctx, orderBookID)
}

// OnUniverseChanged subscribes every instrument of the new universe.
func (s *Session) OnUniverseChanged(ctx context.Context, orderBookIDs []string) error {
	var errs []error
	for _, id := range orderBookIDs {
		if err := s.Subscribe(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("subscribe %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Connected reports whether the warm-start completed and Exit has not run.
func (s *Session) Connected() bool {
	if s.exited.Load() {
		return false
	}
	_, ok := s.engine.Cutover()
	return ok
}

// Exit closes the gateway and stops the dispatch loop. It is safe to call
// before Connect or Run, and more than once.
func (s *Session) Exit() error {
	var err error
	s.exitOnce.Do(func() {
		s.exited.Store(true)
		err = s.gw.Close()
		if err != nil {
			log.WithError(err).Warn("gateway close")
		}

		s.mu.Lock()
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		if cancel != nil {
			cancel()
			<-done
		}
		log.Info("session stopped")
	})
	return err
}
