package market

import (
	"context"
	"errors"
	"sort"
	"sync"

	"futures-bridge/internal/events"
)

// TickSource hands out normalized ticks, blocking until one is available.
type TickSource interface {
	GetTick(ctx context.Context) (Tick, error)
}

// Feed is the tick consumer: it keeps the latest tick per instrument and
// publishes every tick to the event bus.
type Feed struct {
	src TickSource
	bus *events.Bus

	mu     sync.RWMutex
	latest map[string]Tick
}

func NewFeed(src TickSource, bus *events.Bus) *Feed {
	return &Feed{src: src, bus: bus, latest: make(map[string]Tick)}
}

// Start runs the polling loop in its own goroutine until ctx is done or the
// source is closed.
func (f *Feed) Start(ctx context.Context) {
	if f.src == nil {
		log.Warn("tick feed has no source; skipping start")
		return
	}
	go f.run(ctx)
}

func (f *Feed) run(ctx context.Context) {
	for {
		t, err := f.src.GetTick(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && ctx.Err() == nil {
				log.WithError(err).Warn("tick feed stopped")
			}
			return
		}
		f.mu.Lock()
		f.latest[t.OrderBookID] = t
		f.mu.Unlock()
		f.bus.Publish(events.EventPriceTick, t)
	}
}

// Last returns the latest tick seen for an instrument.
func (f *Feed) Last(orderBookID string) (Tick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.latest[orderBookID]
	return t, ok
}

// Latest returns the latest tick of every instrument, sorted by order book id.
func (f *Feed) Latest() []Tick {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Tick, 0, len(f.latest))
	for _, t := range f.latest {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderBookID < out[j].OrderBookID })
	return out
}
