package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"futures-bridge/pkg/logging"
)

var (
	ErrQueueClosed = errors.New("tick queue closed")
	ErrQueueFull   = errors.New("tick queue full")
	ErrNoTick      = errors.New("no tick within timeout")
)

// PollInterval bounds a single Get attempt.
const PollInterval = time.Second

var log = logging.For("market")

// Queue is a bounded tick buffer between the dispatch loop and a polling
// consumer. Neither side ever blocks forever.
type Queue struct {
	ch      chan Tick
	putWait time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewQueue creates a queue holding up to size ticks. Put waits at most putWait
// for room before giving up.
func NewQueue(size int, putWait time.Duration) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		ch:      make(chan Tick, size),
		putWait: putWait,
		done:    make(chan struct{}),
	}
}

// Put enqueues a tick, waiting up to putWait when the queue is full.
func (q *Queue) Put(ctx context.Context, t Tick) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- t:
		return nil
	default:
	}

	timer := time.NewTimer(q.putWait)
	defer timer.Stop()
	select {
	case q.ch <- t:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next makes one bounded attempt to take a tick.
func (q *Queue) Next(timeout time.Duration) (Tick, error) {
	select {
	case t := <-q.ch:
		return t, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case t := <-q.ch:
		return t, nil
	case <-timer.C:
		return Tick{}, ErrNoTick
	case <-q.done:
		return Tick{}, ErrQueueClosed
	}
}

// Get blocks until a tick is available, retrying PollInterval-bounded attempts
// until ctx is done or the queue is closed.
func (q *Queue) Get(ctx context.Context) (Tick, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Tick{}, err
		}
		t, err := q.Next(PollInterval)
		if errors.Is(err, ErrNoTick) {
			log.Debug("get tick timeout")
			continue
		}
		return t, err
	}
}

// Len reports the number of buffered ticks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops Put and wakes waiting readers. Buffered ticks are discarded.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
