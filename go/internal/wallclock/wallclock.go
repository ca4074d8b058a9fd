// Package wallclock provides the process-wide ticking time source shared by every
// countdown display.
package wallclock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTickInterval = time.Second

	subscriberBufferSize = 1
)

// WallClock broadcasts the current instant to subscribers once per interval while
// active. Pause and Resume follow the host application's foreground lifecycle.
type WallClock struct {
	clock    clockwork.Clock
	interval time.Duration

	mu     sync.Mutex
	subs   map[uint64]chan time.Time
	nextID uint64
	paused bool

	// wakeCh tells the run loop to re-read the paused flag.
	wakeCh chan struct{}
}

// New creates a wall clock ticking every interval on clock.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
func New(clock clockwork.Clock, interval time.Duration) *WallClock {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &WallClock{
		clock:    clock,
		interval: interval,
		subs:     make(map[uint64]chan time.Time),
		wakeCh:   make(chan struct{}, 1),
	}
}

// Now returns the current instant of the underlying clock.
func (w *WallClock) Now() time.Time {
	return w.clock.Now()
}

// Subscribe returns a channel of instants and a function that cancels the
// subscription. A slow subscriber only ever sees the most recent instant.
func (w *WallClock) Subscribe() (<-chan time.Time, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	ch := make(chan time.Time, subscriberBufferSize)
	w.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if sub, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (w *WallClock) Subscribers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

// Pause stops emitting ticks. It is idempotent.
func (w *WallClock) Pause() {
	w.setPaused(true)
}

// Resume restarts ticking. The first instant after resuming is a single fresh
// sample; missed ticks are not replayed. It is idempotent.
func (w *WallClock) Resume() {
	w.setPaused(false)
}

// Paused reports whether the clock is currently paused.
func (w *WallClock) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

func (w *WallClock) setPaused(paused bool) {
	w.mu.Lock()
	changed := w.paused != paused
	w.paused = paused
	w.mu.Unlock()

	if !changed {
		return
	}

	log.Debug().Bool("paused", paused).Msg("wall clock lifecycle change")

	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// Run drives the ticker until ctx is cancelled. Subscriber channels stay open
// after Run returns; callers cancel their own subscriptions.
func (w *WallClock) Run(ctx context.Context) {
	var (
		ticker clockwork.Ticker
		tickCh <-chan time.Time
	)
	start := func() {
		ticker = w.clock.NewTicker(w.interval)
		tickCh = ticker.Chan()
	}
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickCh = nil
		}
	}
	defer stop()

	if !w.Paused() {
		start()
	}

	log.Info().Dur("interval", w.interval).Msg("wall clock started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("wall clock shutting down")
			return
		case <-tickCh:
			w.broadcast(w.clock.Now())
		case <-w.wakeCh:
			paused := w.Paused()
			switch {
			case paused && ticker != nil:
				stop()
			case !paused && ticker == nil:
				start()
				w.broadcast(w.clock.Now())
			}
		}
	}
}

func (w *WallClock) broadcast(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.paused {
		return
	}

	for _, ch := range w.subs {
		select {
		case ch <- now:
		default:
			// Replace the stale instant so the subscriber sees the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- now:
			default:
			}
		}
	}
}
