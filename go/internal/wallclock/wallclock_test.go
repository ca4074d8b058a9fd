package wallclock

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const waitTimeout = 2 * time.Second

func startClock(t *testing.T) (*WallClock, *clockwork.FakeClock, context.Context) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	wc := New(fc, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	go wc.Run(ctx)

	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}
	return wc, fc, ctx
}

func receive(t *testing.T, ch <-chan time.Time) time.Time {
	t.Helper()
	select {
	case now, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return now
	case <-time.After(waitTimeout):
		t.Fatal("expected a tick")
	}
	return time.Time{}
}

func expectSilence(t *testing.T, ch <-chan time.Time) {
	t.Helper()
	select {
	case now := <-ch:
		t.Fatalf("expected no tick, got %v", now)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWallClock_TicksToAllSubscribers(t *testing.T) {
	wc, fc, _ := startClock(t)

	a, cancelA := wc.Subscribe()
	defer cancelA()
	b, cancelB := wc.Subscribe()
	defer cancelB()

	fc.Advance(time.Second)

	ta := receive(t, a)
	tb := receive(t, b)
	if !ta.Equal(fc.Now()) || !tb.Equal(fc.Now()) {
		t.Errorf("expected both subscribers to see %v, got %v and %v", fc.Now(), ta, tb)
	}
}

func TestWallClock_PauseResume(t *testing.T) {
	wc, fc, ctx := startClock(t)

	ch, cancel := wc.Subscribe()
	defer cancel()

	wc.Pause()
	wc.Pause()
	if err := fc.BlockUntilContext(ctx, 0); err != nil {
		t.Fatalf("ticker was not stopped on pause: %v", err)
	}

	fc.Advance(30 * time.Second)
	expectSilence(t, ch)

	wc.Resume()
	wc.Resume()

	resumed := receive(t, ch)
	if !resumed.Equal(fc.Now()) {
		t.Errorf("expected fresh sample %v on resume, got %v", fc.Now(), resumed)
	}
	expectSilence(t, ch)

	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker was not restarted: %v", err)
	}
	fc.Advance(time.Second)
	next := receive(t, ch)
	if next.Sub(resumed) != time.Second {
		t.Errorf("expected tick one second after resume, got %v", next.Sub(resumed))
	}
}

func TestWallClock_SlowSubscriberSeesLatest(t *testing.T) {
	wc, fc, ctx := startClock(t)

	ch, cancel := wc.Subscribe()
	defer cancel()

	for i := 0; i < 3; i++ {
		fc.Advance(time.Second)
		if err := fc.BlockUntilContext(ctx, 1); err != nil {
			t.Fatal(err)
		}
	}

	// Give the run loop a moment to deliver the last tick.
	deadline := time.After(waitTimeout)
	for {
		select {
		case now := <-ch:
			if now.Equal(fc.Now()) {
				return
			}
		case <-deadline:
			t.Fatal("never observed the latest instant")
		}
	}
}

func TestWallClock_CancelSubscription(t *testing.T) {
	wc, _, _ := startClock(t)

	ch, cancel := wc.Subscribe()
	if wc.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", wc.Subscribers())
	}

	cancel()
	cancel()

	if wc.Subscribers() != 0 {
		t.Errorf("expected 0 subscribers, got %d", wc.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}
}
