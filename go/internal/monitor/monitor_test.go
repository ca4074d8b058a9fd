package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/duksung/maccheese/go/clients"
	"github.com/duksung/maccheese/go/internal/identity"
	"github.com/duksung/maccheese/go/internal/models"
	"github.com/jonboulle/clockwork"
)

// fakeGateway serves a mutable per-auction detail and ranking.
type fakeGateway struct {
	mu        sync.Mutex
	details   map[models.AuctionID]models.Snapshot
	bids      map[models.AuctionID][]models.BidEntry
	detailErr error
	bidsErr   error
	calls     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		details: make(map[models.AuctionID]models.Snapshot),
		bids:    make(map[models.AuctionID][]models.BidEntry),
	}
}

func (g *fakeGateway) set(id models.AuctionID, status models.AuctionStatus, bids ...models.BidEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := 600
	if status.Terminal() {
		remaining = 0
	}
	g.details[id] = models.Snapshot{ID: id, Status: status, RemainingSeconds: remaining}
	g.bids[id] = bids
}

func (g *fakeGateway) fail(detailErr, bidsErr error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detailErr = detailErr
	g.bidsErr = bidsErr
}

func (g *fakeGateway) FetchAuctionDetail(ctx context.Context, id models.AuctionID) (models.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.detailErr != nil {
		return models.Snapshot{}, g.detailErr
	}
	snap, ok := g.details[id]
	if !ok {
		return models.Snapshot{}, clients.ErrNotFound
	}
	return snap, nil
}

func (g *fakeGateway) FetchBidRanking(ctx context.Context, id models.AuctionID) ([]models.BidEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bidsErr != nil {
		return nil, g.bidsErr
	}
	return g.bids[id], nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestMonitor(t *testing.T, gw Gateway, user string, config Config) (*Monitor, <-chan WonEvent) {
	t.Helper()
	m := NewMonitor(gw, identity.NewMemoryStore(user), clockwork.NewFakeClock(), config)
	events, cancel := m.Subscribe()
	t.Cleanup(cancel)
	return m, events
}

func drain(events <-chan WonEvent) []WonEvent {
	var out []WonEvent
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestMonitor_ScenarioD_WinEmitsExactlyOnce(t *testing.T) {
	gw := newFakeGateway()
	gw.set(42, models.AuctionStatusOngoing, models.BidEntry{Rank: 1, BidderID: "20231234", Amount: 9000})
	m, events := newTestMonitor(t, gw, "20231234", DefaultConfig())
	ctx := context.Background()

	m.Watch(42)

	m.Sweep(ctx)
	if got := drain(events); len(got) != 0 {
		t.Fatalf("expected no events while ongoing, got %+v", got)
	}

	gw.set(42, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "20231234", Amount: 9000})
	m.Sweep(ctx)

	got := drain(events)
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %+v", got)
	}
	if got[0].AuctionID != 42 || got[0].WinnerID != "20231234" || got[0].Amount != 9000 {
		t.Errorf("unexpected event %+v", got[0])
	}

	if n := m.Sweep(ctx); n != 0 {
		t.Errorf("expected notified auction to be skipped, checked %d", n)
	}
	if got := drain(events); len(got) != 0 {
		t.Errorf("expected no further events, got %+v", got)
	}
	if !m.IsNotified(42) {
		t.Error("expected auction to be recorded as notified")
	}
}

func TestMonitor_ScenarioE_OtherWinnerStaysWatched(t *testing.T) {
	gw := newFakeGateway()
	gw.set(42, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "someone-else", Amount: 9000})
	m, events := newTestMonitor(t, gw, "20231234", DefaultConfig())
	ctx := context.Background()

	m.Watch(42)
	m.Sweep(ctx)
	m.Sweep(ctx)

	if got := drain(events); len(got) != 0 {
		t.Fatalf("expected no events, got %+v", got)
	}
	if !m.IsWatched(42) {
		t.Error("expected auction to remain watched")
	}
	if gw.Calls() != 2 {
		t.Errorf("expected a lost auction to be re-checked each sweep, got %d calls", gw.Calls())
	}
}

func TestMonitor_AutoResolveLost(t *testing.T) {
	gw := newFakeGateway()
	gw.set(42, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "someone-else", Amount: 9000})
	config := DefaultConfig()
	config.AutoResolveLost = true
	m, _ := newTestMonitor(t, gw, "20231234", config)
	ctx := context.Background()

	m.Watch(42)
	m.Sweep(ctx)
	if !m.IsResolved(42) || !m.IsWatched(42) {
		t.Fatal("expected auction to be resolved but still watched")
	}
	if n := m.Sweep(ctx); n != 0 {
		t.Errorf("expected resolved auction to be skipped, checked %d", n)
	}
}

func TestMonitor_WatchIsIdempotent(t *testing.T) {
	m, _ := newTestMonitor(t, newFakeGateway(), "u", DefaultConfig())

	m.Watch(7)
	m.Watch(7)
	m.WatchAll(7, 8)

	got := m.Watched()
	if len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Errorf("expected [7 8], got %v", got)
	}
}

func TestMonitor_ConcurrentSweepsEmitAtMostOnce(t *testing.T) {
	gw := newFakeGateway()
	gw.set(1, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "me", Amount: 100})
	m, events := newTestMonitor(t, gw, "me", DefaultConfig())
	ctx := context.Background()

	m.Watch(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Sweep(ctx)
		}()
	}
	wg.Wait()

	if got := drain(events); len(got) != 1 {
		t.Errorf("expected exactly one event, got %d", len(got))
	}
	if s := m.Stats(); s.Events != 1 || s.InFlight != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestMonitor_UnwatchForgetsNotification(t *testing.T) {
	gw := newFakeGateway()
	gw.set(5, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "me", Amount: 100})
	m, events := newTestMonitor(t, gw, "me", DefaultConfig())
	ctx := context.Background()

	m.Watch(5)
	m.Sweep(ctx)
	m.Unwatch(5)

	if m.IsWatched(5) || m.IsNotified(5) {
		t.Fatal("expected unwatch to clear watch and notified state")
	}
	if n := m.Sweep(ctx); n != 0 {
		t.Errorf("expected no checks for an unwatched auction, got %d", n)
	}

	m.Watch(5)
	m.Sweep(ctx)
	if got := drain(events); len(got) != 2 {
		t.Errorf("expected re-watch to allow a new event, got %d events", len(got))
	}
}

func TestMonitor_UnwatchAll(t *testing.T) {
	m, _ := newTestMonitor(t, newFakeGateway(), "me", DefaultConfig())
	m.WatchAll(1, 2, 3)
	m.UnwatchAll()

	if s := m.Stats(); s.Watched != 0 || s.Notified != 0 {
		t.Errorf("expected empty sets, got %+v", s)
	}
}

func TestMonitor_FetchFailureRetriesNextSweep(t *testing.T) {
	for _, tc := range []struct {
		name      string
		detailErr error
		bidsErr   error
	}{
		{"detail", clients.ErrTransient, nil},
		{"bids", nil, clients.ErrDecode},
	} {
		t.Run(tc.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.set(9, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "me", Amount: 100})
			gw.fail(tc.detailErr, tc.bidsErr)
			m, events := newTestMonitor(t, gw, "me", DefaultConfig())
			ctx := context.Background()

			m.Watch(9)
			m.Sweep(ctx)
			if got := drain(events); len(got) != 0 {
				t.Fatalf("expected no event on failure, got %+v", got)
			}
			if !m.IsWatched(9) || m.IsNotified(9) {
				t.Fatal("expected auction to stay watched and unnotified")
			}

			gw.fail(nil, nil)
			m.Sweep(ctx)
			if got := drain(events); len(got) != 1 {
				t.Errorf("expected event after recovery, got %d", len(got))
			}
		})
	}
}

func TestMonitor_IdentityReadAtEvaluation(t *testing.T) {
	gw := newFakeGateway()
	gw.set(3, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "B", Amount: 100})
	store := identity.NewMemoryStore("A")
	m := NewMonitor(gw, store, clockwork.NewFakeClock(), DefaultConfig())
	events, cancel := m.Subscribe()
	defer cancel()
	ctx := context.Background()

	m.Watch(3)
	m.Sweep(ctx)
	if got := drain(events); len(got) != 0 {
		t.Fatalf("expected no event for user A, got %+v", got)
	}

	if err := store.SetCurrentUserID(ctx, "B"); err != nil {
		t.Fatal(err)
	}
	m.Sweep(ctx)
	if got := drain(events); len(got) != 1 {
		t.Errorf("expected event once B signs in, got %d", len(got))
	}
}

func TestMonitor_NoUserNeverMatches(t *testing.T) {
	gw := newFakeGateway()
	gw.set(3, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "", Amount: 100})
	m, events := newTestMonitor(t, gw, "", DefaultConfig())

	m.Watch(3)
	m.Sweep(context.Background())
	if got := drain(events); len(got) != 0 {
		t.Errorf("expected no event without a signed-in user, got %+v", got)
	}
}

func TestMonitor_EndedWithoutBids(t *testing.T) {
	gw := newFakeGateway()
	gw.set(3, models.AuctionStatusCancelled)
	m, events := newTestMonitor(t, gw, "me", DefaultConfig())

	m.Watch(3)
	m.Sweep(context.Background())
	if got := drain(events); len(got) != 0 {
		t.Errorf("expected no event, got %+v", got)
	}
}

func TestMonitor_Resolve(t *testing.T) {
	m, _ := newTestMonitor(t, newFakeGateway(), "me", DefaultConfig())
	if m.Resolve(1) {
		t.Error("expected resolve of an unwatched auction to fail")
	}
	m.Watch(1)
	if !m.Resolve(1) {
		t.Fatal("expected resolve to succeed")
	}
	m.Watch(1)
	if m.IsResolved(1) {
		t.Error("expected watch to re-arm a resolved auction")
	}
}

func TestMonitor_SinksReceiveEvents(t *testing.T) {
	gw := newFakeGateway()
	gw.set(11, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "me", Amount: 500})

	var mu sync.Mutex
	var delivered []WonEvent
	ok := SinkFunc(func(ctx context.Context, e WonEvent) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, e)
		return nil
	})
	broken := SinkFunc(func(ctx context.Context, e WonEvent) error {
		return errors.New("sink unavailable")
	})

	m := NewMonitor(gw, identity.NewMemoryStore("me"), clockwork.NewFakeClock(), DefaultConfig(), broken)
	m.AddSink(ok)
	m.Watch(11)
	m.Sweep(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0].Amount != 500 {
		t.Errorf("expected one delivered event despite a failing sink, got %+v", delivered)
	}
}

func TestMonitor_RunSweepsOnTicker(t *testing.T) {
	gw := newFakeGateway()
	gw.set(21, models.AuctionStatusFinished, models.BidEntry{Rank: 1, BidderID: "me", Amount: 100})
	fc := clockwork.NewFakeClock()
	m := NewMonitor(gw, identity.NewMemoryStore("me"), fc, Config{SweepInterval: 5 * time.Second})
	events, cancel := m.Subscribe()
	defer cancel()
	m.Watch(21)

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if gw.Calls() != 0 {
		t.Fatal("expected no sweep before the first tick")
	}
	fc.Advance(5 * time.Second)

	select {
	case e := <-events:
		if e.AuctionID != 21 {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a won event after one tick")
	}

	stop()
	if err := <-done; err != nil {
		t.Errorf("unexpected run error: %v", err)
	}
}
