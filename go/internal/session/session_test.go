package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/duksung/maccheese/go/clients"
	"github.com/duksung/maccheese/go/internal/countdown"
	"github.com/duksung/maccheese/go/internal/leaderboard"
	"github.com/duksung/maccheese/go/internal/models"
	"github.com/jonboulle/clockwork"
)

type fakeGateway struct {
	mu          sync.Mutex
	snap        models.Snapshot
	bids        []models.BidEntry
	detailErr   error
	detailCalls int
}

func (g *fakeGateway) setDetail(snap models.Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snap = snap
	g.detailErr = nil
}

func (g *fakeGateway) FetchAuctionDetail(ctx context.Context, id models.AuctionID) (models.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detailCalls++
	if g.detailErr != nil {
		return models.Snapshot{}, g.detailErr
	}
	return g.snap, nil
}

func (g *fakeGateway) setBids(bids ...models.BidEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bids = bids
}

func (g *fakeGateway) FetchBidRanking(ctx context.Context, id models.AuctionID) ([]models.BidEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bids, nil
}

func (g *fakeGateway) DetailCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.detailCalls
}

// fakeTicks hands out subscriptions that the test ticks by hand.
type fakeTicks struct {
	mu   sync.Mutex
	subs []chan time.Time
}

func (f *fakeTicks) Subscribe() (<-chan time.Time, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.subs = append(f.subs, ch)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			for i, sub := range f.subs {
				if sub == ch {
					f.subs = append(f.subs[:i], f.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

func (f *fakeTicks) tick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- time.Now()
	}
}

func (f *fakeTicks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func eventually(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func ongoing(remaining int) models.Snapshot {
	return models.Snapshot{ID: 1, ItemName: "desk lamp", Status: models.AuctionStatusOngoing, RemainingSeconds: remaining}
}

func TestSession_CountdownTicksFromSharedClock(t *testing.T) {
	gw := &fakeGateway{snap: ongoing(10), bids: []models.BidEntry{{Rank: 1, BidderID: "A", Amount: 500}}}
	ticks := &fakeTicks{}
	s, err := Open(context.Background(), 1, gw, ticks, clockwork.NewFakeClock(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	eventually(t, "expected first detail to load", func() bool {
		return s.View().Countdown.Load == models.LoadStateLoaded
	})
	eventually(t, "expected first ranking to load", func() bool {
		v := s.View()
		return v.RankingState == models.LoadStateLoaded && len(v.Ranking) == 1
	})

	ticks.tick()
	eventually(t, "expected one tick to decrement the countdown", func() bool {
		return s.View().Countdown.Remaining == 9
	})

	v := s.View()
	if v.ItemName != "desk lamp" || v.Countdown.Display != "00:00:09" || len(v.Ranking) != 1 {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestSession_PeriodicDetailResync(t *testing.T) {
	fc := clockwork.NewFakeClock()
	gw := &fakeGateway{snap: ongoing(100)}
	s, err := Open(context.Background(), 1, gw, &fakeTicks{}, fc, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	eventually(t, "expected first detail to load", func() bool {
		return s.View().Countdown.Remaining == 100
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// detail ticker and bid poller ticker
	if err := fc.BlockUntilContext(ctx, 2); err != nil {
		t.Fatal(err)
	}

	gw.setDetail(ongoing(50))
	fc.Advance(4 * time.Second)

	eventually(t, "expected drift beyond the threshold to snap", func() bool {
		return s.View().Countdown.Remaining == 50
	})
}

func TestSession_RankingMovesKeyedByBidder(t *testing.T) {
	fc := clockwork.NewFakeClock()
	gw := &fakeGateway{snap: ongoing(60), bids: []models.BidEntry{{Rank: 1, BidderID: "A", Amount: 500}}}
	s, err := Open(context.Background(), 1, gw, &fakeTicks{}, fc, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	eventually(t, "expected first ranking to load", func() bool {
		return len(s.View().Ranking) == 1
	})
	if moves := s.View().Moves; len(moves) != 1 || moves[0] != (leaderboard.Move{BidderID: "A", From: -1, To: 0}) {
		t.Fatalf("expected A to enter at 0, got %+v", moves)
	}

	gw.setBids(
		models.BidEntry{Rank: 1, BidderID: "A", Amount: 500},
		models.BidEntry{Rank: 2, BidderID: "B", Amount: 900},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 2); err != nil {
		t.Fatal(err)
	}
	fc.Advance(DefaultConfig().BidInterval)

	eventually(t, "expected B to outrank A", func() bool {
		r := s.View().Ranking
		return len(r) == 2 && r[0].BidderID == "B"
	})

	want := map[string]leaderboard.Move{
		"B": {BidderID: "B", From: -1, To: 0},
		"A": {BidderID: "A", From: 0, To: 1},
	}
	moves := s.View().Moves
	if len(moves) != len(want) {
		t.Fatalf("expected %d moves, got %+v", len(want), moves)
	}
	for _, m := range moves {
		if want[m.BidderID] != m {
			t.Errorf("unexpected move %+v", m)
		}
	}
}

func TestSession_FirstLoadFailure(t *testing.T) {
	gw := &fakeGateway{detailErr: clients.ErrTransient}
	s, err := Open(context.Background(), 1, gw, &fakeTicks{}, clockwork.NewFakeClock(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	eventually(t, "expected unable-to-load display", func() bool {
		return s.View().Countdown.Display == countdown.UnavailableDisplay
	})
}

func TestSession_EndedView(t *testing.T) {
	snap := ongoing(0)
	snap.Status = models.AuctionStatusFinished
	gw := &fakeGateway{snap: snap}
	s, err := Open(context.Background(), 1, gw, &fakeTicks{}, clockwork.NewFakeClock(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	eventually(t, "expected ended view", func() bool {
		v := s.View()
		return v.Ended && v.Countdown.Display == countdown.EndedDisplay
	})
	if v := s.View(); v.Ranking == nil || v.Moves == nil {
		t.Error("expected non-nil ranking and moves for rendering")
	}
}

func TestSession_CloseUnsubscribes(t *testing.T) {
	ticks := &fakeTicks{}
	s, err := Open(context.Background(), 1, &fakeGateway{snap: ongoing(10)}, ticks, clockwork.NewFakeClock(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if ticks.count() != 1 {
		t.Fatalf("expected one clock subscription, got %d", ticks.count())
	}

	s.Close()
	s.Close()
	if ticks.count() != 0 {
		t.Errorf("expected close to unsubscribe, got %d", ticks.count())
	}
}

func TestManager_ReferenceCounting(t *testing.T) {
	ticks := &fakeTicks{}
	m := NewManager(context.Background(), &fakeGateway{snap: ongoing(10)}, ticks, clockwork.NewFakeClock(), DefaultConfig())
	defer m.CloseAll()

	first, err := m.Acquire(1)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Acquire(1)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the same session for the same auction")
	}
	if ticks.count() != 1 {
		t.Errorf("expected one shared session, got %d subscriptions", ticks.count())
	}

	if !m.Release(1) {
		t.Fatal("expected release to succeed")
	}
	if _, ok := m.View(1); !ok {
		t.Fatal("expected session to stay open while referenced")
	}

	m.Release(1)
	if _, ok := m.View(1); ok {
		t.Error("expected session to close on last release")
	}
	if m.Release(1) {
		t.Error("expected release of a closed session to report false")
	}
	if ticks.count() != 0 {
		t.Errorf("expected no subscriptions, got %d", ticks.count())
	}
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager(context.Background(), &fakeGateway{snap: ongoing(10)}, &fakeTicks{}, clockwork.NewFakeClock(), DefaultConfig())
	for _, id := range []models.AuctionID{3, 1, 2} {
		if _, err := m.Acquire(id); err != nil {
			t.Fatal(err)
		}
	}
	if got := m.Open(); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", got)
	}
	m.CloseAll()
	if got := m.Open(); len(got) != 0 {
		t.Errorf("expected no sessions, got %v", got)
	}
}
