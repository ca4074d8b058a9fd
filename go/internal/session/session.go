// Package session binds one displayed auction to its countdown and leaderboard.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/duksung/maccheese/go/internal/countdown"
	"github.com/duksung/maccheese/go/internal/leaderboard"
	"github.com/duksung/maccheese/go/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Gateway supplies auction details and bid rankings.
type Gateway interface {
	FetchAuctionDetail(ctx context.Context, id models.AuctionID) (models.Snapshot, error)
	FetchBidRanking(ctx context.Context, id models.AuctionID) ([]models.BidEntry, error)
}

// TickSource is the shared one-second clock, normally a *wallclock.WallClock.
type TickSource interface {
	Subscribe() (<-chan time.Time, func())
}

// Config holds polling configuration for a session.
type Config struct {
	DetailInterval  time.Duration
	BidInterval     time.Duration
	ResyncThreshold int
}

// DefaultConfig returns default configuration for a session.
func DefaultConfig() Config {
	return Config{
		DetailInterval:  4 * time.Second,
		BidInterval:     leaderboard.DefaultPollInterval,
		ResyncThreshold: countdown.DefaultResyncThreshold,
	}
}

// View is what the presentation layer renders for one auction.
type View struct {
	AuctionID    models.AuctionID   `json:"auction_id"`
	ItemName     string             `json:"item_name,omitempty"`
	Countdown    countdown.View     `json:"countdown"`
	Ended        bool               `json:"ended"`
	Ranking      []models.BidEntry  `json:"ranking"`
	Moves        []leaderboard.Move `json:"moves"`
	RankingState models.LoadState   `json:"ranking_state"`
}

// Session keeps one auction's countdown ticking and resynchronized and its
// leaderboard polled until Close.
type Session struct {
	id         models.AuctionID
	gateway    Gateway
	clock      clockwork.Clock
	config     Config
	reconciler *countdown.Reconciler
	poller     *leaderboard.Poller

	mu       sync.Mutex
	itemName string
	ranking  []models.BidEntry
	moves    []leaderboard.Move

	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// Open starts a session for id. The first detail and ranking fetches are issued
// immediately.
func Open(ctx context.Context, id models.AuctionID, gateway Gateway, ticks TickSource, clock clockwork.Clock, config Config) (*Session, error) {
	if config.DetailInterval <= 0 {
		config.DetailInterval = DefaultConfig().DetailInterval
	}
	if config.BidInterval <= 0 {
		config.BidInterval = DefaultConfig().BidInterval
	}

	s := &Session{
		id:         id,
		gateway:    gateway,
		clock:      clock,
		config:     config,
		reconciler: countdown.NewReconciler(id, countdown.WithResyncThreshold(config.ResyncThreshold)),
		poller:     leaderboard.NewPoller(gateway, clock),
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.poller.Start(sessionCtx, id, config.BidInterval); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start bid poller: %w", err)
	}

	tickCh, unsubscribe := ticks.Subscribe()
	s.unsubscribe = unsubscribe

	s.wg.Add(3)
	go s.runTicks(sessionCtx, tickCh)
	go s.runDetail(sessionCtx)
	go s.runRankings(sessionCtx)

	log.Info().
		Str("auction_id", id.String()).
		Dur("detail_interval", config.DetailInterval).
		Dur("bid_interval", config.BidInterval).
		Msg("auction session opened")

	return s, nil
}

func (s *Session) AuctionID() models.AuctionID {
	return s.id
}

func (s *Session) runTicks(ctx context.Context, tickCh <-chan time.Time) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-tickCh:
			if !ok {
				return
			}
			s.reconciler.Tick()
		}
	}
}

// runRankings keeps the displayed ranking and the bidder moves that led to it.
func (s *Session) runRankings(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-s.poller.Updates():
			s.mu.Lock()
			s.moves = leaderboard.Diff(s.ranking, next)
			s.ranking = next
			s.mu.Unlock()
		}
	}
}

// runDetail resynchronizes the countdown every DetailInterval until it ends.
func (s *Session) runDetail(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.config.DetailInterval)
	defer ticker.Stop()

	s.spawnFetch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if s.reconciler.Phase() == countdown.PhaseEnded {
				log.Debug().Str("auction_id", s.id.String()).Msg("countdown ended, detail polling stopped")
				return
			}
			s.spawnFetch(ctx)
		}
	}
}

func (s *Session) spawnFetch(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fetchDetail(ctx)
	}()
}

func (s *Session) fetchDetail(ctx context.Context) {
	seq := s.reconciler.Begin()
	snap, err := s.gateway.FetchAuctionDetail(ctx, s.id)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.reconciler.Fail(seq, err)
		return
	}

	applied, err := s.reconciler.Apply(seq, snap)
	if err != nil {
		if errors.Is(err, countdown.ErrWrongAuction) {
			log.Warn().Err(err).Str("auction_id", s.id.String()).Msg("gateway returned another auction")
		}
		return
	}
	if applied {
		s.mu.Lock()
		s.itemName = snap.ItemName
		s.mu.Unlock()
	}
}

// View returns the current state for rendering.
func (s *Session) View() View {
	cd := s.reconciler.View()

	s.mu.Lock()
	name := s.itemName
	ranking := slices.Clone(s.ranking)
	moves := slices.Clone(s.moves)
	s.mu.Unlock()

	if ranking == nil {
		ranking = []models.BidEntry{}
	}
	if moves == nil {
		moves = []leaderboard.Move{}
	}

	return View{
		AuctionID:    s.id,
		ItemName:     name,
		Countdown:    cd,
		Ended:        cd.Phase == countdown.PhaseEnded,
		Ranking:      ranking,
		Moves:        moves,
		RankingState: s.poller.State(),
	}
}

// Close stops all polling and the clock subscription. It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.poller.Stop()
		s.cancel()
		s.unsubscribe()
		s.wg.Wait()
		log.Info().Str("auction_id", s.id.String()).Msg("auction session closed")
	})
}
