// Package monitor watches a dynamic set of auctions by polling and emits a single
// "auction ended, you won" event per auction when the current user is the winner.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/duksung/maccheese/go/clients"
	"github.com/duksung/maccheese/go/internal/identity"
	"github.com/duksung/maccheese/go/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Gateway supplies the two resources a winner check needs.
type Gateway interface {
	FetchAuctionDetail(ctx context.Context, id models.AuctionID) (models.Snapshot, error)
	FetchBidRanking(ctx context.Context, id models.AuctionID) ([]models.BidEntry, error)
}

// Config holds configuration for the monitor.
type Config struct {
	SweepInterval time.Duration
	CheckTimeout  time.Duration

	// AutoResolveLost marks an ended auction resolved when someone else won it,
	// so it is no longer re-fetched every sweep. Off by default: a lost auction
	// stays eligible until it is unwatched.
	AutoResolveLost bool
}

// DefaultConfig returns default configuration for the monitor.
func DefaultConfig() Config {
	return Config{
		SweepInterval: 5 * time.Second,
		CheckTimeout:  10 * time.Second,
	}
}

// Stats is a point-in-time summary for health reporting.
type Stats struct {
	Watched   int       `json:"watched"`
	Notified  int       `json:"notified"`
	Resolved  int       `json:"resolved"`
	InFlight  int       `json:"in_flight"`
	Sweeps    uint64    `json:"sweeps"`
	Events    uint64    `json:"events"`
	LastSweep time.Time `json:"last_sweep"`
}

// Monitor is a process-scoped service; construct it once and share the handle.
type Monitor struct {
	gateway  Gateway
	identity identity.Reader
	clock    clockwork.Clock
	config   Config
	hub      *hub
	sinks    []Sink

	mu        sync.Mutex
	watched   map[models.AuctionID]struct{}
	notified  map[models.AuctionID]struct{}
	resolved  map[models.AuctionID]struct{}
	inFlight  map[models.AuctionID]bool
	sweeps    uint64
	events    uint64
	lastSweep time.Time
}

// NewMonitor creates a monitor. Sinks receive every won event after subscribers.
func NewMonitor(gateway Gateway, ident identity.Reader, clock clockwork.Clock, config Config, sinks ...Sink) *Monitor {
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = DefaultConfig().CheckTimeout
	}
	return &Monitor{
		gateway:  gateway,
		identity: ident,
		clock:    clock,
		config:   config,
		hub:      newHub(),
		sinks:    sinks,
		watched:  make(map[models.AuctionID]struct{}),
		notified: make(map[models.AuctionID]struct{}),
		resolved: make(map[models.AuctionID]struct{}),
		inFlight: make(map[models.AuctionID]bool),
	}
}

// AddSink registers another event sink. Call before Run.
func (m *Monitor) AddSink(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Watch starts monitoring id. Watching an already watched id leaves the set
// unchanged but re-arms detection.
func (m *Monitor) Watch(id models.AuctionID) {
	m.WatchAll(id)
}

// WatchAll starts monitoring every id.
func (m *Monitor) WatchAll(ids ...models.AuctionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.watched[id] = struct{}{}
		delete(m.notified, id)
		delete(m.resolved, id)
	}
	log.Debug().Int("count", len(ids)).Int("watched", len(m.watched)).Msg("watching auctions")
}

// Unwatch stops monitoring id and forgets that it was notified.
func (m *Monitor) Unwatch(id models.AuctionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watched, id)
	delete(m.notified, id)
	delete(m.resolved, id)
	log.Debug().Str("auction_id", id.String()).Msg("unwatched auction")
}

// UnwatchAll clears the watch set and the notified set.
func (m *Monitor) UnwatchAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched = make(map[models.AuctionID]struct{})
	m.notified = make(map[models.AuctionID]struct{})
	m.resolved = make(map[models.AuctionID]struct{})
	log.Debug().Msg("unwatched all auctions")
}

// Resolve stops re-checking a watched auction without unwatching it.
// It reports false when id is not watched.
func (m *Monitor) Resolve(id models.AuctionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watched[id]; !ok {
		return false
	}
	m.resolved[id] = struct{}{}
	return true
}

func (m *Monitor) IsWatched(id models.AuctionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watched[id]
	return ok
}

func (m *Monitor) IsNotified(id models.AuctionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.notified[id]
	return ok
}

func (m *Monitor) IsResolved(id models.AuctionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.resolved[id]
	return ok
}

// Watched returns the watch set in ascending order.
func (m *Monitor) Watched() []models.AuctionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]models.AuctionID, 0, len(m.watched))
	for id := range m.watched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Watched:   len(m.watched),
		Notified:  len(m.notified),
		Resolved:  len(m.resolved),
		InFlight:  len(m.inFlight),
		Sweeps:    m.sweeps,
		Events:    m.events,
		LastSweep: m.lastSweep,
	}
}

// Subscribe returns a stream of won events and a function that cancels it.
func (m *Monitor) Subscribe() (<-chan WonEvent, func()) {
	return m.hub.subscribe()
}

// Close ends every subscription.
func (m *Monitor) Close() {
	m.hub.closeAll()
}

// Run sweeps on a single shared timer until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", m.config.SweepInterval).
		Bool("auto_resolve_lost", m.config.AutoResolveLost).
		Msg("auction winner monitor started")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("auction winner monitor shutting down")
			return nil
		case <-ticker.Chan():
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Sweep(ctx)
			}()
		}
	}
}

// Sweep checks every watched, unresolved auction concurrently and returns the
// number of checks started once all of them have finished. An auction whose
// previous check is still running is skipped.
func (m *Monitor) Sweep(ctx context.Context) int {
	m.mu.Lock()
	m.sweeps++
	m.lastSweep = m.clock.Now()
	due := make([]models.AuctionID, 0, len(m.watched))
	for id := range m.watched {
		if _, done := m.notified[id]; done {
			continue
		}
		if _, done := m.resolved[id]; done {
			continue
		}
		if m.inFlight[id] {
			continue
		}
		m.inFlight[id] = true
		due = append(due, id)
	}
	m.mu.Unlock()

	if len(due) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	for _, id := range due {
		wg.Add(1)
		go func(id models.AuctionID) {
			defer wg.Done()
			defer m.clearInFlight(id)
			m.check(ctx, id)
		}(id)
	}
	wg.Wait()

	log.Debug().Int("checked", len(due)).Msg("auction sweep complete")
	return len(due)
}

func (m *Monitor) clearInFlight(id models.AuctionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, id)
}

// check gathers the detail and the ranking in parallel, then decides. Either
// fetch failing abandons the whole check until the next sweep.
func (m *Monitor) check(ctx context.Context, id models.AuctionID) {
	ctx, cancel := context.WithTimeout(ctx, m.config.CheckTimeout)
	defer cancel()

	var (
		snap models.Snapshot
		bids []models.BidEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = m.gateway.FetchAuctionDetail(gctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch auction detail: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bids, err = m.gateway.FetchBidRanking(gctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch bid ranking: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Warn().
			Err(err).
			Str("auction_id", id.String()).
			Str("kind", clients.Kind(err)).
			Msg("auction check failed, retrying next sweep")
		return
	}

	m.decide(ctx, id, snap, bids)
}

func (m *Monitor) decide(ctx context.Context, id models.AuctionID, snap models.Snapshot, bids []models.BidEntry) {
	if !snap.Ended() {
		return
	}

	winner, ok := models.Winner(bids)
	if !ok {
		log.Debug().Str("auction_id", id.String()).Msg("auction ended without bids")
		m.autoResolve(id)
		return
	}

	// Read at evaluation time so an identity change applies on the next sweep.
	userID, err := m.identity.CurrentUserID(ctx)
	if err != nil {
		if !errors.Is(err, identity.ErrNoUser) {
			log.Warn().Err(err).Str("auction_id", id.String()).Msg("failed to read current user")
		}
		return
	}

	if winner.BidderID != userID {
		log.Debug().
			Str("auction_id", id.String()).
			Str("winner_id", winner.BidderID).
			Msg("auction ended, won by another bidder")
		m.autoResolve(id)
		return
	}

	m.mu.Lock()
	if _, ok := m.watched[id]; !ok {
		m.mu.Unlock()
		return
	}
	if _, ok := m.notified[id]; ok {
		m.mu.Unlock()
		return
	}
	m.notified[id] = struct{}{}
	m.events++
	sinks := m.sinks
	m.mu.Unlock()

	event := WonEvent{
		ID:         uuid.New(),
		AuctionID:  id,
		WinnerID:   winner.BidderID,
		Amount:     winner.Amount,
		DetectedAt: m.clock.Now(),
	}

	log.Info().
		Str("auction_id", id.String()).
		Str("event_id", event.ID.String()).
		Int("amount", winner.Amount).
		Msg("auction ended, current user won")

	m.hub.publish(event)
	for _, sink := range sinks {
		if err := sink.PublishWon(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("auction_id", id.String()).
				Str("event_id", event.ID.String()).
				Msg("failed to deliver won event to sink")
		}
	}
}

func (m *Monitor) autoResolve(id models.AuctionID) {
	if !m.config.AutoResolveLost {
		return
	}
	if m.Resolve(id) {
		log.Debug().Str("auction_id", id.String()).Msg("auction resolved as lost")
	}
}
