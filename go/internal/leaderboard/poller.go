// Package leaderboard keeps one auction's displayed bid ranking close to the server's.
package leaderboard

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duksung/maccheese/go/clients"
	"github.com/duksung/maccheese/go/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = time.Second

// BidFetcher supplies bid rankings.
type BidFetcher interface {
	FetchBidRanking(ctx context.Context, id models.AuctionID) ([]models.BidEntry, error)
}

// Poller fetches a ranking on a fixed period. Fetches may overlap; a response that
// started before the currently applied one is discarded.
type Poller struct {
	fetcher BidFetcher
	clock   clockwork.Clock

	issued atomic.Uint64

	mu        sync.Mutex
	running   bool
	auctionID models.AuctionID
	ranking   []models.BidEntry
	load      models.LoadState
	applied   uint64
	lastErr   error
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	updates chan []models.BidEntry
}

// NewPoller creates a stopped poller.
func NewPoller(fetcher BidFetcher, clock clockwork.Clock) *Poller {
	return &Poller{
		fetcher: fetcher,
		clock:   clock,
		load:    models.LoadStateLoading,
		updates: make(chan []models.BidEntry, 1),
	}
}

// Start begins fetching id every interval, with one fetch issued immediately.
func (p *Poller) Start(ctx context.Context, id models.AuctionID, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("bid poller already running for auction %d", p.auctionID)
	}
	p.adopt(id)
	pollCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(pollCtx, id, interval)

	log.Debug().
		Str("auction_id", id.String()).
		Dur("interval", interval).
		Msg("bid poller started")

	return nil
}

// Stop cancels future fetches. Responses still in flight are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	id := p.auctionID
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	log.Debug().Str("auction_id", id.String()).Msg("bid poller stopped")
}

func (p *Poller) run(ctx context.Context, id models.AuctionID, interval time.Duration) {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	go p.poll(ctx, id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			go p.poll(ctx, id)
		}
	}
}

// poll runs one fetch. The fixed period is the only retry.
func (p *Poller) poll(ctx context.Context, id models.AuctionID) {
	seq := p.issued.Add(1)
	bids, err := p.fetcher.FetchBidRanking(ctx, id)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.fail(seq, id, err)
		return
	}
	p.apply(seq, id, bids)
}

// adopt switches the poller to id, forgetting the previous auction's ranking.
// mu must be held.
func (p *Poller) adopt(id models.AuctionID) {
	if p.auctionID == id {
		return
	}
	p.auctionID = id
	p.ranking = nil
	p.load = models.LoadStateLoading
	p.lastErr = nil
}

// Refresh performs one synchronous fetch outside the periodic schedule. A stopped
// poller adopts id; a running one only refreshes the auction it is polling.
func (p *Poller) Refresh(ctx context.Context, id models.AuctionID) error {
	p.mu.Lock()
	if p.running && p.auctionID != id {
		current := p.auctionID
		p.mu.Unlock()
		return fmt.Errorf("bid poller is running for auction %d, cannot refresh auction %d", current, id)
	}
	p.adopt(id)
	p.mu.Unlock()

	seq := p.issued.Add(1)
	bids, err := p.fetcher.FetchBidRanking(ctx, id)
	if err != nil {
		p.fail(seq, id, err)
		return err
	}
	p.apply(seq, id, bids)
	return nil
}

func (p *Poller) apply(seq uint64, id models.AuctionID, bids []models.BidEntry) {
	sorted := SortForDisplay(bids)

	p.mu.Lock()
	if id != p.auctionID || seq <= p.applied {
		p.mu.Unlock()
		log.Debug().
			Str("auction_id", id.String()).
			Uint64("seq", seq).
			Msg("discarding stale bid ranking")
		return
	}
	p.applied = seq
	changed := p.load != models.LoadStateLoaded || !slices.Equal(p.ranking, sorted)
	p.ranking = sorted
	p.load = models.LoadStateLoaded
	p.lastErr = nil
	p.mu.Unlock()

	if changed {
		p.publish(sorted)
	}
}

func (p *Poller) fail(seq uint64, id models.AuctionID, err error) {
	log.Warn().
		Err(err).
		Str("auction_id", id.String()).
		Str("kind", clients.Kind(err)).
		Uint64("seq", seq).
		Msg("bid ranking fetch failed")

	p.mu.Lock()
	defer p.mu.Unlock()
	if id != p.auctionID || seq <= p.applied {
		return
	}
	if p.load != models.LoadStateLoaded {
		p.load = models.LoadStateFailed
		p.lastErr = err
	}
}

// publish replaces any unread ranking so readers only see the latest.
func (p *Poller) publish(ranking []models.BidEntry) {
	select {
	case p.updates <- ranking:
	default:
		select {
		case <-p.updates:
		default:
		}
		select {
		case p.updates <- ranking:
		default:
		}
	}
}

// CurrentRanking returns the latest successfully fetched ranking in display order.
// A failed fetch keeps the previous ranking.
func (p *Poller) CurrentRanking() []models.BidEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.ranking)
}

// State reports whether a ranking has ever loaded.
func (p *Poller) State() models.LoadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load
}

// Err returns the error behind a failed first load.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Updates receives the display ranking whenever it changes.
func (p *Poller) Updates() <-chan []models.BidEntry {
	return p.updates
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
