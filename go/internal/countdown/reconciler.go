// Package countdown turns authoritative "seconds remaining" values into a locally
// ticking display that never runs past zero and does not jump on network jitter.
package countdown

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duksung/maccheese/go/clients"
	"github.com/duksung/maccheese/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultResyncThreshold is the staleness bound, in seconds, accepted between the
// local countdown and the server before the local value is snapped.
const DefaultResyncThreshold = 3

// Phase is the reconciler's lifecycle state.
type Phase string

const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseCounting     Phase = "COUNTING"
	PhaseEnded        Phase = "ENDED"
)

// ErrWrongAuction is returned when a snapshot for another auction is applied.
var ErrWrongAuction = errors.New("snapshot belongs to a different auction")

// State is the mutable countdown state owned by one reconciler.
type State struct {
	LocalRemainingSeconds int       `json:"local_remaining_seconds"`
	LastServerSync        time.Time `json:"last_server_sync"`
	LastServerValue       int       `json:"last_server_value"`
}

// View is a consistent read of the reconciler.
type View struct {
	AuctionID models.AuctionID `json:"auction_id"`
	Phase     Phase            `json:"phase"`
	Load      models.LoadState `json:"load_state"`
	Remaining int              `json:"remaining_seconds"`
	Display   string           `json:"display"`
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithResyncThreshold overrides the drift, in seconds, tolerated before a snap.
func WithResyncThreshold(seconds int) Option {
	return func(r *Reconciler) {
		if seconds >= 0 {
			r.threshold = seconds
		}
	}
}

// Reconciler keeps one auction's countdown consistent with the server.
type Reconciler struct {
	auctionID models.AuctionID
	threshold int

	// issued is the last request sequence handed out by Begin.
	issued atomic.Uint64

	mu      sync.Mutex
	phase   Phase
	load    models.LoadState
	state   State
	applied uint64
	lastErr error
}

// NewReconciler creates a reconciler for a single auction.
func NewReconciler(auctionID models.AuctionID, opts ...Option) *Reconciler {
	r := &Reconciler{
		auctionID: auctionID,
		threshold: DefaultResyncThreshold,
		phase:     PhaseInitializing,
		load:      models.LoadStateLoading,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) AuctionID() models.AuctionID {
	return r.auctionID
}

// Begin returns the sequence number to attach to a detail fetch that is about to start.
func (r *Reconciler) Begin() uint64 {
	return r.issued.Add(1)
}

// Apply resynchronizes with a fetched snapshot. It reports false when the
// response is older than one already applied and was discarded.
func (r *Reconciler) Apply(seq uint64, snap models.Snapshot) (bool, error) {
	if snap.ID != r.auctionID {
		return false, fmt.Errorf("%w: expected %d, got %d", ErrWrongAuction, r.auctionID, snap.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if seq <= r.applied {
		log.Debug().
			Str("auction_id", r.auctionID.String()).
			Uint64("seq", seq).
			Uint64("applied_seq", r.applied).
			Msg("discarding stale auction detail")
		return false, nil
	}
	r.applied = seq
	r.load = models.LoadStateLoaded
	r.lastErr = nil

	server := snap.RemainingSeconds
	r.state.LastServerValue = server
	r.state.LastServerSync = snap.FetchedAt

	switch r.phase {
	case PhaseInitializing:
		r.state.LocalRemainingSeconds = snap.Remaining()
		r.phase = PhaseCounting
		if snap.Ended() || r.state.LocalRemainingSeconds == 0 {
			r.end()
		}

	case PhaseCounting:
		if snap.Ended() {
			r.end()
			break
		}
		drift := server - r.state.LocalRemainingSeconds
		if drift < 0 {
			drift = -drift
		}
		if drift > r.threshold {
			log.Debug().
				Str("auction_id", r.auctionID.String()).
				Int("local", r.state.LocalRemainingSeconds).
				Int("server", server).
				Int("drift", drift).
				Msg("countdown drift exceeded threshold, snapping to server")
			r.state.LocalRemainingSeconds = server
		}

	case PhaseEnded:
		// terminal
	}

	return true, nil
}

// Fail records a failed fetch. Only a failure before the first successful
// snapshot changes what is displayed.
func (r *Reconciler) Fail(seq uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Warn().
		Err(err).
		Str("auction_id", r.auctionID.String()).
		Str("kind", clients.Kind(err)).
		Uint64("seq", seq).
		Msg("auction detail fetch failed")

	if seq <= r.applied {
		return
	}
	if r.load != models.LoadStateLoaded {
		r.load = models.LoadStateFailed
		r.lastErr = err
	}
}

// Tick advances the local countdown by one second.
func (r *Reconciler) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseCounting {
		return
	}
	if r.state.LocalRemainingSeconds > 0 {
		r.state.LocalRemainingSeconds--
	}
	if r.state.LocalRemainingSeconds == 0 {
		r.end()
	}
}

// end must be called with mu held.
func (r *Reconciler) end() {
	r.state.LocalRemainingSeconds = 0
	r.phase = PhaseEnded
}

func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// State returns a copy of the countdown state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error behind a failed first load.
func (r *Reconciler) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Display returns the string to render right now.
func (r *Reconciler) Display() string {
	return r.View().Display
}

// View returns phase, remaining time and display string read under one lock.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{
		AuctionID: r.auctionID,
		Phase:     r.phase,
		Load:      r.load,
		Remaining: r.state.LocalRemainingSeconds,
	}

	switch {
	case r.phase == PhaseEnded:
		v.Remaining = 0
		v.Display = EndedDisplay
	case r.phase == PhaseInitializing && r.load == models.LoadStateFailed:
		v.Display = UnavailableDisplay
	case r.phase == PhaseInitializing:
		v.Display = LoadingDisplay
	default:
		v.Display = Format(r.state.LocalRemainingSeconds)
	}
	return v
}
