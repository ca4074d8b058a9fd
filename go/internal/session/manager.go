package session

import (
	"context"
	"sort"
	"sync"

	"github.com/duksung/maccheese/go/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type entry struct {
	session *Session
	refs    int
}

// Manager shares one session per auction among its viewers.
type Manager struct {
	ctx     context.Context
	gateway Gateway
	ticks   TickSource
	clock   clockwork.Clock
	config  Config

	mu       sync.Mutex
	sessions map[models.AuctionID]*entry
}

// NewManager creates a manager. Sessions live until released or until ctx is done.
func NewManager(ctx context.Context, gateway Gateway, ticks TickSource, clock clockwork.Clock, config Config) *Manager {
	return &Manager{
		ctx:      ctx,
		gateway:  gateway,
		ticks:    ticks,
		clock:    clock,
		config:   config,
		sessions: make(map[models.AuctionID]*entry),
	}
}

// Acquire returns the session for id, opening it on first use.
func (m *Manager) Acquire(id models.AuctionID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		e.refs++
		return e.session, nil
	}

	s, err := Open(m.ctx, id, m.gateway, m.ticks, m.clock, m.config)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = &entry{session: s, refs: 1}
	return s, nil
}

// Release drops one reference to id and closes the session on the last one.
// It reports false when no session is open for id.
func (m *Manager) Release(id models.AuctionID) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return true
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	e.session.Close()
	return true
}

// View returns the view of an open session.
func (m *Manager) View(id models.AuctionID) (View, bool) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return View{}, false
	}
	return e.session.View(), true
}

// Open returns the ids with an open session in ascending order.
func (m *Manager) Open() []models.AuctionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]models.AuctionID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseAll closes every session regardless of references.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[models.AuctionID]*entry)
	m.mu.Unlock()

	for _, e := range sessions {
		e.session.Close()
	}
	log.Info().Int("count", len(sessions)).Msg("closed all auction sessions")
}
