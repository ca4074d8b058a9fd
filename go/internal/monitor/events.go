package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/duksung/maccheese/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const subscriberBufferSize = 64

// WonEvent is emitted once when an auction ends with the current user as winner.
type WonEvent struct {
	ID         uuid.UUID        `json:"event_id"`
	AuctionID  models.AuctionID `json:"auction_id"`
	WinnerID   string           `json:"winner_id"`
	Amount     int              `json:"amount"`
	DetectedAt time.Time        `json:"detected_at"`
}

// Sink receives every won event after in-process subscribers.
type Sink interface {
	PublishWon(ctx context.Context, event WonEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event WonEvent) error

func (f SinkFunc) PublishWon(ctx context.Context, event WonEvent) error {
	return f(ctx, event)
}

// hub fans won events out to in-process subscribers.
type hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan WonEvent
	nextID uint64
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]chan WonEvent)}
}

func (h *hub) subscribe() (<-chan WonEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan WonEvent, subscriberBufferSize)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

func (h *hub) publish(event WonEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			log.Warn().
				Str("auction_id", event.AuctionID.String()).
				Str("event_id", event.ID.String()).
				Msg("won event subscriber buffer full, dropping event")
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
