package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/duksung/maccheese/go/internal/models"
	"github.com/duksung/maccheese/go/internal/monitor"
)

// Event is the envelope written to websocket clients.
type Event struct {
	ID        string           `json:"id"`         // Event UUID
	AuctionID models.AuctionID `json:"auction_id"` // Auction the event is about
	Type      EventType        `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      json.RawMessage  `json:"data"`
}

// EventType represents the type of gateway event
type EventType string

const (
	EventTypeAuctionWon EventType = "AuctionWon"
)

// NewAuctionWonEvent wraps a won event for delivery.
func NewAuctionWonEvent(won monitor.WonEvent) (*Event, error) {
	data, err := json.Marshal(won)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal won event: %w", err)
	}
	return &Event{
		ID:        won.ID.String(),
		AuctionID: won.AuctionID,
		Type:      EventTypeAuctionWon,
		Timestamp: won.DetectedAt,
		Data:      data,
	}, nil
}

// ParseAuctionWon decodes the payload of an AuctionWon event.
func ParseAuctionWon(event *Event) (monitor.WonEvent, error) {
	var won monitor.WonEvent
	if event.Type != EventTypeAuctionWon {
		return won, fmt.Errorf("unexpected event type %q", event.Type)
	}
	if err := json.Unmarshal(event.Data, &won); err != nil {
		return won, fmt.Errorf("failed to unmarshal won event: %w", err)
	}
	return won, nil
}
