package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/duksung/maccheese/go/internal/models"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for auction events
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleEvents handles GET /ws/events with an optional auction_id filter.
func (h *WebSocketHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var auctionID models.AuctionID
	if raw := r.URL.Query().Get("auction_id"); raw != "" {
		id, err := models.ParseAuctionID(raw)
		if err != nil {
			http.Error(w, "invalid auction_id", http.StatusBadRequest)
			return
		}
		auctionID = id
	}

	// On failure the upgrader has already replied to the client.
	if err := h.connectionManager.UpgradeConnection(w, r, auctionID); err != nil {
		log.Error().
			Err(err).
			Str("auction_id", auctionID.String()).
			Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/events", h.HandleEvents)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
