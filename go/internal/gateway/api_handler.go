package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/duksung/maccheese/go/clients"
	"github.com/duksung/maccheese/go/clients/maccheese_client"
	"github.com/duksung/maccheese/go/internal/countdown"
	"github.com/duksung/maccheese/go/internal/identity"
	"github.com/duksung/maccheese/go/internal/models"
	"github.com/duksung/maccheese/go/internal/monitor"
	"github.com/duksung/maccheese/go/internal/session"
	"github.com/rs/zerolog/log"
)

// Catalog serves the auction list and ended-auction details.
type Catalog interface {
	FetchAuctionList(ctx context.Context) ([]models.Snapshot, error)
	FetchAuctionEnded(ctx context.Context, id models.AuctionID) (*maccheese_client.EndedDetail, error)
}

// Watcher is the subset of the winner monitor exposed over HTTP.
type Watcher interface {
	Watch(id models.AuctionID)
	Unwatch(id models.AuctionID)
	UnwatchAll()
	Resolve(id models.AuctionID) bool
	IsWatched(id models.AuctionID) bool
	Watched() []models.AuctionID
	Stats() monitor.Stats
}

// Sessions opens and reads per-auction countdown sessions.
type Sessions interface {
	Acquire(id models.AuctionID) (*session.Session, error)
	Release(id models.AuctionID) bool
	View(id models.AuctionID) (session.View, bool)
	Open() []models.AuctionID
}

// Lifecycle is the shared wall clock driven by the host application's foreground state.
type Lifecycle interface {
	Now() time.Time
	Pause()
	Resume()
	Paused() bool
}

// AuctionRow is one entry of the auction list, ticking from the wall clock.
type AuctionRow struct {
	AuctionID        models.AuctionID `json:"auction_id"`
	ItemName         string           `json:"item_name"`
	Status           string           `json:"status"`
	MinPrice         int              `json:"min_price"`
	RemainingSeconds int              `json:"remaining_seconds"`
	Display          string           `json:"display"`
	Ended            bool             `json:"ended"`
	Watched          bool             `json:"watched"`
}

type identityBody struct {
	StudentID string `json:"student_id"`
}

type errorBody struct {
	Error string `json:"error"`
}

// APIHandler serves the JSON views consumed by the presentation layer.
type APIHandler struct {
	catalog   Catalog
	watcher   Watcher
	sessions  Sessions
	lifecycle Lifecycle
	identity  identity.Store
}

func NewAPIHandler(catalog Catalog, watcher Watcher, sessions Sessions, lifecycle Lifecycle, ident identity.Store) *APIHandler {
	return &APIHandler{
		catalog:   catalog,
		watcher:   watcher,
		sessions:  sessions,
		lifecycle: lifecycle,
		identity:  ident,
	}
}

// RegisterRoutes registers the JSON API with an HTTP mux
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auctions", h.HandleListAuctions)
	mux.HandleFunc("GET /api/auctions/{id}/view", h.HandleGetView)
	mux.HandleFunc("POST /api/auctions/{id}/session", h.HandleOpenSession)
	mux.HandleFunc("DELETE /api/auctions/{id}/session", h.HandleCloseSession)
	mux.HandleFunc("GET /api/auctions/{id}/ended", h.HandleGetEnded)
	mux.HandleFunc("POST /api/auctions/{id}/watch", h.HandleWatch)
	mux.HandleFunc("DELETE /api/auctions/{id}/watch", h.HandleUnwatch)
	mux.HandleFunc("POST /api/auctions/{id}/resolve", h.HandleResolve)
	mux.HandleFunc("GET /api/watch", h.HandleListWatched)
	mux.HandleFunc("DELETE /api/watch", h.HandleUnwatchAll)
	mux.HandleFunc("POST /api/lifecycle/pause", h.HandlePause)
	mux.HandleFunc("POST /api/lifecycle/resume", h.HandleResume)
	mux.HandleFunc("GET /api/identity", h.HandleGetIdentity)
	mux.HandleFunc("PUT /api/identity", h.HandleSetIdentity)
	mux.HandleFunc("DELETE /api/identity", h.HandleClearIdentity)
}

// HandleListAuctions handles GET /api/auctions
func (h *APIHandler) HandleListAuctions(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.catalog.FetchAuctionList(r.Context())
	if err != nil {
		log.Warn().Err(err).Str("kind", clients.Kind(err)).Msg("failed to fetch auction list")
		writeError(w, err)
		return
	}

	now := h.lifecycle.Now()
	rows := make([]AuctionRow, 0, len(snaps))
	for _, snap := range snaps {
		remaining := snap.RemainingAt(now)
		ended := snap.Status.Terminal() || (snap.EndTimestamp != nil && remaining == 0)
		display := countdown.Format(remaining)
		if ended {
			display = countdown.EndedDisplay
		}
		rows = append(rows, AuctionRow{
			AuctionID:        snap.ID,
			ItemName:         snap.ItemName,
			Status:           snap.Status.String(),
			MinPrice:         snap.MinPrice,
			RemainingSeconds: remaining,
			Display:          display,
			Ended:            ended,
			Watched:          h.watcher.IsWatched(snap.ID),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleGetView handles GET /api/auctions/{id}/view for an open session.
func (h *APIHandler) HandleGetView(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(w, r)
	if !ok {
		return
	}
	view, ok := h.sessions.View(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no open session for auction"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleOpenSession handles POST /api/auctions/{id}/session
func (h *APIHandler) HandleOpenSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(w, r)
	if !ok {
		return
	}
	s, err := h.sessions.Acquire(id)
	if err != nil {
		log.Error().Err(err).Str("auction_id", id.String()).Msg("failed to open auction session")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to open session"})
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// HandleCloseSession handles DELETE /api/auctions/{id}/session
func (h *APIHandler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(w, r)
	if !ok {
		return
	}
	if !h.sessions.Release(id) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no open session for auction"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetEnded handles GET /api/auctions/{id}/ended
func (h *APIHandler) HandleGetEnded(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(w, r)
	if !ok {
		return
	}
	detail, err := h.catalog.FetchAuctionEnded(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("auction_id", id.String()).Str("kind", clients.Kind(err)).Msg("failed to fetch ended auction")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleWatch handles POST /api/auctions/{id}/watch
func (h *APIHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(w, r)
	if !ok {
		return
	}
	h.watcher.Watch(id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnwatch handles DELETE /api/auctions/{id}/watch
func (h *APIHandler) HandleUnwatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(w, r)
	if !ok {
		return
	}
	h.watcher.Unwatch(id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleResolve handles POST /api/auctions/{id}/resolve
func (h *APIHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(w, r)
	if !ok {
		return
	}
	if !h.watcher.Resolve(id) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "auction is not watched"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListWatched handles GET /api/watch
func (h *APIHandler) HandleListWatched(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.watcher.Watched())
}

// HandleUnwatchAll handles DELETE /api/watch
func (h *APIHandler) HandleUnwatchAll(w http.ResponseWriter, r *http.Request) {
	h.watcher.UnwatchAll()
	w.WriteHeader(http.StatusNoContent)
}

// HandlePause handles POST /api/lifecycle/pause
func (h *APIHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.lifecycle.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": h.lifecycle.Paused()})
}

// HandleResume handles POST /api/lifecycle/resume
func (h *APIHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.lifecycle.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": h.lifecycle.Paused()})
}

// HandleGetIdentity handles GET /api/identity
func (h *APIHandler) HandleGetIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := h.identity.CurrentUserID(r.Context())
	if errors.Is(err, identity.ErrNoUser) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to read current user")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read current user"})
		return
	}
	writeJSON(w, http.StatusOK, identityBody{StudentID: id})
}

// HandleSetIdentity handles PUT /api/identity
func (h *APIHandler) HandleSetIdentity(w http.ResponseWriter, r *http.Request) {
	var body identityBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if err := h.identity.SetCurrentUserID(r.Context(), body.StudentID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	log.Info().Msg("current user changed")
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearIdentity handles DELETE /api/identity
func (h *APIHandler) HandleClearIdentity(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.Clear(r.Context()); err != nil {
		log.Error().Err(err).Msg("failed to clear current user")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to clear current user"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathAuctionID(w http.ResponseWriter, r *http.Request) (models.AuctionID, bool) {
	id, err := models.ParseAuctionID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid auction id"})
		return 0, false
	}
	return id, true
}

// writeError maps the gateway error taxonomy to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, clients.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, clients.ErrTransient), errors.Is(err, clients.ErrDecode):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
