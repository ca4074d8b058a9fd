// Package gateway is the local presentation surface: a websocket stream of won
// events plus JSON views of countdown sessions, the watch set and the auction list.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/duksung/maccheese/go/internal/identity"
	"github.com/rs/zerolog/log"
)

// Service wires the websocket stream, the JSON API and the health check.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	apiHandler        *APIHandler
	health            *HealthChecker
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// SweepStaleAfter marks the service unhealthy when the monitor stops sweeping.
	SweepStaleAfter time.Duration
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		SweepStaleAfter:  time.Minute,
	}
}

// Dependencies are the domain services the gateway exposes.
type Dependencies struct {
	Catalog   Catalog
	Watcher   Watcher
	Sessions  Sessions
	Lifecycle Lifecycle
	Identity  identity.Store
	Broker    BrokerStatus
}

// NewService creates a new gateway service
func NewService(config Config, deps Dependencies) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		apiHandler:        NewAPIHandler(deps.Catalog, deps.Watcher, deps.Sessions, deps.Lifecycle, deps.Identity),
		health:            NewHealthChecker(deps.Watcher, connectionManager, deps.Sessions, deps.Lifecycle, deps.Broker, config.SweepStaleAfter),
	}
}

// Start runs the broadcaster until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting auction gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("auction gateway service stopped")
}

// Connections is the won-event sink feeding websocket clients.
func (s *Service) Connections() *ConnectionManager {
	return s.connectionManager
}

// RegisterRoutes registers every gateway HTTP route
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.apiHandler.RegisterRoutes(mux)
	mux.Handle("GET /health", s.health)
	log.Info().Msg("auction gateway routes registered")
}
