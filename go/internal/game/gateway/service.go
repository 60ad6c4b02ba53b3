package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/escaperoom/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// PublishingStore is a session store whose changes can be observed
type PublishingStore interface {
	SessionStore
	AddPublisher(p session.Publisher)
}

// Service is the game gateway: websocket fan-out plus the HTTP read endpoints
type Service struct {
	store             PublishingStore
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the game gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the game gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates the gateway and subscribes it to store changes.
// history may be nil when game history is disabled.
func NewService(config Config, store PublishingStore, history HistoryLister) *Service {
	commands := NewCommandHandler(store)
	connectionManager := NewConnectionManager(config.ConnectionConfig, store, commands)
	store.AddPublisher(connectionManager)

	return &Service{
		store:             store,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(store, history),
	}
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting game gateway service")

	s.connectionManager.Start(ctx)

	log.Info().Msg("game gateway service stopped")
	return nil
}

// RegisterRoutes registers the websocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.HandleFunc("GET /health", s.HandleHealth)
	log.Info().Msg("game gateway routes registered")
}

// HandleHealth reports liveness
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// Stats summarises the gateway for operators
type Stats struct {
	Service     string          `json:"service"`
	Status      session.Status  `json:"session_status"`
	Connections ConnectionStats `json:"connections"`
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() Stats {
	return Stats{
		Service:     "game_gateway",
		Status:      s.store.Snapshot().Status,
		Connections: s.connectionManager.GetConnectionStats(),
	}
}
