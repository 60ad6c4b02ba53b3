package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mcdev12/escaperoom/go/internal/game/history"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryLister lists finished games
type HistoryLister interface {
	ListRecent(ctx context.Context, limit int) ([]history.GameRecord, error)
}

// StateHandler handles HTTP requests for the session state and game history
type StateHandler struct {
	state   StateProvider
	history HistoryLister
}

// NewStateHandler creates a new state handler. history may be nil.
func NewStateHandler(state StateProvider, history HistoryLister) *StateHandler {
	return &StateHandler{
		state:   state,
		history: history,
	}
}

// HandleGetState handles GET /api/session/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Snapshot())
}

// HandleGetHistory handles GET /api/history?limit=N
func (h *StateHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "Game history is not enabled", http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Int("limit", limit).Msg("failed to list game history")
		http.Error(w, "Failed to list game history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []history.GameRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/session/state", h.HandleGetState)
	mux.HandleFunc("GET /api/history", h.HandleGetHistory)
}
