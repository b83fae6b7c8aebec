package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/stakesight/stakesight/internal/logger"
	"github.com/stakesight/stakesight/internal/state"
	"github.com/stakesight/stakesight/internal/types"
	"github.com/stakesight/stakesight/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the persisted snapshots to the dashboard over a read-only
// JSON API. Presentation lives entirely on the consumer side.
type WebServer struct {
	router *mux.Router
	port   string
}

// NewWebServer creates a new web server instance
func NewWebServer(port string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/snapshot/latest", ws.handleLatestSnapshot).Methods("GET")
	api.HandleFunc("/snapshot/history", ws.handleSnapshotHistory).Methods("GET")
	api.HandleFunc("/validators", ws.handleValidators).Methods("GET")
}

// Start begins serving HTTP requests
func (ws *WebServer) Start() error {
	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return server.ListenAndServe()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"timestamp":        time.Now().UTC(),
		"goroutines_count": runtime.NumGoroutine(),
	})
}

func (ws *WebServer) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := state.LoadLatestSnapshot()
	if err != nil {
		if errors.Is(err, state.ErrNoSnapshots) {
			ws.writeJSON(w, http.StatusOK, map[string]any{"snapshot": nil})
			return
		}
		webLogger.Error().Err(err).Msg("Failed to load latest snapshot")
		ws.writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	ws.writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": snapshot,
		"display": map[string]any{
			"total_principal": utils.NativeToDisplay(snapshot.TotalPrincipal),
			"total_rewards":   utils.NativeToDisplay(snapshot.TotalRewards),
			"total_value":     utils.NativeToDisplay(snapshot.TotalValue),
			"pending_stake":   utils.NativeToDisplay(snapshot.PendingStake),
		},
		// Degraded-data indicators for the dashboard: non-zero skips mean the
		// totals under-count, estimated positions mean inexact figures.
		"degraded":            snapshot.SkippedEntries > 0,
		"estimated_positions": snapshot.EstimatedPositions,
	})
}

func (ws *WebServer) handleSnapshotHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			ws.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	snapshots, err := state.LoadSnapshotHistory(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to load snapshot history")
		ws.writeError(w, http.StatusInternalServerError, "failed to load snapshot history")
		return
	}

	ws.writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}

func (ws *WebServer) handleValidators(w http.ResponseWriter, r *http.Request) {
	snapshot, err := state.LoadLatestSnapshot()
	if err != nil {
		if errors.Is(err, state.ErrNoSnapshots) {
			ws.writeJSON(w, http.StatusOK, map[string]any{"validators": []types.ValidatorSummary{}})
			return
		}
		webLogger.Error().Err(err).Msg("Failed to load latest snapshot for validators")
		ws.writeError(w, http.StatusInternalServerError, "failed to load validators")
		return
	}

	ws.writeJSON(w, http.StatusOK, map[string]any{
		"epoch":      snapshot.Epoch,
		"validators": snapshot.Validators,
	})
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, status int, message string) {
	ws.writeJSON(w, status, map[string]string{"error": message})
}
