package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/services/watcher"
)

// WatcherHandler exposes start/stop/inspect operations for the polling loop.
type WatcherHandler struct {
	watcherService *watcher.Service
	logger         arbor.ILogger
}

// NewWatcherHandler creates a new WatcherHandler
func NewWatcherHandler(watcherService *watcher.Service, logger arbor.ILogger) *WatcherHandler {
	return &WatcherHandler{
		watcherService: watcherService,
		logger:         logger,
	}
}

// StartHandler handles POST /api/watcher/start
func (h *WatcherHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.watcherService.Start(context.Background()); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteSuccess(w, "Watcher started")
}

// StopHandler handles POST /api/watcher/stop
func (h *WatcherHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if !h.watcherService.Running() {
		WriteError(w, http.StatusConflict, "watcher is not running")
		return
	}

	h.watcherService.Stop()
	WriteSuccess(w, "Watcher stopped")
}

// GetStatsHandler handles GET /api/stats
func (h *WatcherHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.watcherService.Snapshot())
}
