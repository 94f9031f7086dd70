package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/interfaces"
	"github.com/ternarybob/specto/internal/services/status"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	statusService *status.Service
	session       interfaces.ExamSession
	logger        arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(statusService *status.Service, session interfaces.ExamSession, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
		session:       session,
		logger:        logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := h.statusService.GetStatus()
	if h.session != nil {
		status["turnstile"] = h.session.TurnstileUsage()
	}
	WriteJSON(w, http.StatusOK, status)
}
