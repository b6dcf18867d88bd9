package handlers

import (
	"log"
	"net/http"

	"gorm.io/gorm"

	"github.com/poundcake/poundcake/internal/api"
	"github.com/poundcake/poundcake/internal/database"
)

// HTTPHandler serves the health endpoint.
type HTTPHandler struct {
	db *gorm.DB
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(db *gorm.DB) *HTTPHandler {
	return &HTTPHandler{db: db}
}

// SetupRoutes configures liveness routes.
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
}

// handleHealth returns service liveness including database connectivity.
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := database.Ping(h.db); err != nil {
		log.Printf("Health check: database ping failed: %v", err)
		api.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
		"service":  "poundcake",
	})
}
