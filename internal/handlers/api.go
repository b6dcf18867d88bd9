package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/poundcake/poundcake/internal/api"
	"github.com/poundcake/poundcake/internal/database"
)

// APIHandler serves the audit-trail query endpoints.
type APIHandler struct {
	db *gorm.DB
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(db *gorm.DB) *APIHandler {
	return &APIHandler{db: db}
}

// SetupRoutes sets up all API routes.
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/requests/{request_id}", h.handleRequestStatus)
	mux.HandleFunc("GET /api/requests", h.handleRecentRequests)
	mux.HandleFunc("GET /api/alerts", h.handleListAlerts)
	mux.HandleFunc("GET /api/alerts/active", h.handleActiveAlerts)
	mux.HandleFunc("GET /api/executions", h.handleRecentExecutions)
}

// alertSummary is the alert shape returned by the query endpoints.
type alertSummary struct {
	ID               uint       `json:"id"`
	Fingerprint      string     `json:"fingerprint"`
	AlertName        string     `json:"alert_name"`
	Severity         string     `json:"severity"`
	Instance         string     `json:"instance"`
	Status           string     `json:"status"`
	ResolvedWorkflow string     `json:"resolved_workflow,omitempty"`
	StartsAt         *time.Time `json:"starts_at,omitempty"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toAlertSummary(a database.Alert) alertSummary {
	return alertSummary{
		ID:               a.ID,
		Fingerprint:      a.Fingerprint,
		AlertName:        a.AlertName,
		Severity:         a.Severity,
		Instance:         a.Instance,
		Status:           string(a.Status),
		ResolvedWorkflow: a.ResolvedWorkflow,
		StartsAt:         a.StartsAt,
		EndsAt:           a.EndsAt,
		CreatedAt:        a.CreatedAt,
	}
}

// linkSummary is the execution-link shape returned by the query endpoints.
type linkSummary struct {
	ExecutionID string    `json:"execution_id"`
	ActionRef   string    `json:"action_ref"`
	RequestID   string    `json:"request_id"`
	AlertID     *uint     `json:"alert_id"`
	TriggeredAt time.Time `json:"triggered_at"`
}

func toLinkSummary(l database.ExecutionLink) linkSummary {
	return linkSummary{
		ExecutionID: l.ExecutionID,
		ActionRef:   l.ActionRef,
		RequestID:   l.RequestID,
		AlertID:     l.AlertID,
		TriggeredAt: l.CreatedAt,
	}
}

// handleRequestStatus returns the full audit trail for one request: the
// ledger row, its alerts, and every execution link recorded against it.
func (h *APIHandler) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")

	req, err := database.GetRequestByRequestID(h.db, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		api.RespondError(w, http.StatusNotFound, "Request not found")
		return
	}
	if err != nil {
		log.Printf("Failed to fetch request %s: %v", requestID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to fetch request")
		return
	}

	alerts, err := database.GetAlertsByRequestRef(h.db, req.ID)
	if err != nil {
		log.Printf("Failed to fetch alerts for request %s: %v", requestID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to fetch alerts")
		return
	}

	links, err := database.ListLinksByRequestID(h.db, requestID)
	if err != nil {
		log.Printf("Failed to fetch links for request %s: %v", requestID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to fetch executions")
		return
	}

	alertSummaries := make([]alertSummary, 0, len(alerts))
	for _, a := range alerts {
		alertSummaries = append(alertSummaries, toAlertSummary(a))
	}
	linkSummaries := make([]linkSummary, 0, len(links))
	for _, l := range links {
		linkSummaries = append(linkSummaries, toLinkSummary(l))
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"request_id":         req.RequestID,
		"method":             req.Method,
		"path":               req.Path,
		"status_code":        req.StatusCode,
		"received_at":        req.CreatedAt,
		"completed_at":       req.CompletedAt,
		"processing_time_ms": req.ProcessingTimeMs,
		"alerts":             alertSummaries,
		"executions":         linkSummaries,
	})
}

// handleRecentRequests lists ledger rows newest-first.
func (h *APIHandler) handleRecentRequests(w http.ResponseWriter, r *http.Request) {
	limit := api.ParseLimit(r, 20)

	requests, err := database.ListRecentRequests(h.db, limit)
	if err != nil {
		log.Printf("Failed to list requests: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list requests")
		return
	}

	type requestSummary struct {
		RequestID  string     `json:"request_id"`
		Method     string     `json:"method"`
		Path       string     `json:"path"`
		StatusCode int        `json:"status_code"`
		ReceivedAt time.Time  `json:"received_at"`
		Completed  *time.Time `json:"completed_at"`
	}

	summaries := make([]requestSummary, 0, len(requests))
	for _, req := range requests {
		summaries = append(summaries, requestSummary{
			RequestID:  req.RequestID,
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: req.StatusCode,
			ReceivedAt: req.CreatedAt,
			Completed:  req.CompletedAt,
		})
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": summaries,
		"total":    len(summaries),
	})
}

// handleListAlerts lists alerts newest-first with optional status, severity,
// and name filters.
func (h *APIHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	p := api.ParsePagination(r)
	filter := database.AlertFilter{
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
		Name:     r.URL.Query().Get("name"),
	}

	alerts, total, err := database.ListAlerts(h.db, filter, p.PerPage, p.Offset())
	if err != nil {
		log.Printf("Failed to list alerts: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}

	summaries := make([]alertSummary, 0, len(alerts))
	for _, a := range alerts {
		summaries = append(summaries, toAlertSummary(a))
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":      summaries,
		"total":       total,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total_pages": p.TotalPages(total),
	})
}

// handleActiveAlerts lists all currently firing alerts.
func (h *APIHandler) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := database.ListFiringAlerts(h.db)
	if err != nil {
		log.Printf("Failed to list firing alerts: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}

	summaries := make([]alertSummary, 0, len(alerts))
	for _, a := range alerts {
		summaries = append(summaries, toAlertSummary(a))
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"active_alerts": summaries,
		"count":         len(summaries),
	})
}

// handleRecentExecutions lists execution links newest-first with alert
// context where the alert still exists.
func (h *APIHandler) handleRecentExecutions(w http.ResponseWriter, r *http.Request) {
	limit := api.ParseLimit(r, 50)

	links, err := database.ListRecentLinks(h.db, limit)
	if err != nil {
		log.Printf("Failed to list execution links: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list executions")
		return
	}

	type executionEntry struct {
		linkSummary
		Alert *alertSummary `json:"alert,omitempty"`
	}

	entries := make([]executionEntry, 0, len(links))
	for _, link := range links {
		entry := executionEntry{linkSummary: toLinkSummary(link)}
		if link.AlertID != nil {
			// Links outlive alerts; a missing alert is not an error.
			if alert, err := database.GetAlertByID(h.db, *link.AlertID); err == nil {
				summary := toAlertSummary(*alert)
				entry.Alert = &summary
			}
		}
		entries = append(entries, entry)
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"executions": entries,
		"count":      len(entries),
	})
}
