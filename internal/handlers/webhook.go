package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/poundcake/poundcake/internal/api"
	"github.com/poundcake/poundcake/internal/middleware"
	"github.com/poundcake/poundcake/internal/queue"
	"github.com/poundcake/poundcake/internal/services"
	"github.com/poundcake/poundcake/internal/webhook"
)

// WebhookHandler accepts Alertmanager webhooks, stores them, and queues one
// dispatch task per stored alert. The enqueuer is injected at startup; there
// is no package-level queue.
type WebhookHandler struct {
	ingestService *services.IngestService
	enqueuer      queue.Enqueuer
	events        services.EventSink
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(ingestService *services.IngestService, enqueuer queue.Enqueuer, events services.EventSink) *WebhookHandler {
	return &WebhookHandler{
		ingestService: ingestService,
		enqueuer:      enqueuer,
		events:        events,
	}
}

// SetupRoutes configures webhook routes.
func (h *WebhookHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", h.HandleWebhook)
}

// WebhookResponse is the acknowledgment returned to the alerting source. It
// reflects ingestion only; dispatch outcomes are visible via the status
// endpoint.
type WebhookResponse struct {
	Status         string   `json:"status"`
	RequestID      string   `json:"request_id"`
	AlertsReceived int      `json:"alerts_received"`
	TaskIDs        []string `json:"task_ids"`
	Message        string   `json:"message"`
}

// HandleWebhook processes POST /webhook.
//
// Validation failures reject the call before any alert write. Alerts are
// stored in one transaction, then dispatch tasks are enqueued strictly
// after the commit so no task can reference a row that does not exist.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhook.Payload
	if err := api.DecodeJSON(r, &payload); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if fieldErrors := payload.Validate(); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	requestID := middleware.GetRequestID(r.Context())
	ledgerRef, ok := middleware.GetLedgerRef(r.Context())
	if !ok {
		// Without a ledger row there is nothing to own the alerts, and
		// the audit invariant is already broken for this call.
		api.RespondError(w, http.StatusInternalServerError, "Failed to record request")
		return
	}

	if len(payload.Alerts) == 0 {
		api.RespondJSON(w, http.StatusOK, WebhookResponse{
			Status:         "no_alerts",
			RequestID:      requestID,
			AlertsReceived: 0,
			TaskIDs:        []string{},
			Message:        "Payload contained no alerts",
		})
		return
	}

	stored, err := h.ingestService.Ingest(ledgerRef, &payload)
	if err != nil {
		log.Printf("Failed to ingest webhook %s: %v", requestID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to store alerts")
		return
	}

	// Enqueue only after the transaction above has committed. A failed
	// enqueue for one alert does not fail the request; the alert stays
	// stored with no dispatch recorded.
	taskIDs := make([]string, 0, len(stored))
	for _, alert := range stored {
		task := queue.DispatchTask{
			TaskID:      uuid.NewString(),
			RequestID:   requestID,
			Fingerprint: alert.Fingerprint,
		}
		if err := h.enqueuer.EnqueueDispatch(r.Context(), task); err != nil {
			log.Printf("Failed to enqueue dispatch for fingerprint %s: %v", alert.Fingerprint, err)
			continue
		}
		taskIDs = append(taskIDs, task.TaskID)

		if h.events != nil {
			h.events.Publish("alert_received", map[string]interface{}{
				"fingerprint": alert.Fingerprint,
				"alert_name":  alert.AlertName,
				"severity":    alert.Severity,
				"status":      string(alert.Status),
				"request_id":  requestID,
			})
		}
	}

	log.Printf("Webhook %s: received %d alert(s), stored %d, queued %d",
		requestID, len(payload.Alerts), len(stored), len(taskIDs))

	api.RespondJSON(w, http.StatusAccepted, WebhookResponse{
		Status:         "accepted",
		RequestID:      requestID,
		AlertsReceived: len(payload.Alerts),
		TaskIDs:        taskIDs,
		Message:        fmt.Sprintf("Received %d alert(s), queued %d for processing", len(payload.Alerts), len(taskIDs)),
	})
}
