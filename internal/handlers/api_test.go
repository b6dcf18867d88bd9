package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/poundcake/poundcake/internal/database"
)

func apiTestServer(t *testing.T, db *gorm.DB) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	NewAPIHandler(db).SetupRoutes(mux)
	return mux
}

func seedAlert(t *testing.T, db *gorm.DB, ownerRef uint, fingerprint, name, severity string, status database.AlertStatus) *database.Alert {
	t.Helper()
	now := time.Now().UTC()
	alert := &database.Alert{
		RequestRef:  ownerRef,
		Fingerprint: fingerprint,
		Status:      status,
		AlertName:   name,
		Severity:    severity,
		StartsAt:    &now,
	}
	if err := db.Create(alert).Error; err != nil {
		t.Fatalf("failed to seed alert: %v", err)
	}
	return alert
}

func seedRequest(t *testing.T, db *gorm.DB, requestID string) *database.Request {
	t.Helper()
	req := &database.Request{RequestID: requestID, Method: "POST", Path: "/webhook", StatusCode: 202}
	if err := database.CreateRequest(db, req); err != nil {
		t.Fatalf("failed to seed request: %v", err)
	}
	return req
}

func TestHandleRequestStatus(t *testing.T) {
	db := setupTestDB(t)
	handler := apiTestServer(t, db)

	req := seedRequest(t, db, "req-1")
	alert := seedAlert(t, db, req.ID, "fp-1", "HostDown", "critical", database.AlertStatusFiring)

	alertID := alert.ID
	link := &database.ExecutionLink{
		RequestID:   "req-1",
		AlertID:     &alertID,
		ExecutionID: "exec-1",
		ActionRef:   "remediation.host_down_workflow",
	}
	if err := database.CreateExecutionLink(db, link); err != nil {
		t.Fatalf("failed to seed link: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/requests/req-1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		RequestID  string                   `json:"request_id"`
		StatusCode int                      `json:"status_code"`
		Alerts     []map[string]interface{} `json:"alerts"`
		Executions []map[string]interface{} `json:"executions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RequestID != "req-1" {
		t.Errorf("request_id = %q, want req-1", resp.RequestID)
	}
	if len(resp.Alerts) != 1 {
		t.Errorf("expected 1 alert, got %d", len(resp.Alerts))
	}
	if len(resp.Executions) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(resp.Executions))
	}
	if resp.Executions[0]["execution_id"] != "exec-1" {
		t.Errorf("execution_id = %v, want exec-1", resp.Executions[0]["execution_id"])
	}
}

func TestHandleRequestStatus_NotFound(t *testing.T) {
	db := setupTestDB(t)
	handler := apiTestServer(t, db)

	r := httptest.NewRequest(http.MethodGet, "/api/requests/unknown-id", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleListAlerts_FilterAndPagination(t *testing.T) {
	db := setupTestDB(t)
	handler := apiTestServer(t, db)

	req := seedRequest(t, db, "req-1")
	seedAlert(t, db, req.ID, "fp-1", "HostDown", "critical", database.AlertStatusFiring)
	seedAlert(t, db, req.ID, "fp-2", "HighMemory", "warning", database.AlertStatusFiring)
	seedAlert(t, db, req.ID, "fp-3", "HostDown", "critical", database.AlertStatusResolved)

	r := httptest.NewRequest(http.MethodGet, "/api/alerts?status=firing&per_page=1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Alerts     []map[string]interface{} `json:"alerts"`
		Total      int64                    `json:"total"`
		Page       int                      `json:"page"`
		PerPage    int                      `json:"per_page"`
		TotalPages int                      `json:"total_pages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
	if len(resp.Alerts) != 1 {
		t.Errorf("page size = %d, want 1", len(resp.Alerts))
	}
	if resp.TotalPages != 2 {
		t.Errorf("total_pages = %d, want 2", resp.TotalPages)
	}
}

func TestHandleActiveAlerts(t *testing.T) {
	db := setupTestDB(t)
	handler := apiTestServer(t, db)

	req := seedRequest(t, db, "req-1")
	seedAlert(t, db, req.ID, "fp-1", "HostDown", "critical", database.AlertStatusFiring)
	seedAlert(t, db, req.ID, "fp-2", "HighMemory", "warning", database.AlertStatusResolved)

	r := httptest.NewRequest(http.MethodGet, "/api/alerts/active", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		ActiveAlerts []map[string]interface{} `json:"active_alerts"`
		Count        int                      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
	if len(resp.ActiveAlerts) != 1 || resp.ActiveAlerts[0]["fingerprint"] != "fp-1" {
		t.Errorf("active_alerts = %v", resp.ActiveAlerts)
	}
}

func TestHandleRecentExecutions_IncludesAlertContext(t *testing.T) {
	db := setupTestDB(t)
	handler := apiTestServer(t, db)

	req := seedRequest(t, db, "req-1")
	alert := seedAlert(t, db, req.ID, "fp-1", "HostDown", "critical", database.AlertStatusFiring)

	alertID := alert.ID
	withAlert := &database.ExecutionLink{
		RequestID:   "req-1",
		AlertID:     &alertID,
		ExecutionID: "exec-1",
		ActionRef:   "remediation.host_down_workflow",
	}
	orphan := &database.ExecutionLink{
		RequestID:   "req-0",
		ExecutionID: "exec-0",
		ActionRef:   "remediation.default_workflow",
	}
	for _, link := range []*database.ExecutionLink{withAlert, orphan} {
		if err := database.CreateExecutionLink(db, link); err != nil {
			t.Fatalf("failed to seed link: %v", err)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/api/executions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Executions []struct {
			ExecutionID string                  `json:"execution_id"`
			Alert       *map[string]interface{} `json:"alert"`
		} `json:"executions"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}

	for _, entry := range resp.Executions {
		switch entry.ExecutionID {
		case "exec-1":
			if entry.Alert == nil {
				t.Error("exec-1 should carry alert context")
			}
		case "exec-0":
			if entry.Alert != nil {
				t.Error("exec-0 has no alert and should carry none")
			}
		default:
			t.Errorf("unexpected execution %q", entry.ExecutionID)
		}
	}
}

func TestHandleRecentRequests(t *testing.T) {
	db := setupTestDB(t)
	handler := apiTestServer(t, db)

	seedRequest(t, db, "req-1")
	seedRequest(t, db, "req-2")

	r := httptest.NewRequest(http.MethodGet, "/api/requests?limit=1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Requests []map[string]interface{} `json:"requests"`
		Total    int                      `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Requests) != 1 {
		t.Errorf("expected 1 request with limit=1, got %d", len(resp.Requests))
	}
}

func TestHealthEndpoint(t *testing.T) {
	db := setupTestDB(t)

	mux := http.NewServeMux()
	NewHTTPHandler(db).SetupRoutes(mux)

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", resp["status"])
	}
	if resp["database"] != "connected" {
		t.Errorf("database = %q, want connected", resp["database"])
	}
}
