package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/poundcake/poundcake/internal/database"
	"github.com/poundcake/poundcake/internal/queue"
	"github.com/poundcake/poundcake/internal/routing"
	"github.com/poundcake/poundcake/internal/stackstorm"
)

// EventSink receives dispatch lifecycle events for live observers. A nil
// sink is valid and drops everything.
type EventSink interface {
	Publish(event string, data map[string]interface{})
}

// DispatchNotifier is told about dispatch outcomes, e.g. to post them to a
// chat channel. A nil notifier is valid.
type DispatchNotifier interface {
	DispatchSucceeded(alertName, workflow, executionID, requestID string)
	DispatchFailed(alertName, workflow, requestID string, err error)
}

// DispatchService is the background unit of work behind the queue: resolve
// the workflow for one alert, start it remotely, and record the link.
type DispatchService struct {
	db       *gorm.DB
	table    *routing.Table
	st2      *stackstorm.Client
	notifier DispatchNotifier
	events   EventSink
}

// NewDispatchService creates a new dispatch service.
func NewDispatchService(db *gorm.DB, table *routing.Table, st2 *stackstorm.Client, notifier DispatchNotifier, events EventSink) *DispatchService {
	return &DispatchService{
		db:       db,
		table:    table,
		st2:      st2,
		notifier: notifier,
		events:   events,
	}
}

// Dispatch processes one queue task. It is safe to run more than once for
// the same alert: a vanished alert acknowledges cleanly, and a replay after
// an earlier success simply calls the remote engine again and appends its
// own link row.
//
// A remote failure writes no link and returns an error so the queue
// redelivers; retry policy lives entirely in the queue.
func (s *DispatchService) Dispatch(ctx context.Context, task queue.DispatchTask) error {
	alert, err := database.GetAlertByFingerprint(s.db, task.Fingerprint)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Alert with fingerprint %s no longer exists, treating task %s as handled",
			task.Fingerprint, task.TaskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch alert %s: %w", task.Fingerprint, err)
	}

	workflow := s.table.Resolve(alert.AlertName, alert.Severity)
	log.Printf("Dispatching alert %s (fingerprint=%s) to workflow %s",
		alert.AlertName, alert.Fingerprint, workflow)

	execution, err := s.st2.CreateExecution(ctx, workflow, executionParameters(alert, task.RequestID))
	if err != nil {
		if s.notifier != nil {
			s.notifier.DispatchFailed(alert.AlertName, workflow, task.RequestID, err)
		}
		if s.events != nil {
			s.events.Publish("dispatch_failed", map[string]interface{}{
				"fingerprint": alert.Fingerprint,
				"alert_name":  alert.AlertName,
				"workflow":    workflow,
				"request_id":  task.RequestID,
				"error":       err.Error(),
			})
		}
		return fmt.Errorf("remote dispatch failed for %s: %w", alert.Fingerprint, err)
	}

	// Link row and resolved-workflow update commit together: the audit
	// trail never shows a link for a dispatch the alert does not reflect.
	alertID := alert.ID
	err = s.db.Transaction(func(tx *gorm.DB) error {
		link := &database.ExecutionLink{
			RequestID:   task.RequestID,
			AlertID:     &alertID,
			ExecutionID: execution.ID,
			ActionRef:   workflow,
		}
		if err := database.CreateExecutionLink(tx, link); err != nil {
			return err
		}
		return database.SetAlertResolvedWorkflow(tx, alert.ID, workflow)
	})
	if err != nil {
		return fmt.Errorf("failed to record execution link for %s: %w", alert.Fingerprint, err)
	}

	log.Printf("Execution %s started for alert %s, link recorded (request=%s)",
		execution.ID, alert.Fingerprint, task.RequestID)

	if s.notifier != nil {
		s.notifier.DispatchSucceeded(alert.AlertName, workflow, execution.ID, task.RequestID)
	}
	if s.events != nil {
		s.events.Publish("dispatch_succeeded", map[string]interface{}{
			"fingerprint":  alert.Fingerprint,
			"alert_name":   alert.AlertName,
			"workflow":     workflow,
			"execution_id": execution.ID,
			"request_id":   task.RequestID,
		})
	}

	return nil
}

// executionParameters builds the remote workflow input: the alert's
// attributes plus the originating request id so the remote side can
// correlate back.
func executionParameters(alert *database.Alert, requestID string) map[string]interface{} {
	return map[string]interface{}{
		"alert_name":           alert.AlertName,
		"severity":             alert.Severity,
		"instance":             alert.Instance,
		"fingerprint":          alert.Fingerprint,
		"status":               string(alert.Status),
		"labels":               map[string]interface{}(alert.Labels),
		"annotations":          map[string]interface{}(alert.Annotations),
		"alert_data":           map[string]interface{}(alert.RawData),
		"poundcake_request_id": requestID,
	}
}
