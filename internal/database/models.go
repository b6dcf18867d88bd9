package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// AlertStatus represents the state reported by Alertmanager for an alert
type AlertStatus string

const (
	AlertStatusFiring   AlertStatus = "firing"
	AlertStatusResolved AlertStatus = "resolved"
)

// Request is one row per inbound HTTP call. Every request, webhook or not,
// is recorded here with its full headers, body, and timing for audit.
type Request struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	RequestID        string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"request_id"`
	Method           string     `gorm:"type:varchar(10);not null" json:"method"`
	Path             string     `gorm:"type:varchar(500);not null" json:"path"`
	Headers          JSONB      `gorm:"type:jsonb" json:"headers"`
	QueryParams      JSONB      `gorm:"type:jsonb" json:"query_params"`
	Body             JSONB      `gorm:"type:jsonb" json:"body"`
	ClientHost       string     `gorm:"type:varchar(100)" json:"client_host"`
	StatusCode       int        `json:"status_code"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	// Alerts first created by this request. Deleting a request deletes
	// its alerts; execution links survive (see ExecutionLink.AlertID).
	Alerts []Alert `gorm:"foreignKey:RequestRef;constraint:OnDelete:CASCADE" json:"alerts,omitempty"`
}

func (Request) TableName() string {
	return "poundcake_requests"
}

// Alert is one row per distinct fingerprint, ever. A re-delivery with the
// same fingerprint updates the existing row in place; the owning request
// stays the one that first created the alert.
type Alert struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	RequestRef  uint        `gorm:"not null;index" json:"request_ref"`
	Fingerprint string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"fingerprint"`
	Status      AlertStatus `gorm:"type:varchar(20);not null" json:"status"`
	AlertName   string      `gorm:"type:varchar(200);not null;index" json:"alert_name"`
	Severity    string      `gorm:"type:varchar(50);index" json:"severity"`
	Instance    string      `gorm:"type:varchar(200);index" json:"instance"`

	Labels      JSONB `gorm:"type:jsonb" json:"labels"`
	Annotations JSONB `gorm:"type:jsonb" json:"annotations"`
	RawData     JSONB `gorm:"type:jsonb" json:"raw_data"`

	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`

	// ResolvedWorkflow is the remote workflow last dispatched for this
	// alert. Empty until a dispatch attempt succeeds.
	ResolvedWorkflow string `gorm:"type:varchar(200);index" json:"resolved_workflow"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Alert) TableName() string {
	return "poundcake_alerts"
}

// ExecutionLink records one successful remote dispatch: the inbound request,
// the alert it carried, and the StackStorm execution that was started.
// Rows are append-only and never updated or deleted.
type ExecutionLink struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	RequestID string `gorm:"type:varchar(36);not null;index" json:"request_id"`

	// AlertID is a reference, not ownership: the link must survive the
	// alert being deleted, so there is no FK constraint here.
	AlertID *uint `gorm:"index" json:"alert_id"`

	ExecutionID string    `gorm:"type:varchar(100);not null;index" json:"execution_id"`
	ActionRef   string    `gorm:"type:varchar(200)" json:"action_ref"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (ExecutionLink) TableName() string {
	return "poundcake_execution_links"
}
