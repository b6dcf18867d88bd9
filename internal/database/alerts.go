package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// AlertFilter narrows ListAlerts results. Zero values mean "no filter".
type AlertFilter struct {
	Status   string
	Severity string
	Name     string
}

// UpsertAlert stores one alert keyed by its fingerprint.
//
// If a row with the fingerprint exists, only the delivery-mutable fields
// (status, ends-at, labels, annotations, raw payload) are overwritten; the
// created timestamp and the owning request stay those of the first
// delivery. If no row exists, a new alert is created under ownerRef.
//
// The unique index on fingerprint is the backstop for concurrent first
// deliveries: the losing insert fails and the caller treats it as a
// per-alert error. Returns the stored row and whether it was a re-delivery.
func UpsertAlert(db *gorm.DB, ownerRef uint, alert *Alert) (*Alert, bool, error) {
	var existing Alert
	err := db.Where("fingerprint = ?", alert.Fingerprint).First(&existing).Error
	if err == nil {
		updates := map[string]interface{}{
			"status":      alert.Status,
			"ends_at":     alert.EndsAt,
			"labels":      alert.Labels,
			"annotations": alert.Annotations,
			"raw_data":    alert.RawData,
			"updated_at":  time.Now().UTC(),
		}
		if err := db.Model(&Alert{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return nil, false, err
		}
		existing.Status = alert.Status
		existing.EndsAt = alert.EndsAt
		existing.Labels = alert.Labels
		existing.Annotations = alert.Annotations
		existing.RawData = alert.RawData
		return &existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	alert.RequestRef = ownerRef
	if err := db.Create(alert).Error; err != nil {
		return nil, false, err
	}
	return alert, false, nil
}

// GetAlertByID fetches one alert by its primary key.
func GetAlertByID(db *gorm.DB, id uint) (*Alert, error) {
	var alert Alert
	if err := db.First(&alert, id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// GetAlertByFingerprint fetches one alert by its fingerprint.
func GetAlertByFingerprint(db *gorm.DB, fingerprint string) (*Alert, error) {
	var alert Alert
	if err := db.Where("fingerprint = ?", fingerprint).First(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// SetAlertResolvedWorkflow records which remote workflow was dispatched for
// the alert.
func SetAlertResolvedWorkflow(db *gorm.DB, alertID uint, workflow string) error {
	return db.Model(&Alert{}).Where("id = ?", alertID).
		Update("resolved_workflow", workflow).Error
}

// ListAlerts returns alerts newest-first, optionally filtered, with a total
// count for pagination.
func ListAlerts(db *gorm.DB, filter AlertFilter, limit, offset int) ([]Alert, int64, error) {
	query := db.Model(&Alert{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Name != "" {
		query = query.Where("alert_name = ?", filter.Name)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alerts []Alert
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&alerts).Error; err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// ListFiringAlerts returns all currently firing alerts newest-first.
func ListFiringAlerts(db *gorm.DB) ([]Alert, error) {
	var alerts []Alert
	err := db.Where("status = ?", AlertStatusFiring).
		Order("created_at DESC").Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
