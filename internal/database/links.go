package database

import "gorm.io/gorm"

// Execution links are the audit trail: rows are created once and never
// updated or deleted. There is deliberately no update or delete function
// in this file.

// CreateExecutionLink appends one audit row for a successful remote dispatch.
func CreateExecutionLink(db *gorm.DB, link *ExecutionLink) error {
	return db.Create(link).Error
}

// ListLinksByRequestID returns all links recorded for one inbound request.
func ListLinksByRequestID(db *gorm.DB, requestID string) ([]ExecutionLink, error) {
	var links []ExecutionLink
	err := db.Where("request_id = ?", requestID).Order("id ASC").Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

// ListRecentLinks returns links newest-first.
func ListRecentLinks(db *gorm.DB, limit int) ([]ExecutionLink, error) {
	var links []ExecutionLink
	err := db.Order("created_at DESC").Limit(limit).Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

// CountLinksByAlertID returns how many dispatches have been recorded for an
// alert.
func CountLinksByAlertID(db *gorm.DB, alertID uint) (int64, error) {
	var count int64
	err := db.Model(&ExecutionLink{}).Where("alert_id = ?", alertID).Count(&count).Error
	return count, err
}
