package database

import (
	"time"

	"gorm.io/gorm"
)

// CreateRequest inserts a new ledger row. Accepts a db parameter so callers
// can write inside their own transaction.
func CreateRequest(db *gorm.DB, req *Request) error {
	return db.Create(req).Error
}

// GetRequestByRequestID fetches a ledger row by its public request id.
func GetRequestByRequestID(db *gorm.DB, requestID string) (*Request, error) {
	var req Request
	if err := db.Where("request_id = ?", requestID).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// CompleteRequest fills in the response-side fields of a ledger row once the
// response has been written.
func CompleteRequest(db *gorm.DB, id uint, statusCode int, processingTimeMs int64) error {
	now := time.Now().UTC()
	return db.Model(&Request{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status_code":        statusCode,
		"processing_time_ms": processingTimeMs,
		"completed_at":       &now,
	}).Error
}

// ListRecentRequests returns ledger rows newest-first.
func ListRecentRequests(db *gorm.DB, limit int) ([]Request, error) {
	var requests []Request
	if err := db.Order("created_at DESC").Limit(limit).Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// GetAlertsByRequestRef returns the alerts owned by a ledger row.
func GetAlertsByRequestRef(db *gorm.DB, requestRef uint) ([]Alert, error) {
	var alerts []Alert
	if err := db.Where("request_ref = ?", requestRef).Order("id ASC").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}
