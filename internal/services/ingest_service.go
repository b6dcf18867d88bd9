package services

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/poundcake/poundcake/internal/database"
	"github.com/poundcake/poundcake/internal/webhook"
)

// IngestService stores webhook alerts against their ledger row.
type IngestService struct {
	db *gorm.DB
}

// NewIngestService creates a new ingest service.
func NewIngestService(db *gorm.DB) *IngestService {
	return &IngestService{db: db}
}

// Ingest upserts every alert in the payload within one transaction, owned
// by the ledger row ownerRef. Each alert's upsert runs under its own
// savepoint, so a store failure for a single alert rolls back only that
// alert and is logged and skipped; its siblings still land. A failure of
// the transaction itself stores nothing.
//
// Only the returned alerts may be enqueued for dispatch, and only after
// this function returns: the commit happens here, so the rows exist by the
// time any worker looks for them.
func (s *IngestService) Ingest(ownerRef uint, payload *webhook.Payload) ([]database.Alert, error) {
	var stored []database.Alert

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, entry := range payload.Alerts {
			row := toAlertRow(entry)

			var saved *database.Alert
			var redelivery bool
			// The nested transaction is a savepoint. On PostgreSQL a
			// failed statement aborts the whole transaction until a
			// rollback, so skipping a failed alert with the outer
			// transaction still open requires rolling back to here.
			err := tx.Transaction(func(tx *gorm.DB) error {
				var err error
				saved, redelivery, err = database.UpsertAlert(tx, ownerRef, row)
				return err
			})
			if err != nil {
				log.Printf("Failed to store alert %s (fingerprint=%s), skipping: %v",
					entry.AlertName(), entry.Fingerprint, err)
				continue
			}
			if redelivery {
				log.Printf("Re-delivery for fingerprint %s: updated existing alert %d",
					entry.Fingerprint, saved.ID)
			}
			stored = append(stored, *saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// toAlertRow converts a payload entry into an alert row.
func toAlertRow(entry webhook.Alert) *database.Alert {
	startsAt := entry.StartsAt
	row := &database.Alert{
		Fingerprint: entry.Fingerprint,
		Status:      database.AlertStatus(entry.Status),
		AlertName:   entry.AlertName(),
		Severity:    entry.Severity(),
		Instance:    entry.Instance(),
		Labels:      toJSONB(entry.Labels),
		Annotations: toJSONB(entry.Annotations),
		RawData:     rawAlertData(entry),
		StartsAt:    &startsAt,
	}
	if !entry.EndsAt.IsZero() {
		endsAt := entry.EndsAt
		row.EndsAt = &endsAt
	}
	return row
}

// rawAlertData captures the alert entry verbatim for audit.
func rawAlertData(entry webhook.Alert) database.JSONB {
	raw := database.JSONB{
		"status":       entry.Status,
		"labels":       entry.Labels,
		"annotations":  entry.Annotations,
		"startsAt":     entry.StartsAt.Format(time.RFC3339),
		"fingerprint":  entry.Fingerprint,
		"generatorURL": entry.GeneratorURL,
	}
	if !entry.EndsAt.IsZero() {
		raw["endsAt"] = entry.EndsAt.Format(time.RFC3339)
	}
	return raw
}

func toJSONB(m map[string]string) database.JSONB {
	out := make(database.JSONB, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
