package store

import (
	"context"
	"fmt"
)

// WebhookEvent is a journal row for a verified delivery.
type WebhookEvent struct {
	TransmissionID string
	EventID        string
	EventType      string
	BodySHA256     string
	Payload        []byte
}

// RecordWebhookEvent journals a delivery. It returns false when the
// transmission was already recorded.
func (s *Store) RecordWebhookEvent(ctx context.Context, e WebhookEvent) (bool, error) {
	_, err := s.Db.Exec(ctx, `
		INSERT INTO webhook_events (transmission_id, event_id, event_type, body_sha256, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		e.TransmissionID, e.EventID, e.EventType, e.BodySHA256, string(e.Payload),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("webhook journal insert failed: %w", err)
	}
	return true, nil
}

// MarkWebhookProcessed stamps the outcome of dispatching a journaled delivery.
func (s *Store) MarkWebhookProcessed(ctx context.Context, transmissionID string, procErr error) error {
	var msg *string
	if procErr != nil {
		m := procErr.Error()
		msg = &m
	}
	_, err := s.Db.Exec(ctx,
		"UPDATE webhook_events SET processed_at = now(), processing_error = $2 WHERE transmission_id = $1",
		transmissionID, msg,
	)
	if err != nil {
		return fmt.Errorf("webhook journal update failed: %w", err)
	}
	return nil
}
