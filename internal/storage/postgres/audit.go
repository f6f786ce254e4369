package postgres

import (
	"context"
	"fmt"
	"time"

	"lab-booking/internal/core"
)

func (s *Store) InsertAudit(ctx context.Context, e *core.AuditEntry) error {
	err := s.queryRow(ctx, `
		INSERT INTO audit_log (tenant_id, user_id, action, target_table, record_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		RETURNING id
	`, e.TenantID, e.UserID, e.Action, e.TargetTable, e.RecordID, string(e.Details), e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) EnqueueEvent(ctx context.Context, e *core.OutboxEvent) error {
	err := s.queryRow(ctx, `
		INSERT INTO outbox_events (tenant_id, event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		RETURNING id
	`, e.TenantID, e.EventType, e.AggregateID, string(e.Payload), e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// UnpublishedEvents returns up to limit events not yet published, oldest first.
func (s *Store) UnpublishedEvents(ctx context.Context, limit int) ([]core.OutboxEvent, error) {
	rows, err := s.query(ctx, `
		SELECT id, tenant_id, event_type, aggregate_id, payload::text, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var out []core.OutboxEvent
	for rows.Next() {
		var e core.OutboxEvent
		var payload string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EventType, &e.AggregateID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkPublished stamps the given events as published at t.
func (s *Store) MarkPublished(ctx context.Context, ids []int64, t time.Time) error {
	_, err := s.exec(ctx, `UPDATE outbox_events SET published_at = $2 WHERE id = ANY($1)`, ids, t)
	if err != nil {
		return fmt.Errorf("failed to mark outbox events published: %w", err)
	}
	return nil
}
