package postgres

import (
	"context"
	"fmt"
	"time"

	"lab-booking/internal/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const reservationColumns = `
	id, tenant_id, user_id, item_id, kit_id, quantity, starts_at, ends_at,
	status, booking_group_id::text, created_at`

func scanReservations(rows pgx.Rows) ([]core.Reservation, error) {
	defer rows.Close()
	var out []core.Reservation
	for rows.Next() {
		var r core.Reservation
		if err := rows.Scan(&r.ID, &r.TenantID, &r.UserID, &r.ItemID, &r.KitID, &r.Quantity,
			&r.Start, &r.End, &r.Status, &r.BookingGroupID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveOverlaps uses the half-open overlap test: existing.start < end AND existing.end > start.
func (s *Store) ActiveOverlaps(ctx context.Context, tenantID int64, start, end time.Time) ([]core.Reservation, error) {
	rows, err := s.query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE tenant_id = $1
		  AND status = 'confirmed'
		  AND starts_at < $3
		  AND ends_at > $2
	`, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping reservations: %w", err)
	}
	return scanReservations(rows)
}

func (s *Store) InsertReservation(ctx context.Context, r *core.Reservation) error {
	err := s.queryRow(ctx, `
		INSERT INTO reservations
			(tenant_id, user_id, item_id, kit_id, quantity, starts_at, ends_at, status, booking_group_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::uuid, $10)
		RETURNING id
	`, r.TenantID, r.UserID, r.ItemID, r.KitID, r.Quantity, r.Start, r.End, r.Status, r.BookingGroupID, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func (s *Store) ReservationsByGroup(ctx context.Context, tenantID int64, groupID string) ([]core.Reservation, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return nil, nil
	}
	rows, err := s.query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE tenant_id = $1 AND booking_group_id = $2::uuid
		ORDER BY id
	`, tenantID, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking group: %w", err)
	}
	return scanReservations(rows)
}

func (s *Store) CancelGroup(ctx context.Context, tenantID int64, groupID string) (int64, error) {
	tag, err := s.exec(ctx, `
		UPDATE reservations
		SET status = 'cancelled'
		WHERE tenant_id = $1 AND booking_group_id = $2::uuid AND status = 'confirmed'
	`, tenantID, groupID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel booking group: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) UpdateReservationQuantity(ctx context.Context, tenantID, id int64, quantity int) error {
	tag, err := s.exec(ctx, `
		UPDATE reservations
		SET quantity = $3
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to update reservation quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %d not found", id)
	}
	return nil
}

func (s *Store) CancelReservation(ctx context.Context, tenantID, id int64) error {
	tag, err := s.exec(ctx, `
		UPDATE reservations
		SET status = 'cancelled'
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to cancel reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %d not found", id)
	}
	return nil
}

func (s *Store) ConfirmedStartingBetween(ctx context.Context, tenantID int64, from, to time.Time) ([]core.Reservation, error) {
	rows, err := s.query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE tenant_id = $1
		  AND status = 'confirmed'
		  AND starts_at >= $2
		  AND starts_at < $3
		ORDER BY starts_at, id
	`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations by start: %w", err)
	}
	return scanReservations(rows)
}
