package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lab-booking/internal/core"

	"github.com/jackc/pgx/v5"
)

func (s *Store) FindActiveCart(ctx context.Context, userID, tenantID int64, forUpdate bool) (*core.Cart, error) {
	sql := `
		SELECT id::text, user_id, tenant_id, status, expires_at, created_at
		FROM carts
		WHERE user_id = $1 AND tenant_id = $2 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var c core.Cart
	err := s.queryRow(ctx, sql, userID, tenantID).Scan(&c.ID, &c.UserID, &c.TenantID, &c.Status, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load active cart: %w", mapErr(err))
	}
	return &c, nil
}

// CreateCart inserts c. A concurrent creation of a second active cart for the
// same user trips the partial unique index and is reported as contention.
func (s *Store) CreateCart(ctx context.Context, c *core.Cart) error {
	_, err := s.exec(ctx, `
		INSERT INTO carts (id, user_id, tenant_id, status, expires_at, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $6)
	`, c.ID, c.UserID, c.TenantID, c.Status, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &core.ConcurrencyError{Op: "create cart"}
		}
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

func (s *Store) UpdateCart(ctx context.Context, cartID, status string, expiresAt time.Time) error {
	_, err := s.exec(ctx, `
		UPDATE carts SET status = $2, expires_at = $3, updated_at = NOW()
		WHERE id = $1::uuid
	`, cartID, status, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	return nil
}

func (s *Store) CartLines(ctx context.Context, cartID string) ([]core.CartLine, error) {
	rows, err := s.query(ctx, `
		SELECT id, cart_id::text, line_type, ref_id, quantity,
		       to_char(slot_date, 'YYYY-MM-DD'), start_time, end_time, created_at
		FROM cart_lines
		WHERE cart_id = $1::uuid
		ORDER BY id
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []core.CartLine
	for rows.Next() {
		var l core.CartLine
		var lineType string
		if err := rows.Scan(&l.ID, &l.CartID, &lineType, &l.RefID, &l.Quantity,
			&l.Date, &l.Start, &l.End, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		l.Type = core.LineType(lineType)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) InsertCartLine(ctx context.Context, l *core.CartLine) error {
	err := s.queryRow(ctx, `
		INSERT INTO cart_lines (cart_id, line_type, ref_id, quantity, slot_date, start_time, end_time, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5::date, $6, $7, $8)
		RETURNING id
	`, l.CartID, string(l.Type), l.RefID, l.Quantity, l.Date, l.Start, l.End, l.CreatedAt).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to insert cart line: %w", err)
	}
	return nil
}

func (s *Store) UpdateCartLineQuantity(ctx context.Context, lineID int64, quantity int) error {
	_, err := s.exec(ctx, `UPDATE cart_lines SET quantity = $2 WHERE id = $1`, lineID, quantity)
	if err != nil {
		return fmt.Errorf("failed to update cart line: %w", err)
	}
	return nil
}

func (s *Store) DeleteCartLine(ctx context.Context, cartID string, lineID int64) (bool, error) {
	tag, err := s.exec(ctx, `DELETE FROM cart_lines WHERE id = $1 AND cart_id = $2::uuid`, lineID, cartID)
	if err != nil {
		return false, fmt.Errorf("failed to delete cart line: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DeleteCartLines(ctx context.Context, cartID string) (int64, error) {
	tag, err := s.exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1::uuid`, cartID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart lines: %w", err)
	}
	return tag.RowsAffected(), nil
}
