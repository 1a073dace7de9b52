package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

// releasePicked releases the orders selected by pick and frees their numbers
// in a single statement. pick must select order ids and may use $1 (now);
// its own arguments start at $2. Orders that stopped holding between the
// pick and the update are left alone.
func (r *OrderRepository) releasePicked(ctx context.Context, now time.Time, pick string, args ...any) ([]domain.Order, error) {
	stmt := `
WITH picked AS (` + pick + `),
released AS (
	UPDATE orders o
	SET status = 'released', released_at = $1
	FROM picked
	WHERE o.id = picked.id AND o.status IN ('reserved', 'pending')
	RETURNING o.*
),
freed AS (
	DELETE FROM order_numbers n USING released r WHERE n.order_id = r.id
)
SELECT ` + orderColumns("r") + ` FROM released r`

	rows, err := db(ctx, r.pool).Query(ctx, stmt, append([]any{now}, args...)...)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *OrderRepository) ReleaseExpiredByNumbers(ctx context.Context, numbers []string, now time.Time) ([]domain.Order, error) {
	const pick = `
SELECT o.id FROM orders o
WHERE o.status IN ('reserved', 'pending') AND o.hold_expires_at < $1
	AND o.id IN (SELECT order_id FROM order_numbers WHERE number = ANY($2::text[]))
FOR UPDATE SKIP LOCKED`

	released, err := r.releasePicked(ctx, now, pick, numbers)
	if err != nil {
		return nil, fmt.Errorf("release expired by numbers: %w", err)
	}
	return released, nil
}

func (r *OrderRepository) ReleaseExpired(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	const pick = `
SELECT o.id FROM orders o
WHERE o.status IN ('reserved', 'pending') AND o.hold_expires_at < $1
ORDER BY o.hold_expires_at
LIMIT $2
FOR UPDATE SKIP LOCKED`

	released, err := r.releasePicked(ctx, now, pick, limit)
	if err != nil {
		return nil, fmt.Errorf("release expired: %w", err)
	}
	return released, nil
}

func (r *OrderRepository) ReleaseOrder(ctx context.Context, orderID string, now time.Time) (bool, error) {
	const pick = `SELECT o.id FROM orders o WHERE o.id = $2 FOR UPDATE`

	released, err := r.releasePicked(ctx, now, pick, orderID)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("release order: %w", err)
	}
	return len(released) == 1, nil
}

// ApproveOrder settles the order and records the payment id. The partial
// unique index on payment_id keeps one payment from settling two orders.
func (r *OrderRepository) ApproveOrder(ctx context.Context, a domain.Approval) error {
	const stmt = `
UPDATE orders
SET status = 'approved',
	payment_id = $2,
	provider_reference = NULLIF($3, ''),
	buyer_name = COALESCE(NULLIF($4, ''), buyer_name),
	buyer_phone = COALESCE(NULLIF($5, ''), buyer_phone),
	approved_at = $6,
	buyer_id = NULL,
	hold_expires_at = NULL
WHERE id = $1 AND status IN ('reserved', 'pending') AND numbers = $7::text[]`

	tag, err := db(ctx, r.pool).Exec(ctx, stmt,
		a.OrderID,
		a.PaymentID,
		a.ProviderReference,
		a.BuyerName,
		a.BuyerPhone,
		a.ApprovedAt,
		a.Numbers,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: payment %s already applied", domain.ErrConflict, a.PaymentID)
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("approve order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}
