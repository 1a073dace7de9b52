package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

// OrderRepository stores orders in orders and number ownership in
// order_numbers, whose primary key keeps every number in at most one live
// order.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func orderColumns(alias string) string {
	return fmt.Sprintf(`%[1]s.id::text, %[1]s.numbers, COALESCE(%[1]s.buyer_id, ''), %[1]s.buyer_name, %[1]s.buyer_phone,
%[1]s.status, %[1]s.hold_expires_at, COALESCE(%[1]s.intent_id, ''), COALESCE(%[1]s.payment_id, ''),
COALESCE(%[1]s.provider_reference, ''), %[1]s.approved_at, %[1]s.released_at, %[1]s.created_at`, alias)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o           domain.Order
		status      string
		holdExpires *time.Time
	)
	err := row.Scan(
		&o.ID,
		&o.Numbers,
		&o.BuyerID,
		&o.BuyerName,
		&o.BuyerPhone,
		&status,
		&holdExpires,
		&o.IntentID,
		&o.PaymentID,
		&o.ProviderReference,
		&o.ApprovedAt,
		&o.ReleasedAt,
		&o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	if holdExpires != nil {
		o.HoldExpiresAt = holdExpires.UTC()
	}
	o.ApprovedAt = utcPtr(o.ApprovedAt)
	o.ReleasedAt = utcPtr(o.ReleasedAt)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const insertOrder = `
INSERT INTO orders (id, numbers, buyer_id, status, hold_expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	const claimNumbers = `
INSERT INTO order_numbers (number, order_id)
SELECT unnest($1::text[]), $2
ON CONFLICT (number) DO NOTHING
RETURNING number`

	return withTx(ctx, r.pool, func(ctx context.Context) error {
		q := db(ctx, r.pool)
		_, err := q.Exec(ctx, insertOrder,
			order.ID,
			order.Numbers,
			order.BuyerID,
			string(order.Status),
			order.HoldExpiresAt,
			order.CreatedAt,
		)
		if err != nil {
			if isInvalidUUID(err) {
				return domain.ErrInvalidID
			}
			return fmt.Errorf("create order: %w", err)
		}

		rows, err := q.Query(ctx, claimNumbers, order.Numbers, order.ID)
		if err != nil {
			return fmt.Errorf("claim numbers: %w", err)
		}
		claimed, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("claim numbers: %w", err)
		}
		if len(claimed) == len(order.Numbers) {
			return nil
		}

		held := make([]string, 0, len(order.Numbers)-len(claimed))
		for _, n := range order.Numbers {
			if !slices.Contains(claimed, n) {
				held = append(held, n)
			}
		}
		slices.Sort(held)
		return &domain.HeldError{Numbers: held}
	})
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	query := `SELECT ` + orderColumns("o") + ` FROM orders o WHERE o.id = $1`

	o, err := scanOrder(db(ctx, r.pool).QueryRow(ctx, query, orderID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns("o") + ` FROM orders o WHERE o.payment_id = $1`

	o, err := scanOrder(db(ctx, r.pool).QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by payment: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) FindHoldingOrder(ctx context.Context, buyerID string, numbers []string) (*domain.Order, error) {
	query := `
SELECT ` + orderColumns("o") + `
FROM orders o
WHERE o.buyer_id = $1 AND o.status IN ('reserved', 'pending') AND o.numbers @> $2::text[]
ORDER BY o.created_at DESC
LIMIT 1`

	o, err := scanOrder(db(ctx, r.pool).QueryRow(ctx, query, buyerID, numbers))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find holding order: %w", err)
	}
	return &o, nil
}

// MarkPending records checkout on a held order. The hold is extended only on
// the reserved to pending step, so repeated checkouts cannot keep it alive.
func (r *OrderRepository) MarkPending(ctx context.Context, in domain.PendingUpdate) error {
	const stmt = `
UPDATE orders
SET status = 'pending', buyer_name = $3, buyer_phone = $4, intent_id = $5,
	hold_expires_at = CASE WHEN status = 'reserved' THEN GREATEST(hold_expires_at, $6) ELSE hold_expires_at END
WHERE id = $1 AND buyer_id = $2 AND status IN ('reserved', 'pending') AND hold_expires_at > $7`

	tag, err := db(ctx, r.pool).Exec(ctx, stmt,
		in.OrderID,
		in.BuyerID,
		in.BuyerName,
		in.BuyerPhone,
		in.IntentID,
		in.HoldExpiresAt,
		in.Now,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("mark pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *OrderRepository) ListLiveNumbers(ctx context.Context) ([]domain.NumberState, error) {
	const query = `
SELECT n.number, o.status, o.hold_expires_at
FROM order_numbers n
JOIN orders o ON o.id = n.order_id
ORDER BY n.number`

	rows, err := db(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list live numbers: %w", err)
	}
	states, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.NumberState, error) {
		var (
			st      domain.NumberState
			status  string
			expires *time.Time
		)
		if err := row.Scan(&st.Number, &status, &expires); err != nil {
			return domain.NumberState{}, err
		}
		st.Status = domain.OrderStatus(status)
		if expires != nil {
			st.HoldExpiresAt = expires.UTC()
		}
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list live numbers: %w", err)
	}
	return states, nil
}
