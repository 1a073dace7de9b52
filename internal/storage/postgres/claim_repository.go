package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClaimRepository keeps per-payment processing leases in payment_claims.
type ClaimRepository struct {
	pool *pgxpool.Pool
}

func NewClaimRepository(pool *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{pool: pool}
}

// ClaimPayment takes the lease unless another holder has one that has not
// expired yet. A crashed holder's lease is taken over once it lapses.
func (r *ClaimRepository) ClaimPayment(ctx context.Context, paymentID, holder string, now time.Time, lease time.Duration) (bool, error) {
	const stmt = `
INSERT INTO payment_claims (payment_id, request_id, claimed_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (payment_id) DO UPDATE
SET request_id = EXCLUDED.request_id, claimed_at = EXCLUDED.claimed_at, expires_at = EXCLUDED.expires_at
WHERE payment_claims.expires_at <= EXCLUDED.claimed_at
RETURNING request_id`

	var got string
	err := db(ctx, r.pool).QueryRow(ctx, stmt, paymentID, holder, now, now.Add(lease)).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("claim payment: %w", err)
	}
	return got == holder, nil
}

func (r *ClaimRepository) ReleasePaymentClaim(ctx context.Context, paymentID, holder string) error {
	const stmt = `DELETE FROM payment_claims WHERE payment_id = $1 AND request_id = $2`

	if _, err := db(ctx, r.pool).Exec(ctx, stmt, paymentID, holder); err != nil {
		return fmt.Errorf("release payment claim: %w", err)
	}
	return nil
}
