package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/EderamorimTH/rifa-miguel/internal/clock"
	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// ReleaseExpiredByNumbers releases holding orders past their hold that
	// own any of numbers, freeing those numbers.
	ReleaseExpiredByNumbers(ctx context.Context, numbers []string, now time.Time) ([]domain.Order, error)
	// CreateOrder persists the order and claims its numbers. It returns a
	// *domain.HeldError when any number already belongs to a live order.
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

type ReservationService struct {
	repo    ReservationRepository
	clock   clock.Clock
	format  domain.NumberFormat
	holdTTL time.Duration
	events  EventPublisher
	logger  *slog.Logger
}

const defaultHoldTTL = 5 * time.Minute

func NewReservationService(repo ReservationRepository, clk clock.Clock, format domain.NumberFormat, opts ...ReservationOption) *ReservationService {
	svc := &ReservationService{
		repo:    repo,
		clock:   clk,
		format:  format,
		holdTTL: defaultHoldTTL,
		events:  NopPublisher(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationOption func(*ReservationService)

// WithHoldTTL overrides the default TTL for new reservations.
func WithHoldTTL(d time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithReservationEvents(pub EventPublisher, logger *slog.Logger) ReservationOption {
	return func(s *ReservationService) {
		if pub != nil {
			s.events = pub
		}
		if logger != nil {
			s.logger = logger
		}
	}
}

type ReserveInput struct {
	Numbers []string
	BuyerID string
}

// Reserve holds numbers for a buyer. Availability check and creation happen
// in one transaction guarded by the per-number uniqueness constraint, so two
// overlapping reservations can never both succeed.
func (s *ReservationService) Reserve(ctx context.Context, in ReserveInput) (domain.Order, error) {
	if in.BuyerID == "" {
		return domain.Order{}, domain.ErrBuyerRequired
	}
	numbers, err := s.format.Normalize(in.Numbers)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:            newUUID(),
		Numbers:       numbers,
		BuyerID:       in.BuyerID,
		Status:        domain.OrderStatusReserved,
		HoldExpiresAt: now.Add(s.holdTTL),
		CreatedAt:     now,
	}

	var reclaimed []domain.Order
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		released, err := s.repo.ReleaseExpiredByNumbers(txCtx, numbers, now)
		if err != nil {
			return err
		}
		if err := s.repo.CreateOrder(txCtx, order); err != nil {
			return err
		}
		reclaimed = released
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	publishAll(ctx, s.events, s.logger, releasedEvents(reclaimed, "expired")...)
	return order, nil
}

// Verify reports whether the order is still held by buyerID and not expired.
func (s *ReservationService) Verify(ctx context.Context, orderID, buyerID string) (bool, error) {
	if orderID == "" {
		return false, domain.ErrInvalidID
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrInvalidID) {
			return false, nil
		}
		return false, err
	}
	return order.HeldBy(buyerID, s.clock.Now()), nil
}
