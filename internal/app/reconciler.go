package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/EderamorimTH/rifa-miguel/internal/clock"
	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

type ReconcileRepository interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error)
	// FindHoldingOrder finds the buyer's reserved/pending order containing all
	// numbers; used for references that predate order ids.
	FindHoldingOrder(ctx context.Context, buyerID string, numbers []string) (*domain.Order, error)
	// ApproveOrder settles a reserved/pending order whose numbers are
	// unchanged. It returns domain.ErrConflict when the precondition fails.
	ApproveOrder(ctx context.Context, a domain.Approval) error
	// ReleaseOrder releases an order only if it is still reserved/pending.
	ReleaseOrder(ctx context.Context, orderID string, now time.Time) (bool, error)
}

// ClaimRepository stores short processing leases keyed by payment id.
type ClaimRepository interface {
	// ClaimPayment succeeds only if no unexpired claim exists for paymentID.
	ClaimPayment(ctx context.Context, paymentID, holder string, now time.Time, lease time.Duration) (bool, error)
	ReleasePaymentClaim(ctx context.Context, paymentID, holder string) error
}

// PaymentGateway is the slice of the payment provider used by reconciliation.
type PaymentGateway interface {
	GetPayment(ctx context.Context, paymentID string) (domain.Payment, error)
	// SearchByMerchantOrder returns "" when the merchant order has no payment yet.
	SearchByMerchantOrder(ctx context.Context, merchantOrderID string) (string, error)
}

// Outcome is how a single notification delivery was disposed of. It never
// reaches the provider: the webhook always acknowledges.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeInFlight  Outcome = "in_flight"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeApproved  Outcome = "approved"
	OutcomeReleased  Outcome = "released"
	OutcomeAwaiting  Outcome = "awaiting"
	OutcomeRejected  Outcome = "rejected"
	OutcomeConflict  Outcome = "conflict"
)

// Reconciler applies asynchronous payment notifications to inventory. Each
// payment id is processed by at most one invocation at a time (processing
// claim) and applied at most once (the order's payment id).
type Reconciler struct {
	orders         ReconcileRepository
	claims         ClaimRepository
	gateway        PaymentGateway
	clock          clock.Clock
	lease          time.Duration
	gatewayTimeout time.Duration
	events         EventPublisher
	logger         *slog.Logger
}

const defaultClaimLease = 30 * time.Second

func NewReconciler(orders ReconcileRepository, claims ClaimRepository, gateway PaymentGateway, clk clock.Clock, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		orders:         orders,
		claims:         claims,
		gateway:        gateway,
		clock:          clk,
		lease:          defaultClaimLease,
		gatewayTimeout: defaultGatewayTimeout,
		events:         NopPublisher(),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type ReconcilerOption func(*Reconciler)

func WithClaimLease(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.lease = d
		}
	}
}

func WithLookupTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.gatewayTimeout = d
		}
	}
}

func WithReconcilerEvents(pub EventPublisher) ReconcilerOption {
	return func(r *Reconciler) {
		if pub != nil {
			r.events = pub
		}
	}
}

// Handle processes one notification delivery. Failures are logged and
// counted; none of them is returned, because the provider would read an
// error as a request to redeliver.
func (r *Reconciler) Handle(ctx context.Context, n domain.Notification) Outcome {
	requestID := newUUID()
	ctx, span := tracer.Start(ctx, "reconciler.handle")
	defer span.End()

	outcome := r.handle(ctx, r.logger.With("request_id", requestID), requestID, n)
	webhookOutcomes.Add(string(outcome), 1)
	span.SetAttributes(attribute.String("webhook.outcome", string(outcome)))
	return outcome
}

func (r *Reconciler) handle(ctx context.Context, logger *slog.Logger, requestID string, n domain.Notification) Outcome {
	paymentID, err := r.resolvePaymentID(ctx, n)
	if err != nil {
		logger.Warn("resolve payment id failed, awaiting redelivery", "error", err)
		return OutcomeDeferred
	}
	if paymentID == "" {
		logger.Info("notification carries no payment id")
		return OutcomeIgnored
	}
	logger = logger.With("payment_id", paymentID)

	claimed, err := r.claims.ClaimPayment(ctx, paymentID, requestID, r.clock.Now(), r.lease)
	if err != nil {
		logger.Error("claim payment failed", "error", err)
		return OutcomeDeferred
	}
	if !claimed {
		logger.Info("payment already being processed, dropping delivery")
		return OutcomeInFlight
	}
	defer r.releaseClaim(ctx, logger, paymentID, requestID)

	return r.reconcile(ctx, logger, paymentID)
}

func (r *Reconciler) resolvePaymentID(ctx context.Context, n domain.Notification) (string, error) {
	switch v := n.(type) {
	case domain.PaymentNotification:
		return v.PaymentID, nil
	case domain.MerchantOrderNotification:
		if v.MerchantOrderID == "" {
			return "", nil
		}
		gwCtx, cancel := context.WithTimeout(ctx, r.gatewayTimeout)
		defer cancel()
		return r.gateway.SearchByMerchantOrder(gwCtx, v.MerchantOrderID)
	default:
		return "", nil
	}
}

func (r *Reconciler) reconcile(ctx context.Context, logger *slog.Logger, paymentID string) Outcome {
	settled, err := r.orders.FindOrderByPaymentID(ctx, paymentID)
	if err != nil {
		logger.Error("lookup settled order failed", "error", err)
		return OutcomeDeferred
	}
	if settled != nil && settled.Status == domain.OrderStatusApproved {
		logger.Info("payment already applied", "order_id", settled.ID)
		return OutcomeDuplicate
	}

	gwCtx, cancel := context.WithTimeout(ctx, r.gatewayTimeout)
	payment, err := r.gateway.GetPayment(gwCtx, paymentID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) || errors.Is(err, domain.ErrStructural) {
			logger.Warn("payment lookup unprocessable, dropping", "error", err)
			return OutcomeRejected
		}
		logger.Warn("payment lookup failed, awaiting redelivery", "error", err)
		return OutcomeDeferred
	}
	logger = logger.With("payment_status", string(payment.Status))
	decision := payment.Status.Outcome()

	ref, err := domain.DecodeOrderReference(payment.ExternalReference)
	if err != nil {
		logger.Error("undecodable order reference, dropping", "error", err)
		return OutcomeRejected
	}

	order, err := r.resolveOrder(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrStructural) {
			logger.Error("referenced order unresolvable, dropping", "error", err, "numbers", ref.Numbers)
			return OutcomeRejected
		}
		logger.Error("load referenced order failed", "error", err)
		return OutcomeDeferred
	}
	logger = logger.With("order_id", order.ID)

	if err := matchOrder(order, ref); err != nil {
		if decision == domain.OutcomeApproved {
			logger.Error("approved payment does not match a held order, manual refund required",
				"error", err,
				"order_status", string(order.Status),
				"order_payment_id", order.PaymentID,
			)
		} else {
			logger.Info("payment does not match a held order, dropping", "error", err)
		}
		return OutcomeRejected
	}

	switch decision {
	case domain.OutcomeApproved:
		return r.approve(ctx, logger, order, ref, payment)
	case domain.OutcomeFailed:
		return r.release(ctx, logger, order, payment)
	default:
		logger.Info("payment not settled yet, leaving hold in place")
		return OutcomeAwaiting
	}
}

func (r *Reconciler) resolveOrder(ctx context.Context, ref domain.OrderReference) (domain.Order, error) {
	if ref.OrderID == "" {
		order, err := r.orders.FindHoldingOrder(ctx, ref.BuyerID, ref.Numbers)
		if err != nil {
			return domain.Order{}, err
		}
		if order == nil {
			return domain.Order{}, fmt.Errorf("%w: no held order for buyer %s", domain.ErrStructural, ref.BuyerID)
		}
		return *order, nil
	}

	order, err := r.orders.GetOrder(ctx, ref.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrInvalidID) {
		return domain.Order{}, fmt.Errorf("%w: order %s: %v", domain.ErrStructural, ref.OrderID, err)
	}
	return order, err
}

// matchOrder checks the order can still be settled by the referenced payment.
func matchOrder(order domain.Order, ref domain.OrderReference) error {
	if !order.Status.Holding() {
		return fmt.Errorf("%w: order is %s", domain.ErrStructural, order.Status)
	}
	if order.BuyerID != ref.BuyerID {
		return fmt.Errorf("%w: buyer mismatch", domain.ErrStructural)
	}
	if !order.Covers(ref.Numbers) {
		return fmt.Errorf("%w: numbers mismatch", domain.ErrStructural)
	}
	return nil
}

func (r *Reconciler) approve(ctx context.Context, logger *slog.Logger, order domain.Order, ref domain.OrderReference, payment domain.Payment) Outcome {
	approvedAt := r.clock.Now()
	if payment.ApprovedAt != nil {
		approvedAt = payment.ApprovedAt.UTC()
	}

	err := r.orders.ApproveOrder(ctx, domain.Approval{
		OrderID:           order.ID,
		Numbers:           order.Numbers,
		PaymentID:         payment.ID,
		ProviderReference: payment.ProviderReference,
		BuyerName:         ref.BuyerName,
		BuyerPhone:        ref.BuyerPhone,
		ApprovedAt:        approvedAt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			logger.Error("order changed before approval, payment not applied", "error", err)
			return OutcomeConflict
		}
		logger.Error("approve order failed, awaiting redelivery", "error", err)
		return OutcomeDeferred
	}

	publishAll(ctx, r.events, logger, domain.OrderEvent{
		Type:       domain.EventOrderApproved,
		OrderID:    order.ID,
		Numbers:    order.Numbers,
		PaymentID:  payment.ID,
		OccurredAt: approvedAt,
	})
	logger.Info("payment approved",
		"numbers", order.Numbers,
		"buyer_name", ref.BuyerName,
	)
	return OutcomeApproved
}

func (r *Reconciler) release(ctx context.Context, logger *slog.Logger, order domain.Order, payment domain.Payment) Outcome {
	now := r.clock.Now()
	released, err := r.orders.ReleaseOrder(ctx, order.ID, now)
	if err != nil {
		logger.Error("release order failed, awaiting redelivery", "error", err)
		return OutcomeDeferred
	}
	if !released {
		logger.Info("order no longer held, nothing to release")
		return OutcomeConflict
	}

	publishAll(ctx, r.events, logger, domain.OrderEvent{
		Type:       domain.EventOrderReleased,
		OrderID:    order.ID,
		Numbers:    order.Numbers,
		PaymentID:  payment.ID,
		Reason:     "payment_" + string(payment.Status),
		OccurredAt: now,
	})
	logger.Info("payment failed, numbers released", "numbers", order.Numbers)
	return OutcomeReleased
}

// releaseClaim runs even when the request context is gone; the claim is a
// lease, so a failure here only delays the next delivery until it expires.
func (r *Reconciler) releaseClaim(ctx context.Context, logger *slog.Logger, paymentID, holder string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.claims.ReleasePaymentClaim(ctx, paymentID, holder); err != nil {
		logger.Warn("release processing claim failed", "error", err)
	}
}
